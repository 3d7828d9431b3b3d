package contacts

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/pimbridge/pimbridge/macos/osascript"
)

const (
	// searchResultCap bounds how many matched people one targeted query
	// returns.
	searchResultCap = 20
	searchAttempts  = 3
	searchRetryWait = 500 * time.Millisecond
)

// SearchError is a failed targeted name search. Timeout marks failures that
// look like a slow or hung automation endpoint, so the calling handler can
// say "the search timed out" instead of the misleading "no contact found".
type SearchError struct {
	Timeout bool
	Err     error
}

// Error returns the formatted error message.
func (e *SearchError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("contacts: name search timed out: %v", e.Err)
	}
	return fmt.Sprintf("contacts: name search failed: %v", e.Err)
}

// Unwrap exposes the underlying execution error.
func (e *SearchError) Unwrap() error {
	return e.Err
}

// nameSearchScript asks Contacts.app to filter people whose name contains
// the fragment using its own indexed whose-clause. Fetching the full address
// book and filtering client-side is the documented slow path that times out
// once the book grows past a few hundred entries.
const nameSearchScript = `(() => {
	const Contacts = Application("Contacts");
	const matched = Contacts.people.whose({name: {_contains: "{{query}}"}});
	const total = matched.length;
	const rows = [];
	for (let i = 0; i < total && i < {{limit}}; i++) {
		const person = matched[i];
		rows.push({
			phones: person.phones().map(entry => entry.value()),
			emails: person.emails().map(entry => entry.value()),
		});
	}
	return JSON.stringify(rows);
})()`

// searchByName runs one indexed Contacts.app query for the given name
// fragment and returns the normalized, deduplicated handles of every match.
//
// Nil with no error means "nothing to resolve": either no contact matched or
// Contacts permission is denied, which are indistinguishable to the caller.
// Any other failure is returned as a *SearchError.
func searchByName(ctx context.Context, name string, timeout time.Duration) (*ContactHandles, error) {
	script := osascript.NewTemplate(nameSearchScript).
		Bind("query", name).
		BindCode("limit", strconv.Itoa(searchResultCap)).
		Render()

	result, err := osascript.RunWithRetry(ctx, "Contacts", script, timeout, searchAttempts, searchRetryWait)
	if err != nil {
		if osascript.IsPermission(err) {
			return nil, nil
		}
		return nil, &SearchError{Timeout: osascript.IsTransient(err), Err: err}
	}
	if result.Empty {
		return nil, nil
	}

	return parseSearchRows(result.Value), nil
}

// parseSearchRows maps the decoded script output to normalized handle sets.
// Returns nil when no row carries a usable handle.
func parseSearchRows(value any) *ContactHandles {
	rows, ok := value.([]any)
	if !ok {
		return nil
	}

	var phones, emails []string
	for _, row := range rows {
		fields, ok := row.(map[string]any)
		if !ok {
			continue
		}
		for _, raw := range stringSlice(fields["phones"]) {
			phones = append(phones, normalizePhone(raw))
		}
		for _, raw := range stringSlice(fields["emails"]) {
			emails = append(emails, normalizeEmail(raw))
		}
	}

	handles := &ContactHandles{
		Phones: dedupeNonEmpty(phones),
		Emails: dedupeNonEmpty(emails),
	}
	if len(handles.Phones) == 0 && len(handles.Emails) == 0 {
		return nil
	}
	return handles
}

func stringSlice(value any) []string {
	items, ok := value.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
