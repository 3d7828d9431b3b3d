package contacts

import "strings"

// ContactRecord is one merged contact from the AddressBook databases.
//
// A record is assembled from two independent per-association queries keyed
// by the same contact identifier: a contact with m emails and n phones
// yields exactly m+n associations, never m*n.
type ContactRecord struct {
	ID           string
	FirstName    string
	LastName     string
	Organization string
	Phones       []string
	Emails       []string
}

// DisplayName returns the contact's name, falling back to the organization
// when no name parts are set.
func (r ContactRecord) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(r.FirstName) + " " + strings.TrimSpace(r.LastName))
	if name != "" {
		return name
	}
	return strings.TrimSpace(r.Organization)
}

// ResolvedContact is the public projection served to callers. Multiple cache
// entries (one per normalized handle) may point to the same value.
type ResolvedContact struct {
	ID        string
	FullName  string
	FirstName string
	LastName  string
}

// ContactHandles is the result of a name-to-handles lookup: deduplicated
// normalized phones and emails for the matching contacts. Never cached.
type ContactHandles struct {
	Phones []string
	Emails []string
}

// phoneSuffixLen is how many trailing digits index a phone a second time, so
// handles with and without a country code still find each other.
const phoneSuffixLen = 10

// NormalizeHandle reduces a handle to its canonical comparison form:
// lowercase-trimmed for emails, digits-only for everything else.
// Normalization is idempotent.
func NormalizeHandle(handle string) string {
	handle = strings.TrimSpace(handle)
	if looksLikeEmail(handle) {
		return normalizeEmail(handle)
	}
	return normalizePhone(handle)
}

func looksLikeEmail(handle string) bool {
	return strings.Contains(handle, "@")
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizePhone(phone string) string {
	var b strings.Builder
	b.Grow(len(phone))
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// phoneSuffix returns the last-10-digit form of a digit string, or "" when
// the string is not longer than the suffix already.
func phoneSuffix(digits string) string {
	if len(digits) <= phoneSuffixLen {
		return ""
	}
	return digits[len(digits)-phoneSuffixLen:]
}

func dedupeNonEmpty(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, value := range values {
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
