// Package calendar lists, searches, and creates Calendar.app events through
// osascript. Attendee handles are enriched to contact names through a
// resolver behind a bounded deadline.
package calendar

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pimbridge/pimbridge/macos/contacts"
	"github.com/pimbridge/pimbridge/macos/osascript"
	"github.com/pimbridge/pimbridge/timebound"
)

const (
	defaultScriptTimeout = 30 * time.Second
	defaultResultCap     = 50
	scriptAttempts       = 3
	scriptRetryWait      = 500 * time.Millisecond
)

// Event is one calendar event.
type Event struct {
	ID            string
	Title         string
	CalendarName  string
	Location      string
	Notes         string
	Start         time.Time
	End           time.Time
	Attendees     []string
	AttendeeNames []string
}

// Config tunes a Client. Zero values select defaults.
type Config struct {
	ScriptTimeout time.Duration
	EnrichTimeout time.Duration
}

// Client talks to Calendar.app.
type Client struct {
	resolver      *contacts.Resolver
	scriptTimeout time.Duration
	enrichTimeout time.Duration
}

// NewClient creates a Client backed by the given resolver.
func NewClient(resolver *contacts.Resolver, cfg Config) *Client {
	c := &Client{
		resolver:      resolver,
		scriptTimeout: cfg.ScriptTimeout,
		enrichTimeout: cfg.EnrichTimeout,
	}
	if c.scriptTimeout <= 0 {
		c.scriptTimeout = defaultScriptTimeout
	}
	if c.enrichTimeout <= 0 {
		c.enrichTimeout = timebound.DefaultEnrichmentTimeout
	}
	return c
}

const listScript = `(() => {
	const Calendar = Application("Calendar");
	const windowStart = new Date({{startMs}});
	const windowEnd = new Date({{endMs}});
	const rows = [];
	const cals = Calendar.calendars();
	for (const cal of cals) {
		const events = cal.events.whose({_and: [
			{startDate: {_greaterThanEquals: windowStart}},
			{startDate: {_lessThan: windowEnd}}{{extraPredicate}}
		]})();
		for (const ev of events) {
			rows.push({
				id: ev.uid(),
				title: ev.summary() || "",
				calendar: cal.name(),
				location: ev.location() || "",
				notes: ev.description() || "",
				start: ev.startDate().toISOString(),
				end: ev.endDate().toISOString(),
				attendees: ev.attendees().map(a => a.email() || a.displayName() || ""),
			});
			if (rows.length >= {{limit}}) break;
		}
		if (rows.length >= {{limit}}) break;
	}
	return JSON.stringify(rows);
})()`

// List returns events starting inside [from, to), capped at limit.
func (c *Client) List(ctx context.Context, from time.Time, to time.Time, limit int) ([]Event, error) {
	return c.list(ctx, from, to, limit, "")
}

// Search returns events in [from, to) whose title contains text. The filter
// runs server-side in the event store's own indexed predicate.
func (c *Client) Search(ctx context.Context, text string, from time.Time, to time.Time, limit int) ([]Event, error) {
	predicate := fmt.Sprintf(`,
			{summary: {_contains: "%s"}}`, osascript.Escape(text))
	return c.list(ctx, from, to, limit, predicate)
}

// list runs the listing script. extraPredicate is empty or a leading-comma
// fragment appended to the _and array; the window filters always come first.
func (c *Client) list(ctx context.Context, from time.Time, to time.Time, limit int, extraPredicate string) ([]Event, error) {
	if !to.After(from) {
		return nil, errors.New("calendar: end of window must be after start")
	}
	if limit <= 0 || limit > defaultResultCap {
		limit = defaultResultCap
	}

	script := osascript.NewTemplate(listScript).
		BindCode("startMs", strconv.FormatInt(from.UnixMilli(), 10)).
		BindCode("endMs", strconv.FormatInt(to.UnixMilli(), 10)).
		BindCode("limit", strconv.Itoa(limit)).
		BindCode("extraPredicate", extraPredicate).
		Render()

	result, err := osascript.RunWithRetry(ctx, "Calendar", script, c.scriptTimeout, scriptAttempts, scriptRetryWait)
	if err != nil {
		return nil, fmt.Errorf("calendar: listing events failed: %w", err)
	}
	if result.Empty {
		return []Event{}, nil
	}

	events := parseEvents(result.Value)
	c.enrichAttendees(ctx, events)
	return events, nil
}

const createScript = `(() => {
	const Calendar = Application("Calendar");
	const cal = Calendar.calendars.whose({name: "{{calendar}}"})[0];
	const ev = Calendar.Event({
		summary: "{{title}}",
		startDate: new Date({{startMs}}),
		endDate: new Date({{endMs}}),
		location: "{{location}}",
		description: "{{notes}}",
	});
	cal.events.push(ev);
	return JSON.stringify({id: ev.uid()});
})()`

// Create adds an event to the named calendar and returns its identifier.
func (c *Client) Create(ctx context.Context, calendarName string, event Event) (string, error) {
	if event.Title == "" {
		return "", errors.New("calendar: event title is required")
	}
	if !event.End.After(event.Start) {
		return "", errors.New("calendar: event end must be after start")
	}
	if calendarName == "" {
		return "", errors.New("calendar: calendar name is required")
	}

	script := osascript.NewTemplate(createScript).
		Bind("calendar", calendarName).
		Bind("title", event.Title).
		Bind("location", event.Location).
		Bind("notes", event.Notes).
		BindCode("startMs", strconv.FormatInt(event.Start.UnixMilli(), 10)).
		BindCode("endMs", strconv.FormatInt(event.End.UnixMilli(), 10)).
		Render()

	result, err := osascript.Run(ctx, "Calendar", script, c.scriptTimeout)
	if err != nil {
		return "", fmt.Errorf("calendar: creating event failed: %w", err)
	}

	if fields, ok := result.Value.(map[string]any); ok {
		if id, ok := fields["id"].(string); ok {
			return id, nil
		}
	}
	return "", nil
}

func parseEvents(value any) []Event {
	rows, ok := value.([]any)
	if !ok {
		return []Event{}
	}

	events := make([]Event, 0, len(rows))
	for _, row := range rows {
		fields, ok := row.(map[string]any)
		if !ok {
			continue
		}
		event := Event{
			ID:           stringField(fields, "id"),
			Title:        stringField(fields, "title"),
			CalendarName: stringField(fields, "calendar"),
			Location:     stringField(fields, "location"),
			Notes:        stringField(fields, "notes"),
			Start:        timeField(fields, "start"),
			End:          timeField(fields, "end"),
		}
		if attendees, ok := fields["attendees"].([]any); ok {
			for _, attendee := range attendees {
				if s, ok := attendee.(string); ok && s != "" {
					event.Attendees = append(event.Attendees, s)
				}
			}
		}
		events = append(events, event)
	}
	return events
}

// enrichAttendees maps attendee handles to contact names within the
// enrichment budget; unresolved attendees keep their raw handle.
func (c *Client) enrichAttendees(ctx context.Context, events []Event) {
	if c.resolver == nil {
		return
	}

	seen := map[string]struct{}{}
	var handles []string
	for _, event := range events {
		for _, attendee := range event.Attendees {
			if _, ok := seen[attendee]; ok {
				continue
			}
			seen[attendee] = struct{}{}
			handles = append(handles, attendee)
		}
	}
	if len(handles) == 0 {
		return
	}

	resolved := timebound.Run(ctx, c.enrichTimeout, "calendar attendee enrichment",
		map[string]contacts.ResolvedContact{},
		func(ctx context.Context) map[string]contacts.ResolvedContact {
			return c.resolver.ResolveBatch(ctx, handles)
		})

	for i := range events {
		names := make([]string, 0, len(events[i].Attendees))
		for _, attendee := range events[i].Attendees {
			if contact, ok := resolved[attendee]; ok {
				names = append(names, contact.FullName)
			} else {
				names = append(names, attendee)
			}
		}
		events[i].AttendeeNames = names
	}
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}

func timeField(fields map[string]any, key string) time.Time {
	s, _ := fields[key].(string)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
