package calendar

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"github.com/pimbridge/pimbridge/macos/contacts"
	"github.com/pimbridge/pimbridge/macos/osascript"
)

func TestParseEvents(t *testing.T) {
	value := []any{
		map[string]any{
			"id":        "evt-1",
			"title":     "Standup",
			"calendar":  "Work",
			"location":  "Room 4",
			"notes":     "daily",
			"start":     "2026-09-01T09:00:00Z",
			"end":       "2026-09-01T09:15:00Z",
			"attendees": []any{"jane@example.com", ""},
		},
		"not a row",
	}

	events := parseEvents(value)
	be.Equal(t, len(events), 1)
	be.Equal(t, events[0].ID, "evt-1")
	be.Equal(t, events[0].Title, "Standup")
	be.Equal(t, events[0].CalendarName, "Work")
	be.Equal(t, events[0].Start, time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC))
	be.Equal(t, len(events[0].Attendees), 1)
	be.Equal(t, events[0].Attendees[0], "jane@example.com")
}

func TestParseEventsNotAList(t *testing.T) {
	be.Equal(t, len(parseEvents("oops")), 0)
	be.Equal(t, len(parseEvents(nil)), 0)
}

func TestListScriptOmitsEmptyPredicate(t *testing.T) {
	script := osascript.NewTemplate(listScript).
		BindCode("startMs", "0").
		BindCode("endMs", "1000").
		BindCode("limit", "10").
		BindCode("extraPredicate", "").
		Render()

	// An unfiltered listing must AND only the two window predicates, with no
	// empty object left in the array.
	be.True(t, !strings.Contains(script, "{}"))
	be.True(t, strings.Contains(script, "{startDate: {_lessThan: windowEnd}}\n"))
}

func TestListScriptAppendsSearchPredicate(t *testing.T) {
	predicate := `,
			{summary: {_contains: "lunch"}}`
	script := osascript.NewTemplate(listScript).
		BindCode("startMs", "0").
		BindCode("endMs", "1000").
		BindCode("limit", "10").
		BindCode("extraPredicate", predicate).
		Render()

	be.True(t, strings.Contains(script, `{startDate: {_lessThan: windowEnd}},`))
	be.True(t, strings.Contains(script, `{summary: {_contains: "lunch"}}`))
}

func TestSearchPredicateEscapesQuery(t *testing.T) {
	predicate := `{summary: {_contains: "` + osascript.Escape(`lunch"}); Calendar.quit(); ({x:"`) + `"}}`
	be.True(t, !strings.Contains(predicate, `"});`))
	be.True(t, strings.Contains(predicate, `\"`))
}

func TestListRejectsInvertedWindow(t *testing.T) {
	client := NewClient(nil, Config{})
	now := time.Now()
	_, err := client.List(context.Background(), now, now.Add(-time.Hour), 10)
	be.Err(t, err)
}

func TestCreateValidation(t *testing.T) {
	client := NewClient(nil, Config{})
	now := time.Now()

	_, err := client.Create(context.Background(), "Work", Event{Start: now, End: now.Add(time.Hour)})
	be.Err(t, err)

	_, err = client.Create(context.Background(), "Work", Event{Title: "x", Start: now, End: now})
	be.Err(t, err)

	_, err = client.Create(context.Background(), "", Event{Title: "x", Start: now, End: now.Add(time.Hour)})
	be.Err(t, err)
}

func TestEnrichAttendees(t *testing.T) {
	resolver := contacts.NewResolver(contacts.ResolverConfig{
		Fetch: func(ctx context.Context) ([]contacts.ContactRecord, error) {
			return []contacts.ContactRecord{{
				ID:        "r1",
				FirstName: "Jane",
				LastName:  "Doe",
				Emails:    []string{"jane@example.com"},
			}}, nil
		},
	})
	client := NewClient(resolver, Config{})

	events := []Event{{
		Title:     "1:1",
		Attendees: []string{"jane@example.com", "nobody@example.com"},
	}}
	client.enrichAttendees(context.Background(), events)

	be.Equal(t, len(events[0].AttendeeNames), 2)
	be.Equal(t, events[0].AttendeeNames[0], "Jane Doe")
	be.Equal(t, events[0].AttendeeNames[1], "nobody@example.com")
}
