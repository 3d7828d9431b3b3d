// Package reminders lists, searches, and creates Reminders.app reminders
// through osascript.
package reminders

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/pimbridge/pimbridge/macos/osascript"
)

const (
	defaultScriptTimeout = 30 * time.Second
	defaultResultCap     = 50
	scriptAttempts       = 3
	scriptRetryWait      = 500 * time.Millisecond
)

// Reminder is one reminder. DueAt is zero when the reminder has no due date.
type Reminder struct {
	ID        string
	Name      string
	Body      string
	ListName  string
	Completed bool
	DueAt     time.Time
}

// Config tunes a Client. Zero values select defaults.
type Config struct {
	ScriptTimeout time.Duration
}

// Client talks to Reminders.app.
type Client struct {
	scriptTimeout time.Duration
}

// NewClient creates a Client.
func NewClient(cfg Config) *Client {
	c := &Client{scriptTimeout: cfg.ScriptTimeout}
	if c.scriptTimeout <= 0 {
		c.scriptTimeout = defaultScriptTimeout
	}
	return c
}

const listScript = `(() => {
	const Reminders = Application("Reminders");
	const rows = [];
	const lists = Reminders.lists();
	for (const list of lists) {
		const matches = list.reminders.whose({{predicate}})();
		for (const rem of matches) {
			const due = rem.dueDate();
			rows.push({
				id: rem.id(),
				name: rem.name() || "",
				body: rem.body() || "",
				list: list.name(),
				completed: rem.completed(),
				due: due ? due.toISOString() : "",
			});
			if (rows.length >= {{limit}}) break;
		}
		if (rows.length >= {{limit}}) break;
	}
	return JSON.stringify(rows);
})()`

// ListOpen returns incomplete reminders across all lists, capped at limit.
func (c *Client) ListOpen(ctx context.Context, limit int) ([]Reminder, error) {
	return c.list(ctx, limit, `{completed: false}`)
}

// Search returns reminders whose name contains text, complete or not.
func (c *Client) Search(ctx context.Context, text string, limit int) ([]Reminder, error) {
	if text == "" {
		return nil, errors.New("reminders: search text is required")
	}
	predicate := fmt.Sprintf(`{name: {_contains: "%s"}}`, osascript.Escape(text))
	return c.list(ctx, limit, predicate)
}

func (c *Client) list(ctx context.Context, limit int, predicate string) ([]Reminder, error) {
	if limit <= 0 || limit > defaultResultCap {
		limit = defaultResultCap
	}

	script := osascript.NewTemplate(listScript).
		BindCode("predicate", predicate).
		BindCode("limit", strconv.Itoa(limit)).
		Render()

	result, err := osascript.RunWithRetry(ctx, "Reminders", script, c.scriptTimeout, scriptAttempts, scriptRetryWait)
	if err != nil {
		return nil, fmt.Errorf("reminders: listing reminders failed: %w", err)
	}
	if result.Empty {
		return []Reminder{}, nil
	}
	return parseReminders(result.Value), nil
}

const createScript = `(() => {
	const Reminders = Application("Reminders");
	const list = Reminders.lists.whose({name: "{{list}}"})[0];
	const rem = Reminders.Reminder({name: "{{name}}", body: "{{body}}"{{dueProp}}});
	list.reminders.push(rem);
	return JSON.stringify({id: rem.id()});
})()`

// Create adds a reminder to the named list and returns its identifier.
// A zero dueAt creates the reminder without a due date.
func (c *Client) Create(ctx context.Context, listName string, name string, body string, dueAt time.Time) (string, error) {
	if name == "" {
		return "", errors.New("reminders: reminder name is required")
	}
	if listName == "" {
		return "", errors.New("reminders: list name is required")
	}

	dueProp := ""
	if !dueAt.IsZero() {
		dueProp = fmt.Sprintf(", dueDate: new Date(%d)", dueAt.UnixMilli())
	}

	script := osascript.NewTemplate(createScript).
		Bind("list", listName).
		Bind("name", name).
		Bind("body", body).
		BindCode("dueProp", dueProp).
		Render()

	result, err := osascript.Run(ctx, "Reminders", script, c.scriptTimeout)
	if err != nil {
		return "", fmt.Errorf("reminders: creating reminder failed: %w", err)
	}

	if fields, ok := result.Value.(map[string]any); ok {
		if id, ok := fields["id"].(string); ok {
			return id, nil
		}
	}
	return "", nil
}

func parseReminders(value any) []Reminder {
	rows, ok := value.([]any)
	if !ok {
		return []Reminder{}
	}

	reminders := make([]Reminder, 0, len(rows))
	for _, row := range rows {
		fields, ok := row.(map[string]any)
		if !ok {
			continue
		}
		reminder := Reminder{
			ID:       stringField(fields, "id"),
			Name:     stringField(fields, "name"),
			Body:     stringField(fields, "body"),
			ListName: stringField(fields, "list"),
		}
		if completed, ok := fields["completed"].(bool); ok {
			reminder.Completed = completed
		}
		if s := stringField(fields, "due"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				reminder.DueAt = t
			}
		}
		reminders = append(reminders, reminder)
	}
	return reminders
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
