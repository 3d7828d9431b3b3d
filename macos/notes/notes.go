// Package notes lists, searches, and creates Notes.app notes through
// osascript.
package notes

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

// Note is one note. Body holds plain text with HTML markup stripped by the
// script.
type Note struct {
	ID       string
	Name     string
	Folder   string
	Body     string
	Modified time.Time
}

// Config tunes a Client. Zero values select defaults.
type Config struct {
	ScriptTimeout time.Duration
}

// Client talks to Notes.app.
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
	const Notes = Application("Notes");
	const rows = [];
	const matches = Notes.notes{{predicate}}();
	for (const note of matches) {
		rows.push({
			id: note.id(),
			name: note.name() || "",
			folder: (() => { try { return note.container().name(); } catch (e) { return ""; } })(),
			body: note.plaintext() || "",
			modified: note.modificationDate().toISOString(),
		});
		if (rows.length >= {{limit}}) break;
	}
	return JSON.stringify(rows);
})()`

// List returns the most recently touched notes, capped at limit.
func (c *Client) List(ctx context.Context, limit int) ([]Note, error) {
	return c.list(ctx, limit, "")
}

// Search returns notes whose name or body contains text. The filter runs in
// the Notes store's own indexed predicate.
func (c *Client) Search(ctx context.Context, text string, limit int) ([]Note, error) {
	if text == "" {
		return nil, errors.New("notes: search text is required")
	}
	escaped := osascript.Escape(text)
	predicate := fmt.Sprintf(`.whose({_or: [{name: {_contains: "%s"}}, {plaintext: {_contains: "%s"}}]})`, escaped, escaped)
	return c.list(ctx, limit, predicate)
}

func (c *Client) list(ctx context.Context, limit int, predicate string) ([]Note, error) {
	if limit <= 0 || limit > defaultResultCap {
		limit = defaultResultCap
	}

	script := osascript.NewTemplate(listScript).
		BindCode("predicate", predicate).
		BindCode("limit", strconv.Itoa(limit)).
		Render()

	result, err := osascript.RunWithRetry(ctx, "Notes", script, c.scriptTimeout, scriptAttempts, scriptRetryWait)
	if err != nil {
		return nil, fmt.Errorf("notes: listing notes failed: %w", err)
	}
	if result.Empty {
		return []Note{}, nil
	}
	return parseNotes(result.Value), nil
}

const createScript = `(() => {
	const Notes = Application("Notes");
	const note = Notes.Note({name: "{{name}}", body: "{{body}}"});
	{{target}}.notes.push(note);
	return JSON.stringify({id: note.id()});
})()`

// Create adds a note, optionally inside the named folder, and returns its
// identifier.
func (c *Client) Create(ctx context.Context, folder string, name string, body string) (string, error) {
	if name == "" {
		return "", errors.New("notes: note name is required")
	}

	target := "Notes.defaultAccount()"
	if folder != "" {
		target = fmt.Sprintf(`Notes.folders.whose({name: "%s"})[0]`, osascript.Escape(folder))
	}

	script := osascript.NewTemplate(createScript).
		Bind("name", name).
		Bind("body", body).
		BindCode("target", target).
		Render()

	result, err := osascript.Run(ctx, "Notes", script, c.scriptTimeout)
	if err != nil {
		return "", fmt.Errorf("notes: creating note failed: %w", err)
	}

	if fields, ok := result.Value.(map[string]any); ok {
		if id, ok := fields["id"].(string); ok {
			return id, nil
		}
	}
	return "", nil
}

func parseNotes(value any) []Note {
	rows, ok := value.([]any)
	if !ok {
		return []Note{}
	}

	notes := make([]Note, 0, len(rows))
	for _, row := range rows {
		fields, ok := row.(map[string]any)
		if !ok {
			continue
		}
		note := Note{
			ID:     stringField(fields, "id"),
			Name:   stringField(fields, "name"),
			Folder: stringField(fields, "folder"),
			Body:   stringField(fields, "body"),
		}
		if s := stringField(fields, "modified"); s != "" {
			if t, err := time.Parse(time.RFC3339, s); err == nil {
				note.Modified = t
			}
		}
		notes = append(notes, note)
	}
	return notes
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return s
}
