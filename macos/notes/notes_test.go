package notes

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/nalgeon/be"

	"github.com/pimbridge/pimbridge/macos/osascript"
)

func TestParseNotes(t *testing.T) {
	value := []any{
		map[string]any{
			"id":       "note-1",
			"name":     "Groceries",
			"folder":   "Lists",
			"body":     "milk\neggs",
			"modified": "2026-08-30T18:00:00Z",
		},
		42,
	}

	notes := parseNotes(value)
	be.Equal(t, len(notes), 1)
	be.Equal(t, notes[0].ID, "note-1")
	be.Equal(t, notes[0].Name, "Groceries")
	be.Equal(t, notes[0].Folder, "Lists")
	be.Equal(t, notes[0].Modified, time.Date(2026, 8, 30, 18, 0, 0, 0, time.UTC))
}

func TestParseNotesNotAList(t *testing.T) {
	be.Equal(t, len(parseNotes(nil)), 0)
	be.Equal(t, len(parseNotes("oops")), 0)
}

func TestSearchRequiresText(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.Search(context.Background(), "", 10)
	be.Err(t, err)
}

func TestCreateRequiresName(t *testing.T) {
	client := NewClient(Config{})
	_, err := client.Create(context.Background(), "", "", "body")
	be.Err(t, err)
}

func TestCreateScriptSanitizesBody(t *testing.T) {
	script := osascript.NewTemplate(createScript).
		Bind("name", "title").
		Bind("body", `"}); Notes.quit(); ({x:"`).
		BindCode("target", "Notes.defaultAccount()").
		Render()

	be.True(t, !strings.Contains(script, `"}); Notes.quit()`))
	be.True(t, strings.Contains(script, `\"`))
}
