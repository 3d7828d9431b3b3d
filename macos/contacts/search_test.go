package contacts

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/pimbridge/pimbridge/macos/osascript"
)

func decodeRows(t *testing.T, raw string) any {
	t.Helper()
	var value any
	be.Err(t, json.Unmarshal([]byte(raw), &value), nil)
	return value
}

func TestParseSearchRows(t *testing.T) {
	value := decodeRows(t, `[
		{"phones": ["+1 (555) 123-4567"], "emails": ["Jane@X.com"]},
		{"phones": ["+1 (555) 123-4567", "555-000-1111"], "emails": []}
	]`)

	handles := parseSearchRows(value)
	be.True(t, handles != nil)
	be.Equal(t, handles.Phones, []string{"15551234567", "5550001111"})
	be.Equal(t, handles.Emails, []string{"jane@x.com"})
}

func TestParseSearchRowsEmpty(t *testing.T) {
	be.Equal(t, parseSearchRows(decodeRows(t, `[]`)), nil)
	be.Equal(t, parseSearchRows(decodeRows(t, `[{"phones": [], "emails": []}]`)), nil)
	be.Equal(t, parseSearchRows("garbage"), nil)
}

func TestNameSearchScriptSanitizesQuery(t *testing.T) {
	script := osascript.NewTemplate(nameSearchScript).
		Bind("query", `Jane" || true || "`).
		BindCode("limit", "20").
		Render()

	// The injection attempt must arrive escaped, and the limit slot must be
	// substituted.
	be.True(t, strings.Contains(script, `Jane\" || true || \"`))
	be.True(t, !strings.Contains(script, "{{limit}}"))
	be.True(t, !strings.Contains(script, "{{query}}"))
}

func TestNameSearchScriptUsesIndexedPredicate(t *testing.T) {
	// Guard against regressing to the fetch-everything-and-filter pathway.
	be.True(t, strings.Contains(nameSearchScript, "whose"))
	be.True(t, strings.Contains(nameSearchScript, "_contains"))
}
