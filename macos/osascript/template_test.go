package osascript

import (
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func TestEscape(t *testing.T) {
	be.Equal(t, Escape(`back\slash`), `back\\slash`)
	be.Equal(t, Escape(`single'quote`), `single\'quote`)
	be.Equal(t, Escape(`double"quote`), `double\"quote`)
	be.Equal(t, Escape("back`tick"), "back\\`tick")
	be.Equal(t, Escape(`dollar$sign`), `dollar\$sign`)
	be.Equal(t, Escape("new\nline"), `new\nline`)
	be.Equal(t, Escape("carriage\rreturn"), `carriage\rreturn`)
	be.Equal(t, Escape("tab\tstop"), `tab\tstop`)
	be.Equal(t, Escape("line\u2028sep"), `line\u2028sep`)
	be.Equal(t, Escape("para\u2029sep"), `para\u2029sep`)
	be.Equal(t, Escape("null\x00byte"), "nullbyte")
	be.Equal(t, Escape("plain text stays"), "plain text stays")
}

func TestEscapeWorstCase(t *testing.T) {
	input := "\x00`rm -rf`\"; $HOME '\n\r\t  \\"
	escaped := Escape(input)
	be.True(t, !strings.ContainsRune(escaped, 0))
	be.True(t, !strings.ContainsRune(escaped, ' '))
	be.True(t, !strings.ContainsRune(escaped, ' '))
	be.Equal(t, escaped, "\\`rm -rf\\`\\\"; \\$HOME \\'\\n\\r\\t\\u2028\\u2029\\\\")
}

func TestEscapeIdempotentOnCleanText(t *testing.T) {
	clean := "Jane Doe"
	be.Equal(t, Escape(clean), clean)
}

func TestTemplateBind(t *testing.T) {
	script := NewTemplate(`app.people.whose({name: {_contains: "{{query}}"}})`).
		Bind("query", `O"Malley`).
		Render()
	be.Equal(t, script, `app.people.whose({name: {_contains: "O\"Malley"}})`)
}

func TestTemplateBindCodeIsVerbatim(t *testing.T) {
	script := NewTemplate(`for (let i = 0; i < {{limit}}; i++) {}`).
		BindCode("limit", "20").
		Render()
	be.Equal(t, script, `for (let i = 0; i < 20; i++) {}`)
}

func TestTemplateUnboundSlotLeftIntact(t *testing.T) {
	script := NewTemplate(`send("{{body}}", "{{to}}")`).
		Bind("body", "hi").
		Render()
	// A missing binding must stay visible, not vanish into an empty string.
	be.Equal(t, script, `send("hi", "{{to}}")`)
}

func TestTemplateSanitizesOnce(t *testing.T) {
	// A value containing backslash escapes must not be escaped a second time
	// when rendered through the code channel of an outer template.
	inner := NewTemplate(`"{{v}}"`).Bind("v", `a\b`).Render()
	be.Equal(t, inner, `"a\\b"`)

	outer := NewTemplate(`wrap({{code}})`).BindCode("code", inner).Render()
	be.Equal(t, outer, `wrap("a\\b")`)
}
