package osascript

import "strings"

// Escape makes text safe to embed inside a double-quoted JXA string literal.
//
// It escapes backslash, both quote styles, backtick, dollar sign (template
// literal interpolation), newline, carriage return, tab, and the Unicode
// line/paragraph separators. Null bytes have no safe escape and are stripped
// outright so they never reach the subprocess.
func Escape(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\'':
			b.WriteString(`\'`)
		case '"':
			b.WriteString(`\"`)
		case '`':
			b.WriteString("\\`")
		case '$':
			b.WriteString(`\$`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case '\u2028':
			b.WriteString(`\u2028`)
		case '\u2029':
			b.WriteString(`\u2029`)
		case 0:
			// dropped
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Template is a script skeleton with named {{slot}} placeholders.
//
// Values bound with [Template.Bind] are sanitized through [Escape]; script
// fragments bound with [Template.BindCode] are substituted verbatim. Slots
// with no bound value are left intact in the rendered output, so a missing
// binding produces a visibly broken script instead of a silently wrong one.
type Template struct {
	text string
	vals map[string]string
}

// NewTemplate creates a template from the given script text.
func NewTemplate(text string) *Template {
	return &Template{text: text, vals: map[string]string{}}
}

// Bind sanitizes raw untrusted text and assigns it to the named slot.
func (t *Template) Bind(name string, raw string) *Template {
	t.vals[name] = Escape(raw)
	return t
}

// BindCode assigns an already-safe script fragment to the named slot without
// sanitizing. Use it for numbers, date literals, and nested snippets that
// were themselves built through a Template.
func (t *Template) BindCode(name string, code string) *Template {
	t.vals[name] = code
	return t
}

// Render substitutes every bound slot and returns the finished script.
func (t *Template) Render() string {
	out := t.text
	for name, value := range t.vals {
		out = strings.ReplaceAll(out, "{{"+name+"}}", value)
	}
	return out
}
