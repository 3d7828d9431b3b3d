package osascript

import (
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/nalgeon/be"
)

func asError(err error, target **Error) bool {
	return errors.As(err, target)
}

func countLines(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	be.Err(t, err, nil)
	return len(strings.Split(strings.TrimSpace(string(data)), "\n"))
}

func TestClassifyPermission(t *testing.T) {
	be.Equal(t, Classify("Contacts", "Not authorized to send Apple events to Contacts."), ClassPermission)
	be.Equal(t, Classify("Contacts", "execution error: error -1743"), ClassPermission)
	be.Equal(t, Classify("Messages", "osascript: permission denied"), ClassPermission)
	be.Equal(t, Classify("Calendar", "Calendar access has been denied by a privacy setting"), ClassPermission)
}

func TestClassifyTransient(t *testing.T) {
	be.Equal(t, Classify("Contacts", "AppleEvent timed out. (-1712)"), ClassTransient)
	be.Equal(t, Classify("Contacts", "connection is invalid. (-609)"), ClassTransient)
	be.Equal(t, Classify("Messages", "write: broken pipe"), ClassTransient)
	be.Equal(t, Classify("Notes", "application did not respond"), ClassTransient)
}

func TestClassifyFatal(t *testing.T) {
	be.Equal(t, Classify("Contacts", "SyntaxError: Unexpected end of script"), ClassFatal)
	be.Equal(t, Classify("Contacts", ""), ClassFatal)
}

func TestClassifyUnknownAppUsesDefaults(t *testing.T) {
	// An app with no dedicated rule set still gets the default patterns.
	be.Equal(t, Classify("Finder", "Not authorized to send Apple events to Finder."), ClassPermission)
	be.Equal(t, Classify("Finder", "AppleEvent timed out."), ClassTransient)
}

func TestClassifyPermissionBeatsTransient(t *testing.T) {
	// When stderr carries both kinds of text the permission rule wins:
	// retrying a refusal is never useful.
	be.Equal(t, Classify("Contacts", "permission denied after request timed out"), ClassPermission)
}
