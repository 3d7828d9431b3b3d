package contacts

import (
	"errors"
	"testing"

	"github.com/nalgeon/be"
)

func errorsAs(err error, target any) bool {
	return errors.As(err, target)
}

func TestNormalizeHandlePhone(t *testing.T) {
	be.Equal(t, NormalizeHandle("+1 (555) 123-4567"), "15551234567")
	be.Equal(t, NormalizeHandle("555.123.4567"), "5551234567")
	be.Equal(t, NormalizeHandle(" +44 20 7946 0958 "), "442079460958")
}

func TestNormalizeHandleEmail(t *testing.T) {
	be.Equal(t, NormalizeHandle("  Jane.Doe@Example.COM  "), "jane.doe@example.com")
	be.Equal(t, NormalizeHandle("jane@x.com"), "jane@x.com")
}

func TestNormalizeHandleIdempotent(t *testing.T) {
	for _, handle := range []string{
		"+1 (555) 123-4567",
		"5551234567",
		"Jane.Doe@Example.COM",
		"jane@x.com",
		"",
	} {
		once := NormalizeHandle(handle)
		be.Equal(t, NormalizeHandle(once), once)
	}
}

func TestPhoneSuffix(t *testing.T) {
	be.Equal(t, phoneSuffix("15551234567"), "5551234567")
	be.Equal(t, phoneSuffix("5551234567"), "")
	be.Equal(t, phoneSuffix("911"), "")
}

func TestDisplayName(t *testing.T) {
	be.Equal(t, ContactRecord{FirstName: "Jane", LastName: "Doe"}.DisplayName(), "Jane Doe")
	be.Equal(t, ContactRecord{FirstName: "Jane"}.DisplayName(), "Jane")
	be.Equal(t, ContactRecord{Organization: "Acme Corp"}.DisplayName(), "Acme Corp")
	be.Equal(t, ContactRecord{FirstName: " ", Organization: "Acme"}.DisplayName(), "Acme")
	be.Equal(t, ContactRecord{}.DisplayName(), "")
}
