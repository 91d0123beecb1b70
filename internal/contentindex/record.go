package contentindex

import (
	"strings"

	"github.com/google/uuid"
)

// Record is one installed content.
type Record struct {
	ID     uuid.UUID
	Hidden bool
}

// Short returns the trailing 8 upper-case hex digits used for on-device
// directory names.
func (r Record) Short() string {
	return ShortID(r.ID)
}

// String renders the identifier in upper-case hyphenated form.
func (r Record) String() string {
	return strings.ToUpper(r.ID.String())
}

// ShortID returns the trailing 8 upper-case hex digits of id.
func ShortID(id uuid.UUID) string {
	s := strings.ToUpper(id.String())
	return s[len(s)-8:]
}

// Normalize strips hyphens and upper-cases value for matching.
func Normalize(value string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(value), "-", ""))
}

// Matches reports whether query is a fragment of the record identifier.
// An empty query matches nothing.
func (r Record) Matches(query string) bool {
	q := Normalize(query)
	if q == "" {
		return false
	}
	return strings.Contains(Normalize(r.ID.String()), q)
}
