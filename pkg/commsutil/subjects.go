package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectConsole     = "console.standards.v1"
	SubjectChangeEvent = "console.changed"
)

// BuildChangeSubject builds a granular change event subject for one changed
// resource, e.g. console.changed.template.<id>. Dots in the id are replaced so
// the id stays a single subject token.
func BuildChangeSubject(kind, id string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectChangeEvent, kind, SafeToken(id))
}

// SafeToken makes s usable as a single subject token.
func SafeToken(s string) string {
	if s == "" {
		return "_"
	}
	r := strings.NewReplacer(".", "_", " ", "_", "*", "_", ">", "_")
	return r.Replace(s)
}
