// Package events defines configuration change events and their publishers.
package events

// Kinds of changed resources.
const (
	KindTemplate = "template"
	KindMapping  = "mapping"
	KindBulk     = "bulk"
	KindCatalog  = "catalog"
)

// ConfigChangedEvent is emitted when a saved console configuration changes.
type ConfigChangedEvent struct {
	Kind          string   `json:"kind"`
	ID            string   `json:"id"`
	ChangedFields []string `json:"changedFields,omitempty"`
	Revision      int64    `json:"revision"`
	UserID        string   `json:"userId,omitempty"`
	Timestamp     string   `json:"timestamp"`
}
