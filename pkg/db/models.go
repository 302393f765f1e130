package db

import "time"

// StandardSchema represents a row in the standard_schemas table. Definition
// holds the JSON encoded schema.
type StandardSchema struct {
	ID             string    `json:"id"`
	Position       int       `json:"position"`
	Category       *string   `json:"category,omitempty"`
	Definition     []byte    `json:"definition"`
	CatalogVersion string    `json:"catalog_version"`
	Created        time.Time `json:"created"`
	Modified       time.Time `json:"modified"`
}

// IntegrationExtension represents a row in the integration_extensions table.
type IntegrationExtension struct {
	Extension         string    `json:"extension"`
	Headers           []byte    `json:"headers"`
	Fields            []byte    `json:"fields"`
	IntegrationFields []byte    `json:"integration_fields"`
	Modified          time.Time `json:"modified"`
}

// FieldMapping represents a row in the field_mappings table.
type FieldMapping struct {
	Extension       string    `json:"extension"`
	RowKey          string    `json:"row_key"`
	IntegrationName string    `json:"integration_name"`
	IntegrationID   []byte    `json:"integration_id,omitempty"`
	Modified        time.Time `json:"modified"`
	ModifiedBy      string    `json:"modified_by"`
}

// StandardTemplate represents a row in the standard_templates table.
type StandardTemplate struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Instances  []byte    `json:"instances"`
	Values     []byte    `json:"values"`
	Revision   int64     `json:"revision"`
	Created    time.Time `json:"created"`
	CreatedBy  string    `json:"created_by"`
	Modified   time.Time `json:"modified"`
	ModifiedBy string    `json:"modified_by"`
}

// BulkActionRun represents a row in the bulk_action_runs table.
type BulkActionRun struct {
	ID        string    `json:"id"`
	Action    string    `json:"action"`
	URL       string    `json:"url"`
	RowCount  int       `json:"row_count"`
	Succeeded int       `json:"succeeded"`
	Failed    int       `json:"failed"`
	Payload   []byte    `json:"payload,omitempty"`
	Results   []byte    `json:"results,omitempty"`
	Created   time.Time `json:"created"`
	CreatedBy string    `json:"created_by"`
}
