package commsutil

import "github.com/morezero/standards-console/pkg/formstate"

// Console request methods.
const (
	MethodListStandards    = "listStandards"
	MethodListFieldOptions = "listFieldOptions"
	MethodGetFieldMapping  = "getFieldMapping"
	MethodSaveFieldMapping = "saveFieldMapping"
	MethodGetTemplate      = "getTemplate"
	MethodSaveTemplate     = "saveTemplate"
	MethodBulkAction       = "bulkAction"
	MethodHealth           = "health"
)

// ListFieldOptionsInput holds parameters for the listFieldOptions method.
type ListFieldOptionsInput struct {
	SchemaID string `json:"schemaId"`
}

// GetFieldMappingInput holds parameters for the getFieldMapping method.
type GetFieldMappingInput struct {
	Extension string `json:"extension"`
}

// SaveFieldMappingInput holds parameters for the saveFieldMapping method.
type SaveFieldMappingInput struct {
	Extension string                      `json:"extension"`
	Mappings  map[string]formstate.Option `json:"mappings"`
}

// SaveFieldMappingOutput holds the result of the saveFieldMapping method.
type SaveFieldMappingOutput struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

// GetTemplateInput holds parameters for the getTemplate method.
type GetTemplateInput struct {
	ID string `json:"id"`
}

// SaveTemplateOutput holds the result of the saveTemplate method.
type SaveTemplateOutput struct {
	ID       string `json:"id"`
	Revision int64  `json:"revision"`
}

// HealthOutput holds the result of the health method.
type HealthOutput struct {
	Status    string       `json:"status"`
	Checks    HealthChecks `json:"checks"`
	Timestamp string       `json:"timestamp"`
}

// HealthChecks holds individual health check results.
type HealthChecks struct {
	Database bool `json:"database"`
	Catalog  bool `json:"catalog"`
}
