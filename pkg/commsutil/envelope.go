package commsutil

import "encoding/json"

// Request is the JSON envelope of a console request.
type Request struct {
	ID     string             `json:"id"`
	Type   string             `json:"type,omitempty"`
	Method string             `json:"method"`
	Params json.RawMessage    `json:"params,omitempty"`
	Ctx    *InvocationContext `json:"ctx,omitempty"`
}

// Response is the JSON envelope of a console response.
type Response struct {
	ID     string       `json:"id"`
	Ok     bool         `json:"ok"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// InvocationContext holds context from the caller.
type InvocationContext struct {
	TenantID      string   `json:"tenantId,omitempty"`
	UserID        string   `json:"userId,omitempty"`
	RequestID     string   `json:"requestId,omitempty"`
	CorrelationID string   `json:"correlationId,omitempty"`
	Roles         []string `json:"roles,omitempty"`
	TimeoutMs     int      `json:"timeoutMs,omitempty"`
}

// RemoteError is an error response received from the console service.
type RemoteError struct {
	Code      string
	Message   string
	Details   interface{}
	Retryable bool
}

func (e *RemoteError) Error() string {
	return e.Code + ": " + e.Message
}
