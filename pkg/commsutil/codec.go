package commsutil

import (
	"encoding/json"
	"fmt"
)

// EncodePayload serializes a value to JSON bytes.
func EncodePayload(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// DecodePayload deserializes JSON bytes into the given target.
func DecodePayload(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

type rawResponse struct {
	ID     string          `json:"id"`
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorDetail    `json:"error,omitempty"`
}

// DecodeResponse decodes a response envelope. A failed response is returned as
// a *RemoteError; otherwise the result is decoded into out when out is not nil.
func DecodeResponse(data []byte, out interface{}) error {
	var resp rawResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return fmt.Errorf("invalid response envelope: %w", err)
	}
	if !resp.Ok {
		if resp.Error == nil {
			return &RemoteError{Code: "INTERNAL_ERROR", Message: "request failed without error detail"}
		}
		return &RemoteError{
			Code:      resp.Error.Code,
			Message:   resp.Error.Message,
			Details:   resp.Error.Details,
			Retryable: resp.Error.Retryable,
		}
	}
	if out == nil || len(resp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(resp.Result, out)
}
