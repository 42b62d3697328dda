package structs

import "encoding/json"

type HTTPErrorCode = uint

const (
	HTTPErrorUnknownChannel HTTPErrorCode = 10003
	HTTPErrorUnknownMessage HTTPErrorCode = 10008
	HTTPErrorMissingAccess  HTTPErrorCode = 50001
)

// http response when interacting to discord's resources
type ErrorHTTPResponse struct {
	Message    string          `json:"message"`
	Code       uint            `json:"code"`
	Errors     json.RawMessage `json:"errors,omitempty"`
	RetryAfter float64         `json:"retry_after,omitempty"`
	Global     bool            `json:"global,omitempty"`
}
