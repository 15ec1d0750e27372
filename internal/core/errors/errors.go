package errors

const (
	HttpInternalError     = "internal_error"
	HttpInvalidParamError = "invalid_parameter"
)

// ErrorResponse is the error response body for query API errors.
type ErrorResponse struct {
	ErrorType string      `json:"error_type"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
}
