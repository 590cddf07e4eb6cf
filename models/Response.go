package models

// RequestErrorCode - special type for error codes
type RequestErrorCode string

// NewRequestErrorCode - creates error code
func NewRequestErrorCode(code string) RequestErrorCode {
	return RequestErrorCode(code)
}

// Response - struct for sending info about occurred error
// 'Details' carries the underlying error message and is omitted if empty
type Response struct {
	Error   RequestErrorCode `json:"error"`
	Details string           `json:"details,omitempty"`
}

// SuccessResponse - plain acknowledgement
type SuccessResponse struct {
	Success bool `json:"success"`
}
