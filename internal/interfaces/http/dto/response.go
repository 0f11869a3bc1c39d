package dto

// Response is the envelope of every JSON answer
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Meta    *Meta      `json:"meta,omitempty"`
}

// ErrorInfo describes a failed request
type ErrorInfo struct {
	Code      string             `json:"code" example:"MODEL_NOT_TRAINED"`
	Message   string             `json:"message" example:"No active payment_predictor model"`
	RequestID string             `json:"request_id,omitempty" example:"3f0c9a5e-1d2b-4c1e-9a77-0b6a2f7d1e44"`
	Details   []ValidationDetail `json:"details,omitempty"`
}

// ValidationDetail describes one rejected request field
type ValidationDetail struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type Meta struct {
	Total int64 `json:"total"`
}

func OK(data any) Response {
	return Response{Success: true, Data: data}
}

// List wraps a collection and reports its size in meta
func List(data any, total int) Response {
	return Response{Success: true, Data: data, Meta: &Meta{Total: int64(total)}}
}

// Fail builds an error envelope. requestID may be empty.
func Fail(code, message, requestID string) Response {
	return Response{Error: &ErrorInfo{Code: code, Message: message, RequestID: requestID}}
}

// Invalid is a VALIDATION_ERROR listing every rejected field
func Invalid(requestID string, details []ValidationDetail) Response {
	r := Fail(ErrCodeValidation, "Request validation failed", requestID)
	r.Error.Details = details
	return r
}
