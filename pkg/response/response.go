package response

// Response represents a standard API response format
type Response struct {
	Status     string      `json:"status"`      // "success" or "error"
	StatusCode int         `json:"status_code"` // HTTP status code
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`

	// NeedsConnection tells the client to send the user through a provider OAuth flow
	NeedsConnection bool `json:"needsConnection,omitempty"`
}

// Page is the envelope for paginated list endpoints
type Page struct {
	Status     string      `json:"status"`
	StatusCode int         `json:"status_code"`
	Data       interface{} `json:"data"`
	Total      int64       `json:"total"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Message returns a success response carrying a human readable message alongside the data
func Message(statusCode int, message string, data interface{}) Response {
	r := Success(statusCode, data)
	r.Message = message
	return r
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// Paginated wraps one page of results
func Paginated(statusCode int, data interface{}, total int64, page, limit int) Page {
	return Page{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
		Total:      total,
		Page:       page,
		Limit:      limit,
	}
}
