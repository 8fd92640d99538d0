package http

// APIResponse is the envelope every kernel endpoint answers with.
type APIResponse struct {
	Status  int         `json:"status" example:"200"`
	Message string      `json:"message" example:"OK"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty" example:"ERR_GT"`
	Field   string                 `json:"field,omitempty" example:"price"`
	Message string                 `json:"message,omitempty" example:"price must be greater than 0"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// ListDataResponse wraps a list of rows with their count.
type ListDataResponse struct {
	Rows  interface{} `json:"rows"`
	Total int64       `json:"total"`
}
