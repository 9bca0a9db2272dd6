package model

// Page is the paginated envelope for list endpoints. Next and Previous hold
// absolute page URLs, or nil at either end.
type Page struct {
	Count    int64     `json:"count"`
	Next     *string   `json:"next"`
	Previous *string   `json:"previous"`
	Results  []Account `json:"results"`
}

// ErrorResponse is the standard error body.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// StatusResponse is returned by state-changing actions that have no resource
// body, e.g. suspend.
type StatusResponse struct {
	Status string `json:"status"`
}

// LoginResponse is returned by a successful login.
type LoginResponse struct {
	Token string         `json:"token"`
	User  AccountSummary `json:"user"`
}

// SessionResponse is returned by the session check endpoint.
type SessionResponse struct {
	IsAuthenticated bool            `json:"is_authenticated"`
	User            *AccountSummary `json:"user,omitempty"`
}
