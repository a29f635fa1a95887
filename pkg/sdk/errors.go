package ragchat

import "fmt"

// APIError is a non-2xx response from the service.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("ragchat: %s (%s, http %d)", e.Message, e.Code, e.Status)
}
