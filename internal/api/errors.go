package api

import (
	"errors"
	"fmt"
	"net/http"
)

// NetworkError means no response arrived at all: dial failure, timeout,
// connection reset. The server never saw or never answered the request.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError is a non-2xx response. Message carries the response body,
// which the backend fills with a displayable description.
type ServerError struct {
	Op      string
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %d: %s", e.Op, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

// IsUnauthorized reports whether err is a 401/403 response: no session, or
// an expired one.
func IsUnauthorized(err error) bool {
	var se *ServerError
	if errors.As(err, &se) {
		return se.Status == http.StatusUnauthorized || se.Status == http.StatusForbidden
	}
	return false
}

// IsUnreachable reports whether err is a transport-level failure.
func IsUnreachable(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}

// Message extracts the displayable message from an error: the server's body
// for ServerError, a generic unreachable notice for NetworkError, and
// err.Error() otherwise.
func Message(err error) string {
	var se *ServerError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	var ne *NetworkError
	if errors.As(err, &ne) {
		return "Impossible de contacter le serveur. Vérifiez votre connexion."
	}
	return err.Error()
}
