package client

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gophusers/internal/common"
)

var (
	// ErrUnavailable means no response was received: connection failure,
	// timeout or an unavailable server.
	ErrUnavailable  = errors.New("server unavailable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrBadRequest   = errors.New("bad request")
	ErrServer       = errors.New("server error")

	// ErrValidation is matched by the common.FieldErrors returned for
	// rejected input.
	ErrValidation = common.ErrValidation
)

// APIError is a server rejection with the detail message the server sent.
// It unwraps to one of the sentinel errors above.
type APIError struct {
	Status int
	Detail string
	Err    error
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v: %s", e.Err, e.Detail)
}

func (e *APIError) Unwrap() error { return e.Err }
