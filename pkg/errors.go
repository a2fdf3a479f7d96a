// Package pkg holds small helpers shared by every layer: domain errors and
// the JSON response envelope.
//
// Services return the sentinel errors below, wrapped with context:
//
//	return fmt.Errorf("%w: notification belongs to another user", pkg.ErrForbidden)
//
// Handlers never look at the message, only at the chain (errors.Is), and
// pkg.Error turns the chain into an HTTP status.
package pkg

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrForbidden     = errors.New("forbidden")
	ErrAlreadyExists = errors.New("already exists")
	ErrBadRequest    = errors.New("bad request")
	ErrRateLimited   = errors.New("too many requests")
	ErrInternal      = errors.New("internal error")
)
