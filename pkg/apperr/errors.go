package apperr

import (
	"errors"
	"fmt"
)

// Business errors returned by services. Handlers match these with errors.Is
// and map them to HTTP status codes; they are never wrapped in generic 500s.
var (
	ErrNotFound               = errors.New("resource not found")
	ErrInvalidStateTransition = errors.New("operation not allowed in current status")
	ErrInsufficientStock      = errors.New("insufficient stock in batch")
	ErrNoStockAvailable       = errors.New("no stock available for any selected item")
	ErrUnauthorized           = errors.New("unauthorized")
)

// UpstreamError marks failures of a downstream dependency (database query,
// external API) so callers can distinguish them from business errors.
type UpstreamError struct {
	Op  string
	Err error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream failure in %s: %v", e.Op, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Upstream wraps err as an UpstreamError. Returns nil if err is nil.
func Upstream(op string, err error) error {
	if err == nil {
		return nil
	}
	return &UpstreamError{Op: op, Err: err}
}

// IsUpstream reports whether err is (or wraps) an UpstreamError.
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}
