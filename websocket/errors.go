package websocket

import (
	"errors"

	"live-polling-backend/service"
)

var (
	ErrRateLimited        = errors.New("too many requests")
	ErrTooManyConnections = errors.New("connection limit reached")
	ErrInvalidRequest     = errors.New("malformed request")
	ErrUnknownType        = errors.New("unknown request type")
)

// reasonFor extends service.ReasonFor with transport-level failures.
func reasonFor(err error) string {
	switch {
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrUnknownType):
		return "unknown_type"
	default:
		return service.ReasonFor(err)
	}
}
