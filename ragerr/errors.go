package ragerr

import (
	"context"
	"errors"
)

var (
	ErrConfiguration     = errors.New("configuration error")
	ErrTransientProvider = errors.New("provider temporarily unavailable")
	ErrFatalProvider     = errors.New("provider rejected request")
	ErrIndexCorrupt      = errors.New("index corrupt")
	ErrIndexNotReady     = errors.New("index not ready")
	ErrInvalidArgument   = errors.New("invalid argument")
)

// Kind returns a stable label for logging. Unclassified errors are "internal".
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrTransientProvider):
		return "transient_provider"
	case errors.Is(err, ErrFatalProvider):
		return "fatal_provider"
	case errors.Is(err, ErrIndexCorrupt):
		return "index_corrupt"
	case errors.Is(err, ErrIndexNotReady):
		return "index_not_ready"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid_argument"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "internal"
	}
}
