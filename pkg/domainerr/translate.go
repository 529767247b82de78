package domainerr

import (
	"context"
	"errors"

	"ecotrace/pkg/sentinel"
)

// FromInfra translates infrastructure sentinels into coded domain errors.
// Errors that are not recognized sentinels come back as CodeInternal so they
// are never mistaken for recoverable caller mistakes.
func FromInfra(err error, message string) *Error {
	switch {
	case errors.Is(err, sentinel.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return Wrap(CodeTimeout, message, err)
	case errors.Is(err, sentinel.ErrUnavailable):
		return Wrap(CodeUnavailable, message, err)
	case errors.Is(err, sentinel.ErrNotFound):
		return Wrap(CodeNotFound, message, err)
	default:
		return Wrap(CodeInternal, message, err)
	}
}
