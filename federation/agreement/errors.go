package agreement

import (
	"errors"

	"github.com/BaSui01/agentfed/types"
)

var (
	ErrNotAuthorized = errors.New("agreement: actor is not authorized")
	ErrInvalidState  = errors.New("agreement: transition not allowed from current status")
	ErrConflict      = errors.New("agreement: status changed concurrently")
	ErrNotFound      = errors.New("agreement: not found")
	ErrInvalidInput  = errors.New("agreement: invalid input")
)

func notAuthorized(msg string) error {
	return types.NewError(types.ErrForbidden, msg).WithCause(ErrNotAuthorized)
}

func invalidState(msg string) error {
	return types.NewError(types.ErrInvalidState, msg).WithCause(ErrInvalidState)
}

func conflict() error {
	return types.NewError(types.ErrConflict, "agreement was modified concurrently, reload and retry").WithCause(ErrConflict)
}

func notFound(msg string) error {
	return types.NewError(types.ErrNotFound, msg).WithCause(ErrNotFound)
}

func invalidInput(msg string) error {
	return types.NewError(types.ErrInvalidRequest, msg).WithCause(ErrInvalidInput)
}

func internal(err error) error {
	return types.NewError(types.ErrInternalError, "internal error").WithCause(err)
}
