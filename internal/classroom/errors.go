package classroom

import (
	"errors"
	"fmt"

	"github.com/npezzotti/go-classroom/internal/database"
)

var (
	ErrValidation     = errors.New("validation error")
	ErrNotFound       = errors.New("not found")
	ErrConflict       = errors.New("conflict")
	ErrExpired        = errors.New("expired")
	ErrAuthorization  = errors.New("not authorized")
	ErrAuthentication = errors.New("authentication failed")
)

// storeErr translates store errors into the classroom taxonomy. Anything
// unrecognised is wrapped and left to surface as an internal error.
func storeErr(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, database.ErrNotFound):
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	case errors.Is(err, database.ErrDuplicate):
		return fmt.Errorf("%w: %s already exists", ErrConflict, what)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}
