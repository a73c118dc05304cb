package media

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownAction is returned for action names outside the
	// controller's vocabulary.
	ErrUnknownAction = errors.New("media: unknown action")
)

// ValidationError reports an argument rejected before any network call
// is made.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("media: invalid %s: %s", e.Field, e.Message)
}
