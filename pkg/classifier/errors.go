package classifier

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned by Classify before Initialize succeeded
var ErrNotInitialized = errors.New("classifier context not initialized")

// InvalidModelError reports a model that cannot classify anything
type InvalidModelError struct {
	Reason string
}

func (e *InvalidModelError) Error() string {
	return fmt.Sprintf("invalid model: %s", e.Reason)
}

// IsInvalidModel reports whether err is or wraps an InvalidModelError
func IsInvalidModel(err error) bool {
	var target *InvalidModelError
	return errors.As(err, &target)
}
