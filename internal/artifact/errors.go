package artifact

import (
	"errors"
	"fmt"
)

// ErrConfiguration is returned when no artifact location is configured, or
// the configured location cannot be interpreted.
var ErrConfiguration = errors.New("model configuration error")

// LoadError reports a failed fetch or decode of the artifact at Source.
type LoadError struct {
	Source string
	Err    error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load model artifact from %s: %v", e.Source, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
