package pipeline

import (
	"errors"
	"fmt"
)

// ErrNonFiniteOutput is returned when the classifier produces NaN or Inf.
var ErrNonFiniteOutput = errors.New("classifier produced a non-finite probability")

// ModelInputError is raised by the pipeline when a record does not fit what
// the preprocessing stage expects: a missing field, a value outside the
// categorical vocabulary, or a value of the wrong type.
type ModelInputError struct {
	Field  string
	Value  any
	Reason string
}

func (e *ModelInputError) Error() string {
	if e.Value == nil {
		return fmt.Sprintf("model input error: field %q: %s", e.Field, e.Reason)
	}
	return fmt.Sprintf("model input error: field %q: %s (got %v)", e.Field, e.Reason, e.Value)
}

// IsModelInputError reports whether err carries a ModelInputError.
func IsModelInputError(err error) bool {
	var mie *ModelInputError
	return errors.As(err, &mie)
}
