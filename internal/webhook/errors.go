package webhook

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrUnsupportedEvent = errors.New("unsupported event")
	ErrInvalidSignature = errors.New("invalid signature")
)

// MalformedPayloadError reports a delivery that cannot be normalized. Such deliveries are dropped.
type MalformedPayloadError struct {
	Field string
	Err   error
}

func (e *MalformedPayloadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed payload: %s: %v", e.Field, e.Err)
	}
	return fmt.Sprintf("malformed payload: %s is missing", e.Field)
}

func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}
