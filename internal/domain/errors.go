package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrMalformedPayload marks an unparseable message unit or delivery.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnsupportedChannel is returned when no adapter exists for a channel.
	ErrUnsupportedChannel = errors.New("unsupported channel")
	// ErrClassification signals a classifier contract violation. It is never expected at runtime.
	ErrClassification = errors.New("classification contract violated")
	// ErrDuplicate is returned when a message with the same external id was already stored.
	ErrDuplicate = errors.New("duplicate message")
	// ErrNotFound is returned by lookups that match nothing.
	ErrNotFound = errors.New("not found")
)

// MalformedPayloadError describes why one message unit could not be normalized.
type MalformedPayloadError struct {
	Channel Channel
	Index   int // position of the unit inside its delivery, -1 for the whole payload
	Reason  string
}

func (e *MalformedPayloadError) Error() string {
	if e.Index < 0 {
		return fmt.Sprintf("%s: %s payload: %s", ErrMalformedPayload, e.Channel, e.Reason)
	}
	return fmt.Sprintf("%s: %s unit %d: %s", ErrMalformedPayload, e.Channel, e.Index, e.Reason)
}

func (e *MalformedPayloadError) Unwrap() error { return ErrMalformedPayload }

// Malformed builds a MalformedPayloadError.
func Malformed(ch Channel, index int, format string, args ...any) error {
	return &MalformedPayloadError{Channel: ch, Index: index, Reason: fmt.Sprintf(format, args...)}
}
