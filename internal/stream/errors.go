package stream

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// ErrProtocol matches every *ProtocolError via errors.Is.
var ErrProtocol = errors.New("stream protocol error")

// DecodeError records a payload that never became a valid unit.
// It is non-fatal: the payload is dropped and decoding continues.
type DecodeError struct {
	Input string
	// Event is the SSE event type the payload arrived under, if any.
	Event string
	Err   error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %q: %v", preview(e.Input), e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ProtocolError is returned when the reader misbehaves, e.g. hands back
// no result at all. Consumption stops.
type ProtocolError struct {
	Read   int
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("stream protocol error at read %d: %s", e.Read, e.Reason)
}

func (e *ProtocolError) Is(target error) bool {
	return target == ErrProtocol
}

// errorLog collects decode errors for one decoder instance.
type errorLog struct {
	source string
	errs   []error
}

func (l *errorLog) record(input string, err error) {
	l.recordEvent(input, err, "")
}

// recordEvent is record for framings that name their events.
func (l *errorLog) recordEvent(input string, err error, eventType string) {
	l.errs = append(l.errs, &DecodeError{Input: input, Event: eventType, Err: err})
	ev := log.Warn().
		Err(err).
		Str("decoder", l.source).
		Int("bytes", len(input))
	if eventType != "" {
		ev = ev.Str("event", eventType)
	}
	ev.Msg("dropping undecodable payload")
}

func (l *errorLog) Errors() []error {
	out := make([]error, len(l.errs))
	copy(out, l.errs)
	return out
}

func preview(s string) string {
	const limit = 64
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
