package stream

import (
	"bytes"
	"regexp"
	"strings"
)

const (
	// DefaultDataPrefix marks the lines of an event stream that carry payloads.
	DefaultDataPrefix = "data: "

	doneSentinel = "[DONE]"
)

// braceSpan matches innermost {...} spans, used to salvage objects from a
// payload that is not valid JSON as a whole.
var braceSpan = regexp.MustCompile(`\{[^{}]*\}`)

// SSEDecoder maintains state across chunks to handle partial SSE lines.
type SSEDecoder[T any] struct {
	prefix    string
	buffer    []byte
	eventType string // current event: field value
	done      bool
	errorLog
}

func NewSSEDecoder[T any](prefix string) *SSEDecoder[T] {
	if prefix == "" {
		prefix = DefaultDataPrefix
	}
	return &SSEDecoder[T]{
		prefix:   prefix,
		errorLog: errorLog{source: string(FormatSSE)},
	}
}

// Decode processes raw bytes from the stream and returns the events of every
// line completed by this chunk. The trailing incomplete line is kept.
func (d *SSEDecoder[T]) Decode(chunk []byte) []T {
	if len(chunk) == 0 {
		return nil
	}
	d.buffer = append(d.buffer, chunk...)
	var events []T

	for !d.done {
		idx := bytes.IndexByte(d.buffer, '\n')
		if idx == -1 {
			break
		}
		line := strings.TrimRight(string(d.buffer[:idx]), "\r")
		d.buffer = d.buffer[idx+1:]
		events = d.processLine(line, events)
	}
	if len(d.buffer) == 0 || d.done {
		d.buffer = nil
	}
	return events
}

// Flush runs the buffered final line, if any, through the same logic as
// Decode. A second call finds nothing left.
func (d *SSEDecoder[T]) Flush() []T {
	if len(d.buffer) == 0 {
		return nil
	}
	line := strings.TrimRight(string(d.buffer), "\r")
	d.buffer = nil
	return d.processLine(line, nil)
}

func (d *SSEDecoder[T]) Pending() bool {
	return len(d.buffer) > 0
}

// Done reports whether the [DONE] sentinel has been seen. Nothing after it
// is decoded.
func (d *SSEDecoder[T]) Done() bool {
	return d.done
}

// LastEventType is the most recent event: field, reset by blank lines.
func (d *SSEDecoder[T]) LastEventType() string {
	return d.eventType
}

func (d *SSEDecoder[T]) processLine(line string, events []T) []T {
	if line == "" {
		// Empty line = event separator, reset event type
		d.eventType = ""
		return events
	}
	if strings.HasPrefix(line, "event:") {
		d.eventType = strings.TrimSpace(line[len("event:"):])
		return events
	}
	if !strings.HasPrefix(line, d.prefix) {
		return events
	}

	payload := line[len(d.prefix):]
	switch strings.TrimSpace(payload) {
	case "":
		return events
	case doneSentinel:
		d.done = true
		return events
	}
	return d.decodePayload(payload, events)
}

func (d *SSEDecoder[T]) decodePayload(payload string, events []T) []T {
	v, err := parseUnit[T](payload)
	if err == nil {
		return append(events, v)
	}

	spans := braceSpan.FindAllString(payload, -1)
	if len(spans) == 0 {
		d.recordEvent(payload, err, d.eventType)
		return events
	}
	for _, span := range spans {
		v, err := parseUnit[T](span)
		if err != nil {
			d.recordEvent(span, err, d.eventType)
			continue
		}
		events = append(events, v)
	}
	return events
}
