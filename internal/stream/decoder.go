package stream

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Decoder turns raw chunks into parsed events. Implementations hold the
// partial text between calls and are used by one stream only.
type Decoder[T any] interface {
	// Decode consumes one chunk and returns the events it completed.
	Decode(chunk []byte) []T
	// Flush is called once at end of stream for whatever is still buffered.
	Flush() []T
	// Pending reports whether text is held waiting for more bytes.
	Pending() bool
	// Errors returns the decode errors recorded so far.
	Errors() []error
}

// Format names the framing of a response stream.
type Format string

const (
	FormatNDJSON Format = "ndjson"
	FormatSSE    Format = "sse"
)

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "ndjson", "jsonl", "json":
		return FormatNDJSON, nil
	case "sse", "event-stream":
		return FormatSSE, nil
	}
	return "", fmt.Errorf("unknown stream format %q", s)
}

// NewDecoder returns the decoder for the given framing. dataPrefix only
// applies to SSE; empty selects DefaultDataPrefix.
func NewDecoder[T any](format Format, dataPrefix string) Decoder[T] {
	if format == FormatSSE {
		return NewSSEDecoder[T](dataPrefix)
	}
	return NewChunkDecoder[T]()
}

func parseUnit[T any](s string) (T, error) {
	var v T
	err := json.Unmarshal([]byte(s), &v)
	return v, err
}
