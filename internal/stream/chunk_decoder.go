package stream

import "strings"

// DecodeChunk splits chunk into lines, prepends partial to each line in turn
// and tries to parse the result. A line that parses is emitted and clears the
// partial; a line that does not becomes the new partial.
//
// T should be an object or array type: a proper prefix of a JSON object is
// never valid JSON, which is what makes the result independent of where the
// chunk boundaries fall.
func DecodeChunk[T any](chunk, partial string) ([]T, string) {
	if chunk == "" {
		return nil, partial
	}
	var events []T
	for _, line := range strings.Split(chunk, "\n") {
		if line == "" {
			continue
		}
		candidate := partial + line
		v, err := parseUnit[T](candidate)
		if err != nil {
			partial = candidate
			continue
		}
		events = append(events, v)
		partial = ""
	}
	return events, partial
}

// ChunkDecoder is the stateful newline-delimited JSON decoder.
type ChunkDecoder[T any] struct {
	partial string
	errorLog
}

func NewChunkDecoder[T any]() *ChunkDecoder[T] {
	return &ChunkDecoder[T]{errorLog: errorLog{source: string(FormatNDJSON)}}
}

func (d *ChunkDecoder[T]) Decode(chunk []byte) []T {
	var events []T
	events, d.partial = DecodeChunk[T](string(chunk), d.partial)
	return events
}

// Flush gives the held partial one last parse. If it still fails it is
// recorded as a decode error.
func (d *ChunkDecoder[T]) Flush() []T {
	if d.partial == "" {
		return nil
	}
	partial := d.partial
	d.partial = ""
	v, err := parseUnit[T](partial)
	if err != nil {
		d.record(partial, err)
		return nil
	}
	return []T{v}
}

func (d *ChunkDecoder[T]) Pending() bool {
	return d.partial != ""
}

// Partial returns the text currently held over.
func (d *ChunkDecoder[T]) Partial() string {
	return d.partial
}
