package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/rs/zerolog/log"
)

// ReadResult is one read from the transport. Done marks the end of the
// stream; Value may be empty on an ordinary read.
type ReadResult struct {
	Done  bool
	Value []byte
}

// Reader supplies raw chunks. A nil result with a nil error is a protocol
// violation.
type Reader interface {
	Read(ctx context.Context) (*ReadResult, error)
}

// Consumer pulls chunks from a Reader, feeds them to a Decoder and hands the
// decoded batches to the caller in arrival order.
type Consumer[T any] struct {
	reader   Reader
	decoder  Decoder[T]
	reads    int
	events   int
	finished bool
}

func NewConsumer[T any](reader Reader, decoder Decoder[T]) *Consumer[T] {
	return &Consumer[T]{reader: reader, decoder: decoder}
}

// Next blocks for the next read and returns the events it produced, which
// may be none. It returns io.EOF once the stream has ended; any other error
// is fatal and ends consumption.
func (c *Consumer[T]) Next(ctx context.Context) ([]T, error) {
	if c.finished {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		c.finished = true
		return nil, err
	}

	res, err := c.reader.Read(ctx)
	if err != nil {
		c.finished = true
		return nil, fmt.Errorf("read %d: %w", c.reads, err)
	}
	if res == nil {
		c.finished = true
		perr := &ProtocolError{Read: c.reads, Reason: "reader returned no result"}
		log.Error().Err(perr).Int("events", c.events).Msg("stream consumption aborted")
		return nil, perr
	}
	c.reads++

	if res.Done {
		c.finished = true
		events := c.decoder.Decode(res.Value)
		events = append(events, c.decoder.Flush()...)
		c.events += len(events)
		log.Debug().
			Int("reads", c.reads).
			Int("events", c.events).
			Int("decode_errors", len(c.decoder.Errors())).
			Msg("stream complete")
		if len(events) == 0 {
			return nil, io.EOF
		}
		return events, nil
	}

	events := c.decoder.Decode(res.Value)
	c.events += len(events)
	if d, ok := c.decoder.(interface{ Done() bool }); ok && d.Done() {
		// The server said it is finished even if the connection stays open.
		c.finished = true
		log.Debug().Int("reads", c.reads).Int("events", c.events).Msg("end of stream sentinel seen")
		if len(events) == 0 {
			return nil, io.EOF
		}
		return events, nil
	}
	if len(events) == 0 && len(res.Value) == 0 && !c.decoder.Pending() {
		// Exhausted stream that never signalled done.
		c.finished = true
		log.Debug().Int("reads", c.reads).Msg("empty read with nothing buffered, stopping")
		return nil, io.EOF
	}
	return events, nil
}

// All iterates batches until the stream ends. A fatal error is yielded once
// as the last element.
func (c *Consumer[T]) All(ctx context.Context) iter.Seq2[[]T, error] {
	return func(yield func([]T, error) bool) {
		for {
			events, err := c.Next(ctx)
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(events, err) || err != nil {
				return
			}
		}
	}
}

// DecodeErrors returns the non-fatal errors recorded by the decoder.
func (c *Consumer[T]) DecodeErrors() []error {
	return c.decoder.Errors()
}

// Reads is the number of results taken from the reader.
func (c *Consumer[T]) Reads() int {
	return c.reads
}

// Events is the number of events produced so far.
func (c *Consumer[T]) Events() int {
	return c.events
}
