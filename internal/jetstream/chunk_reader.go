package jetstream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/namikmesic/streamtype/internal/stream"
	nats "github.com/nats-io/nats.go"
)

// ChunkReader replays a recording as a stream.Reader. Chunks come back in
// publish order; the done marker ends the stream.
type ChunkReader struct {
	sub      *nats.Subscription
	done     bool
	metaSeen bool
	format   stream.Format
	pending  *nats.Msg
}

func NewChunkReader(js nats.JetStreamContext, recordingID string) (*ChunkReader, error) {
	sub, err := js.SubscribeSync(recordingFilter(recordingID), nats.OrderedConsumer(), nats.DeliverAll())
	if err != nil {
		return nil, fmt.Errorf("subscribe to recording %s: %w", recordingID, err)
	}
	return &ChunkReader{sub: sub}, nil
}

// Format is the framing the recording was captured in, read from its meta
// marker. It is empty for recordings made without one. Blocks until the
// first message of the recording arrives.
func (r *ChunkReader) Format(ctx context.Context) (stream.Format, error) {
	if r.metaSeen {
		return r.format, nil
	}
	msg, err := r.sub.NextMsgWithContext(ctx)
	if err != nil {
		return "", err
	}
	r.metaSeen = true
	if !strings.HasSuffix(msg.Subject, ".meta") {
		r.pending = msg
		return "", nil
	}
	var meta metaMarker
	if err := json.Unmarshal(msg.Data, &meta); err != nil {
		return "", fmt.Errorf("decode meta marker: %w", err)
	}
	r.format = meta.Format
	return r.format, nil
}

// Read blocks until the next recorded chunk arrives. A recording that never
// got its done marker blocks until ctx ends.
func (r *ChunkReader) Read(ctx context.Context) (*stream.ReadResult, error) {
	for !r.done {
		msg := r.pending
		r.pending = nil
		if msg == nil {
			var err error
			if msg, err = r.sub.NextMsgWithContext(ctx); err != nil {
				return nil, err
			}
		}
		switch {
		case strings.HasSuffix(msg.Subject, ".meta"):
			var meta metaMarker
			if json.Unmarshal(msg.Data, &meta) == nil {
				r.format = meta.Format
			}
			r.metaSeen = true
		case strings.HasSuffix(msg.Subject, ".done"):
			r.done = true
		default:
			return &stream.ReadResult{Value: msg.Data}, nil
		}
	}
	return &stream.ReadResult{Done: true}, nil
}

func (r *ChunkReader) Close() error {
	return r.sub.Unsubscribe()
}
