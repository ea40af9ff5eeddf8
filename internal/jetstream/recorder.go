package jetstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/namikmesic/streamtype/internal/stream"
	nats "github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const recordChunkSize = 32 * 1024

// Recorder copies raw response chunks into the recording stream so the
// response can be replayed later with a ChunkReader.
type Recorder struct {
	js nats.JetStreamContext
}

func NewRecorder(js nats.JetStreamContext) *Recorder {
	return &Recorder{js: js}
}

// metaMarker opens a recording. Replay needs the framing to pick a decoder.
type metaMarker struct {
	TS     int64         `json:"ts"`
	Format stream.Format `json:"format"`
}

type doneMarker struct {
	TS     int64  `json:"ts"`
	Chunks int    `json:"chunks"`
	Bytes  int64  `json:"bytes"`
	Cut    bool   `json:"cut,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Record publishes a meta marker naming format, then drains src until it
// ends, publishing every chunk under the recording's chunk subject, then a
// done marker. A source cut with stream.ErrRecordingCut still counts as a
// finished recording, flagged as cut. src is drained even after a publish
// failure so the writer on the other end never blocks.
func (r *Recorder) Record(recordingID string, format stream.Format, src io.Reader) error {
	subject := ChunkSubject(recordingID)
	buf := make([]byte, recordChunkSize)
	marker := doneMarker{}

	var pubErr, readErr error
	meta, _ := json.Marshal(metaMarker{TS: time.Now().UnixNano(), Format: format})
	if _, err := r.js.Publish(MetaSubject(recordingID), meta); err != nil {
		pubErr = fmt.Errorf("publish meta marker: %w", err)
		log.Error().Err(err).Str("recording_id", recordingID).Msg("recording aborted")
	}
	for {
		n, err := src.Read(buf)
		if n > 0 && pubErr == nil {
			if _, perr := r.js.Publish(subject, buf[:n]); perr != nil {
				pubErr = fmt.Errorf("publish chunk %d: %w", marker.Chunks, perr)
				log.Error().Err(perr).Str("recording_id", recordingID).Msg("recording aborted")
			} else {
				marker.Chunks++
				marker.Bytes += int64(n)
			}
		}
		if err != nil {
			switch {
			case errors.Is(err, io.EOF):
			case errors.Is(err, stream.ErrRecordingCut):
				marker.Cut = true
			default:
				readErr = err
				marker.Error = err.Error()
			}
			break
		}
	}
	if pubErr != nil {
		return pubErr
	}

	marker.TS = time.Now().UnixNano()
	done, _ := json.Marshal(marker)
	if _, err := r.js.Publish(DoneSubject(recordingID), done); err != nil {
		return fmt.Errorf("publish done marker: %w", err)
	}

	log.Debug().
		Str("recording_id", recordingID).
		Str("format", string(format)).
		Int("chunks", marker.Chunks).
		Int64("bytes", marker.Bytes).
		Bool("cut", marker.Cut).
		Msg("recording complete")
	return readErr
}
