package storage

import (
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// Journal records stream summaries and their decode errors through a
// BatchWriter. It never blocks the stream being consumed.
type Journal struct {
	writer *BatchWriter
}

func NewJournal(writer *BatchWriter) *Journal {
	return &Journal{writer: writer}
}

func (j *Journal) RecordStream(r *StreamRecord) {
	if !j.writer.Enqueue(InsertStreamJob(r)) {
		log.Warn().Str("stream_id", r.ID.String()).Msg("stream summary dropped")
	}
}

func (j *Journal) RecordDecodeErrors(streamID uuid.UUID, errs []error) {
	if len(errs) == 0 {
		return
	}
	if !j.writer.Enqueue(InsertDecodeErrorsJob(streamID, time.Now(), errs)) {
		log.Warn().
			Str("stream_id", streamID.String()).
			Int("decode_errors", len(errs)).
			Msg("decode errors dropped")
	}
}
