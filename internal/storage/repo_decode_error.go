package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/namikmesic/streamtype/internal/stream"
)

// decodeErrorRows flattens decode errors into rows for COPY. Errors that
// carry no input are stored with an empty one.
func decodeErrorRows(streamID uuid.UUID, ts time.Time, errs []error) [][]any {
	rows := make([][]any, len(errs))
	for i, err := range errs {
		var input, event string
		var de *stream.DecodeError
		if errors.As(err, &de) {
			input, event = de.Input, de.Event
		}
		rows[i] = []any{ts, streamID, i, textColumn(input), nilIfEmpty(event), textColumn(err.Error())}
	}
	return rows
}

// textColumn makes s storable in a TEXT column: Postgres rejects NUL bytes
// and invalid UTF-8, and one bad row fails the whole COPY.
func textColumn(s string) string {
	return strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
}

// InsertDecodeErrorsJob creates a batch insert job for decode errors using
// the COPY protocol.
func InsertDecodeErrorsJob(streamID uuid.UUID, ts time.Time, errs []error) WriteJob {
	rows := decodeErrorRows(streamID, ts, errs)
	return WriteJobFunc(func(ctx context.Context, db DB) error {
		_, err := db.CopyFrom(ctx,
			pgx.Identifier{"decode_errors"},
			[]string{"ts", "stream_id", "error_index", "input", "event", "message"},
			pgx.CopyFromRows(rows),
		)
		return err
	})
}
