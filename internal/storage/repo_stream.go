package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// StreamRecord summarizes one consumed response stream.
type StreamRecord struct {
	ID           uuid.UUID
	Timestamp    time.Time
	SessionID    string
	MessageID    string
	Format       string
	Source       string
	Reads        int
	Events       int
	DecodeErrors int
	StopReason   string
	ErrorMessage string
}

func InsertStreamJob(r *StreamRecord) WriteJob {
	return WriteJobFunc(func(ctx context.Context, db DB) error {
		_, err := db.Exec(ctx, `
			INSERT INTO streams (
				id, ts, session_id, message_id, format, source,
				reads, events, decode_errors, stop_reason, error_message
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
			r.ID, r.Timestamp, r.SessionID, nilIfEmpty(r.MessageID), r.Format, nilIfEmpty(r.Source),
			r.Reads, r.Events, r.DecodeErrors, nilIfEmpty(r.StopReason), nilIfEmpty(r.ErrorMessage),
		)
		return err
	})
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
