package processor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/namikmesic/streamtype/internal/storage"
	"github.com/namikmesic/streamtype/internal/stream"
	"github.com/namikmesic/streamtype/internal/typewriter"
	"github.com/rs/zerolog/log"
)

// Sink receives the accumulated message every time it grows. The typewriter
// engine is the usual sink.
type Sink interface {
	Update(c typewriter.Content, complete bool)
}

// Journal keeps a record of consumed streams. storage.Journal implements it.
type Journal interface {
	RecordStream(r *storage.StreamRecord)
	RecordDecodeErrors(streamID uuid.UUID, errs []error)
}

// StreamInfo identifies the stream being processed.
type StreamInfo struct {
	ID        uuid.UUID
	SessionID string
	MessageID string
	Format    stream.Format
	Source    string
}

// Snapshot is the message as assembled from the packets seen so far.
type Snapshot struct {
	Text                       string
	Complete                   bool
	UserMessageID              *int
	ReservedAssistantMessageID *int
	MessageID                  *int
	Citations                  []stream.Citation
	StopReason                 string
	Error                      string
	StackTrace                 string
}

// Processor turns a packet stream into message snapshots.
type Processor struct {
	sink    Sink
	journal Journal
}

// New returns a processor feeding sink. journal may be nil.
func New(sink Sink, journal Journal) *Processor {
	return &Processor{sink: sink, journal: journal}
}

// ProcessStream consumes c until it ends, pushing the growing answer to the
// sink. The sink always gets a final complete update, also when consumption
// fails; the error is returned alongside the last snapshot.
func (p *Processor) ProcessStream(ctx context.Context, info StreamInfo, c *stream.Consumer[stream.Packet]) (Snapshot, error) {
	start := time.Now()
	var snap Snapshot
	var fatal error

	for batch, err := range c.All(ctx) {
		if err != nil {
			fatal = err
			break
		}
		before := snap.Text
		for _, pkt := range batch {
			snap.apply(pkt)
		}
		if snap.Text != before {
			p.sink.Update(typewriter.Text(snap.Text), false)
		}
	}

	snap.Complete = true
	p.sink.Update(typewriter.Text(snap.Text), true)

	decodeErrs := c.DecodeErrors()
	if p.journal != nil {
		p.journal.RecordDecodeErrors(info.ID, decodeErrs)
		rec := &storage.StreamRecord{
			ID:           info.ID,
			Timestamp:    start,
			SessionID:    info.SessionID,
			MessageID:    info.MessageID,
			Format:       string(info.Format),
			Source:       info.Source,
			Reads:        c.Reads(),
			Events:       c.Events(),
			DecodeErrors: len(decodeErrs),
			StopReason:   snap.StopReason,
			ErrorMessage: snap.Error,
		}
		if fatal != nil {
			rec.ErrorMessage = fatal.Error()
		}
		p.journal.RecordStream(rec)
	}

	ev := log.Debug()
	if fatal != nil {
		ev = log.Warn().Err(fatal)
	}
	ev.Str("stream_id", info.ID.String()).
		Int("reads", c.Reads()).
		Int("events", c.Events()).
		Int("decode_errors", len(decodeErrs)).
		Int("chars", len(snap.Text)).
		Str("stop_reason", snap.StopReason).
		Dur("duration", time.Since(start)).
		Msg("stream processing complete")

	return snap, fatal
}

func (s *Snapshot) apply(pkt stream.Packet) {
	switch pkt.Kind() {
	case stream.KindAnswerPiece:
		s.Text += *pkt.AnswerPiece
	case stream.KindCitations:
		for _, c := range pkt.Citations {
			s.addCitation(c)
		}
	case stream.KindCitation:
		s.addCitation(stream.Citation{CitationNum: *pkt.CitationNum, DocumentID: pkt.DocumentID})
	case stream.KindMessageIDs:
		s.UserMessageID = pkt.UserMessageID
		s.ReservedAssistantMessageID = pkt.ReservedAssistantMessageID
	case stream.KindMessageDetail:
		s.MessageID = pkt.MessageID
		// The detail carries the whole answer; only trust it when no piece
		// was streamed.
		if pkt.Message != nil && s.Text == "" {
			s.Text = *pkt.Message
		}
		for _, c := range pkt.Citations {
			s.addCitation(c)
		}
	case stream.KindStop:
		s.StopReason = pkt.StopReason
	case stream.KindError:
		s.Error = pkt.Error
		if pkt.StackTrace != nil {
			s.StackTrace = *pkt.StackTrace
		}
	default:
		log.Debug().Msg("ignoring unrecognised packet")
	}
}

func (s *Snapshot) addCitation(c stream.Citation) {
	for _, have := range s.Citations {
		if have.CitationNum == c.CitationNum {
			return
		}
	}
	s.Citations = append(s.Citations, c)
}
