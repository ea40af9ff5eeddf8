package processor

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/namikmesic/streamtype/internal/storage"
	"github.com/namikmesic/streamtype/internal/stream"
	"github.com/namikmesic/streamtype/internal/typewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type update struct {
	text     string
	complete bool
}

type recordingSink struct {
	mu      sync.Mutex
	updates []update
}

func (s *recordingSink) Update(c typewriter.Content, complete bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates = append(s.updates, update{c.Text(), complete})
}

type recordingJournal struct {
	streams []*storage.StreamRecord
	errs    map[uuid.UUID][]error
}

func (j *recordingJournal) RecordStream(r *storage.StreamRecord) {
	j.streams = append(j.streams, r)
}

func (j *recordingJournal) RecordDecodeErrors(id uuid.UUID, errs []error) {
	if j.errs == nil {
		j.errs = make(map[uuid.UUID][]error)
	}
	j.errs[id] = append(j.errs[id], errs...)
}

func consumerFor(body string, chunk int) *stream.Consumer[stream.Packet] {
	reader := stream.NewBodyReader(strings.NewReader(body), chunk)
	return stream.NewConsumer(reader, stream.NewDecoder[stream.Packet](stream.FormatNDJSON, ""))
}

const chatStream = `{"user_message_id":10,"reserved_assistant_message_id":11}
{"answer_piece":"The sky "}
{"answer_piece":"is blue [[1]](https://docs.example/1)."}
{"citations":[{"citation_num":1,"document_id":"doc-a"}]}
{"citation_num":1,"document_id":"doc-a"}
{"message_id":11,"message":"The sky is blue.","citations":{"2":"doc-b"}}
{"stop_reason":"finished"}
`

func TestProcessStreamAssemblesMessage(t *testing.T) {
	sink := &recordingSink{}
	journal := &recordingJournal{}
	info := StreamInfo{ID: uuid.New(), SessionID: "s", MessageID: "11", Format: stream.FormatNDJSON, Source: "test"}

	snap, err := New(sink, journal).ProcessStream(context.Background(), info, consumerFor(chatStream, 16))
	require.NoError(t, err)

	assert.Equal(t, "The sky is blue [[1]](https://docs.example/1).", snap.Text)
	assert.True(t, snap.Complete)
	require.NotNil(t, snap.UserMessageID)
	assert.Equal(t, 10, *snap.UserMessageID)
	require.NotNil(t, snap.MessageID)
	assert.Equal(t, 11, *snap.MessageID)
	assert.Equal(t, []stream.Citation{{CitationNum: 1, DocumentID: "doc-a"}, {CitationNum: 2, DocumentID: "doc-b"}}, snap.Citations)
	assert.Equal(t, "finished", snap.StopReason)

	require.NotEmpty(t, sink.updates)
	last := sink.updates[len(sink.updates)-1]
	assert.Equal(t, update{snap.Text, true}, last)
	for i, u := range sink.updates[:len(sink.updates)-1] {
		assert.False(t, u.complete, "update %d", i)
		if i > 0 {
			assert.True(t, strings.HasPrefix(u.text, sink.updates[i-1].text))
		}
	}

	require.Len(t, journal.streams, 1)
	rec := journal.streams[0]
	assert.Equal(t, info.ID, rec.ID)
	assert.Equal(t, 7, rec.Events)
	assert.Equal(t, "finished", rec.StopReason)
	assert.Zero(t, rec.DecodeErrors)
	assert.Empty(t, rec.ErrorMessage)
}

func TestProcessStreamUsesDetailWhenNothingStreamed(t *testing.T) {
	sink := &recordingSink{}
	body := `{"message_id":3,"message":"whole answer"}` + "\n"

	snap, err := New(sink, nil).ProcessStream(context.Background(), StreamInfo{ID: uuid.New()}, consumerFor(body, 1024))
	require.NoError(t, err)
	assert.Equal(t, "whole answer", snap.Text)
	assert.Equal(t, []update{{"whole answer", false}, {"whole answer", true}}, sink.updates)
}

func TestProcessStreamJournalsDecodeErrors(t *testing.T) {
	journal := &recordingJournal{}
	id := uuid.New()
	body := `{"answer_piece":"ok"}` + "\n" + `{"answer_piece":` + "\n"

	snap, err := New(&recordingSink{}, journal).ProcessStream(context.Background(), StreamInfo{ID: id}, consumerFor(body, 4))
	require.NoError(t, err)
	assert.Equal(t, "ok", snap.Text)

	require.Len(t, journal.errs[id], 1)
	var de *stream.DecodeError
	assert.ErrorAs(t, journal.errs[id][0], &de)
	assert.Equal(t, 1, journal.streams[0].DecodeErrors)
}

func TestProcessStreamErrorPacket(t *testing.T) {
	body := `{"answer_piece":"partial"}` + "\n" + `{"error":"model overloaded","stack_trace":"trace"}` + "\n"
	snap, err := New(&recordingSink{}, nil).ProcessStream(context.Background(), StreamInfo{ID: uuid.New()}, consumerFor(body, 1024))
	require.NoError(t, err)
	assert.Equal(t, "model overloaded", snap.Error)
	assert.Equal(t, "trace", snap.StackTrace)
	assert.Equal(t, "partial", snap.Text)
}

type failingReader struct {
	chunks []string
	err    error
}

func (r *failingReader) Read(context.Context) (*stream.ReadResult, error) {
	if len(r.chunks) == 0 {
		return nil, r.err
	}
	c := r.chunks[0]
	r.chunks = r.chunks[1:]
	return &stream.ReadResult{Value: []byte(c)}, nil
}

func TestProcessStreamFatalErrorStillCompletes(t *testing.T) {
	boom := errors.New("connection reset")
	reader := &failingReader{chunks: []string{`{"answer_piece":"half"}` + "\n"}, err: boom}
	c := stream.NewConsumer(reader, stream.NewDecoder[stream.Packet](stream.FormatNDJSON, ""))
	sink := &recordingSink{}
	journal := &recordingJournal{}

	snap, err := New(sink, journal).ProcessStream(context.Background(), StreamInfo{ID: uuid.New()}, c)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, "half", snap.Text)
	assert.Equal(t, update{"half", true}, sink.updates[len(sink.updates)-1])
	assert.Contains(t, journal.streams[0].ErrorMessage, "connection reset")
}

func TestProcessStreamDrivesEngine(t *testing.T) {
	engine := typewriter.New(typewriter.Options{SessionID: "s", MessageID: "m"})
	defer engine.Stop()

	_, err := New(engine, nil).ProcessStream(context.Background(), StreamInfo{ID: uuid.New()}, consumerFor(chatStream, 7))
	require.NoError(t, err)

	assert.Equal(t, typewriter.Complete, engine.State())
	assert.Equal(t, "The sky is blue .", engine.Displayed().Text())
}
