package stream

import (
	"errors"
	"io"
	"sync/atomic"
)

// ErrRecordingCut ends a recording whose body was closed before the
// upstream finished sending, e.g. after the end of stream sentinel or an
// interrupt.
var ErrRecordingCut = errors.New("body closed before end of stream")

// RecordingBody mirrors every byte the decoder reads into a pipe drained by
// a recorder. Reaching the end of the body ends the recording with the
// body's error; closing it first ends it with ErrRecordingCut.
type RecordingBody struct {
	body  io.ReadCloser
	pw    *io.PipeWriter
	bytes atomic.Int64
	ended atomic.Bool
}

// Record returns the body to decode from and the reader a recorder should
// drain. The recorder must keep reading or the decoder blocks.
func Record(body io.ReadCloser) (*RecordingBody, *io.PipeReader) {
	pr, pw := io.Pipe()
	return &RecordingBody{body: body, pw: pw}, pr
}

func (t *RecordingBody) Read(p []byte) (int, error) {
	n, err := t.body.Read(p)
	if n > 0 {
		if _, werr := t.pw.Write(p[:n]); werr != nil {
			return n, werr
		}
		t.bytes.Add(int64(n))
	}
	if err != nil && t.ended.CompareAndSwap(false, true) {
		t.pw.CloseWithError(err)
	}
	return n, err
}

// Bytes is how much of the body has been read and mirrored so far.
func (t *RecordingBody) Bytes() int64 {
	return t.bytes.Load()
}

func (t *RecordingBody) Close() error {
	if t.ended.CompareAndSwap(false, true) {
		t.pw.CloseWithError(ErrRecordingCut)
	}
	return t.body.Close()
}
