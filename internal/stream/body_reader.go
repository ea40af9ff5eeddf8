package stream

import (
	"context"
	"io"
)

const (
	DefaultReadBufferSize = 32 * 1024

	maxEmptyReads = 100
)

// BodyReader adapts an io.Reader, typically an HTTP response body, to
// Reader. Each Read hands back what one underlying Read returned; the end
// of the body becomes a separate Done result.
type BodyReader struct {
	r    io.Reader
	buf  []byte
	err  error
	done bool
}

func NewBodyReader(r io.Reader, size int) *BodyReader {
	if size <= 0 {
		size = DefaultReadBufferSize
	}
	return &BodyReader{r: r, buf: make([]byte, size)}
}

func (b *BodyReader) Read(ctx context.Context) (*ReadResult, error) {
	if b.done {
		return &ReadResult{Done: true}, nil
	}
	if b.err != nil {
		return nil, b.err
	}

	for i := 0; i < maxEmptyReads; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := b.r.Read(b.buf)
		if n > 0 {
			value := make([]byte, n)
			copy(value, b.buf[:n])
			switch {
			case err == io.EOF:
				b.done = true
			case err != nil:
				b.err = err
			}
			return &ReadResult{Value: value}, nil
		}
		if err == io.EOF {
			b.done = true
			return &ReadResult{Done: true}, nil
		}
		if err != nil {
			return nil, err
		}
	}
	// The source keeps returning nothing; report an empty read and let the
	// consumer decide.
	return &ReadResult{}, nil
}
