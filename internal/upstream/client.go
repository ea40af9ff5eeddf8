package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/namikmesic/streamtype/internal/stream"
	"github.com/rs/zerolog/log"
)

const errorBodyLimit = 4 * 1024

// Request describes one call that answers with a streamed body.
type Request struct {
	Method   string // POST when empty
	Path     string
	RawQuery string
	Header   http.Header
	Body     []byte
}

// Response is an open streamed body, already decompressed. The caller must
// close Body.
type Response struct {
	StatusCode int
	Header     http.Header
	Format     stream.Format
	Body       io.ReadCloser
}

// StatusError is returned for a non-2xx answer.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.StatusCode, e.Body)
}

// Client opens response streams from the chat backend.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			// Streams can be long-lived, so no overall timeout.
			Timeout: 0,
			// Don't follow redirects
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// Open sends r and returns the streamed body once headers have arrived.
// Cancelling ctx aborts the body read.
func (c *Client) Open(ctx context.Context, r Request) (*Response, error) {
	targetURL, err := buildTargetURL(c.baseURL, r.Path, r.RawQuery)
	if err != nil {
		return nil, err
	}
	method := r.Method
	if method == "" {
		method = http.MethodPost
	}

	req, err := http.NewRequestWithContext(ctx, method, targetURL, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("create upstream request: %w", err)
	}
	req.Header = prepareUpstreamHeaders(r.Header, c.apiKey)
	log.Debug().Str("url", targetURL).Interface("headers", redactHeaders(req.Header)).Msg("opening upstream stream")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	body, err := decodeBody(resp)
	if err != nil {
		resp.Body.Close()
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer body.Close()
		msg, _ := io.ReadAll(io.LimitReader(body, errorBodyLimit))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	format := DetectFormat(resp.Header.Get("Content-Type"))
	log.Info().
		Str("url", targetURL).
		Int("status", resp.StatusCode).
		Str("format", string(format)).
		Str("encoding", resp.Header.Get("Content-Encoding")).
		Dur("ttfb", time.Since(start)).
		Msg("upstream stream opened")

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Format:     format,
		Body:       body,
	}, nil
}

// DetectFormat maps a Content-Type to the stream framing. Anything that is
// not an event stream is read as newline-delimited JSON.
func DetectFormat(contentType string) stream.Format {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil && mediaType == "text/event-stream" {
		return stream.FormatSSE
	}
	return stream.FormatNDJSON
}

type decodedBody struct {
	io.Reader
	closers []io.Closer
}

func (d *decodedBody) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch enc := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))); enc {
	case "", "identity":
		return resp.Body, nil
	case "br":
		return &decodedBody{Reader: brotli.NewReader(resp.Body), closers: []io.Closer{resp.Body}}, nil
	case "gzip", "x-gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("open gzip body: %w", err)
		}
		return &decodedBody{Reader: zr, closers: []io.Closer{zr, resp.Body}}, nil
	default:
		return nil, fmt.Errorf("unsupported content encoding %q", enc)
	}
}
