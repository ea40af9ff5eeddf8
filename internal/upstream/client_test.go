package upstream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/namikmesic/streamtype/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ndjsonBody = `{"answer_piece":"Hi"}` + "\n" + `{"stop_reason":"finished"}` + "\n"

func readAll(t *testing.T, resp *Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}

func TestOpenPlainNDJSON(t *testing.T) {
	type captured struct {
		req  *http.Request
		body []byte
	}
	seen := make(chan captured, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		seen <- captured{req: r.Clone(context.Background()), body: body}
		w.Header().Set("Content-Type", "application/x-ndjson")
		io.WriteString(w, ndjsonBody)
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/api", "secret")
	resp, err := c.Open(context.Background(), Request{
		Path:     "/chat/send-message",
		RawQuery: "stream=1",
		Header:   http.Header{"Connection": {"keep-alive"}, "X-Session": {"abc"}},
		Body:     []byte(`{"message":"hello"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, stream.FormatNDJSON, resp.Format)
	assert.Equal(t, ndjsonBody, readAll(t, resp))

	in := <-seen
	got, gotBody := in.req, in.body
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/api/chat/send-message", got.URL.Path)
	assert.Equal(t, "stream=1", got.URL.RawQuery)
	assert.Equal(t, "Bearer secret", got.Header.Get("Authorization"))
	assert.Equal(t, "abc", got.Header.Get("X-Session"))
	assert.Equal(t, acceptStreams, got.Header.Get("Accept"))
	assert.Equal(t, acceptEncoding, got.Header.Get("Accept-Encoding"))
	assert.Equal(t, `{"message":"hello"}`, string(gotBody))
}

func TestOpenDecompresses(t *testing.T) {
	var gz, br bytes.Buffer
	zw := gzip.NewWriter(&gz)
	_, _ = zw.Write([]byte(ndjsonBody))
	require.NoError(t, zw.Close())
	bw := brotli.NewWriter(&br)
	_, _ = bw.Write([]byte(ndjsonBody))
	require.NoError(t, bw.Close())

	for enc, payload := range map[string][]byte{"gzip": gz.Bytes(), "br": br.Bytes()} {
		t.Run(enc, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/x-ndjson")
				w.Header().Set("Content-Encoding", enc)
				w.Write(payload)
			}))
			defer srv.Close()

			resp, err := NewClient(srv.URL, "").Open(context.Background(), Request{})
			require.NoError(t, err)
			assert.Equal(t, ndjsonBody, readAll(t, resp))
		})
	}
}

func TestOpenDetectsSSE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
		io.WriteString(w, "data: {\"answer_piece\":\"x\"}\n\ndata: [DONE]\n\n")
	}))
	defer srv.Close()

	resp, err := NewClient(srv.URL, "").Open(context.Background(), Request{Method: http.MethodGet})
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, stream.FormatSSE, resp.Format)
}

func TestOpenStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "bad key\n")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Open(context.Background(), Request{})
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.StatusCode)
	assert.Equal(t, "bad key", se.Body)
}

func TestOpenRejectsUnknownEncoding(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Encoding", "zstd")
		io.WriteString(w, "???")
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "").Open(context.Background(), Request{})
	assert.ErrorContains(t, err, "zstd")
}

func TestDetectFormat(t *testing.T) {
	assert.Equal(t, stream.FormatSSE, DetectFormat("text/event-stream"))
	assert.Equal(t, stream.FormatSSE, DetectFormat("Text/Event-Stream; charset=utf-8"))
	assert.Equal(t, stream.FormatNDJSON, DetectFormat("application/x-ndjson"))
	assert.Equal(t, stream.FormatNDJSON, DetectFormat("application/json"))
	assert.Equal(t, stream.FormatNDJSON, DetectFormat(""))
}

func TestBuildTargetURL(t *testing.T) {
	u, err := buildTargetURL("https://chat.example.com/api/", "/chat/send-message", "a=1")
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com/api/chat/send-message?a=1", u)

	u, err = buildTargetURL("https://chat.example.com/stream?x=2", "", "")
	require.NoError(t, err)
	assert.Equal(t, "https://chat.example.com/stream?x=2", u)

	_, err = buildTargetURL("not a url", "/x", "")
	assert.Error(t, err)
}

func TestPrepareUpstreamHeaders(t *testing.T) {
	orig := http.Header{
		"Authorization":     {"Bearer mine"},
		"Transfer-Encoding": {"chunked"},
		"Upgrade":           {"h2c"},
		"Accept":            {"application/x-ndjson"},
	}
	h := prepareUpstreamHeaders(orig, "injected")

	assert.Equal(t, "Bearer mine", h.Get("Authorization"))
	assert.Empty(t, h.Get("Transfer-Encoding"))
	assert.Empty(t, h.Get("Upgrade"))
	assert.Equal(t, "application/x-ndjson", h.Get("Accept"))
	assert.Equal(t, "application/json", h.Get("Content-Type"))
	assert.Equal(t, "chunked", orig.Get("Transfer-Encoding"))
}

func TestPrepareUpstreamHeadersDropsConnectionListed(t *testing.T) {
	orig := http.Header{
		"Connection":     {"keep-alive, X-Trace-Hop"},
		"X-Trace-Hop":    {"1"},
		"X-Session":      {"s-1"},
		"Accept":         {"text/event-stream"},
		"Content-Length": {"12"},
	}
	h := prepareUpstreamHeaders(orig, "")

	assert.Empty(t, h.Get("Connection"))
	assert.Empty(t, h.Get("X-Trace-Hop"))
	assert.Equal(t, "s-1", h.Get("X-Session"))
	assert.Empty(t, h.Get("Authorization"))
	assert.Equal(t, "1", orig.Get("X-Trace-Hop"))

	assert.Equal(t, acceptStreams, prepareUpstreamHeaders(nil, "k").Get("Accept"))
}

func TestRedactHeaders(t *testing.T) {
	h := http.Header{}
	h.Set("Authorization", "Bearer secret")
	h.Set("X-Api-Key", "secret")
	h.Add("Accept", "text/event-stream")
	h.Add("Accept", "application/x-ndjson")

	got := redactHeaders(h)
	assert.Equal(t, "[REDACTED]", got["Authorization"])
	assert.Equal(t, "[REDACTED]", got["X-Api-Key"])
	assert.Equal(t, "text/event-stream, application/x-ndjson", got["Accept"])
	assert.NotContains(t, got, "Cookie")
	assert.Equal(t, "Bearer secret", h.Get("Authorization"))
}
