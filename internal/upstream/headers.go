package upstream

import (
	"net/http"
	"strings"
)

// Hop-by-hop headers that must not be forwarded.
var hopByHopHeaders = []string{
	"Connection",
	"Keep-Alive",
	"Proxy-Authenticate",
	"Proxy-Authorization",
	"Te",
	"Trailers",
	"Transfer-Encoding",
	"Upgrade",
}

// Header values that never reach the logs.
var secretHeaders = []string{"Authorization", "X-Api-Key", "Cookie"}

const (
	acceptStreams  = "text/event-stream, application/x-ndjson"
	acceptEncoding = "br, gzip"
)

// stripHopByHop removes the fixed hop-by-hop set plus every header the
// Connection header names.
func stripHopByHop(h http.Header) {
	for _, v := range h.Values("Connection") {
		for _, name := range strings.Split(v, ",") {
			if name = strings.TrimSpace(name); name != "" {
				h.Del(name)
			}
		}
	}
	for _, key := range hopByHopHeaders {
		h.Del(key)
	}
}

// prepareUpstreamHeaders builds the headers of a stream request from the
// caller's headers. Auth is only injected when the caller brought none, and
// the accepted framings and encodings are always ours.
func prepareUpstreamHeaders(original http.Header, apiKey string) http.Header {
	h := original.Clone()
	if h == nil {
		h = make(http.Header)
	}
	stripHopByHop(h)
	h.Del("Host")

	if apiKey != "" && h.Get("Authorization") == "" {
		h.Set("Authorization", "Bearer "+apiKey)
	}
	if h.Get("Accept") == "" {
		h.Set("Accept", acceptStreams)
	}
	if h.Get("Content-Type") == "" {
		h.Set("Content-Type", "application/json")
	}

	// Setting this ourselves turns off the transport's transparent gzip, so
	// the body is decoded in decodeBody.
	h.Set("Accept-Encoding", acceptEncoding)

	return h
}

// redactHeaders is a loggable copy of h with secret values masked.
func redactHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for k, vv := range h {
		out[k] = strings.Join(vv, ", ")
	}
	for _, k := range secretHeaders {
		if _, ok := h[http.CanonicalHeaderKey(k)]; ok {
			out[http.CanonicalHeaderKey(k)] = "[REDACTED]"
		}
	}
	return out
}
