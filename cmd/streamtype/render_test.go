package main

import (
	"bytes"
	"testing"

	"github.com/namikmesic/streamtype/internal/stream"
	"github.com/namikmesic/streamtype/internal/typewriter"
	"github.com/stretchr/testify/assert"
)

func TestRendererPrintsDeltas(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.Render(typewriter.Text(""))
	r.Render(typewriter.Text("He"))
	r.Render(typewriter.Text("Hello"))
	r.Render(typewriter.Text("Hello"))
	assert.Equal(t, "Hello", buf.String())

	r.Render(typewriter.Text("Bye"))
	assert.Equal(t, "Hello\nBye", buf.String())

	r.Render(typewriter.Rich(map[string]int{"rows": 2}))
	r.Render(typewriter.Text("x"))
	assert.Equal(t, "Hello\nBye\nmap[rows:2]\nx", buf.String())
}

func TestResolveFormat(t *testing.T) {
	assert.Equal(t, stream.FormatSSE, resolveFormat("auto", stream.FormatSSE))
	assert.Equal(t, stream.FormatNDJSON, resolveFormat("", stream.FormatNDJSON))
	assert.Equal(t, stream.FormatSSE, resolveFormat("sse", stream.FormatNDJSON))
	assert.Equal(t, stream.FormatNDJSON, resolveFormat("ndjson", stream.FormatSSE))
}

func TestDefaultSessionIDIsStable(t *testing.T) {
	assert.Equal(t, defaultSessionID(), defaultSessionID())
}
