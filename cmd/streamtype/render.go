package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/namikmesic/streamtype/internal/typewriter"
)

// renderer prints only what each frame adds to the previous one. A frame
// that does not extend the previous one starts on a new line.
type renderer struct {
	w     io.Writer
	shown string
}

func newRenderer(w io.Writer) *renderer {
	return &renderer{w: w}
}

func (r *renderer) Render(c typewriter.Content) {
	if c.IsRich() {
		fmt.Fprintf(r.w, "\n%v\n", c.Rich())
		r.shown = ""
		return
	}
	text := c.Text()
	if strings.HasPrefix(text, r.shown) {
		io.WriteString(r.w, text[len(r.shown):])
	} else {
		io.WriteString(r.w, "\n"+text)
	}
	r.shown = text
}
