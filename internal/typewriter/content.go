package typewriter

// Content is either plain text, which the engine animates, or an opaque rich
// value (a rendered node, a tool card) that is shown as-is.
type Content struct {
	text string
	rich any
}

func Text(s string) Content {
	return Content{text: s}
}

// Rich wraps an opaque value. Rich(nil) is the empty text.
func Rich(v any) Content {
	return Content{rich: v}
}

func (c Content) IsRich() bool {
	return c.rich != nil
}

func (c Content) Text() string {
	return c.text
}

func (c Content) Rich() any {
	return c.rich
}
