package typewriter

import "regexp"

var (
	// [[1]](https://...) and [1](https://...) as produced by the chat layer.
	citationMarker = regexp.MustCompile(`\[\[\d+\]\]\([^)\s]*\)|\[\d+\]\([^)\s]*\)`)

	// A marker that may still be completed by the next piece of the stream.
	partialMarker = regexp.MustCompile(`\[\[?\d*\]?\]?(\([^)\s]*)?$`)
)

// FilterCitations removes citation markers so they never show up
// character by character.
func FilterCitations(s string) string {
	return citationMarker.ReplaceAllString(s, "")
}

// holdIndex is where the possible marker at the end of filtered text starts,
// or len(filtered) if there is none.
func holdIndex(filtered string) int {
	if loc := partialMarker.FindStringIndex(filtered); loc != nil {
		return loc[0]
	}
	return len(filtered)
}
