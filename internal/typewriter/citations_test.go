package typewriter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilterCitations(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"see [[1]](https://a.example/x)", "see "},
		{"a [1](https://a.example) b [[12]](http://b.example/y?q=1) c", "a  b  c"},
		{"not a link [1] here", "not a link [1] here"},
		{"spaced [1](a b)", "spaced [1](a b)"},
		{"[[1]]()", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FilterCitations(tt.in), tt.in)
	}
}

func TestHoldIndexHoldsPossibleMarker(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"text [", "text "},
		{"text [[", "text "},
		{"text [[3", "text "},
		{"text [[3]]", "text "},
		{"text [[3]](https://ex", "text "},
		{"text [[3]](https://ex.com) tail", "text  tail"},
		{"text [abc", "text [abc"},
		{"done]", "done]"},
	}
	for _, tt := range tests {
		filtered := FilterCitations(tt.in)
		assert.Equal(t, tt.want, filtered[:holdIndex(filtered)], tt.in)
	}
}

func TestInterruptKey(t *testing.T) {
	assert.Equal(t, "disableTyping:sess-1:42", InterruptKey("sess-1", "42"))
}

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	set, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, set)

	require.NoError(t, s.Set(ctx, "k"))
	require.NoError(t, s.Set(ctx, "k"))
	assert.Equal(t, 1, s.Len())

	set, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, set)

	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	assert.Zero(t, s.Len())
}

func TestVisibilityBroadcastsChanges(t *testing.T) {
	v := NewVisibility()
	var got []bool
	release := v.Subscribe(func(visible bool) { got = append(got, visible) })

	v.Set(true)
	v.Set(false)
	v.Set(false)
	v.Set(true)
	assert.Equal(t, []bool{false, true}, got)

	release()
	release()
	v.Set(false)
	assert.Equal(t, []bool{false, true}, got)
	assert.False(t, v.Visible())
	assert.Zero(t, v.Subscribers())
}
