package transcript

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   string
		opts Options
		want string
	}{
		{name: "collapses whitespace", in: "  what   is\nthis ", want: "what is this"},
		{name: "blank", in: " \n\t ", opts: Options{CapitalizeSentences: true}, want: ""},
		{name: "sentence starts", in: "hello world. how are you? fine", opts: Options{CapitalizeSentences: true}, want: "Hello world. How are you? Fine"},
		{name: "pronoun i", in: "when i speak i'm clearer", opts: Options{CapitalizeSentences: true}, want: "When I speak I'm clearer"},
		{name: "decimal", in: "pi is 3.14 roughly", opts: Options{CapitalizeSentences: true}, want: "Pi is 3.14 roughly"},
		{name: "title abbreviation", in: "ask dr. smith about it", opts: Options{CapitalizeSentences: true}, want: "Ask dr. smith about it"},
		{name: "latin abbreviation", in: "use a map, e.g. a hash map", opts: Options{CapitalizeSentences: true}, want: "Use a map, e.g. a hash map"},
		{name: "initialism keeps i.e", in: "that is i.e. the loop", opts: Options{CapitalizeSentences: true}, want: "That is i.e. the loop"},
		{name: "untouched without casing", in: "hello. world", want: "hello. world"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Normalize(tc.in, tc.opts))
		})
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	t.Parallel()

	opts := Options{CapitalizeSentences: true}
	first := Normalize("hello world. this is clonely", opts)
	require.Equal(t, first, Normalize(first, opts))
}

func TestLogAddLinesAndReset(t *testing.T) {
	t.Parallel()

	log := NewLog(Options{CapitalizeSentences: true})
	require.Equal(t, "What is a mutex?", log.Add(" what is a mutex? "))
	require.Empty(t, log.Add("   "))
	log.Add("and a channel")

	require.Equal(t, []string{"What is a mutex?", "And a channel"}, log.Lines())
	require.Equal(t, "What is a mutex? And a channel", log.Text())

	log.Reset()
	require.Empty(t, log.Lines())
	require.Empty(t, log.Text())
}

func TestLogMaxLines(t *testing.T) {
	t.Parallel()

	log := NewLog(Options{MaxLines: 2})
	log.Add("one")
	log.Add("two")
	log.Add("three")
	require.Equal(t, []string{"two", "three"}, log.Lines())
}

func TestLogLinesIsACopy(t *testing.T) {
	t.Parallel()

	log := NewLog(Options{})
	log.Add("one")
	lines := log.Lines()
	lines[0] = "mutated"
	require.Equal(t, []string{"one"}, log.Lines())
}
