package lang

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	n := Default()

	cases := []struct {
		name   string
		raw    string
		want   string
		wantOK bool
	}{
		{name: "underscore region form", raw: "en_us", want: "en-US", wantOK: true},
		{name: "bare language uppercase", raw: "FR", want: "fr-FR", wantOK: true},
		{name: "bare language lowercase", raw: "de", want: "de-DE", wantOK: true},
		{name: "already accepted tag", raw: "ja-JP", want: "ja-JP", wantOK: true},
		{name: "mixed case region form", raw: "PT-br", want: "pt-BR", wantOK: true},
		{name: "unknown region falls back to base default", raw: "en-XX", want: "en-US", wantOK: true},
		{name: "unrecognized tag", raw: "xx-ZZ", wantOK: false},
		{name: "unrecognized base language", raw: "tlh", wantOK: false},
		{name: "empty", raw: "", wantOK: false},
		{name: "whitespace only", raw: "   ", wantOK: false},
		{name: "padded input trimmed", raw: "  sv  ", want: "sv-SE", wantOK: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := n.Normalize(tc.raw)
			assert.Equal(t, tc.wantOK, ok)
			assert.Equal(t, tc.want, got)
		})
	}
}

// Normalize never fabricates a tag outside the injected allow-list,
// even when the defaults table points at one.
func TestNormalizeRespectsAllowList(t *testing.T) {
	n := New([]string{"en-US"}, map[string]string{"en": "en-US", "fr": "fr-FR"})

	got, ok := n.Normalize("en")
	assert.True(t, ok)
	assert.Equal(t, "en-US", got)

	_, ok = n.Normalize("fr") // fr-FR is not in the allow-list
	assert.False(t, ok)
}
