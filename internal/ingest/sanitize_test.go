package ingest

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{"plain", "hello", 1000, "hello"},
		{"null bytes", "a\x00b\x07c", 1000, "abc"},
		{"keeps whitespace controls", "a\nb\rc\td", 1000, "a\nb\rc\td"},
		{"truncates runes", "ééééé", 3, "ééé"},
		{"truncates after stripping", "\x00\x00abcdef", 4, "abcd"},
		{"empty", "", 10, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeString(tt.in, tt.max))
		})
	}
}

func TestSanitizeOptional(t *testing.T) {
	assert.Nil(t, SanitizeOptional(nil, 10))

	in := strings.Repeat("x", 30)
	got := SanitizeOptional(&in, maxVideoID)
	require.NotNil(t, got)
	assert.Len(t, *got, maxVideoID)
}

func TestSanitizeURL(t *testing.T) {
	ptr := func(s string) *string { return &s }

	assert.Nil(t, SanitizeURL(nil))
	assert.Nil(t, SanitizeURL(ptr("javascript:alert(1)")))
	assert.Nil(t, SanitizeURL(ptr("ftp://example.com")))
	assert.Nil(t, SanitizeURL(ptr("")))

	got := SanitizeURL(ptr("https://youtube.com/watch?v=abc"))
	require.NotNil(t, got)
	assert.Equal(t, "https://youtube.com/watch?v=abc", *got)

	long := "http://" + strings.Repeat("a", 3000)
	got = SanitizeURL(&long)
	require.NotNil(t, got)
	assert.Len(t, *got, maxURL)
}
