package parse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClean(t *testing.T) {
	assert.Equal(t, "hello world", Clean(`<p>hello <b>world</b></p>`))
	assert.Equal(t, "a < b", Clean("a &lt; b"))
	assert.Equal(t, "", Clean(""))
}

func TestIsJam(t *testing.T) {
	assert.True(t, IsJam("♫ listen.example/track/42"))
	assert.True(t, IsJam("  ♫ https://music.example/song"))
	assert.False(t, IsJam("♫ just some words"))
	assert.False(t, IsJam("regular post mentioning music.example"))
}

func TestFallbackPhoto(t *testing.T) {
	assert.Equal(t, "https://www.google.com/s2/favicons?domain=example.com",
		FallbackPhoto("https://example.com"))
	assert.Equal(t, "", FallbackPhoto("not a url"))
	assert.Equal(t, "", FallbackPhoto(""))
}

func TestForType(t *testing.T) {
	assert.IsType(t, &HTMLParser{}, ForType("html"))
	assert.IsType(t, &XMLParser{}, ForType("xml"))
}
