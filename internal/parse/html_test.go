package parse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const hfeedDoc = `<!DOCTYPE html>
<html><body>
<div class="h-feed">
  <article class="h-entry">
    <h1 class="p-name">First Article</h1>
    <div class="e-content"><p>Long form body.</p></div>
    <a class="u-url" href="/posts/1">permalink</a>
    <time class="dt-published" datetime="2025-05-01T08:30:00-05:00">May 1</time>
    <div class="p-author h-card">
      <span class="p-name">Jane Author</span>
      <a class="u-url" href="https://example.com/"></a>
      <img class="u-photo" src="https://example.com/jane.jpg" alt="Jane">
    </div>
  </article>
  <article class="h-entry">
    <p class="p-name e-content">Just a short note with no separate title.</p>
    <a class="u-url" href="/posts/2">permalink</a>
    <time class="dt-published" datetime="2025-05-02">May 2</time>
  </article>
  <article class="h-entry">
    <div class="e-content">In reply below</div>
    <a class="u-url" href="/posts/3">permalink</a>
    <a class="u-in-reply-to" href="https://other.example/original">original</a>
  </article>
</div>
</body></html>`

func TestHTMLParserFeedEntries(t *testing.T) {
	now := time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC)
	entries, err := (&HTMLParser{}).Parse(hfeedDoc, Context{
		FeedURL: "https://example.com/",
		Origin:  "https://example.com",
		Now:     now,
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	first := entries[0]
	assert.Equal(t, "https://example.com/posts/1", first.Permalink)
	assert.Equal(t, "https://example.com/posts/1", first.UID, "uid falls back to url")
	assert.Equal(t, "First Article", first.Title)
	assert.Contains(t, first.Content, "Long form body.")
	assert.Equal(t, "Jane Author", first.AuthorName)
	assert.Equal(t, "https://example.com/", first.AuthorURL)
	assert.Equal(t, "https://example.com/jane.jpg", first.AuthorPhoto)

	// zoned timestamps normalize to UTC
	require.True(t, first.Published.Valid)
	assert.Equal(t, time.Date(2025, 5, 1, 13, 30, 0, 0, time.UTC), first.Published.Time)
}

func TestHTMLParserNoteDemotesTitle(t *testing.T) {
	entries, err := (&HTMLParser{}).Parse(hfeedDoc, Context{
		FeedURL: "https://example.com/",
		Origin:  "https://example.com",
		Now:     time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	note := entries[1]
	assert.Equal(t, "", note.Title)
	assert.Equal(t, "Just a short note with no separate title.", note.Content)

	// date-only published promotes to midnight UTC
	require.True(t, note.Published.Valid)
	assert.Equal(t, time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC), note.Published.Time)
}

func TestHTMLParserInReplyTo(t *testing.T) {
	entries, err := (&HTMLParser{}).Parse(hfeedDoc, Context{
		FeedURL: "https://example.com/",
		Origin:  "https://example.com",
		Now:     time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 3)

	reply := entries[2]
	assert.Equal(t, []string{"https://other.example/original"}, reply.Properties.InReplyTo)
}

func TestHTMLParserTopLevelEntriesWithoutFeed(t *testing.T) {
	doc := `<html><body>
	<article class="h-entry"><div class="e-content">standalone</div>
	  <a class="u-url" href="https://example.com/solo">x</a></article>
	</body></html>`

	entries, err := (&HTMLParser{}).Parse(doc, Context{
		FeedURL: "https://example.com/",
		Now:     time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "https://example.com/solo", entries[0].Permalink)
}

func TestHTMLParserSkipsEntriesWithoutIdentity(t *testing.T) {
	doc := `<html><body><div class="h-feed">
	<article class="h-entry"><div class="e-content">no url, no uid</div></article>
	</div></body></html>`

	entries, err := (&HTMLParser{}).Parse(doc, Context{
		FeedURL: "https://example.com/",
		Now:     time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInterpretSingle(t *testing.T) {
	doc := `<html><body>
	<div class="h-entry">
	  <div class="e-content">The post being replied to.</div>
	  <div class="p-author h-card"><span class="p-name">Origin Author</span></div>
	</div>
	</body></html>`

	now := time.Now().UTC()
	entry := InterpretSingle(doc, "https://other.example/original", now)
	require.NotNil(t, entry)

	assert.Equal(t, "https://other.example/original", entry.Permalink,
		"source url stands in for a missing permalink")
	assert.Equal(t, "Origin Author", entry.AuthorName)
	assert.Equal(t, "", entry.AuthorPhoto, "unowned entries get no favicon fallback")
	assert.False(t, entry.FeedID.Valid)
}

func TestInterpretSingleNoEntry(t *testing.T) {
	assert.Nil(t, InterpretSingle("<html><body><p>plain page</p></body></html>",
		"https://other.example/page", time.Now().UTC()))
}

func TestJamDetection(t *testing.T) {
	doc := `<html><body><div class="h-feed">
	<article class="h-entry">
	  <p class="p-name e-content">&#9835; listen.example/track/42</p>
	  <a class="u-url" href="https://example.com/jam">x</a>
	</article>
	</div></body></html>`

	entries, err := (&HTMLParser{}).Parse(doc, Context{
		FeedURL: "https://example.com/",
		Now:     time.Now().UTC(),
	})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Properties.Jam)
}
