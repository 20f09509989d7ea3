// Package parse converts raw feed documents into normalized entry
// drafts. Two implementations share the Parser contract: one for
// syndication XML, one for microformats2-annotated HTML.
package parse

import (
	"html"
	"net/url"
	"regexp"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"reedy/reader/internal/models"
)

// Context carries the per-job inputs a parser needs beyond the raw
// document. Backfill is true on the first-ever ingestion of a feed, in
// which case historical entries are dated by their own timestamps.
type Context struct {
	FeedURL  string
	Origin   string
	Backfill bool
	Now      time.Time
}

// Parser turns one raw decoded document into an ordered list of entry
// drafts. Drafts have no identity yet; the dedup engine promotes them.
type Parser interface {
	Parse(raw string, pc Context) ([]*models.Entry, error)
}

// ForType returns the parser for a feed format.
func ForType(t models.FeedType) Parser {
	if t == models.FeedTypeHTML {
		return &HTMLParser{}
	}
	return &XMLParser{}
}

var stripPolicy = bluemonday.StrictPolicy()

// Clean returns a plain-text rendering of HTML content, with markup
// stripped and entities decoded.
func Clean(content string) string {
	if content == "" {
		return ""
	}
	return html.UnescapeString(stripPolicy.Sanitize(content))
}

// jamRe recognizes short "jam" posts: a leading music-note glyph
// followed by a bare domain.
var jamRe = regexp.MustCompile(`^\s*\x{266B} (?:https?://)?[a-z0-9._-]+\.[a-z]{2,9}(?:/\S*)?`)

// IsJam reports whether a plain-text content rendering looks like a jam.
func IsJam(plain string) bool {
	return jamRe.MatchString(plain)
}

// FallbackPhoto returns a favicon-service URL for the feed's origin
// domain, used when no author photo is available.
func FallbackPhoto(origin string) string {
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return ""
	}
	return "https://www.google.com/s2/favicons?domain=" + u.Host
}
