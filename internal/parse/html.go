package parse

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"willnorris.com/go/microformats"

	"reedy/reader/internal/models"
)

// noscript content never renders in a reader, strip it before parsing
var noscriptRe = regexp.MustCompile(`(?i)</?noscript[^>]*>`)

// HTMLParser normalizes microformats2-annotated HTML documents
// (h-feed semantics).
type HTMLParser struct{}

func (p *HTMLParser) Parse(raw string, pc Context) ([]*models.Entry, error) {
	raw = noscriptRe.ReplaceAllString(raw, "")

	base, err := url.Parse(pc.FeedURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed url %s: %w", pc.FeedURL, err)
	}
	data := microformats.Parse(strings.NewReader(raw), base)

	var entries []*models.Entry
	for _, hentry := range feedEntries(data.Items) {
		entry := interpretEntry(hentry, pc, true)
		if entry.UID == "" {
			// entries with no identity cannot be deduplicated
			continue
		}
		log.Debug().Str("permalink", entry.Permalink).Msg("built entry from h-entry")
		entries = append(entries, entry)
	}
	return entries, nil
}

// InterpretSingle parses a standalone page as one h-entry, as used for
// reply-context resolution. The source URL stands in for a missing
// permalink. Returns nil when the page carries no recognizable entry.
func InterpretSingle(raw, sourceURL string, now time.Time) *models.Entry {
	raw = noscriptRe.ReplaceAllString(raw, "")

	base, err := url.Parse(sourceURL)
	if err != nil {
		return nil
	}
	data := microformats.Parse(strings.NewReader(raw), base)

	hentry := firstEntry(data.Items)
	if hentry == nil {
		return nil
	}
	entry := interpretEntry(hentry, Context{FeedURL: sourceURL, Now: now}, false)
	if entry.Permalink == "" {
		entry.Permalink = sourceURL
	}
	if entry.UID == "" {
		entry.UID = entry.Permalink
	}
	return entry
}

// feedEntries locates the document's entry items: the children of the
// first h-feed when one exists, otherwise the top-level h-entry items.
func feedEntries(items []*microformats.Microformat) []*microformats.Microformat {
	for _, item := range items {
		if hasType(item, "h-feed") {
			var entries []*microformats.Microformat
			for _, child := range item.Children {
				if hasType(child, "h-entry") {
					entries = append(entries, child)
				}
			}
			return entries
		}
	}

	var entries []*microformats.Microformat
	for _, item := range items {
		if hasType(item, "h-entry") {
			entries = append(entries, item)
		}
	}
	return entries
}

// firstEntry finds the first h-entry anywhere in the parse tree.
func firstEntry(items []*microformats.Microformat) *microformats.Microformat {
	for _, item := range items {
		if hasType(item, "h-entry") {
			return item
		}
		if found := firstEntry(item.Children); found != nil {
			return found
		}
	}
	return nil
}

func hasType(mf *microformats.Microformat, typ string) bool {
	for _, t := range mf.Type {
		if t == typ {
			return true
		}
	}
	return false
}
