package parse

import (
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"willnorris.com/go/microformats"

	"reedy/reader/internal/models"
)

// interpretEntry converts one h-entry microformat into an entry draft.
// owned controls feed-derived fallbacks (author photo); reply-context
// entries synthesized from one-off fetches are not owned. The UID may
// come back empty; callers decide whether to drop or backfill it.
func interpretEntry(mf *microformats.Microformat, pc Context, owned bool) *models.Entry {
	permalink := propString(mf, "url")
	uid := propString(mf, "uid")
	if uid == "" {
		uid = permalink
	}

	title := propString(mf, "name")
	content, contentPlain := propContent(mf, "content")
	if content == "" {
		// notes carry their text in the name property
		content = title
		contentPlain = title
		title = ""
	} else if title != "" {
		// a name that just repeats the content marks a title-less note
		trimmed := strings.TrimRight(strings.TrimRight(title, "."), "…")
		if strings.HasPrefix(contentPlain, trimmed) || strings.HasPrefix(content, trimmed) {
			title = ""
		}
	}

	published := parseDatetime(propString(mf, "published"))
	updated := parseDatetime(propString(mf, "updated"))

	retrieved := pc.Now
	if pc.Backfill && published.Valid && published.Time.Before(retrieved) {
		retrieved = published.Time
	}

	authorName, authorURL, authorPhoto := propAuthor(mf)
	if authorPhoto == "" && owned {
		authorPhoto = FallbackPhoto(pc.Origin)
	}

	entry := &models.Entry{
		UID:            uid,
		Permalink:      permalink,
		Published:      published,
		Updated:        updated,
		Retrieved:      retrieved,
		Title:          title,
		Content:        content,
		ContentCleaned: Clean(content),
		AuthorName:     authorName,
		AuthorURL:      authorURL,
		AuthorPhoto:    authorPhoto,
	}

	// reduce the structured citation objects to plain target URLs
	entry.Properties.InReplyTo = propURLs(mf, "in-reply-to")
	entry.Properties.LikeOf = propURLs(mf, "like-of")
	entry.Properties.RepostOf = propURLs(mf, "repost-of")

	entry.Properties.Syndication = propStrings(mf, "syndication")
	entry.Properties.Location = propRaw(mf, "location")

	if contentPlain == "" {
		contentPlain = entry.ContentCleaned
	}
	entry.Properties.Jam = IsJam(contentPlain)

	return entry
}

// datetimeLayouts accepted for dt-published / dt-updated values. Values
// carrying a zone are normalized to UTC; date-only values are promoted
// to midnight.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parseDatetime(value string) sql.NullTime {
	if value == "" {
		return sql.NullTime{}
	}
	for _, layout := range datetimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return sql.NullTime{Time: t.UTC(), Valid: true}
		}
	}
	return sql.NullTime{}
}

// propString returns the first plain-string value of a property.
func propString(mf *microformats.Microformat, name string) string {
	for _, value := range mf.Properties[name] {
		switch v := value.(type) {
		case string:
			return v
		case *microformats.Microformat:
			if v.Value != "" {
				return v.Value
			}
		case map[string]string:
			// u-photo with alt text parses as {value, alt}
			if v["value"] != "" {
				return v["value"]
			}
		}
	}
	return ""
}

// propStrings returns all plain-string values of a property.
func propStrings(mf *microformats.Microformat, name string) []string {
	var out []string
	for _, value := range mf.Properties[name] {
		if s, ok := value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

// propContent returns the html and plain-text renderings of an
// e-property.
func propContent(mf *microformats.Microformat, name string) (html, plain string) {
	for _, value := range mf.Properties[name] {
		if m, ok := value.(map[string]string); ok {
			return m["html"], m["value"]
		}
		if s, ok := value.(string); ok {
			return s, s
		}
	}
	return "", ""
}

// propURLs reduces citation values to target URLs: either bare strings
// or nested microformats carrying a url property.
func propURLs(mf *microformats.Microformat, name string) []string {
	var out []string
	for _, value := range mf.Properties[name] {
		switch v := value.(type) {
		case string:
			out = append(out, v)
		case *microformats.Microformat:
			if u := propString(v, "url"); u != "" {
				out = append(out, u)
			}
		}
	}
	return out
}

// propRaw copies the first value of a property through verbatim as JSON.
func propRaw(mf *microformats.Microformat, name string) json.RawMessage {
	values := mf.Properties[name]
	if len(values) == 0 {
		return nil
	}
	b, err := json.Marshal(values[0])
	if err != nil {
		return nil
	}
	return b
}

// propAuthor resolves the author h-card (or bare string) of an entry.
func propAuthor(mf *microformats.Microformat) (name, url, photo string) {
	for _, value := range mf.Properties["author"] {
		switch v := value.(type) {
		case string:
			return v, "", ""
		case *microformats.Microformat:
			return propString(v, "name"), propString(v, "url"), propString(v, "photo")
		}
	}
	return "", "", ""
}
