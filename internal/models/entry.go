package models

import (
	"bytes"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Properties holds the optional structured fields an entry may carry
// beyond the core columns. It is serialized into a single JSON column.
type Properties struct {
	InReplyTo   []string        `json:"in-reply-to,omitempty"`
	LikeOf      []string        `json:"like-of,omitempty"`
	RepostOf    []string        `json:"repost-of,omitempty"`
	Syndication []string        `json:"syndication,omitempty"`
	Location    json.RawMessage `json:"location,omitempty"`
	Jam         bool            `json:"jam,omitempty"`
}

// IsZero reports whether no property is set.
func (p Properties) IsZero() bool {
	return len(p.InReplyTo) == 0 && len(p.LikeOf) == 0 && len(p.RepostOf) == 0 &&
		len(p.Syndication) == 0 && len(p.Location) == 0 && !p.Jam
}

// Equal compares two property sets field by field. Location is compared
// as compacted JSON since it is carried verbatim from the source.
func (p Properties) Equal(other Properties) bool {
	return equalStrings(p.InReplyTo, other.InReplyTo) &&
		equalStrings(p.LikeOf, other.LikeOf) &&
		equalStrings(p.RepostOf, other.RepostOf) &&
		equalStrings(p.Syndication, other.Syndication) &&
		equalJSON(p.Location, other.Location) &&
		p.Jam == other.Jam
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalJSON(a, b json.RawMessage) bool {
	var ca, cb bytes.Buffer
	if len(a) > 0 {
		if err := json.Compact(&ca, a); err != nil {
			ca.Reset()
			ca.Write(a)
		}
	}
	if len(b) > 0 {
		if err := json.Compact(&cb, b); err != nil {
			cb.Reset()
			cb.Write(b)
		}
	}
	return bytes.Equal(ca.Bytes(), cb.Bytes())
}

// Value implements driver.Valuer so Properties round-trips through a
// TEXT column. An empty set stores NULL.
func (p Properties) Value() (driver.Value, error) {
	if p.IsZero() {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner.
func (p *Properties) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*p = Properties{}
		return nil
	case []byte:
		return json.Unmarshal(v, p)
	case string:
		return json.Unmarshal([]byte(v), p)
	default:
		return fmt.Errorf("cannot scan %T into Properties", src)
	}
}

// Entry represents a row in the 'entries' table: one normalized post.
//
// FeedID is nullable: reply-context entries synthesized from a one-off
// remote fetch have no owning feed.
type Entry struct {
	ID        int64         `db:"id"`
	FeedID    sql.NullInt64 `db:"feed_id"`
	UID       string        `db:"uid"`
	Permalink string        `db:"permalink"`
	Published sql.NullTime  `db:"published"`
	Updated   sql.NullTime  `db:"updated"`
	Retrieved time.Time     `db:"retrieved"`

	AuthorName  string `db:"author_name"`
	AuthorURL   string `db:"author_url"`
	AuthorPhoto string `db:"author_photo"`

	Title          string     `db:"title"`
	Content        string     `db:"content"`
	ContentCleaned string     `db:"content_cleaned"`
	Properties     Properties `db:"properties"`
}

// OwnedBy associates the entry with a feed.
func (e *Entry) OwnedBy(feedID int64) {
	e.FeedID = sql.NullInt64{Int64: feedID, Valid: true}
}
