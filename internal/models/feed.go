package models

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// FeedType identifies the source format of a feed.
type FeedType string

const (
	// FeedTypeXML covers RSS, Atom and RDF syndication feeds.
	FeedTypeXML FeedType = "xml"
	// FeedTypeHTML covers microformats2-annotated HTML feeds (h-feed).
	FeedTypeHTML FeedType = "html"
)

// Feed represents a row in the 'feeds' table: one subscribed source.
//
// Origin is the human-facing URL of the site; FeedURL is the
// machine-fetchable document, which may differ and may change over time.
type Feed struct {
	ID      int64    `db:"id"`
	Name    string   `db:"name"`
	Origin  string   `db:"origin"`
	FeedURL string   `db:"feed_url"`
	Type    FeedType `db:"type"`
	Etag    string   `db:"etag"`

	// LastUpdated advances only when a check produced new or changed
	// entries; LastChecked is touched on every polling attempt.
	LastUpdated  sql.NullTime `db:"last_updated"`
	LastChecked  sql.NullTime `db:"last_checked"`
	FailureCount int          `db:"failure_count"`
	LastResponse string       `db:"last_response"`

	PushHub      string       `db:"push_hub"`
	PushTopic    string       `db:"push_topic"`
	PushVerified bool         `db:"push_verified"`
	PushExpiry   sql.NullTime `db:"push_expiry"`
	PushSecret   string       `db:"push_secret"`
	LastPinged   sql.NullTime `db:"last_pinged"`

	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// NewFeed creates a new Feed with default values
func NewFeed(name, origin, feedURL string, typ FeedType) *Feed {
	now := time.Now().UTC()
	return &Feed{
		Name:      name,
		Origin:    origin,
		FeedURL:   feedURL,
		Type:      typ,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GetOrCreatePushSecret returns the shared secret used for hub
// subscriptions, generating one on first use.
func (f *Feed) GetOrCreatePushSecret() string {
	if f.PushSecret == "" {
		f.PushSecret = uuid.NewString()
	}
	return f.PushSecret
}
