package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reedy/reader/internal/models"
)

// FeedWithSubscribers is a Feed joined with its current subscriber count,
// as consumed by the scheduler.
type FeedWithSubscribers struct {
	models.Feed
	Subscribers int `db:"subscribers"`
}

// GetFeed loads a single feed by id.
func (db *DB) GetFeed(ctx context.Context, id int64) (*models.Feed, error) {
	var feed models.Feed
	err := db.GetContext(ctx, &feed, `SELECT * FROM feeds WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load feed %d: %w", id, err)
	}
	return &feed, nil
}

// ListFeedsWithSubscribers returns every feed together with its
// subscription count, oldest-checked first.
func (db *DB) ListFeedsWithSubscribers(ctx context.Context) ([]FeedWithSubscribers, error) {
	var feeds []FeedWithSubscribers
	err := db.SelectContext(ctx, &feeds, `
		SELECT f.*,
		       (SELECT COUNT(*) FROM subscriptions s WHERE s.feed_id = f.id) AS subscribers
		FROM feeds f
		ORDER BY f.last_checked ASC, f.id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list feeds: %w", err)
	}
	return feeds, nil
}

// InsertFeed inserts a new feed and sets its generated id.
func (db *DB) InsertFeed(ctx context.Context, feed *models.Feed) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO feeds (name, origin, feed_url, type, etag, failure_count, last_response,
		                   push_hub, push_topic, push_verified, push_secret, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		feed.Name, feed.Origin, feed.FeedURL, feed.Type, feed.Etag,
		feed.FailureCount, feed.LastResponse,
		feed.PushHub, feed.PushTopic, feed.PushVerified, feed.PushSecret,
		feed.CreatedAt, feed.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert feed %s: %w", feed.FeedURL, err)
	}
	feed.ID, err = res.LastInsertId()
	return err
}

// SaveFeed persists every mutable column of an existing feed.
func (db *DB) SaveFeed(ctx context.Context, feed *models.Feed) error {
	feed.UpdatedAt = time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		UPDATE feeds
		SET name = ?, origin = ?, feed_url = ?, type = ?, etag = ?,
		    last_updated = ?, last_checked = ?, failure_count = ?, last_response = ?,
		    push_hub = ?, push_topic = ?, push_verified = ?, push_expiry = ?,
		    push_secret = ?, last_pinged = ?, updated_at = ?
		WHERE id = ?`,
		feed.Name, feed.Origin, feed.FeedURL, feed.Type, feed.Etag,
		feed.LastUpdated, feed.LastChecked, feed.FailureCount, feed.LastResponse,
		feed.PushHub, feed.PushTopic, feed.PushVerified, feed.PushExpiry,
		feed.PushSecret, feed.LastPinged, feed.UpdatedAt,
		feed.ID)
	if err != nil {
		return fmt.Errorf("failed to save feed %d: %w", feed.ID, err)
	}
	return nil
}

// GetFeedByURL loads a feed by its fetch URL, or nil when unknown.
func (db *DB) GetFeedByURL(ctx context.Context, feedURL string) (*models.Feed, error) {
	var feed models.Feed
	err := db.GetContext(ctx, &feed, `SELECT * FROM feeds WHERE feed_url = ?`, feedURL)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load feed by url %s: %w", feedURL, err)
	}
	return &feed, nil
}
