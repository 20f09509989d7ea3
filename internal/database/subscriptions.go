package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"reedy/reader/internal/models"
)

// ListSubscriptions returns all subscriptions bound to a feed.
func (db *DB) ListSubscriptions(ctx context.Context, feedID int64) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := db.SelectContext(ctx, &subs,
		`SELECT * FROM subscriptions WHERE feed_id = ? ORDER BY id ASC`, feedID)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions for feed %d: %w", feedID, err)
	}
	return subs, nil
}

// InsertSubscription persists a new subscription and sets its id.
func (db *DB) InsertSubscription(ctx context.Context, sub *models.Subscription) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO subscriptions (user_id, feed_id, name, tags, exclude)
		VALUES (?, ?, ?, ?, ?)`,
		sub.UserID, sub.FeedID, sub.Name, sub.Tags, sub.Exclude)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	sub.ID, err = res.LastInsertId()
	return err
}

// GetOrCreateUser looks a user up by domain, creating the record when it
// does not exist yet.
func (db *DB) GetOrCreateUser(ctx context.Context, domain, url string) (*models.User, error) {
	var user models.User
	err := db.GetContext(ctx, &user, `SELECT * FROM users WHERE domain = ?`, domain)
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to look up user %s: %w", domain, err)
	}

	res, err := db.ExecContext(ctx,
		`INSERT INTO users (domain, url) VALUES (?, ?)`, domain, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create user %s: %w", domain, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return &models.User{ID: id, Domain: domain, URL: url}, nil
}
