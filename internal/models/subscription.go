package models

import "encoding/json"

// Subscription binds a User to a Feed. Name and Tags are the user's own
// labels for the feed; Exclude keeps the subscription's updates out of
// the user-wide notification channel.
type Subscription struct {
	ID      int64  `db:"id"`
	UserID  int64  `db:"user_id"`
	FeedID  int64  `db:"feed_id"`
	Name    string `db:"name"`
	Tags    string `db:"tags"`
	Exclude bool   `db:"exclude"`
}

// User represents a row in the 'users' table. Account management lives
// outside this service; users are consumed read-only here.
type User struct {
	ID       int64           `db:"id"`
	URL      string          `db:"url"`
	Domain   string          `db:"domain"`
	Settings json.RawMessage `db:"settings"`
}
