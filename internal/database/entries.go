package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"reedy/reader/internal/models"
)

// CountEntries returns the number of stored entries owned by a feed.
func (db *DB) CountEntries(ctx context.Context, feedID int64) (int, error) {
	var count int
	err := db.GetContext(ctx, &count,
		`SELECT COUNT(*) FROM entries WHERE feed_id = ?`, feedID)
	if err != nil {
		return 0, fmt.Errorf("failed to count entries for feed %d: %w", feedID, err)
	}
	return count, nil
}

// LatestEntryByUID returns the most recent entry with the given uid
// within a feed, ties broken by highest id. Returns nil when no such
// entry exists.
func (db *DB) LatestEntryByUID(ctx context.Context, feedID int64, uid string) (*models.Entry, error) {
	var entry models.Entry
	err := db.GetContext(ctx, &entry, `
		SELECT * FROM entries
		WHERE feed_id = ? AND uid = ?
		ORDER BY id DESC
		LIMIT 1`, feedID, uid)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up entry %q in feed %d: %w", uid, feedID, err)
	}
	return &entry, nil
}

// InsertEntry persists an entry and sets its generated id.
func (db *DB) InsertEntry(ctx context.Context, entry *models.Entry) error {
	res, err := db.ExecContext(ctx, `
		INSERT INTO entries (feed_id, uid, permalink, published, updated, retrieved,
		                     author_name, author_url, author_photo,
		                     title, content, content_cleaned, properties)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.FeedID, entry.UID, entry.Permalink,
		entry.Published, entry.Updated, entry.Retrieved,
		entry.AuthorName, entry.AuthorURL, entry.AuthorPhoto,
		entry.Title, entry.Content, entry.ContentCleaned, entry.Properties)
	if err != nil {
		return fmt.Errorf("failed to insert entry %q: %w", entry.UID, err)
	}
	entry.ID, err = res.LastInsertId()
	return err
}

// DeleteEntry removes a superseded entry along with any reply-context
// links it participates in.
func (db *DB) DeleteEntry(ctx context.Context, id int64) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM entry_reply_context WHERE entry_id = ? OR context_id = ?`, id, id); err != nil {
		return fmt.Errorf("failed to unlink reply context for entry %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", id, err)
	}
	return tx.Commit()
}

// FindEntryByPermalink returns the first entry whose permalink matches,
// optionally restricted to feeds of the given type. Returns nil when
// nothing matches.
func (db *DB) FindEntryByPermalink(ctx context.Context, permalink string, typeFilter models.FeedType) (*models.Entry, error) {
	var entry models.Entry
	var err error
	if typeFilter != "" {
		err = db.GetContext(ctx, &entry, `
			SELECT e.* FROM entries e
			JOIN feeds f ON f.id = e.feed_id
			WHERE e.permalink = ? AND f.type = ?
			ORDER BY e.id ASC
			LIMIT 1`, permalink, typeFilter)
	} else {
		err = db.GetContext(ctx, &entry, `
			SELECT * FROM entries
			WHERE permalink = ?
			ORDER BY id ASC
			LIMIT 1`, permalink)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find entry by permalink %s: %w", permalink, err)
	}
	return &entry, nil
}

// GetEntriesByIDs loads the given entries ordered by retrieved then
// published, both descending.
func (db *DB) GetEntriesByIDs(ctx context.Context, ids []int64) ([]models.Entry, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT * FROM entries
		WHERE id IN (?)
		ORDER BY retrieved DESC, published DESC`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build entry query: %w", err)
	}
	var entries []models.Entry
	if err := db.SelectContext(ctx, &entries, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	return entries, nil
}

// AddReplyContext links a context entry to the entry that replies to it.
// Linking the same pair twice is a no-op.
func (db *DB) AddReplyContext(ctx context.Context, entryID, contextID int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT OR IGNORE INTO entry_reply_context (entry_id, context_id)
		VALUES (?, ?)`, entryID, contextID)
	if err != nil {
		return fmt.Errorf("failed to link reply context %d -> %d: %w", entryID, contextID, err)
	}
	return nil
}

// ListReplyContext loads the context entries a given entry replies to.
func (db *DB) ListReplyContext(ctx context.Context, entryID int64) ([]models.Entry, error) {
	var entries []models.Entry
	err := db.SelectContext(ctx, &entries, `
		SELECT e.* FROM entries e
		JOIN entry_reply_context rc ON rc.context_id = e.id
		WHERE rc.entry_id = ?
		ORDER BY e.id ASC`, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reply context for entry %d: %w", entryID, err)
	}
	return entries, nil
}
