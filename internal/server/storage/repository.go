package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"reedy/reader/internal/database"
	"reedy/reader/internal/models"
)

// EntryRepository defines read access to stored entries for the API.
type EntryRepository interface {
	FetchEntries(ctx context.Context, limit int, since *time.Time, cursorTimestamp *time.Time, cursorID *int64) ([]models.Entry, error)
}

// sqlxRepository implements EntryRepository using sqlx.
type sqlxRepository struct {
	db *database.DB
}

// NewRepository creates a new repository instance.
func NewRepository(db *database.DB) EntryRepository {
	return &sqlxRepository{db: db}
}

// FetchEntries retrieves entries retrieved strictly after a point in
// time, paging with a (retrieved, id) keyset cursor.
func (r *sqlxRepository) FetchEntries(ctx context.Context, limit int, since *time.Time, cursorTimestamp *time.Time, cursorID *int64) ([]models.Entry, error) {
	var entries []models.Entry
	var query string
	var args []any

	const baseQuery = `SELECT * FROM entries `
	const orderBy = ` ORDER BY retrieved ASC, id ASC LIMIT ?`

	switch {
	case cursorTimestamp != nil && cursorID != nil:
		query = baseQuery + `WHERE (retrieved > ?) OR (retrieved = ? AND id > ?)` + orderBy
		args = append(args, cursorTimestamp.UTC(), cursorTimestamp.UTC(), *cursorID, limit)
	case since != nil:
		query = baseQuery + `WHERE retrieved > ?` + orderBy
		args = append(args, since.UTC(), limit)
	default:
		return nil, fmt.Errorf("either 'since' or cursor parameters must be provided")
	}

	err := r.db.SelectContext(ctx, &entries, query, args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return []models.Entry{}, nil
		}
		return nil, fmt.Errorf("database query failed: %w", err)
	}

	return entries, nil
}
