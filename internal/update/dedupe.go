package update

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"reedy/reader/internal/models"
)

type upsertOutcome int

const (
	outcomeUnchanged upsertOutcome = iota
	outcomeNew
	outcomeUpdated
)

// upsert reconciles one draft against the feed's stored entries.
// A draft with an unseen uid is inserted; a changed draft supersedes the
// old entry (inheriting its original retrieved timestamp, and published
// when the draft has none); an unchanged draft is discarded.
func (u *Updater) upsert(ctx context.Context, feed *models.Feed, draft *models.Entry, now time.Time) (upsertOutcome, error) {
	old, err := u.store.LatestEntryByUID(ctx, feed.ID, draft.UID)
	if err != nil {
		return outcomeUnchanged, err
	}

	switch {
	case old == nil:
		if !draft.Published.Valid {
			draft.Published = sql.NullTime{Time: now, Valid: true}
		}
		draft.OwnedBy(feed.ID)
		if err := u.store.InsertEntry(ctx, draft); err != nil {
			return outcomeUnchanged, err
		}
		return outcomeNew, nil

	case !isContentEqual(old, draft):
		if !draft.Published.Valid {
			draft.Published = old.Published
		}
		// the content changed, not when we first saw it
		draft.Retrieved = old.Retrieved
		draft.OwnedBy(feed.ID)
		if err := u.store.DeleteEntry(ctx, old.ID); err != nil {
			return outcomeUnchanged, fmt.Errorf("failed to supersede entry %d: %w", old.ID, err)
		}
		if err := u.store.InsertEntry(ctx, draft); err != nil {
			return outcomeUnchanged, err
		}
		return outcomeUpdated, nil

	default:
		return outcomeUnchanged, nil
	}
}

var (
	tagRe     = regexp.MustCompile(`</?\w+[^>]*?>`)
	commentRe = regexp.MustCompile(`<!--[^>]*?-->`)
)

// normalizeContent strips tags and comments before comparison. Some
// publishing tools re-render identical content with slightly different
// markup on every request; that churn must not register as an update.
func normalizeContent(content string) string {
	content = tagRe.ReplaceAllString(content, "")
	return commentRe.ReplaceAllString(content, "")
}

// isContentEqual decides whether a previously seen entry has actually
// changed. Title, author and structured properties compare exactly;
// content compares after markup normalization.
func isContentEqual(a, b *models.Entry) bool {
	return a.Title == b.Title &&
		a.AuthorName == b.AuthorName &&
		a.AuthorURL == b.AuthorURL &&
		a.AuthorPhoto == b.AuthorPhoto &&
		a.Properties.Equal(b.Properties) &&
		normalizeContent(a.Content) == normalizeContent(b.Content)
}
