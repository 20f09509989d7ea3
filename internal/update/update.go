// Package update runs the per-feed synchronization pipeline: fetch,
// parse, dedupe, reply-context resolution and notification bookkeeping.
package update

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"reedy/reader/internal/database"
	"reedy/reader/internal/fetch"
	"reedy/reader/internal/notify"
	"reedy/reader/internal/parse"
	"reedy/reader/internal/push"
)

// Job is one unit of work for a single feed. Content may carry a
// push-delivered payload, bypassing the fetch; Polling marks
// scheduler-initiated checks, which own the last_checked timestamp and
// the push subscription lifecycle.
type Job struct {
	FeedID      int64
	Content     string
	ContentType string
	Polling     bool
}

// Updater sequences the pipeline for one feed at a time.
type Updater struct {
	store    *database.DB
	fetcher  *fetch.Client
	pusher   *push.Manager
	notifier *notify.Notifier

	tweetProxyKey    string
	tweetProxySecret string
}

// NewUpdater wires the pipeline stages together. pusher and notifier
// may be nil, disabling the corresponding stage.
func NewUpdater(store *database.DB, fetcher *fetch.Client, pusher *push.Manager, notifier *notify.Notifier) *Updater {
	return &Updater{
		store:    store,
		fetcher:  fetcher,
		pusher:   pusher,
		notifier: notifier,
	}
}

// WithTweetProxy configures the short-post proxy credentials used for
// reply-context fetches from social silos.
func (u *Updater) WithTweetProxy(key, secret string) *Updater {
	u.tweetProxyKey = key
	u.tweetProxySecret = secret
	return u
}

type replyItem struct {
	entryID int64
	target  string
}

// Run executes the pipeline for one job. Failures are recorded on the
// feed and logged; they never propagate past this boundary. The
// finalization step (timestamps, notification) runs regardless of which
// stage failed.
func (u *Updater) Run(ctx context.Context, job Job) {
	feed, err := u.store.GetFeed(ctx, job.FeedID)
	if err != nil {
		log.Error().Err(err).Int64("feed_id", job.FeedID).Msg("Cannot load feed for update")
		return
	}

	logger := log.With().Int64("feed_id", feed.ID).Str("url", feed.FeedURL).Logger()
	logger.Info().Bool("polling", job.Polling).Msg("Updating feed")

	now := time.Now().UTC()

	var newIDs, updatedIDs []int64

	defer func() {
		if job.Polling {
			feed.LastChecked = sql.NullTime{Time: now, Valid: true}
		}
		if len(newIDs) > 0 || len(updatedIDs) > 0 {
			feed.LastUpdated = sql.NullTime{Time: now, Valid: true}
		}
		if err := u.store.SaveFeed(ctx, feed); err != nil {
			logger.Error().Err(err).Msg("Failed to save feed state")
		}
		if len(newIDs) > 0 && u.notifier != nil {
			u.notifier.FeedUpdated(ctx, feed, newIDs)
		}
	}()

	content := job.Content
	if content != "" && !fetch.CompatibleContentType(feed.Type, job.ContentType) {
		logger.Warn().Str("content_type", job.ContentType).Msg("Provided content has incompatible type, refetching")
		content = ""
	}

	if content == "" {
		res, err := u.fetcher.Feed(ctx, feed.FeedURL, feed.Type, feed.Etag)
		if err != nil {
			feed.FailureCount++
			feed.LastResponse = fmt.Sprintf("error while retrieving: %v", err)
			logger.Warn().Err(err).Int("failure_count", feed.FailureCount).Msg("Feed fetch failed")
			return
		}

		feed.FailureCount = 0

		if res.StatusCode == http.StatusNotModified {
			feed.LastResponse = "not modified"
			logger.Debug().Msg("Feed unchanged since last check")
			return
		}

		feed.LastResponse = fmt.Sprintf("success: %d", res.StatusCode)
		if res.Etag != "" {
			feed.Etag = res.Etag
		}

		if job.Polling && u.pusher != nil {
			u.pusher.Check(ctx, feed, res)
		}
		content = res.Body
	} else {
		logger.Info().Int("size", len(content)).Msg("Using provided content")
	}

	entryCount, err := u.store.CountEntries(ctx, feed.ID)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to count entries")
		return
	}

	drafts, err := parse.ForType(feed.Type).Parse(content, parse.Context{
		FeedURL:  feed.FeedURL,
		Origin:   feed.Origin,
		Backfill: entryCount == 0,
		Now:      now,
	})
	if err != nil {
		logger.Error().Err(err).Msg("Feed parse failed")
		return
	}

	var replies []replyItem
	for _, draft := range drafts {
		inReplyTo := draft.Properties.InReplyTo

		outcome, err := u.upsert(ctx, feed, draft, now)
		if err != nil {
			logger.Error().Err(err).Str("uid", draft.UID).Msg("Upsert failed")
			continue
		}

		switch outcome {
		case outcomeNew:
			newIDs = append(newIDs, draft.ID)
		case outcomeUpdated:
			updatedIDs = append(updatedIDs, draft.ID)
		default:
			logger.Debug().Str("permalink", draft.Permalink).Msg("Skipping previously seen entry")
			continue
		}

		for _, target := range inReplyTo {
			replies = append(replies, replyItem{entryID: draft.ID, target: target})
		}
	}

	for _, r := range replies {
		u.resolveReplyContext(ctx, logger, r.entryID, r.target, now)
	}

	logger.Info().
		Int("new", len(newIDs)).
		Int("updated", len(updatedIDs)).
		Int("drafts", len(drafts)).
		Msg("Feed update finished")
}
