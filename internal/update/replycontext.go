package update

import (
	"context"
	"net/url"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"reedy/reader/internal/models"
	"reedy/reader/internal/parse"
)

var tweetRe = regexp.MustCompile(`^https?://(?:www\.|mobile\.)?twitter\.com/(\w+)/status(?:es)?/(\w+)`)

// resolveReplyContext links one in-reply-to target to a context entry:
// a locally stored entry with that permalink when one exists, otherwise
// an entry synthesized from a one-off remote fetch and stored without a
// feed association. Failures are non-fatal and not retried within the
// job.
func (u *Updater) resolveReplyContext(ctx context.Context, logger zerolog.Logger, entryID int64, target string, now time.Time) {
	ctxEntry, err := u.store.FindEntryByPermalink(ctx, target, models.FeedTypeHTML)
	if err != nil {
		logger.Error().Err(err).Str("target", target).Msg("Reply context lookup failed")
		return
	}

	if ctxEntry == nil {
		logger.Info().Str("target", target).Msg("Fetching in-reply-to url")

		res, err := u.fetcher.Get(ctx, u.proxyURL(target))
		if err != nil {
			logger.Debug().Err(err).Str("target", target).Msg("Reply context fetch failed")
			return
		}

		entry := parse.InterpretSingle(res.Body, target, now)
		if entry == nil {
			logger.Debug().Str("target", target).Msg("No h-entry found at reply target")
			return
		}
		if err := u.store.InsertEntry(ctx, entry); err != nil {
			logger.Error().Err(err).Str("target", target).Msg("Failed to store reply context entry")
			return
		}
		ctxEntry = entry
	}

	if err := u.store.AddReplyContext(ctx, entryID, ctxEntry.ID); err != nil {
		logger.Error().Err(err).Int64("entry_id", entryID).Msg("Failed to link reply context")
	}
}

// proxyURL rewrites short-form social post URLs through the configured
// proxy, which serves an mf2-annotated rendering. Without credentials
// the target is fetched directly.
func (u *Updater) proxyURL(target string) string {
	if u.tweetProxyKey == "" || u.tweetProxySecret == "" {
		return target
	}
	m := tweetRe.FindStringSubmatch(target)
	if m == nil {
		return target
	}
	q := url.Values{
		"format":              {"html"},
		"access_token_key":    {u.tweetProxyKey},
		"access_token_secret": {u.tweetProxySecret},
	}
	return "https://twitter-activitystreams.appspot.com/@me/@all/@app/" + m[2] + "?" + q.Encode()
}
