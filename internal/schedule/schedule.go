// Package schedule decides which feeds are due for a check and fans the
// resulting jobs out to a worker pool. The scheduler itself never
// touches the network.
package schedule

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"reedy/reader/internal/config"
	"reedy/reader/internal/database"
	"reedy/reader/internal/models"
	"reedy/reader/internal/update"
)

// Dispatcher accepts feed-update jobs for asynchronous execution.
type Dispatcher interface {
	Enqueue(job update.Job)
}

// ShouldUpdate reports whether a feed is due for a polling check.
//
// Never-checked feeds are always due; feeds nobody subscribes to never
// are. The effective interval grows with consecutive failures, and
// verified push feeds poll no more often than the push grace interval
// since the hub is expected to notify actively.
func ShouldUpdate(feed *models.Feed, subscribers int, now time.Time) bool {
	if !feed.LastChecked.Valid {
		return true
	}
	if subscribers == 0 {
		return false
	}

	var interval time.Duration
	switch {
	case feed.FailureCount > 8:
		interval = 24 * time.Hour
	case feed.FailureCount > 4:
		interval = 8 * time.Hour
	case feed.FailureCount > 2:
		interval = 4 * time.Hour
	default:
		interval = config.BaseUpdateInterval
	}

	if feed.PushVerified && interval < config.PushGraceInterval {
		interval = config.PushGraceInterval
	}

	return now.Sub(feed.LastChecked.Time) > interval
}

// Scheduler periodically scans all feeds and enqueues jobs for the due
// ones.
type Scheduler struct {
	store      *database.DB
	dispatcher Dispatcher
	cron       *cron.Cron
	ctx        context.Context
}

// NewScheduler creates a scheduler bound to a dispatcher.
func NewScheduler(ctx context.Context, store *database.DB, dispatcher Dispatcher) *Scheduler {
	return &Scheduler{
		store:      store,
		dispatcher: dispatcher,
		cron:       cron.New(cron.WithLocation(time.UTC)),
		ctx:        ctx,
	}
}

// Start begins ticking every five minutes.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc("*/5 * * * *", s.Tick); err != nil {
		return err
	}
	s.cron.Start()
	log.Info().Dur("interval", config.TickInterval).Msg("Scheduler started")
	return nil
}

// Stop halts the tick and blocks until an in-flight Tick has returned,
// so the dispatcher behind it can be shut down afterwards.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

// Tick evaluates every feed once and enqueues jobs for those due.
func (s *Scheduler) Tick() {
	now := time.Now().UTC()
	log.Info().Time("now", now).Msg("Tick")

	feeds, err := s.store.ListFeedsWithSubscribers(s.ctx)
	if err != nil {
		log.Error().Err(err).Msg("Tick failed to list feeds")
		return
	}

	due := 0
	for i := range feeds {
		feed := &feeds[i]
		log.Debug().
			Int64("feed_id", feed.ID).
			Time("last_checked", feed.LastChecked.Time).
			Int("subscribers", feed.Subscribers).
			Msg("Evaluating feed")

		if ShouldUpdate(&feed.Feed, feed.Subscribers, now) {
			s.dispatcher.Enqueue(update.Job{FeedID: feed.ID, Polling: true})
			due++
		}
	}

	log.Info().Int("feeds", len(feeds)).Int("due", due).Msg("Tick complete")
}
