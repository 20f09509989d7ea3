package schedule

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"reedy/reader/internal/models"
)

func feedCheckedAgo(ago time.Duration, now time.Time) *models.Feed {
	return &models.Feed{
		LastChecked: sql.NullTime{Time: now.Add(-ago), Valid: true},
	}
}

func TestShouldUpdateNeverChecked(t *testing.T) {
	now := time.Now().UTC()
	feed := &models.Feed{}

	// Due even with zero subscribers: a fresh feed gets one initial pull.
	assert.True(t, ShouldUpdate(feed, 0, now))
	assert.True(t, ShouldUpdate(feed, 3, now))
}

func TestShouldUpdateNoSubscribers(t *testing.T) {
	now := time.Now().UTC()
	feed := feedCheckedAgo(48*time.Hour, now)

	assert.False(t, ShouldUpdate(feed, 0, now))
	assert.True(t, ShouldUpdate(feed, 1, now))
}

func TestShouldUpdateBaseInterval(t *testing.T) {
	now := time.Now().UTC()

	assert.False(t, ShouldUpdate(feedCheckedAgo(30*time.Minute, now), 1, now))
	assert.False(t, ShouldUpdate(feedCheckedAgo(time.Hour, now), 1, now))
	assert.True(t, ShouldUpdate(feedCheckedAgo(61*time.Minute, now), 1, now))
}

func TestShouldUpdateFailureBackoff(t *testing.T) {
	now := time.Now().UTC()

	cases := []struct {
		name     string
		failures int
		ago      time.Duration
		want     bool
	}{
		{"three failures within window", 3, 3 * time.Hour, false},
		{"three failures past window", 3, 5 * time.Hour, true},
		{"five failures within window", 5, 7 * time.Hour, false},
		{"five failures past window", 5, 9 * time.Hour, true},
		{"nine failures within window", 9, 23 * time.Hour, false},
		{"nine failures past window", 9, 25 * time.Hour, true},
		{"two failures use base interval", 2, 2 * time.Hour, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			feed := feedCheckedAgo(tc.ago, now)
			feed.FailureCount = tc.failures
			assert.Equal(t, tc.want, ShouldUpdate(feed, 1, now))
		})
	}
}

func TestShouldUpdatePushVerifiedGrace(t *testing.T) {
	now := time.Now().UTC()

	feed := feedCheckedAgo(2*time.Hour, now)
	feed.PushVerified = true
	assert.False(t, ShouldUpdate(feed, 1, now),
		"verified push feed polls no more often than the grace interval")

	feed = feedCheckedAgo(25*time.Hour, now)
	feed.PushVerified = true
	assert.True(t, ShouldUpdate(feed, 1, now))

	// Heavy failure backoff already exceeds the grace interval; push
	// verification does not shorten it.
	feed = feedCheckedAgo(25*time.Hour, now)
	feed.FailureCount = 9
	feed.PushVerified = true
	assert.True(t, ShouldUpdate(feed, 1, now))
}
