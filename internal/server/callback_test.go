package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reedy/reader/internal/database"
	"reedy/reader/internal/models"
	"reedy/reader/internal/update"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

// recordingDispatcher collects enqueued jobs.
type recordingDispatcher struct {
	jobs []update.Job
}

func (d *recordingDispatcher) Enqueue(job update.Job) {
	d.jobs = append(d.jobs, job)
}

func seedPushFeed(t *testing.T, db *database.DB) *models.Feed {
	t.Helper()
	feed := models.NewFeed("Test", "https://example.com", "https://example.com/feed.xml", models.FeedTypeXML)
	feed.PushHub = "https://hub.example/"
	feed.PushTopic = "https://example.com/feed.xml"
	feed.PushSecret = "s3cret"
	require.NoError(t, db.InsertFeed(context.Background(), feed))
	return feed
}

func callbackMux(h *CallbackHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_notify/{feed}", h.Verify)
	mux.HandleFunc("POST /_notify/{feed}", h.Notify)
	return mux
}

func TestVerifySubscribe(t *testing.T) {
	db := newTestDB(t)
	feed := seedPushFeed(t, db)
	mux := callbackMux(NewCallbackHandler(db, &recordingDispatcher{}))

	target := fmt.Sprintf("/_notify/%d?hub.mode=subscribe&hub.topic=%s&hub.challenge=abc123&hub.lease_seconds=86400",
		feed.ID, "https%3A%2F%2Fexample.com%2Ffeed.xml")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "abc123", rec.Body.String(), "challenge echoed verbatim")

	stored, err := db.GetFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	assert.True(t, stored.PushVerified)
	require.True(t, stored.PushExpiry.Valid)
	assert.WithinDuration(t, time.Now().UTC().Add(24*time.Hour), stored.PushExpiry.Time, time.Minute)
}

func TestVerifyUnsubscribeEchoesWithoutMarking(t *testing.T) {
	db := newTestDB(t)
	feed := seedPushFeed(t, db)
	mux := callbackMux(NewCallbackHandler(db, &recordingDispatcher{}))

	target := fmt.Sprintf("/_notify/%d?hub.mode=unsubscribe&hub.challenge=xyz", feed.ID)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "xyz", rec.Body.String())

	stored, err := db.GetFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	assert.False(t, stored.PushVerified)
}

func TestVerifyRejectsTopicMismatch(t *testing.T) {
	db := newTestDB(t)
	feed := seedPushFeed(t, db)
	mux := callbackMux(NewCallbackHandler(db, &recordingDispatcher{}))

	target := fmt.Sprintf("/_notify/%d?hub.mode=subscribe&hub.topic=https%%3A%%2F%%2Fattacker.example%%2F&hub.challenge=abc", feed.ID)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	stored, err := db.GetFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	assert.False(t, stored.PushVerified)
}

func TestVerifyUnknownFeed(t *testing.T) {
	db := newTestDB(t)
	mux := callbackMux(NewCallbackHandler(db, &recordingDispatcher{}))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/_notify/999?hub.mode=subscribe&hub.challenge=abc", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func sign(secret, body string) string {
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write([]byte(body))
	return "sha1=" + hex.EncodeToString(mac.Sum(nil))
}

func TestNotifyDispatchesSignedContent(t *testing.T) {
	db := newTestDB(t)
	feed := seedPushFeed(t, db)
	dispatcher := &recordingDispatcher{}
	mux := callbackMux(NewCallbackHandler(db, dispatcher))

	body := `<?xml version="1.0"?><rss version="2.0"><channel></channel></rss>`
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/_notify/%d", feed.ID), strings.NewReader(body))
	req.Header.Set("Content-Type", "application/rss+xml")
	req.Header.Set("X-Hub-Signature", sign("s3cret", body))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)
	require.Len(t, dispatcher.jobs, 1)
	job := dispatcher.jobs[0]
	assert.Equal(t, feed.ID, job.FeedID)
	assert.Equal(t, body, job.Content)
	assert.Equal(t, "application/rss+xml", job.ContentType)
	assert.False(t, job.Polling)

	stored, err := db.GetFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	assert.True(t, stored.LastPinged.Valid)
}

func TestNotifyRejectsBadSignature(t *testing.T) {
	db := newTestDB(t)
	feed := seedPushFeed(t, db)
	dispatcher := &recordingDispatcher{}
	mux := callbackMux(NewCallbackHandler(db, dispatcher))

	body := "payload"
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/_notify/%d", feed.ID), strings.NewReader(body))
	req.Header.Set("X-Hub-Signature", sign("wrong-secret", body))

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	// acknowledged so the hub stops retrying, but nothing is queued
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, dispatcher.jobs)
}

func TestNotifyMissingSignature(t *testing.T) {
	db := newTestDB(t)
	feed := seedPushFeed(t, db)
	dispatcher := &recordingDispatcher{}
	mux := callbackMux(NewCallbackHandler(db, dispatcher))

	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/_notify/%d", feed.ID), strings.NewReader("payload"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, dispatcher.jobs)
}
