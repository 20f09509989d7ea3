package server

import (
	"crypto/hmac"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"reedy/reader/internal/database"
	"reedy/reader/internal/schedule"
	"reedy/reader/internal/update"
)

const maxNotifyBody = 4 << 20

// CallbackHandler receives hub verification and content-delivery
// callbacks for push subscriptions.
type CallbackHandler struct {
	store      *database.DB
	dispatcher schedule.Dispatcher
}

// NewCallbackHandler creates the handler for /_notify/{feed}.
func NewCallbackHandler(store *database.DB, dispatcher schedule.Dispatcher) *CallbackHandler {
	return &CallbackHandler{store: store, dispatcher: dispatcher}
}

// Verify handles the hub's GET verification of a pending (un)subscribe
// request: the challenge is echoed back and, for subscriptions, the
// feed is marked verified with its lease recorded.
func (h *CallbackHandler) Verify(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	feedID, err := strconv.ParseInt(r.PathValue("feed"), 10, 64)
	if err != nil {
		http.Error(w, "invalid feed id", http.StatusNotFound)
		return
	}

	feed, err := h.store.GetFeed(r.Context(), feedID)
	if err != nil {
		log.Warn().Err(err).Int64("feed_id", feedID).Msg("Verification for unknown feed")
		http.Error(w, "unknown feed", http.StatusNotFound)
		return
	}

	query := r.URL.Query()
	mode := query.Get("hub.mode")
	topic := query.Get("hub.topic")
	challenge := query.Get("hub.challenge")

	if challenge == "" || (mode != "subscribe" && mode != "unsubscribe") {
		http.Error(w, "bad verification request", http.StatusBadRequest)
		return
	}
	if feed.PushTopic != "" && topic != "" && topic != feed.PushTopic {
		log.Warn().
			Int64("feed_id", feedID).
			Str("topic", topic).
			Str("expected", feed.PushTopic).
			Msg("Verification topic mismatch")
		http.Error(w, "topic mismatch", http.StatusNotFound)
		return
	}

	if mode == "subscribe" {
		feed.PushVerified = true
		feed.PushExpiry = sql.NullTime{}
		if leaseStr := query.Get("hub.lease_seconds"); leaseStr != "" {
			if lease, err := strconv.Atoi(leaseStr); err == nil && lease > 0 {
				feed.PushExpiry = sql.NullTime{
					Time:  time.Now().UTC().Add(time.Duration(lease) * time.Second),
					Valid: true,
				}
			}
		}
		if err := h.store.SaveFeed(r.Context(), feed); err != nil {
			log.Error().Err(err).Int64("feed_id", feedID).Msg("Failed to record verification")
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		log.Info().Int64("feed_id", feedID).Time("expiry", feed.PushExpiry.Time).Msg("Push subscription verified")
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// Notify handles a content-delivery POST from the hub: the payload is
// authenticated against the subscription secret and handed to the
// update pipeline as pre-fetched content.
func (h *CallbackHandler) Notify(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	feedID, err := strconv.ParseInt(r.PathValue("feed"), 10, 64)
	if err != nil {
		http.Error(w, "invalid feed id", http.StatusNotFound)
		return
	}

	feed, err := h.store.GetFeed(r.Context(), feedID)
	if err != nil {
		log.Warn().Err(err).Int64("feed_id", feedID).Msg("Notification for unknown feed")
		http.Error(w, "unknown feed", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotifyBody))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	// A bad signature still gets a 2xx so the hub does not retry, but
	// the payload is discarded.
	if feed.PushSecret != "" && !validSignature(r.Header.Get("X-Hub-Signature"), body, feed.PushSecret) {
		log.Warn().Int64("feed_id", feedID).Msg("Notification signature mismatch, ignoring payload")
		w.WriteHeader(http.StatusOK)
		return
	}

	feed.LastPinged = sql.NullTime{Time: time.Now().UTC(), Valid: true}
	if err := h.store.SaveFeed(r.Context(), feed); err != nil {
		log.Error().Err(err).Int64("feed_id", feedID).Msg("Failed to record ping")
	}

	h.dispatcher.Enqueue(update.Job{
		FeedID:      feedID,
		Content:     string(body),
		ContentType: r.Header.Get("Content-Type"),
		Polling:     false,
	})

	log.Info().Int64("feed_id", feedID).Int("size", len(body)).Msg("Push notification accepted")
	w.WriteHeader(http.StatusAccepted)
}

// validSignature checks an X-Hub-Signature header ("sha1=<hex>")
// against the body HMAC.
func validSignature(header string, body []byte, secret string) bool {
	const prefix = "sha1="
	if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
		return false
	}
	mac := hmac.New(sha1.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(header[len(prefix):]))
}
