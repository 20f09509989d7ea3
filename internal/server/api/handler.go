package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/hlog"

	"reedy/reader/internal/models"
	"reedy/reader/internal/server/pagination"
	"reedy/reader/internal/server/storage"
)

const defaultLimit = 100
const maxLimit = 1000

// Entry is the wire representation of a stored entry. Nullable columns
// become pointer fields so absent values serialize as null.
type Entry struct {
	ID          int64              `json:"id"`
	FeedID      *int64             `json:"feed_id"`
	UID         string             `json:"uid"`
	Permalink   string             `json:"permalink"`
	Published   *time.Time         `json:"published"`
	Updated     *time.Time         `json:"updated"`
	Retrieved   time.Time          `json:"retrieved"`
	AuthorName  string             `json:"author_name,omitempty"`
	AuthorURL   string             `json:"author_url,omitempty"`
	AuthorPhoto string             `json:"author_photo,omitempty"`
	Title       string             `json:"title,omitempty"`
	Content     string             `json:"content,omitempty"`
	Properties  *models.Properties `json:"properties,omitempty"`
}

func toWireEntry(e *models.Entry) Entry {
	out := Entry{
		ID:          e.ID,
		UID:         e.UID,
		Permalink:   e.Permalink,
		Retrieved:   e.Retrieved,
		AuthorName:  e.AuthorName,
		AuthorURL:   e.AuthorURL,
		AuthorPhoto: e.AuthorPhoto,
		Title:       e.Title,
		Content:     e.Content,
	}
	if e.FeedID.Valid {
		out.FeedID = &e.FeedID.Int64
	}
	if e.Published.Valid {
		out.Published = &e.Published.Time
	}
	if e.Updated.Valid {
		out.Updated = &e.Updated.Time
	}
	if !e.Properties.IsZero() {
		out.Properties = &e.Properties
	}
	return out
}

// Response structure for the entries endpoint
type Response struct {
	Entries    []Entry `json:"entries"`
	NextCursor *string `json:"next_cursor,omitempty"`
}

// EntriesHandler holds dependencies for the entries API.
type EntriesHandler struct {
	repo storage.EntryRepository
}

// NewEntriesHandler creates a new handler instance.
func NewEntriesHandler(repo storage.EntryRepository) *EntriesHandler {
	return &EntriesHandler{repo: repo}
}

// GetEntries handles requests to list entries by retrieval time.
func (h *EntriesHandler) GetEntries(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	ctx := r.Context()

	query := r.URL.Query()
	limitStr := query.Get("limit")
	sinceStr := query.Get("since")
	cursorStr := query.Get("cursor")

	limit := defaultLimit
	if limitStr != "" {
		parsedLimit, err := strconv.Atoi(limitStr)
		if err != nil || parsedLimit <= 0 || parsedLimit > maxLimit {
			log.Warn().Err(err).Str("limit", limitStr).Msg("Invalid 'limit' parameter value")
			http.Error(w, fmt.Sprintf("Invalid 'limit' parameter: must be between 1 and %d", maxLimit), http.StatusBadRequest)
			return
		}
		limit = parsedLimit
	}

	var since *time.Time
	var cursorTimestamp *time.Time
	var cursorID *int64

	if cursorStr != "" {
		ts, id, err := pagination.Decode(cursorStr)
		if err != nil {
			log.Warn().Err(err).Str("cursor", cursorStr).Msg("Invalid 'cursor' parameter")
			http.Error(w, "Invalid 'cursor' parameter", http.StatusBadRequest)
			return
		}
		cursorTimestamp = &ts
		cursorID = &id
	} else if sinceStr != "" {
		parsedSince, err := time.Parse(time.RFC3339, sinceStr)
		if err != nil {
			log.Warn().Err(err).Str("since", sinceStr).Msg("Invalid 'since' parameter format")
			http.Error(w, "Invalid 'since' parameter: use RFC3339 format (e.g., 2025-03-28T15:00:00Z)", http.StatusBadRequest)
			return
		}
		utcSince := parsedSince.UTC()
		since = &utcSince
	} else {
		http.Error(w, "Missing required parameter: 'since' or 'cursor'", http.StatusBadRequest)
		return
	}

	entries, err := h.repo.FetchEntries(ctx, limit+1, since, cursorTimestamp, cursorID) // fetch one extra
	if err != nil {
		log.Error().Err(err).Str("cursor", cursorStr).Msg("Error fetching entries from repository")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	var nextCursorStr *string
	actualEntries := entries
	if len(entries) > limit {
		actualEntries = entries[:limit]
		last := actualEntries[len(actualEntries)-1]
		cursor := pagination.Encode(last.Retrieved.UTC(), last.ID)
		nextCursorStr = &cursor
	}

	wireEntries := make([]Entry, len(actualEntries))
	for i := range actualEntries {
		wireEntries[i] = toWireEntry(&actualEntries[i])
	}

	response := Response{
		Entries:    wireEntries,
		NextCursor: nextCursorStr,
	}

	jsonBytes, err := json.Marshal(response)
	if err != nil {
		log.Error().Err(err).Msg("Error marshaling JSON response")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(jsonBytes); err != nil {
		log.Error().Err(err).Msg("Error writing JSON response body to client")
	}
}
