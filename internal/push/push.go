// Package push manages hub (WebSub-style) subscriptions per feed:
// discovering hub/topic endpoints, deciding when to (re)subscribe and
// issuing the subscribe/unsubscribe requests. Verification completion
// arrives out of band through the callback server.
package push

import (
	"context"
	"database/sql"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"reedy/reader/internal/config"
	"reedy/reader/internal/database"
	"reedy/reader/internal/fetch"
	"reedy/reader/internal/models"
)

// Manager runs the subscription state machine for feeds after a
// successful poll.
type Manager struct {
	store   *database.DB
	http    *http.Client
	baseURL string
}

// NewManager creates a push manager. baseURL is the externally
// reachable root used to build per-feed callback URLs.
func NewManager(store *database.DB, baseURL string) *Manager {
	return &Manager{
		store:   store,
		http:    &http.Client{Timeout: config.HTTPTimeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// CallbackURL returns the hub callback endpoint unique to a feed.
func (m *Manager) CallbackURL(feedID int64) string {
	return fmt.Sprintf("%s/_notify/%d", m.baseURL, feedID)
}

// Check runs one state-machine step for a feed using a fresh successful
// fetch result. A resubscription is triggered when the lease is close to
// expiry, the advertised hub or topic moved, or the feed is not
// currently verified.
func (m *Manager) Check(ctx context.Context, feed *models.Feed, res *fetch.Result) {
	hub, topic := res.HubLink, res.TopicLink
	if hub == "" || topic == "" {
		bodyHub, bodyTopic := discoverLinks(feed.Type, res.Body)
		if hub == "" {
			hub = bodyHub
		}
		if topic == "" {
			topic = bodyTopic
		}
	}
	hub = resolveAgainst(feed.FeedURL, hub)
	topic = resolveAgainst(feed.FeedURL, topic)

	log.Debug().
		Int64("feed_id", feed.ID).
		Str("hub", hub).
		Str("topic", topic).
		Msg("Discovered push endpoints")

	now := time.Now().UTC()
	leaseExpiring := feed.PushExpiry.Valid && feed.PushExpiry.Time.Sub(now) <= config.PushGraceInterval
	moved := hub != feed.PushHub || topic != feed.PushTopic

	if !leaseExpiring && !moved && feed.PushVerified {
		return
	}

	oldHub, oldTopic := feed.PushHub, feed.PushTopic
	feed.PushHub = hub
	feed.PushTopic = topic
	feed.PushVerified = false
	feed.PushExpiry = sql.NullTime{}
	if err := m.store.SaveFeed(ctx, feed); err != nil {
		log.Error().Err(err).Int64("feed_id", feed.ID).Msg("Failed to persist push state")
		return
	}

	if oldHub != "" && oldTopic != "" && (hub != oldHub || topic != oldTopic) {
		if err := m.sendRequest(ctx, "unsubscribe", oldHub, oldTopic, feed); err != nil {
			log.Warn().Err(err).Int64("feed_id", feed.ID).Msg("Unsubscribe request failed")
		}
	}

	if hub != "" && topic != "" {
		if err := m.sendRequest(ctx, "subscribe", hub, topic, feed); err != nil {
			log.Warn().Err(err).Int64("feed_id", feed.ID).Msg("Subscribe request failed")
			return
		}
		if err := m.store.SaveFeed(ctx, feed); err != nil {
			log.Error().Err(err).Int64("feed_id", feed.ID).Msg("Failed to persist push secret")
		}
	}
}

// sendRequest posts a subscribe/unsubscribe form to a hub.
func (m *Manager) sendRequest(ctx context.Context, mode, hub, topic string, feed *models.Feed) error {
	log.Debug().
		Str("mode", mode).
		Str("hub", hub).
		Str("topic", topic).
		Msg("Sending hub request")

	form := url.Values{
		"hub.mode":     {mode},
		"hub.topic":    {topic},
		"hub.callback": {m.CallbackURL(feed.ID)},
		"hub.secret":   {feed.GetOrCreatePushSecret()},
		"hub.verify":   {"sync"}, // backcompat with 0.3 hubs
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hub, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build %s request: %w", mode, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := m.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s request to %s failed: %w", mode, hub, err)
	}
	defer resp.Body.Close()

	log.Debug().Str("mode", mode).Int("status", resp.StatusCode).Msg("Hub response")
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("%s request to %s rejected: %d", mode, hub, resp.StatusCode)
	}
	return nil
}

// discoverLinks scans the document body for rel=hub / rel=self link
// elements when the response headers did not advertise them.
func discoverLinks(typ models.FeedType, body string) (hub, topic string) {
	if typ == models.FeedTypeHTML {
		return discoverHTMLLinks(body)
	}
	return discoverXMLLinks(body)
}

func discoverHTMLLinks(body string) (hub, topic string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(body))
	if err != nil {
		return "", ""
	}
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel, _ := s.Attr("rel")
		href, _ := s.Attr("href")
		for _, r := range strings.Fields(rel) {
			if r == "hub" && hub == "" {
				hub = href
			}
			if r == "self" && topic == "" {
				topic = href
			}
		}
		return hub == "" || topic == ""
	})
	return hub, topic
}

// discoverXMLLinks walks the raw XML tokens for atom-style link
// elements. gofeed drops the rel attribute of feed-level links, so the
// document is scanned directly.
func discoverXMLLinks(body string) (hub, topic string) {
	dec := xml.NewDecoder(strings.NewReader(body))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			return hub, topic
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "link" {
			continue
		}
		var rel, href string
		for _, attr := range start.Attr {
			switch attr.Name.Local {
			case "rel":
				rel = attr.Value
			case "href":
				href = attr.Value
			}
		}
		if rel == "hub" && hub == "" {
			hub = href
		}
		if rel == "self" && topic == "" {
			topic = href
		}
		if hub != "" && topic != "" {
			return hub, topic
		}
	}
}

// resolveAgainst resolves a possibly relative link against the feed URL.
func resolveAgainst(feedURL, ref string) string {
	if ref == "" {
		return ""
	}
	base, err := url.Parse(feedURL)
	if err != nil {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
