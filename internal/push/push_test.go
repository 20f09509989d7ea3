package push

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reedy/reader/internal/database"
	"reedy/reader/internal/fetch"
	"reedy/reader/internal/models"
)

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(database.NewConfig(filepath.Join(t.TempDir(), "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

type hubRequest struct {
	path     string
	mode     string
	topic    string
	callback string
	secret   string
	verify   string
}

// fakeHub records subscribe/unsubscribe form posts in arrival order.
func fakeHub(t *testing.T) (*httptest.Server, *[]hubRequest) {
	t.Helper()
	var requests []hubRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		requests = append(requests, hubRequest{
			path:     r.URL.Path,
			mode:     r.PostForm.Get("hub.mode"),
			topic:    r.PostForm.Get("hub.topic"),
			callback: r.PostForm.Get("hub.callback"),
			secret:   r.PostForm.Get("hub.secret"),
			verify:   r.PostForm.Get("hub.verify"),
		})
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestCheckSubscribesNewHub(t *testing.T) {
	db := newTestDB(t)
	hub, requests := fakeHub(t)

	feed := models.NewFeed("Test", "https://example.com", "https://example.com/feed.xml", models.FeedTypeXML)
	require.NoError(t, db.InsertFeed(context.Background(), feed))

	m := NewManager(db, "https://reader.example")
	m.Check(context.Background(), feed, &fetch.Result{
		HubLink:   hub.URL + "/hub",
		TopicLink: "https://example.com/feed.xml",
	})

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "subscribe", req.mode)
	assert.Equal(t, "https://example.com/feed.xml", req.topic)
	assert.Equal(t, m.CallbackURL(feed.ID), req.callback)
	assert.NotEmpty(t, req.secret)
	assert.Equal(t, "sync", req.verify)

	stored, err := db.GetFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	assert.Equal(t, hub.URL+"/hub", stored.PushHub)
	assert.False(t, stored.PushVerified, "verification arrives out of band")
	assert.Equal(t, req.secret, stored.PushSecret)
}

func TestCheckHubMoveUnsubscribesFirst(t *testing.T) {
	db := newTestDB(t)
	hub, requests := fakeHub(t)

	feed := models.NewFeed("Test", "https://example.com", "https://example.com/feed.xml", models.FeedTypeXML)
	feed.PushHub = hub.URL + "/old-hub"
	feed.PushTopic = "https://example.com/feed.xml"
	feed.PushVerified = true
	require.NoError(t, db.InsertFeed(context.Background(), feed))

	m := NewManager(db, "https://reader.example")
	m.Check(context.Background(), feed, &fetch.Result{
		HubLink:   hub.URL + "/new-hub",
		TopicLink: "https://example.com/feed.xml",
	})

	require.Len(t, *requests, 2)
	assert.Equal(t, "unsubscribe", (*requests)[0].mode)
	assert.Equal(t, "/old-hub", (*requests)[0].path)
	assert.Equal(t, "subscribe", (*requests)[1].mode)
	assert.Equal(t, "/new-hub", (*requests)[1].path)

	stored, err := db.GetFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	assert.False(t, stored.PushVerified)
	assert.Equal(t, hub.URL+"/new-hub", stored.PushHub)
}

func TestCheckStableVerifiedSubscriptionIsQuiet(t *testing.T) {
	db := newTestDB(t)
	hub, requests := fakeHub(t)

	feed := models.NewFeed("Test", "https://example.com", "https://example.com/feed.xml", models.FeedTypeXML)
	feed.PushHub = hub.URL + "/hub"
	feed.PushTopic = "https://example.com/feed.xml"
	feed.PushVerified = true
	require.NoError(t, db.InsertFeed(context.Background(), feed))

	m := NewManager(db, "https://reader.example")
	m.Check(context.Background(), feed, &fetch.Result{
		HubLink:   hub.URL + "/hub",
		TopicLink: "https://example.com/feed.xml",
	})

	assert.Empty(t, *requests, "nothing changed, no hub traffic")
}

func TestCheckNoHubAdvertisedDropsState(t *testing.T) {
	db := newTestDB(t)
	_, requests := fakeHub(t)

	feed := models.NewFeed("Test", "https://example.com", "https://example.com/feed.xml", models.FeedTypeXML)
	require.NoError(t, db.InsertFeed(context.Background(), feed))

	m := NewManager(db, "https://reader.example")
	m.Check(context.Background(), feed, &fetch.Result{Body: "<?xml version=\"1.0\"?><rss><channel></channel></rss>"})

	assert.Empty(t, *requests)
	stored, err := db.GetFeed(context.Background(), feed.ID)
	require.NoError(t, err)
	assert.Equal(t, "", stored.PushHub)
}

func TestDiscoverXMLLinks(t *testing.T) {
	body := `<?xml version="1.0"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <link rel="hub" href="https://hub.example/"/>
  <link rel="self" href="https://example.com/feed.atom"/>
  <entry><link rel="alternate" href="https://example.com/1"/></entry>
</feed>`

	hub, topic := discoverXMLLinks(body)
	assert.Equal(t, "https://hub.example/", hub)
	assert.Equal(t, "https://example.com/feed.atom", topic)
}

func TestDiscoverHTMLLinks(t *testing.T) {
	body := `<html><head>
	<link rel="hub" href="https://hub.example/">
	<link rel="self" href="/stream">
	</head><body></body></html>`

	hub, topic := discoverHTMLLinks(body)
	assert.Equal(t, "https://hub.example/", hub)
	assert.Equal(t, "/stream", topic)
}

func TestResolveAgainst(t *testing.T) {
	assert.Equal(t, "https://example.com/stream",
		resolveAgainst("https://example.com/feed", "/stream"))
	assert.Equal(t, "https://hub.example/",
		resolveAgainst("https://example.com/feed", "https://hub.example/"))
	assert.Equal(t, "", resolveAgainst("https://example.com/feed", ""))
}
