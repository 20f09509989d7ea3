package fetch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reedy/reader/internal/models"
)

func serve(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func TestFeedValidatesContentType(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte("<html></html>"))
	})

	c := NewClient(5 * time.Second)

	res, err := c.Feed(context.Background(), srv.URL, models.FeedTypeHTML, "")
	require.NoError(t, err)
	assert.Equal(t, "text/html", res.ContentType, "parameters are stripped")

	_, err = c.Feed(context.Background(), srv.URL, models.FeedTypeXML, "")
	var cte *ContentTypeError
	require.ErrorAs(t, err, &cte)
	assert.Equal(t, "text/html", cte.ContentType)
}

func TestFeedAcceptsXMLMediaTypes(t *testing.T) {
	for _, mediaType := range []string{
		"application/rss+xml", "application/atom+xml", "text/xml",
	} {
		t.Run(mediaType, func(t *testing.T) {
			srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", mediaType)
				w.Write([]byte("<rss/>"))
			})
			_, err := NewClient(5 * time.Second).Feed(context.Background(), srv.URL, models.FeedTypeXML, "")
			assert.NoError(t, err)
		})
	}
}

func TestFeedConditionalGet(t *testing.T) {
	const etag = `"v1"`
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("Etag", etag)
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte("<feed/>"))
	})

	c := NewClient(5 * time.Second)

	res, err := c.Feed(context.Background(), srv.URL, models.FeedTypeXML, "")
	require.NoError(t, err)
	assert.Equal(t, etag, res.Etag)
	assert.Equal(t, "<feed/>", res.Body)

	res, err = c.Feed(context.Background(), srv.URL, models.FeedTypeXML, etag)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotModified, res.StatusCode)
	assert.Empty(t, res.Body)
}

func TestGetStatusError(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot refuses", http.StatusTeapot)
	})

	_, err := NewClient(5 * time.Second).Get(context.Background(), srv.URL)
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTeapot, se.StatusCode)
	assert.Contains(t, se.Snippet, "teapot refuses")
}

func TestGetDecodesCharset(t *testing.T) {
	// "héllo" in ISO-8859-1
	payload := []byte{'h', 0xe9, 'l', 'l', 'o'}
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=iso-8859-1")
		w.Write(payload)
	})

	res, err := NewClient(5 * time.Second).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "héllo", res.Body)
}

func TestGetParsesLinkHeaders(t *testing.T) {
	srv := serve(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Link", `<https://hub.example/>; rel="hub"`)
		w.Header().Add("Link", `<https://example.com/feed>; rel="self"`)
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte("<feed/>"))
	})

	res, err := NewClient(5 * time.Second).Get(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://hub.example/", res.HubLink)
	assert.Equal(t, "https://example.com/feed", res.TopicLink)
}

func TestCompatibleContentType(t *testing.T) {
	assert.True(t, CompatibleContentType(models.FeedTypeXML, ""), "missing declaration is accepted")
	assert.True(t, CompatibleContentType(models.FeedTypeXML, "application/xml; charset=utf-8"))
	assert.False(t, CompatibleContentType(models.FeedTypeXML, "text/html"))
	assert.True(t, CompatibleContentType(models.FeedTypeHTML, "application/xhtml+xml"))
	assert.False(t, CompatibleContentType(models.FeedTypeHTML, "application/rss+xml"))
}
