// Package fetch retrieves feed documents over HTTP, validating the
// declared content type against the feed's configured format and
// resolving the text encoding before handing the payload to a parser.
package fetch

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/peterhellberg/link"
	"golang.org/x/net/html/charset"

	"reedy/reader/internal/models"
)

const (
	defaultUserAgent = "reedy-reader/1.0"
	maxBodyBytes     = 8 << 20
)

// xmlContentTypes are the media types accepted for syndication feeds.
var xmlContentTypes = map[string]bool{
	"application/rss+xml":  true,
	"application/atom+xml": true,
	"application/rdf+xml":  true,
	"application/xml":      true,
	"text/xml":             true,
}

// Result is a fetched and decoded document plus the push-discovery
// metadata carried in its response headers.
type Result struct {
	StatusCode  int
	ContentType string // media type, parameters stripped
	Body        string // decoded to UTF-8
	Etag        string // validator for the next conditional request

	// rel=hub / rel=self from the Link response headers, when present
	HubLink   string
	TopicLink string
}

// StatusError reports a non-2xx response. It is a normal fetch failure,
// not a reason to abort the hosting job beyond the fetch stage.
type StatusError struct {
	URL        string
	StatusCode int
	Snippet    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad response from %s: %d: %s", e.URL, e.StatusCode, e.Snippet)
}

// ContentTypeError reports a response whose declared media type is not
// compatible with the feed's configured format.
type ContentTypeError struct {
	URL         string
	ContentType string
	Want        models.FeedType
}

func (e *ContentTypeError) Error() string {
	return fmt.Sprintf("unexpected content type %q from %s for %s feed", e.ContentType, e.URL, e.Want)
}

// Client performs feed and reply-context retrievals with a bounded
// timeout per request.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient creates a fetch client. A zero timeout falls back to 30s.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		http:      &http.Client{Timeout: timeout},
		userAgent: defaultUserAgent,
	}
}

// Feed retrieves a feed document and validates its declared content type
// against the configured feed format. A non-empty etag is sent as
// If-None-Match; a 304 comes back as a result with no body and skips
// the content-type check.
func (c *Client) Feed(ctx context.Context, url string, typ models.FeedType, etag string) (*Result, error) {
	res, err := c.do(ctx, url, etag)
	if err != nil {
		return nil, err
	}
	if res.StatusCode == http.StatusNotModified {
		return res, nil
	}
	if !CompatibleContentType(typ, res.ContentType) {
		return nil, &ContentTypeError{URL: url, ContentType: res.ContentType, Want: typ}
	}
	return res, nil
}

// Get retrieves any URL without format validation. Used for one-off
// reply-context fetches.
func (c *Client) Get(ctx context.Context, url string) (*Result, error) {
	return c.do(ctx, url, "")
}

func (c *Client) do(ctx context.Context, url, etag string) (*Result, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	contentTypeHeader := resp.Header.Get("Content-Type")
	mediaType := contentTypeHeader
	if parsed, _, err := mime.ParseMediaType(contentTypeHeader); err == nil {
		mediaType = parsed
	}

	body, err := decodeBody(resp.Body, contentTypeHeader)
	if err != nil {
		return nil, fmt.Errorf("failed to read body from %s: %w", url, err)
	}

	if resp.StatusCode == http.StatusNotModified {
		return &Result{StatusCode: resp.StatusCode, ContentType: mediaType}, nil
	}
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode, Snippet: snippet(body)}
	}

	result := &Result{
		StatusCode:  resp.StatusCode,
		ContentType: mediaType,
		Body:        body,
		Etag:        resp.Header.Get("Etag"),
	}
	result.HubLink, result.TopicLink = parseLinkHeaders(resp.Header)
	return result, nil
}

// CompatibleContentType reports whether a declared media type is usable
// for the given feed format. An empty declared type is accepted.
func CompatibleContentType(typ models.FeedType, contentType string) bool {
	if contentType == "" {
		return true
	}
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mediaType
	}
	switch typ {
	case models.FeedTypeHTML:
		return contentType == "text/html" || contentType == "application/xhtml+xml"
	case models.FeedTypeXML:
		return xmlContentTypes[contentType]
	}
	return false
}

// decodeBody converts the payload to UTF-8. When the headers omit a
// charset, the body is sniffed for a BOM or embedded declaration.
func decodeBody(r io.Reader, contentTypeHeader string) (string, error) {
	decoded, err := charset.NewReader(io.LimitReader(r, maxBodyBytes), contentTypeHeader)
	if err != nil {
		return "", err
	}
	b, err := io.ReadAll(decoded)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// parseLinkHeaders extracts rel=hub and rel=self targets from the Link
// response headers.
func parseLinkHeaders(h http.Header) (hub, topic string) {
	group := link.ParseHeader(h)
	if group == nil {
		return "", ""
	}
	if l, ok := group["hub"]; ok {
		hub = l.URI
	}
	if l, ok := group["self"]; ok {
		topic = l.URI
	}
	return hub, topic
}

func snippet(body string) string {
	body = strings.TrimSpace(body)
	if len(body) > 140 {
		body = body[:140]
	}
	return body
}
