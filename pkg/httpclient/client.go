package httpclient

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/html/charset"
)

// ClientType represents the type of HTTP client configuration
type ClientType string

const (
	// BrowserClient uses browser-like headers to avoid 406 (Not Acceptable) errors
	BrowserClient ClientType = "browser"

	// BotClient identifies itself with the configured crawler user-agent
	BotClient ClientType = "bot"
)

// DefaultBrowserUserAgent is sent by BrowserClient when no user-agent is configured.
const DefaultBrowserUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// DefaultMaxBodyBytes caps how much of a response body is read.
const DefaultMaxBodyBytes = 8 << 20

// Options configures an HTTPClient.
type Options struct {
	Type         ClientType
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	MaxBodyBytes int64
	// Transport overrides the underlying round tripper (tests inject fakes here).
	// It is always wrapped with otelhttp so outbound requests carry trace context.
	Transport http.RoundTripper
}

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode  int
	FinalURL    string
	ContentType string
	Body        []byte
}

// HTTPClient wraps an http.Client with configuration
type HTTPClient struct {
	client       *http.Client
	clientType   ClientType
	userAgent    string
	maxBodyBytes int64
}

// NewClient creates a new HTTP client with the specified type and default options
func NewClient(clientType ClientType) *HTTPClient {
	return New(Options{Type: clientType})
}

// New creates a new HTTP client from options
func New(opts Options) *HTTPClient {
	maxRedirects := opts.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	maxBody := opts.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = DefaultMaxBodyBytes
	}
	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = DefaultBrowserUserAgent
	}

	client := &http.Client{
		Timeout:   timeout,
		Transport: otelhttp.NewTransport(opts.Transport),
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}

	return &HTTPClient{
		client:       client,
		clientType:   opts.Type,
		userAgent:    userAgent,
		maxBodyBytes: maxBody,
	}
}

// UserAgent returns the user-agent string sent with every request.
func (c *HTTPClient) UserAgent() string {
	return c.userAgent
}

// Do executes an HTTP request with the appropriate headers for the client type
func (c *HTTPClient) Do(req *http.Request) (*http.Response, error) {
	c.setHeaders(req)
	return c.client.Do(req)
}

// Get fetches rawURL and reads the whole body. Non-2xx responses are returned, not
// turned into errors; the caller decides what a status means.
func (c *HTTPClient) Get(ctx context.Context, rawURL string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)

	contentType := resp.Header.Get("Content-Type")
	body, err := c.readBody(resp.Body, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return &Response{
		StatusCode:  resp.StatusCode,
		FinalURL:    resp.Request.URL.String(),
		ContentType: contentType,
		Body:        body,
	}, nil
}

// readBody reads at most maxBodyBytes, converting textual bodies to UTF-8.
func (c *HTTPClient) readBody(r io.Reader, contentType string) ([]byte, error) {
	limited := io.LimitReader(r, c.maxBodyBytes)
	if !isText(contentType) {
		return io.ReadAll(limited)
	}

	decoded, err := charset.NewReader(limited, contentType)
	if err != nil {
		return nil, err
	}
	return io.ReadAll(decoded)
}

// setHeaders sets the appropriate headers based on client type
func (c *HTTPClient) setHeaders(req *http.Request) {
	req.Header.Set("User-Agent", c.userAgent)
	switch c.clientType {
	case BrowserClient:
		req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
		req.Header.Set("Accept-Language", "en-US,en;q=0.9")
		req.Header.Set("Upgrade-Insecure-Requests", "1")
	case BotClient:
		req.Header.Set("Accept", "text/plain,text/html;q=0.9,*/*;q=0.5")
	}
}

func isText(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return strings.HasPrefix(strings.ToLower(contentType), "text/")
	}
	return strings.HasPrefix(mediaType, "text/") ||
		mediaType == "application/xhtml+xml" ||
		mediaType == "application/xml" ||
		mediaType == "application/rss+xml" ||
		mediaType == "application/atom+xml"
}

func drainAndClose(rc io.ReadCloser) {
	if rc == nil {
		return
	}
	_, _ = io.Copy(io.Discard, rc)
	_ = rc.Close()
}
