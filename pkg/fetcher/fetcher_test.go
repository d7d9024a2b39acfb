package fetcher

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"market-sentiment/pkg/cache"
	"market-sentiment/pkg/httpclient"
	"market-sentiment/pkg/robots"
)

// roundTripFunc is a fake transport; tests count calls through it.
type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func textResponse(req *http.Request, status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"text/html; charset=utf-8"}},
		Body:       io.NopCloser(strings.NewReader(body)),
		Request:    req,
	}
}

func fastConfig(client *httpclient.HTTPClient) Config {
	return Config{
		Client:          client,
		InitialInterval: time.Millisecond,
		MaxInterval:     5 * time.Millisecond,
	}
}

func TestFetchRejectsNonHTTPScheme(t *testing.T) {
	var calls int32
	client := httpclient.New(httpclient.Options{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return textResponse(req, 200, ""), nil
	})})
	f := New(fastConfig(client))

	for _, raw := range []string{"ftp://example.com/file", "file:///etc/passwd", "not a url", "mailto:a@b.c"} {
		_, err := f.Fetch(context.Background(), raw)
		if !errors.Is(err, ErrInvalidScheme) {
			t.Errorf("Fetch(%q) error = %v, want ErrInvalidScheme", raw, err)
		}
	}
	if calls != 0 {
		t.Errorf("expected no network calls, got %d", calls)
	}
}

func TestFetchRobotsDisallowedIssuesNoPageGet(t *testing.T) {
	var pageCalls int32
	client := httpclient.New(httpclient.Options{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/robots.txt" {
			return textResponse(req, 200, "User-agent: *\nDisallow: /\n"), nil
		}
		atomic.AddInt32(&pageCalls, 1)
		return textResponse(req, 200, "<html>secret</html>"), nil
	})})

	cfg := fastConfig(client)
	cfg.Robots = robots.NewChecker(client, nil, nil)
	f := New(cfg)

	_, err := f.Fetch(context.Background(), "https://blocked.example/reviews")
	if !errors.Is(err, ErrRobotsDisallowed) {
		t.Fatalf("error = %v, want ErrRobotsDisallowed", err)
	}
	var fetchErr *Error
	if errors.As(err, &fetchErr) {
		t.Error("robots denial must not be a retryable *Error")
	}
	if got := atomic.LoadInt32(&pageCalls); got != 0 {
		t.Errorf("expected zero page GETs, got %d", got)
	}
}

func TestFetchCacheHitSkipsNetworkAndRobots(t *testing.T) {
	client := httpclient.New(httpclient.Options{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		t.Errorf("unexpected request to %s", req.URL)
		return nil, errors.New("no network")
	})})

	store := cache.NewMemoryStore(0)
	raw := "https://cached.example/page"
	_ = store.Put(context.Background(), cache.Key(raw), cache.Entry{
		FinalURL:  "https://cached.example/page/",
		Body:      []byte("<p>cached</p>"),
		FetchedAt: time.Now(),
	})

	cfg := fastConfig(client)
	cfg.Cache = store
	cfg.Robots = robots.NewChecker(client, nil, nil)
	f := New(cfg)

	src, err := f.Fetch(context.Background(), raw)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if !src.FromCache || src.FinalURL != "https://cached.example/page/" || src.RawMarkup != "<p>cached</p>" {
		t.Errorf("unexpected source: %+v", src)
	}
	if src.CacheKey != cache.Key(raw) {
		t.Errorf("cache key = %s", src.CacheKey)
	}
}

func TestFetchWritesCacheOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/old" {
			http.Redirect(w, r, "/new", http.StatusMovedPermanently)
			return
		}
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer srv.Close()

	store := cache.NewMemoryStore(0)
	cfg := fastConfig(httpclient.NewClient(httpclient.BrowserClient))
	cfg.Cache = store
	f := New(cfg)

	src, err := f.Fetch(context.Background(), srv.URL+"/old")
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if src.FinalURL != srv.URL+"/new" {
		t.Errorf("final URL = %s", src.FinalURL)
	}
	if src.FromCache {
		t.Error("first fetch should not come from cache")
	}

	entry, ok, _ := store.Get(context.Background(), cache.Key(srv.URL+"/old"))
	if !ok {
		t.Fatal("expected cache entry after successful fetch")
	}
	if entry.FinalURL != src.FinalURL || string(entry.Body) != src.RawMarkup {
		t.Errorf("cache entry mismatch: %+v", entry)
	}
}

func TestFetchRetriesThenSucceeds(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	f := New(fastConfig(httpclient.NewClient(httpclient.BrowserClient)))
	src, err := f.Fetch(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if src.RawMarkup != "ok" {
		t.Errorf("body = %q", src.RawMarkup)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestFetchHTTPErrorAfterRetryBudget(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	f := New(fastConfig(httpclient.NewClient(httpclient.BrowserClient)))
	_, err := f.Fetch(context.Background(), srv.URL+"/missing")

	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if fetchErr.Status != http.StatusNotFound {
		t.Errorf("status = %d, want 404", fetchErr.Status)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3 attempts", calls)
	}
}

func TestFetchThreeTimeoutsGiveUp(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	client := httpclient.New(httpclient.Options{Type: httpclient.BrowserClient, Timeout: 30 * time.Millisecond})
	f := New(fastConfig(client))

	_, err := f.Fetch(context.Background(), srv.URL)
	var fetchErr *Error
	if !errors.As(err, &fetchErr) {
		t.Fatalf("error = %v, want *Error", err)
	}
	if fetchErr.Status != 0 {
		t.Errorf("timeout should be a transport error, got status %d", fetchErr.Status)
	}
	if got := atomic.LoadInt32(&calls); got != 3 {
		t.Errorf("calls = %d, want 3", got)
	}
}

func TestFetchStopsOnContextCancel(t *testing.T) {
	var calls int32
	client := httpclient.New(httpclient.Options{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		atomic.AddInt32(&calls, 1)
		return textResponse(req, 500, ""), nil
	})})

	cfg := fastConfig(client)
	cfg.InitialInterval = time.Hour
	cfg.MaxInterval = time.Hour
	f := New(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := f.Fetch(ctx, "https://slow.example/")
	if err == nil {
		t.Fatal("expected error")
	}
	if time.Since(start) > time.Second {
		t.Error("retry loop did not honor context cancellation")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestFetchHostDelaySpacesRequests(t *testing.T) {
	var mu sync.Mutex
	var stamps []time.Time
	client := httpclient.New(httpclient.Options{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		mu.Lock()
		stamps = append(stamps, time.Now())
		mu.Unlock()
		return textResponse(req, 200, "ok"), nil
	})})

	cfg := fastConfig(client)
	cfg.HostDelay = 40 * time.Millisecond
	f := New(cfg)

	ctx := context.Background()
	if _, err := f.Fetch(ctx, "https://polite.example/a"); err != nil {
		t.Fatal(err)
	}
	if _, err := f.Fetch(ctx, "https://polite.example/b"); err != nil {
		t.Fatal(err)
	}

	if len(stamps) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(stamps))
	}
	if gap := stamps[1].Sub(stamps[0]); gap < 35*time.Millisecond {
		t.Errorf("gap between same-host requests = %v, want >= 40ms", gap)
	}
}

func TestFetchJoinedCallerSurvivesOtherCallersCancel(t *testing.T) {
	var calls int32
	started := make(chan struct{})
	client := httpclient.New(httpclient.Options{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			close(started)
			<-req.Context().Done()
			return nil, req.Context().Err()
		}
		return textResponse(req, 200, "<html>ok</html>"), nil
	})})
	f := New(fastConfig(client))

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := f.Fetch(ctxA, "https://shared.example/page")
		errA <- err
	}()
	<-started

	type result struct {
		body string
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		src, err := f.Fetch(context.Background(), "https://shared.example/page")
		resB <- result{src.RawMarkup, err}
	}()
	time.Sleep(20 * time.Millisecond)
	cancelA()

	if err := <-errA; !errors.Is(err, context.Canceled) {
		t.Errorf("canceled caller error = %v, want context.Canceled", err)
	}
	got := <-resB
	if got.err != nil {
		t.Fatalf("live caller got %v", got.err)
	}
	if got.body != "<html>ok</html>" {
		t.Errorf("body = %q", got.body)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}
