package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"market-sentiment/pkg/httpclient"
)

func newServer(t *testing.T, status int, body string, robotsHits *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			atomic.AddInt32(robotsHits, 1)
			w.Header().Set("Content-Type", "text/plain")
			w.WriteHeader(status)
			_, _ = w.Write([]byte(body))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestAllowedFollowsRules(t *testing.T) {
	var hits int32
	srv := newServer(t, http.StatusOK, "User-agent: *\nDisallow: /private\n", &hits)
	checker := NewChecker(httpclient.NewClient(httpclient.BrowserClient), nil, nil)
	ctx := context.Background()

	if !checker.Allowed(ctx, srv.URL+"/reviews/widget") {
		t.Error("expected public path to be allowed")
	}
	if checker.Allowed(ctx, srv.URL+"/private/page") {
		t.Error("expected /private to be disallowed")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("robots.txt fetched %d times, want 1 (cached per host)", got)
	}
}

func TestAllowedAgentSpecificGroup(t *testing.T) {
	var hits int32
	srv := newServer(t, http.StatusOK, "User-agent: sentimentbot\nDisallow: /\n\nUser-agent: *\nAllow: /\n", &hits)

	bot := httpclient.New(httpclient.Options{Type: httpclient.BotClient, UserAgent: "sentimentbot/1.0"})
	if NewChecker(bot, nil, nil).Allowed(context.Background(), srv.URL+"/a") {
		t.Error("expected named agent to be blocked")
	}

	browser := httpclient.NewClient(httpclient.BrowserClient)
	if !NewChecker(browser, nil, nil).Allowed(context.Background(), srv.URL+"/a") {
		t.Error("expected other agents to be allowed")
	}
}

func TestServerErrorIsPermissive(t *testing.T) {
	var hits int32
	srv := newServer(t, http.StatusServiceUnavailable, "", &hits)
	checker := NewChecker(httpclient.NewClient(httpclient.BrowserClient), nil, nil)

	if !checker.Allowed(context.Background(), srv.URL+"/anything") {
		t.Error("expected 5xx robots.txt to allow fetching")
	}
}

func TestMissingRobotsIsPermissive(t *testing.T) {
	var hits int32
	srv := newServer(t, http.StatusNotFound, "", &hits)
	checker := NewChecker(httpclient.NewClient(httpclient.BrowserClient), nil, nil)

	if !checker.Allowed(context.Background(), srv.URL+"/anything") {
		t.Error("expected 404 robots.txt to allow fetching")
	}
}

func TestUnreachableIsPermissive(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	checker := NewChecker(httpclient.NewClient(httpclient.BrowserClient), nil, nil)
	if !checker.Allowed(context.Background(), addr+"/page") {
		t.Error("expected unreachable robots.txt to allow fetching")
	}
}

func TestCanceledLookupIsNotCachedAsPermissive(t *testing.T) {
	var hits int32
	srv := newServer(t, http.StatusOK, "User-agent: *\nDisallow: /private\n", &hits)
	checker := NewChecker(httpclient.NewClient(httpclient.BrowserClient), nil, nil)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_ = checker.Allowed(canceled, srv.URL+"/private/page")

	if checker.Allowed(context.Background(), srv.URL+"/private/page") {
		t.Error("expected /private to be disallowed after an abandoned lookup")
	}
	if got := atomic.LoadInt32(&hits); got != 1 {
		t.Errorf("robots.txt fetched %d times, want 1", got)
	}
}

func TestServerErrorIsRetriedOnNextCheck(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if atomic.AddInt32(&hits, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	t.Cleanup(srv.Close)
	checker := NewChecker(httpclient.NewClient(httpclient.BrowserClient), nil, nil)
	ctx := context.Background()

	if !checker.Allowed(ctx, srv.URL+"/private/page") {
		t.Error("expected 5xx robots.txt to allow fetching")
	}
	if checker.Allowed(ctx, srv.URL+"/private/page") {
		t.Error("expected rules to be loaded on the next check")
	}
	if checker.Allowed(ctx, srv.URL+"/private/other") {
		t.Error("expected cached rules to disallow /private")
	}
	if got := atomic.LoadInt32(&hits); got != 2 {
		t.Errorf("robots.txt fetched %d times, want 2", got)
	}
}
