package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"market-sentiment/pkg/cache"
	"market-sentiment/pkg/content"
	"market-sentiment/pkg/domain"
	"market-sentiment/pkg/fetcher"
	"market-sentiment/pkg/httpclient"
	"market-sentiment/pkg/robots"
)

const product = "Lao Gan Ma Chili Crisp"

// stubScorer buckets by marker words so sentence counts per polarity are exact.
type stubScorer struct{}

func (stubScorer) Score(text string) float64 {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "delicious"):
		return 0.9
	case strings.Contains(lower, "leaks"):
		return -0.9
	default:
		return 0.05
	}
}

// Relevant sentences per page: 8 positive, 2 negative, 2 neutral across p1..p7.
// p8..p10 never mention the product.
var pages = map[string][]string{
	"/p1": {
		"The Lao Gan Ma chili crisp is delicious on fried eggs.",
		"My neighbour says laoganma is delicious with dumplings too.",
		"The weather was sunny when I went shopping today.",
	},
	"/p2": {
		"This chili crisp is delicious stirred into plain rice.",
		"Every jar of Lao Gan Ma tastes delicious and smoky.",
	},
	"/p3": {
		"The crisp shallots stay delicious for weeks after opening.",
		"Sadly the chili oil leaks from the lid in my fridge.",
	},
	"/p4": {
		"Lao Gan Ma makes noodles delicious in under a minute.",
		"The chili flakes are delicious rather than just spicy.",
	},
	"/p5": {
		"A spoonful of Lao Gan Ma is delicious on pizza too.",
		"The chili crisp jar weighs about two hundred grams.",
	},
	"/p6": {
		"The Lao Gan Ma bottle leaks whenever it tips over.",
	},
	"/p7": {
		"Lao Gan Ma is sold in most supermarkets across town.",
	},
	"/p8":  {"The river walk was quiet this morning at dawn.", "Bicycles lined the path next to the old bridge."},
	"/p9":  {"This page is about hiking boots and their soles.", "Waterproof leather keeps feet dry on long trails."},
	"/p10": {"A short note on train timetables for the weekend.", "Services run every twenty minutes on Saturdays."},
}

func pageHTML(sentences []string) string {
	var b strings.Builder
	b.WriteString("<html><head><title>Page</title></head><body>")
	for _, s := range sentences {
		fmt.Fprintf(&b, "<p>%s</p>", s)
	}
	b.WriteString("</body></html>")
	return b.String()
}

type testSite struct {
	srv       *httptest.Server
	pageHits  sync.Map
	slowCalls int32
}

func newTestSite(t *testing.T) *testSite {
	t.Helper()
	site := &testSite{}
	site.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/robots.txt":
			w.Header().Set("Content-Type", "text/plain")
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		case r.URL.Path == "/slow":
			atomic.AddInt32(&site.slowCalls, 1)
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		case r.URL.Path == "/missing":
			w.WriteHeader(http.StatusNotFound)
		default:
			sentences, ok := pages[r.URL.Path]
			if !ok {
				sentences = []string{"Private page content that is long enough."}
			}
			n, _ := site.pageHits.LoadOrStore(r.URL.Path, new(int32))
			atomic.AddInt32(n.(*int32), 1)
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			_, _ = w.Write([]byte(pageHTML(sentences)))
		}
	}))
	t.Cleanup(site.srv.Close)
	return site
}

func (s *testSite) hits(path string) int32 {
	n, ok := s.pageHits.Load(path)
	if !ok {
		return 0
	}
	return atomic.LoadInt32(n.(*int32))
}

func (s *testSite) urls(paths ...string) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = s.srv.URL + p
	}
	return out
}

// recordingDocs captures extracted documents by URL.
type recordingDocs struct {
	mu   sync.Mutex
	docs map[string]string
}

func (r *recordingDocs) SaveDocument(ctx context.Context, doc *domain.ExtractedDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.docs == nil {
		r.docs = make(map[string]string)
	}
	r.docs[doc.URL] = doc.Text
	return nil
}

type recordingVerdicts struct {
	saved []*domain.SentimentVerdict
	err   error
}

func (r *recordingVerdicts) SaveVerdict(ctx context.Context, v *domain.SentimentVerdict) error {
	r.saved = append(r.saved, v)
	return r.err
}

func newProcessor(timeout time.Duration, extractor DocumentExtractor) ContentProcessor {
	client := httpclient.New(httpclient.Options{Type: httpclient.BrowserClient, Timeout: timeout})
	f := fetcher.New(fetcher.Config{
		Client:          client,
		Cache:           cache.NewMemoryStore(0),
		Robots:          robots.NewChecker(client, nil, nil),
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
	})
	return NewFetchingProcessor(f, extractor)
}

func rawOnlyExtractor() *content.Extractor {
	return content.NewExtractorWith(content.MinChars, nil, nil, content.RawStrategy{MaxRunes: content.MaxRawRunes})
}

func allPages(site *testSite) []string {
	return site.urls("/p1", "/p2", "/p3", "/p4", "/p5", "/p6", "/p7", "/p8", "/p9", "/p10")
}

func TestRunTenSourceScenario(t *testing.T) {
	site := newTestSite(t)
	docs := &recordingDocs{}
	p := New(Options{
		Processor:     newProcessor(5*time.Second, rawOnlyExtractor()),
		Workers:       4,
		Scorer:        stubScorer{},
		DocumentSaver: docs,
	})

	verdict, err := p.Run(context.Background(), product, allPages(site))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if !verdict.Verified || verdict.Status != domain.StatusVerified {
		t.Fatalf("expected verified verdict, got %+v", verdict)
	}
	want := domain.Breakdown{Positive: 67, Negative: 17, Neutral: 16}
	if verdict.Percentages != want {
		t.Errorf("percentages = %+v, want %+v", verdict.Percentages, want)
	}
	if verdict.Evidence != (domain.Breakdown{Positive: 8, Negative: 2, Neutral: 2}) {
		t.Errorf("evidence = %+v", verdict.Evidence)
	}
	if len(verdict.Sources) != 10 {
		t.Errorf("sources = %d, want 10", len(verdict.Sources))
	}
	if verdict.RunID == "" || verdict.GeneratedAt.IsZero() {
		t.Error("expected run id and timestamp")
	}

	contributing := make(map[string]bool)
	for _, u := range site.urls("/p1", "/p2", "/p3", "/p4", "/p5", "/p6", "/p7") {
		contributing[u] = true
	}
	perPolarity := map[domain.Polarity]int{}
	for _, q := range verdict.Quotes {
		perPolarity[q.Polarity]++
		if !contributing[q.URL] {
			t.Errorf("quote URL %s is not a contributing source", q.URL)
		}
		// Quote integrity: verbatim substring of the cited document's text.
		if !strings.Contains(docs.docs[q.URL], q.Text) {
			t.Errorf("quote %q not found in text of %s", q.Text, q.URL)
		}
	}
	if perPolarity[domain.Positive] > 2 || perPolarity[domain.Negative] > 2 || perPolarity[domain.Neutral] != 0 {
		t.Errorf("unexpected quote distribution %v", perPolarity)
	}

	// Input order decides which quotes are picked, regardless of worker scheduling.
	if verdict.Quotes[0].URL != site.srv.URL+"/p1" {
		t.Errorf("first positive quote should come from p1, got %s", verdict.Quotes[0].URL)
	}
}

func TestRunIsDeterministicAcrossWorkerCounts(t *testing.T) {
	site := newTestSite(t)
	var first domain.SentimentVerdict
	for i, workers := range []int{1, 3, 10} {
		p := New(Options{Processor: newProcessor(5*time.Second, rawOnlyExtractor()), Workers: workers, Scorer: stubScorer{}})
		v, err := p.Run(context.Background(), product, allPages(site))
		if err != nil {
			t.Fatal(err)
		}
		if i == 0 {
			first = v
			continue
		}
		if fmt.Sprint(v.Quotes) != fmt.Sprint(first.Quotes) || fmt.Sprint(v.Themes) != fmt.Sprint(first.Themes) {
			t.Errorf("workers=%d produced different output", workers)
		}
	}
}

func TestRunQuoteIntegrityWithDefaultExtractor(t *testing.T) {
	site := newTestSite(t)
	docs := &recordingDocs{}
	p := New(Options{
		Processor:     newProcessor(5*time.Second, content.NewExtractor(nil, nil)),
		Scorer:        stubScorer{},
		DocumentSaver: docs,
	})

	verdict, err := p.Run(context.Background(), product, allPages(site))
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	for _, q := range verdict.Quotes {
		if !strings.Contains(docs.docs[q.URL], q.Text) {
			t.Errorf("quote %q not found in text of %s", q.Text, q.URL)
		}
	}
}

func TestRunSkipsSourceAfterThreeTimeouts(t *testing.T) {
	site := newTestSite(t)
	p := New(Options{
		Processor: newProcessor(40*time.Millisecond, rawOnlyExtractor()),
		Scorer:    stubScorer{},
	})

	urls := append(site.urls("/slow"), allPages(site)...)
	verdict, err := p.Run(context.Background(), product, urls)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if got := atomic.LoadInt32(&site.slowCalls); got != 3 {
		t.Errorf("slow source attempted %d times, want 3", got)
	}
	for _, s := range verdict.Sources {
		if strings.HasSuffix(s, "/slow") {
			t.Error("timed-out source must not be listed as used")
		}
	}
	if !verdict.Verified {
		t.Errorf("remaining sources should still produce a verdict, got %+v", verdict)
	}
}

func TestRunRobotsDisallowedSourceIsSkipped(t *testing.T) {
	site := newTestSite(t)
	p := New(Options{Processor: newProcessor(5*time.Second, rawOnlyExtractor()), Scorer: stubScorer{}})

	verdict, err := p.Run(context.Background(), product, site.urls("/private/page", "/p1"))
	if err != nil {
		t.Fatal(err)
	}
	if site.hits("/private/page") != 0 {
		t.Error("disallowed page must never be requested")
	}
	if len(verdict.Sources) != 1 {
		t.Errorf("sources = %v", verdict.Sources)
	}
}

func TestRunNothingFetched(t *testing.T) {
	site := newTestSite(t)
	p := New(Options{Processor: newProcessor(5*time.Second, rawOnlyExtractor()), Scorer: stubScorer{}})

	verdict, err := p.Run(context.Background(), product, site.urls("/missing", "/private/x"))
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if verdict.Status != domain.StatusNoSourcesFetched {
		t.Errorf("status = %q, want %q", verdict.Status, domain.StatusNoSourcesFetched)
	}
	if verdict.Verified || len(verdict.Quotes) != 0 || verdict.Percentages != (domain.Breakdown{}) {
		t.Errorf("unexpected verdict %+v", verdict)
	}
}

func TestRunInsufficientEvidenceIsDistinct(t *testing.T) {
	site := newTestSite(t)
	p := New(Options{Processor: newProcessor(5*time.Second, rawOnlyExtractor()), Scorer: stubScorer{}})

	verdict, err := p.Run(context.Background(), product, site.urls("/p1", "/p8"))
	if err != nil {
		t.Fatal(err)
	}
	if verdict.Status != domain.StatusInsufficientEvidence {
		t.Errorf("status = %q, want %q", verdict.Status, domain.StatusInsufficientEvidence)
	}
	if len(verdict.Sources) != 2 {
		t.Errorf("sources = %v", verdict.Sources)
	}
}

func TestRunInputErrors(t *testing.T) {
	p := New(Options{Processor: &mockContentProcessor{}})

	if _, err := p.Run(context.Background(), "   ", []string{"https://example.com"}); !errors.Is(err, ErrEmptyProduct) {
		t.Errorf("blank product error = %v", err)
	}
	if _, err := p.Run(context.Background(), "Widget", nil); !errors.Is(err, ErrNoSources) {
		t.Errorf("no urls error = %v", err)
	}
	if _, err := p.Run(context.Background(), "Widget", []string{"", "  "}); !errors.Is(err, ErrNoSources) {
		t.Errorf("blank urls error = %v", err)
	}
}

func TestRunSaverFailureDoesNotFailRun(t *testing.T) {
	saver := &recordingVerdicts{err: errors.New("db down")}
	p := New(Options{
		Processor:    &mockContentProcessor{text: "Widget makes a long enough sentence here."},
		Scorer:       stubScorer{},
		VerdictSaver: saver,
	})

	verdict, err := p.Run(context.Background(), "Widget", []string{"https://a.example", "https://b.example"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(saver.saved) != 1 || saver.saved[0].RunID != verdict.RunID {
		t.Error("expected the verdict to be handed to the saver")
	}
}

func TestRunTimeoutKeepsFinishedSources(t *testing.T) {
	proc := &mockContentProcessor{
		text:  "Widget makes a long enough sentence here.",
		delay: map[string]time.Duration{"https://slow.example": time.Second},
	}
	p := New(Options{Processor: proc, Workers: 2, Timeout: 100 * time.Millisecond, Scorer: stubScorer{}})

	verdict, err := p.Run(context.Background(), "Widget", []string{"https://fast.example", "https://slow.example"})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(verdict.Sources) != 1 || verdict.Sources[0] != "https://fast.example" {
		t.Errorf("sources = %v, want only the fast source", verdict.Sources)
	}
}

// mockContentProcessor returns the same text for every URL, optionally after a delay.
type mockContentProcessor struct {
	text      string
	delay     map[string]time.Duration
	callCount int32
}

func (m *mockContentProcessor) ProcessContent(ctx context.Context, url string) (*domain.ExtractedDocument, error) {
	atomic.AddInt32(&m.callCount, 1)
	if d := m.delay[url]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return &domain.ExtractedDocument{URL: url, Text: m.text}, nil
}

type redirectedFetcher struct {
	src domain.Source
}

func (f redirectedFetcher) Fetch(ctx context.Context, url string) (domain.Source, error) {
	return f.src, nil
}

func TestProcessContentResolvesLinksAgainstFinalURL(t *testing.T) {
	src := domain.Source{
		URL:       "https://short.example/r/42",
		FinalURL:  "https://blog.example/posts/chili-crisp",
		RawMarkup: `<html><body><p>A long enough paragraph about chili crisp for extraction.</p><a href="/posts/more">more</a></body></html>`,
	}
	proc := NewFetchingProcessor(redirectedFetcher{src: src}, content.NewExtractor(nil, nil))

	doc, err := proc.ProcessContent(context.Background(), src.URL)
	if err != nil {
		t.Fatalf("ProcessContent: %v", err)
	}
	if doc.URL != src.URL {
		t.Errorf("doc URL = %q, want the requested URL", doc.URL)
	}
	if len(doc.OutboundLinks) != 1 {
		t.Fatalf("links = %+v, want one", doc.OutboundLinks)
	}
	link := doc.OutboundLinks[0]
	if link.URL != "https://blog.example/posts/more" || !link.SameDomain {
		t.Errorf("link = %+v, want same-domain link on blog.example", link)
	}
}
