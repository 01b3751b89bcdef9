package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/TobiSchelling/feedwatch/internal/collect"
	"github.com/TobiSchelling/feedwatch/internal/database"
	"github.com/TobiSchelling/feedwatch/internal/extract"
	"github.com/TobiSchelling/feedwatch/internal/fetch"
	"github.com/TobiSchelling/feedwatch/internal/runlock"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func testPipeline(t *testing.T, db *database.DB, baseURL string, locks runlock.Locker) *Pipeline {
	t.Helper()
	opts := fetch.DefaultOptions()
	opts.RetryDelay = time.Millisecond
	scraper := fetch.NewScraper(opts, nil)
	collector := &collect.Collector{
		Feed:   &collect.FeedStrategy{BaseURL: baseURL, Client: fetch.NewClient(opts, nil), Pages: scraper},
		Scrape: &collect.ScrapeStrategy{Pages: scraper, Extractor: extract.NewSelectorExtractor()},
	}
	return New(db, collector, locks, nil)
}

func addSource(t *testing.T, db *database.DB, src database.Source) database.Source {
	t.Helper()
	src.IsActive = true
	id, err := db.InsertSource(src)
	if err != nil {
		t.Fatalf("InsertSource: %v", err)
	}
	got, err := db.GetSource(id)
	if err != nil {
		t.Fatalf("GetSource: %v", err)
	}
	return *got
}

func richRSS(n int) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:media="http://search.yahoo.com/mrss/">
<channel><title>Rich</title><link>https://example.com</link><description>d</description>`)
	body := strings.Repeat("Plenty of body text for a rich entry. ", 40)
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, `<item>
<title>Entry number %d headline</title>
<link>https://example.com/e/%d</link>
<guid>guid-%d</guid>
<content:encoded><![CDATA[<p>%s</p>]]></content:encoded>
<pubDate>Mon, 02 Jan 2006 15:04:05 +0000</pubDate>
<media:content url="https://img.example.com/%d.jpg" type="image/jpeg"/>
</item>`, i, i, i, body, i)
	}
	b.WriteString(`</channel></rss>`)
	return b.String()
}

const emptyRSS = `<?xml version="1.0"?><rss version="2.0"><channel><title>Empty</title></channel></rss>`

// feedServer serves body at /feed; the body and status can be swapped
// between runs.
type feedServer struct {
	*httptest.Server
	body   atomic.Value
	status atomic.Int32
	hits   atomic.Int32
}

func newFeedServer(t *testing.T, body string) *feedServer {
	t.Helper()
	fs := &feedServer{}
	fs.set(http.StatusOK, body)
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fs.hits.Add(1)
		w.WriteHeader(int(fs.status.Load()))
		fmt.Fprint(w, fs.body.Load().(string))
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *feedServer) set(status int, body string) {
	fs.status.Store(int32(status))
	fs.body.Store(body)
}

func outcomes(t *testing.T, db *database.DB, sourceID int64) []database.FetchOutcome {
	t.Helper()
	out, err := db.GetOutcomes(sourceID, 100)
	if err != nil {
		t.Fatalf("GetOutcomes: %v", err)
	}
	return out
}

func alerts(t *testing.T, db *database.DB, sourceID int64) []database.Alert {
	t.Helper()
	out, err := db.ListAlerts(database.AlertFilter{SourceID: sourceID})
	if err != nil {
		t.Fatalf("ListAlerts: %v", err)
	}
	return out
}

func itemCount(t *testing.T, db *database.DB, sourceID int64) int {
	t.Helper()
	n, err := db.CountItems(sourceID)
	if err != nil {
		t.Fatalf("CountItems: %v", err)
	}
	return n
}

func TestRichFeedRun(t *testing.T) {
	fs := newFeedServer(t, richRSS(12))
	db := openTestDB(t)
	p := testPipeline(t, db, fs.URL, nil)
	src := addSource(t, db, database.Source{Name: "Rich", Route: "/feed"})

	r := p.RunOne(context.Background(), src)
	if r.Status != database.StatusSuccess || r.ItemCount != 12 || r.QualityScore != 100 {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.Message != "Successfully fetched 12 items" {
		t.Errorf("message = %q", r.Message)
	}
	if n := itemCount(t, db, src.ID); n != 12 {
		t.Errorf("stored %d items, want 12", n)
	}

	out := outcomes(t, db, src.ID)
	if len(out) != 1 {
		t.Fatalf("expected one outcome, got %d", len(out))
	}
	o := out[0]
	if o.Status != database.StatusSuccess || o.QualityScore != 100 || o.ItemCount != 12 || o.ImageCount != 12 {
		t.Errorf("unexpected outcome %+v", o)
	}
	if o.HTTPStatus == nil || *o.HTTPStatus != 200 {
		t.Errorf("http status = %v", o.HTTPStatus)
	}
	if o.AvgTitleLength <= 0 || o.AvgContentLength < 1000 {
		t.Errorf("unexpected averages %v / %v", o.AvgTitleLength, o.AvgContentLength)
	}
	if a := alerts(t, db, src.ID); len(a) != 0 {
		t.Errorf("expected no alerts, got %+v", a)
	}
}

func TestEmptyFeedKeepsItems(t *testing.T) {
	fs := newFeedServer(t, richRSS(3))
	db := openTestDB(t)
	p := testPipeline(t, db, fs.URL, nil)
	src := addSource(t, db, database.Source{Name: "Sometimes empty", Route: "feed"})

	if r := p.RunOne(context.Background(), src); r.Status != database.StatusSuccess {
		t.Fatalf("first run: %+v", r)
	}

	fs.set(http.StatusOK, emptyRSS)
	r := p.RunOne(context.Background(), src)
	if r.Status != database.StatusWarning || r.ItemCount != 0 {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.Message != "Feed parsed but contains no items" {
		t.Errorf("message = %q", r.Message)
	}
	if n := itemCount(t, db, src.ID); n != 3 {
		t.Errorf("items were replaced: %d", n)
	}
	out := outcomes(t, db, src.ID)
	if len(out) != 2 || out[0].Status != database.StatusWarning {
		t.Errorf("unexpected outcomes %+v", out)
	}
	for _, a := range alerts(t, db, src.ID) {
		if a.Level == database.LevelError {
			t.Errorf("unexpected error alert %q", a.Message)
		}
	}
}

func TestFailedRunKeepsItems(t *testing.T) {
	fs := newFeedServer(t, richRSS(4))
	db := openTestDB(t)
	p := testPipeline(t, db, fs.URL, nil)
	src := addSource(t, db, database.Source{Name: "Flaky", Route: "feed"})

	p.RunOne(context.Background(), src)
	fs.set(http.StatusBadGateway, "upstream down")
	fs.hits.Store(0)

	r := p.RunOne(context.Background(), src)
	if r.Status != database.StatusError {
		t.Fatalf("unexpected result %+v", r)
	}
	if got := fs.hits.Load(); got != 1+fetch.DefaultRetries {
		t.Errorf("expected %d attempts, got %d", 1+fetch.DefaultRetries, got)
	}
	if n := itemCount(t, db, src.ID); n != 4 {
		t.Errorf("failed run touched items: %d", n)
	}

	o := outcomes(t, db, src.ID)[0]
	if o.Status != database.StatusError || o.HTTPStatus == nil || *o.HTTPStatus != 502 {
		t.Errorf("unexpected outcome %+v", o)
	}
	if o.ErrorMessage == "" || o.ItemCount != 0 {
		t.Errorf("unexpected outcome %+v", o)
	}

	a := alerts(t, db, src.ID)
	if len(a) != 1 || a[0].Level != database.LevelError {
		t.Fatalf("unexpected alerts %+v", a)
	}
	if !strings.HasPrefix(a[0].Message, "Failed to fetch feed: Flaky - ") {
		t.Errorf("alert message = %q", a[0].Message)
	}
}

func TestRunsHaveStableShape(t *testing.T) {
	fs := newFeedServer(t, richRSS(5))
	db := openTestDB(t)
	p := testPipeline(t, db, fs.URL, nil)
	src := addSource(t, db, database.Source{Name: "Stable", Route: "feed"})

	first := p.RunOne(context.Background(), src)
	second := p.RunOne(context.Background(), src)
	if first.Status != second.Status || first.ItemCount != second.ItemCount || first.QualityScore != second.QualityScore {
		t.Errorf("runs differ: %+v vs %+v", first, second)
	}
	if n := itemCount(t, db, src.ID); n != 5 {
		t.Errorf("expected items replaced, not appended: %d", n)
	}
	if out := outcomes(t, db, src.ID); len(out) != 2 {
		t.Errorf("expected one outcome per run, got %d", len(out))
	}
}

func TestCheckWithoutSaving(t *testing.T) {
	fs := newFeedServer(t, richRSS(2))
	db := openTestDB(t)
	p := testPipeline(t, db, fs.URL, nil)
	src := addSource(t, db, database.Source{Name: "Dry", Route: "feed"})

	r := p.Check(context.Background(), src, false)
	if r.Status != database.StatusSuccess || r.ItemCount != 2 {
		t.Fatalf("unexpected result %+v", r)
	}
	if n := itemCount(t, db, src.ID); n != 0 {
		t.Errorf("expected no stored items, got %d", n)
	}
	if out := outcomes(t, db, src.ID); len(out) != 1 {
		t.Errorf("expected an outcome, got %d", len(out))
	}
}

func TestScrapeListingRun(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		var b strings.Builder
		b.WriteString("<html><body><nav>")
		for i := 0; i < 25; i++ {
			fmt.Fprintf(&b, `<a href="/section/%d">Section %d</a>`, i, i)
		}
		b.WriteString("</nav>")
		for _, l := range []string{"/story/1", "/story/2", "/story/3"} {
			fmt.Fprintf(&b, `<div class="card"><a href="%s">Read</a></div>`, l)
		}
		b.WriteString("</body></html>")
		fmt.Fprint(w, b.String())
	})
	mux.HandleFunc("/story/", func(w http.ResponseWriter, r *http.Request) {
		body := strings.Repeat("An article sentence with several words. ", 10)
		fmt.Fprintf(w, `<html><head><title>Story %s</title></head><body><article><p>%s</p></article></body></html>`,
			r.URL.Path, body)
	})

	db := openTestDB(t)
	p := testPipeline(t, db, "", nil)
	src := addSource(t, db, database.Source{
		Name:            "Site",
		Route:           "custom/site",
		OriginalURL:     srv.URL + "/",
		CustomSelectors: `{"content":"article"}`,
	})

	r := p.RunOne(context.Background(), src)
	if r.Status != database.StatusSuccess || r.ItemCount != 3 {
		t.Fatalf("unexpected result %+v", r)
	}
	if r.Message != "Successfully extracted 3 articles from the website" {
		t.Errorf("message = %q", r.Message)
	}
	items, err := db.GetItems(database.ItemFilter{SourceID: src.ID})
	if err != nil {
		t.Fatalf("GetItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("stored %d items", len(items))
	}
	for _, it := range items {
		if it.ExtractionMetadata.Method != extract.MethodSelector {
			t.Errorf("method = %q", it.ExtractionMetadata.Method)
		}
	}
	if o := outcomes(t, db, src.ID)[0]; o.HTTPStatus != nil {
		t.Errorf("expected no http status for scrape runs, got %d", *o.HTTPStatus)
	}
}

func TestScrapeMissingHintsSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	db := openTestDB(t)
	p := testPipeline(t, db, "", nil)
	src := addSource(t, db, database.Source{Name: "Bare", Route: "custom/bare", OriginalURL: srv.URL})

	r := p.RunOne(context.Background(), src)
	if r.Status != database.StatusError || r.Message != "Custom selectors are required for custom routes" {
		t.Fatalf("unexpected result %+v", r)
	}
	if hits.Load() != 0 {
		t.Errorf("expected no network access, got %d requests", hits.Load())
	}
	if out := outcomes(t, db, src.ID); len(out) != 1 || out[0].Status != database.StatusError {
		t.Errorf("unexpected outcomes %+v", out)
	}
	a := alerts(t, db, src.ID)
	want := "Failed to process custom route: Bare - Custom selectors are required for custom routes"
	if len(a) != 1 || a[0].Message != want {
		t.Errorf("unexpected alerts %+v", a)
	}
}

func TestMissingBaseURL(t *testing.T) {
	db := openTestDB(t)
	p := testPipeline(t, db, "", nil)
	src := addSource(t, db, database.Source{Name: "Gateway", Route: "/github/trending"})

	r := p.RunOne(context.Background(), src)
	if r.Status != database.StatusError || r.Message != "RSSHub base URL not configured" {
		t.Fatalf("unexpected result %+v", r)
	}
	a := alerts(t, db, src.ID)
	if len(a) != 1 || a[0].Message != "Failed to fetch feed: Gateway - RSSHub base URL not configured" {
		t.Errorf("unexpected alerts %+v", a)
	}

	fs := newFeedServer(t, richRSS(1))
	p.SetBaseURL(fs.URL + "/")
	if r := p.RunOne(context.Background(), src); r.Status != database.StatusSuccess {
		t.Errorf("expected success after setting base url, got %+v", r)
	}
}

func TestBusySourceIsSkipped(t *testing.T) {
	fs := newFeedServer(t, richRSS(1))
	db := openTestDB(t)
	locks := runlock.NewMemoryLocker()
	p := testPipeline(t, db, fs.URL, locks)
	src := addSource(t, db, database.Source{Name: "Busy", Route: "feed"})

	release, ok, _ := locks.TryLock(context.Background(), runlock.Key(src.ID))
	if !ok {
		t.Fatal("could not take lock")
	}
	r := p.RunOne(context.Background(), src)
	if r.Status != StatusSkipped {
		t.Fatalf("expected skipped, got %+v", r)
	}
	if fs.hits.Load() != 0 || len(outcomes(t, db, src.ID)) != 0 {
		t.Error("skipped run should neither fetch nor record")
	}

	release()
	if r := p.RunOne(context.Background(), src); r.Status != database.StatusSuccess {
		t.Errorf("expected success after release, got %+v", r)
	}
}

type observed struct {
	sourceID int64
	strategy string
	status   string
	items    int
	score    int
}

type recordingObserver struct{ runs []observed }

func (o *recordingObserver) ObserveRun(sourceID int64, strategy, status string, _ float64, items, score int) {
	o.runs = append(o.runs, observed{sourceID, strategy, status, items, score})
}

func TestObserverSeesRecordedRuns(t *testing.T) {
	fs := newFeedServer(t, richRSS(2))
	db := openTestDB(t)
	locks := runlock.NewMemoryLocker()
	p := testPipeline(t, db, fs.URL, locks)
	obs := &recordingObserver{}
	p.Observe(obs)
	src := addSource(t, db, database.Source{Name: "Watched", Route: "feed"})

	p.RunOne(context.Background(), src)
	fs.set(http.StatusNotFound, "gone")
	p.RunOne(context.Background(), src)

	release, _, _ := locks.TryLock(context.Background(), runlock.Key(src.ID))
	p.RunOne(context.Background(), src)
	release()

	want := []observed{
		{src.ID, "feed", database.StatusSuccess, 2, 100},
		{src.ID, "feed", database.StatusError, 0, 0},
	}
	if len(obs.runs) != len(want) {
		t.Fatalf("observed %+v", obs.runs)
	}
	for i := range want {
		if obs.runs[i] != want[i] {
			t.Errorf("run %d = %+v, want %+v", i, obs.runs[i], want[i])
		}
	}
}

func TestRunAll(t *testing.T) {
	fs := newFeedServer(t, richRSS(2))
	db := openTestDB(t)
	p := testPipeline(t, db, fs.URL, nil)
	a := addSource(t, db, database.Source{Name: "A", Route: "a"})
	b := addSource(t, db, database.Source{Name: "B", Route: "b"})
	c := addSource(t, db, database.Source{Name: "C", Route: "c"})
	if err := db.SetSourceActive(c.ID, false); err != nil {
		t.Fatal(err)
	}

	n, err := p.RunAll(context.Background())
	if err != nil {
		t.Fatalf("RunAll: %v", err)
	}
	if n != 2 {
		t.Errorf("ran %d sources, want 2", n)
	}
	for _, id := range []int64{a.ID, b.ID} {
		if len(outcomes(t, db, id)) != 1 {
			t.Errorf("source %d was not checked", id)
		}
	}
	if len(outcomes(t, db, c.ID)) != 0 {
		t.Error("inactive source was checked")
	}
}

func TestValidate(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/full", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, richRSS(3)) })
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, emptyRSS) })
	mux.HandleFunc("/junk", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, "just some words") })

	db := openTestDB(t)
	p := testPipeline(t, db, srv.URL, nil)

	tests := []struct {
		route  string
		ok     bool
		msg    string
		prefix bool
	}{
		{"custom/anything", true, "Custom route format is valid", false},
		{"/full", true, "Valid feed with 3 items", false},
		{"empty", true, "Feed is valid but contains no items", false},
		{"/junk", false, "Parse error: ", true},
		{"/missing", false, "Request error: ", true},
	}
	for _, tt := range tests {
		t.Run(tt.route, func(t *testing.T) {
			ok, msg := p.Validate(context.Background(), tt.route)
			if ok != tt.ok {
				t.Errorf("ok = %v (%s)", ok, msg)
			}
			if tt.prefix && !strings.HasPrefix(msg, tt.msg) || !tt.prefix && msg != tt.msg {
				t.Errorf("message = %q, want %q", msg, tt.msg)
			}
		})
	}

	p.SetBaseURL("")
	if ok, msg := p.Validate(context.Background(), "/full"); ok || msg != "RSSHub base URL not configured" {
		t.Errorf("got %v, %q", ok, msg)
	}
}

func TestPreviewAndSuggest(t *testing.T) {
	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()
	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) { fmt.Fprint(w, richRSS(6)) })
	mux.HandleFunc("/post/1", func(w http.ResponseWriter, r *http.Request) {
		body := strings.Repeat("A long paragraph of article text. ", 20)
		fmt.Fprintf(w, `<html><body><article><h1>A headline for the article</h1><p>%s</p></article></body></html>`, body)
	})

	db := openTestDB(t)
	p := testPipeline(t, db, srv.URL, nil)

	items, err := p.Preview(context.Background(), "feed", 0)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if len(items) != collect.DefaultPreviewItems {
		t.Errorf("expected %d preview items, got %d", collect.DefaultPreviewItems, len(items))
	}

	hints, err := p.SuggestHints(context.Background(), srv.URL+"/post/1")
	if err != nil {
		t.Fatalf("SuggestHints: %v", err)
	}
	if hints.Content != "article" || hints.Title != "h1" {
		t.Errorf("unexpected hints %+v", hints)
	}
}

func TestMeasure(t *testing.T) {
	m := measure(nil)
	if m.score != 50 || m.images != 0 {
		t.Errorf("empty measure = %+v", m)
	}

	items := []database.Item{
		{Title: "abcd", ImageURL: "x", ExtractionMetadata: database.ExtractionMetadata{ContentLength: 100}},
		{Title: "ab", ExtractionMetadata: database.ExtractionMetadata{ContentLength: 300}},
	}
	m = measure(items)
	if m.avgTitle != 3 || m.avgContent != 200 || m.images != 1 {
		t.Errorf("unexpected metrics %+v", m)
	}
	// 50 + 5 (items) + 10 (content >= 200) + 15 (half with images)
	if m.score != 80 {
		t.Errorf("score = %d, want 80", m.score)
	}
}
