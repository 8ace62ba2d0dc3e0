package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/logging"
)

const rssSample = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0" xmlns:dc="http://purl.org/dc/elements/1.1/">
  <channel>
    <title>Go Weekly</title>
    <item>
      <title>Range over func</title>
      <link>https://example.com/range</link>
      <guid>range-1</guid>
      <description><![CDATA[<p>Iterators <b>land</b> in Go.</p>]]></description>
      <dc:creator>Russ</dc:creator>
      <pubDate>Sun, 01 Mar 2026 10:00:00 +0000</pubDate>
    </item>
    <item>
      <title>Old news</title>
      <link>https://example.com/old</link>
      <description>Ancient.</description>
      <pubDate>Mon, 01 Jan 2024 10:00:00 +0000</pubDate>
    </item>
  </channel>
</rss>`

const atomSample = `<?xml version="1.0" encoding="utf-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>The Go Blog</title>
  <entry>
    <id>tag:go.dev,2026:blog/synctest</id>
    <title>Testing time</title>
    <link rel="alternate" href="https://go.dev/blog/synctest"/>
    <link rel="self" href="https://go.dev/blog/synctest.atom"/>
    <published>2026-02-28T09:00:00Z</published>
    <summary type="html">&lt;p&gt;Fake clocks, real tests.&lt;/p&gt;</summary>
    <author><name>Damien</name></author>
  </entry>
</feed>`

func TestParseFeedRSS(t *testing.T) {
	t.Parallel()

	entries, err := parseFeed([]byte(rssSample))
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	first := entries[0]
	if first.id != "range-1" || first.link != "https://example.com/range" {
		t.Fatalf("unexpected identity: %+v", first)
	}
	if first.text != "Iterators land in Go." {
		t.Fatalf("markup not stripped: %q", first.text)
	}
	if first.author != "Russ" {
		t.Fatalf("unexpected author: %q", first.author)
	}
	want := time.Date(2026, time.March, 1, 10, 0, 0, 0, time.UTC)
	if !first.published.Equal(want) {
		t.Fatalf("published = %s, want %s", first.published, want)
	}
}

func TestParseFeedAtom(t *testing.T) {
	t.Parallel()

	entries, err := parseFeed([]byte(atomSample))
	if err != nil {
		t.Fatalf("parseFeed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	e := entries[0]
	if e.link != "https://go.dev/blog/synctest" {
		t.Fatalf("alternate link not selected: %q", e.link)
	}
	if e.text != "Fake clocks, real tests." {
		t.Fatalf("unexpected text: %q", e.text)
	}
	if e.author != "Damien" {
		t.Fatalf("unexpected author: %q", e.author)
	}
}

func TestParseFeedRejectsUnknownRoot(t *testing.T) {
	t.Parallel()

	if _, err := parseFeed([]byte(`<html><body/></html>`)); err == nil {
		t.Fatal("expected error for non-feed document")
	}
	if _, err := parseFeed([]byte(`not xml`)); err == nil {
		t.Fatal("expected error for garbage")
	}
}

func TestFeedCollectorFetchAppliesLimits(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, rssSample)
	}))
	defer srv.Close()

	c := NewFeedCollector(srv.Client(), false, logging.Discard())
	items, err := c.Fetch(context.Background(), srv.URL, domain.FetchLimits{
		Since: time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected the old entry to be skipped, got %d items", len(items))
	}

	it := items[0]
	if it.SourceType != domain.SourceFeed || it.SourceKey != srv.URL {
		t.Fatalf("unexpected source: %s/%s", it.SourceType, it.SourceKey)
	}
	if it.Metadata["title"] != "Range over func" {
		t.Fatalf("title metadata missing: %v", it.Metadata)
	}
	if it.QualityScore <= 0.5 || it.QualityScore > 1 {
		t.Fatalf("quality out of range: %f", it.QualityScore)
	}
}

func TestFeedCollectorExtractsFullText(t *testing.T) {
	t.Parallel()

	paragraph := "Structured concurrency in Go keeps goroutines, channels, and cancellation tied together, " +
		"so that every worker started by a request finishes before the request returns, and errors surface in one place."
	article := "<html><head><title>Deep dive</title></head><body><nav>menu</nav><article><h1>Deep dive</h1>" +
		strings.Repeat("<p>"+paragraph+"</p>", 6) + "</article></body></html>"

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	defer srv.Close()

	mux.HandleFunc("/feed", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<rss version="2.0"><channel><item><title>Deep dive</title><link>%s/post</link><description>Teaser.</description><pubDate>Sun, 01 Mar 2026 10:00:00 +0000</pubDate></item></channel></rss>`, srv.URL)
	})
	mux.HandleFunc("/post", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, article)
	})

	c := NewFeedCollector(srv.Client(), true, logging.Discard())
	items, err := c.Fetch(context.Background(), srv.URL+"/feed", domain.FetchLimits{MaxItems: 5})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(items))
	}
	if !strings.Contains(items[0].Text, "Structured concurrency") {
		t.Fatalf("expected extracted article text, got %q", items[0].Text)
	}
}

func TestFeedCollectorPropagatesHTTPErrors(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusGone)
	}))
	defer srv.Close()

	c := NewFeedCollector(srv.Client(), false, nil)
	if _, err := c.Fetch(context.Background(), srv.URL, domain.FetchLimits{}); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
