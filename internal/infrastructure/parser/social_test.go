package parser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"ContentDigest/internal/domain"
)

const timelineSample = `{
  "data": [
    {"id": "1", "text": "Shipping the new scheduler today", "created_at": "2026-03-01T08:00:00Z", "author_id": "42",
     "public_metrics": {"like_count": 120, "retweet_count": 30, "reply_count": 12, "quote_count": 2}},
    {"id": "2", "text": "gm", "created_at": "2026-03-01T07:00:00Z", "author_id": "42",
     "public_metrics": {"like_count": 0}},
    {"id": "3", "text": "", "created_at": "2026-03-01T06:00:00Z"}
  ],
  "includes": {"users": [{"id": "42", "username": "gopher"}]}
}`

func TestSocialCollectorFetch(t *testing.T) {
	t.Parallel()

	var gotAuth, gotUser, gotMax string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotUser = r.URL.Query().Get("username")
		gotMax = r.URL.Query().Get("max_results")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, timelineSample)
	}))
	defer srv.Close()

	c := NewSocialCollector(srv.Client(), srv.URL+"/timeline", "secret")
	items, err := c.Fetch(context.Background(), "@gopher", domain.FetchLimits{MaxItems: 10})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if gotAuth != "Bearer secret" || gotUser != "gopher" || gotMax != "10" {
		t.Fatalf("unexpected request: auth=%q user=%q max=%q", gotAuth, gotUser, gotMax)
	}
	if len(items) != 2 {
		t.Fatalf("expected empty post to be skipped, got %d items", len(items))
	}

	first := items[0]
	if first.URL != "https://x.com/gopher/status/1" || first.Author != "gopher" {
		t.Fatalf("unexpected identity: %s by %s", first.URL, first.Author)
	}
	if first.Metadata["reposts"] != "32" {
		t.Fatalf("unexpected metrics: %v", first.Metadata)
	}
	if first.QualityScore <= items[1].QualityScore {
		t.Fatalf("engagement should raise quality: %f <= %f", first.QualityScore, items[1].QualityScore)
	}
}

func TestSocialCollectorMaxItems(t *testing.T) {
	t.Parallel()

	items := parseTimeline([]byte(timelineSample), "gopher", domain.FetchLimits{MaxItems: 1})
	if len(items) != 1 || items[0].ID != "1" {
		t.Fatalf("expected only the first post, got %+v", items)
	}
}

func TestSocialCollectorErrors(t *testing.T) {
	t.Parallel()

	if _, err := NewSocialCollector(nil, "", "").Fetch(context.Background(), "gopher", domain.FetchLimits{}); err == nil {
		t.Fatal("expected error without endpoint")
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html>rate limited</html>")
	}))
	defer srv.Close()

	if _, err := NewSocialCollector(srv.Client(), srv.URL, "").Fetch(context.Background(), "gopher", domain.FetchLimits{}); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}
