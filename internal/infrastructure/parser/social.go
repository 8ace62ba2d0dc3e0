package parser

import (
	"context"
	"fmt"
	"net/http"
	nurl "net/url"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

// SocialCollector reads a user timeline from a JSON API shaped like
// {"data":[{"id","text","created_at","author_id","public_metrics":{...}}],"includes":{"users":[...]}}.
// The source key is the account handle.
type SocialCollector struct {
	client   *http.Client
	endpoint string
	token    string
}

var _ ports.Collector = (*SocialCollector)(nil)

// NewSocialCollector targets endpoint, authenticating with a bearer token when set.
func NewSocialCollector(client *http.Client, endpoint, token string) *SocialCollector {
	return &SocialCollector{client: defaultClient(client), endpoint: endpoint, token: token}
}

func (s *SocialCollector) SourceType() domain.SourceType { return domain.SourceSocial }

// Fetch returns the account's posts in API order.
func (s *SocialCollector) Fetch(ctx context.Context, key string, limits domain.FetchLimits) ([]domain.ContentItem, error) {
	if s.endpoint == "" {
		return nil, fmt.Errorf("social endpoint is not configured")
	}
	handle := strings.TrimPrefix(strings.TrimSpace(key), "@")

	u, err := nurl.Parse(s.endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid social endpoint: %w", err)
	}
	q := u.Query()
	q.Set("username", handle)
	if limits.MaxItems > 0 {
		q.Set("max_results", strconv.Itoa(limits.MaxItems))
	}
	if !limits.Since.IsZero() {
		q.Set("start_time", limits.Since.UTC().Format(time.RFC3339))
	}
	u.RawQuery = q.Encode()

	header := http.Header{"Accept": {"application/json"}}
	if s.token != "" {
		header.Set("Authorization", "Bearer "+s.token)
	}
	body, err := fetchBody(ctx, s.client, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("timeline %s: %w", handle, err)
	}
	if !gjson.ValidBytes(body) {
		return nil, fmt.Errorf("timeline %s: invalid JSON", handle)
	}
	return parseTimeline(body, handle, limits), nil
}

func parseTimeline(body []byte, handle string, limits domain.FetchLimits) []domain.ContentItem {
	doc := gjson.ParseBytes(body)

	users := map[string]string{}
	doc.Get("includes.users").ForEach(func(_, u gjson.Result) bool {
		users[u.Get("id").String()] = u.Get("username").String()
		return true
	})

	var items []domain.ContentItem
	doc.Get("data").ForEach(func(_, post gjson.Result) bool {
		id := post.Get("id").String()
		text := collapseSpace(post.Get("text").String())
		if id == "" || text == "" {
			return true
		}

		published := time.Now().UTC()
		if created := post.Get("created_at"); created.Exists() {
			if t, err := time.Parse(time.RFC3339, created.String()); err == nil {
				published = t.UTC()
			}
		}
		if !limits.Since.IsZero() && published.Before(limits.Since) {
			return true
		}

		author := users[post.Get("author_id").String()]
		if author == "" {
			author = handle
		}
		metrics := post.Get("public_metrics")
		likes := metrics.Get("like_count").Int()
		reposts := metrics.Get("retweet_count").Int() + metrics.Get("quote_count").Int()
		replies := metrics.Get("reply_count").Int()

		items = append(items, domain.ContentItem{
			ID:           id,
			SourceType:   domain.SourceSocial,
			SourceKey:    handle,
			Text:         text,
			URL:          fmt.Sprintf("https://x.com/%s/status/%s", author, id),
			Author:       author,
			Timestamp:    published,
			QualityScore: socialQuality(likes, reposts, replies),
			Metadata: map[string]string{
				"likes":   strconv.FormatInt(likes, 10),
				"reposts": strconv.FormatInt(reposts, 10),
				"replies": strconv.FormatInt(replies, 10),
			},
		})
		return limits.MaxItems <= 0 || len(items) < limits.MaxItems
	})
	return items
}

// socialQuality weighs reposts above replies above likes.
func socialQuality(likes, reposts, replies int64) float64 {
	engagement := float64(likes + 3*reposts + 2*replies)
	return clamp01(0.1 + 0.9*engagementScore(engagement, 3))
}
