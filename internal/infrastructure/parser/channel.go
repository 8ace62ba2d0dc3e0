package parser

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

const defaultChannelBaseURL = "https://t.me/s/"

var viewsExpr = regexp.MustCompile(`^([\d.,]+)\s*([KkMm]?)$`)

// ChannelCollector scrapes the public web preview of a Telegram channel.
// The source key is the channel username.
type ChannelCollector struct {
	client  *http.Client
	baseURL string
}

var _ ports.Collector = (*ChannelCollector)(nil)

// NewChannelCollector wires an HTTP client; an empty baseURL selects t.me/s/.
func NewChannelCollector(client *http.Client, baseURL string) *ChannelCollector {
	if baseURL == "" {
		baseURL = defaultChannelBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &ChannelCollector{client: defaultClient(client), baseURL: baseURL}
}

func (c *ChannelCollector) SourceType() domain.SourceType { return domain.SourceChannel }

// Fetch returns the channel's recent text posts, newest first.
func (c *ChannelCollector) Fetch(ctx context.Context, key string, limits domain.FetchLimits) ([]domain.ContentItem, error) {
	name := strings.TrimPrefix(strings.TrimSpace(key), "@")
	if name == "" {
		return nil, fmt.Errorf("empty channel name")
	}

	doc, err := fetchDocument(ctx, c.client, c.baseURL+name)
	if err != nil {
		return nil, fmt.Errorf("channel %s: %w", name, err)
	}

	posts := extractPosts(doc, name)

	// The preview lists posts oldest first.
	items := make([]domain.ContentItem, 0, len(posts))
	for i := len(posts) - 1; i >= 0; i-- {
		p := posts[i]
		if !limits.Since.IsZero() && p.Timestamp.Before(limits.Since) {
			continue
		}
		items = append(items, p)
		if limits.MaxItems > 0 && len(items) >= limits.MaxItems {
			break
		}
	}
	return items, nil
}

func extractPosts(doc *goquery.Document, channel string) []domain.ContentItem {
	var posts []domain.ContentItem
	doc.Find(".tgme_widget_message").Each(func(_ int, msg *goquery.Selection) {
		post, ok := parsePost(msg, channel)
		if ok {
			posts = append(posts, post)
		}
	})
	return posts
}

func parsePost(msg *goquery.Selection, channel string) (domain.ContentItem, bool) {
	id, _ := msg.Attr("data-post")
	text := collapseSpace(msg.Find(".tgme_widget_message_text").First().Text())
	if id == "" || text == "" {
		return domain.ContentItem{}, false
	}

	published := time.Now().UTC()
	if stamp, ok := msg.Find(".tgme_widget_message_date time").First().Attr("datetime"); ok {
		if t, err := time.Parse(time.RFC3339, stamp); err == nil {
			published = t.UTC()
		}
	}

	viewsText := strings.TrimSpace(msg.Find(".tgme_widget_message_views").First().Text())
	views := parseViews(viewsText)

	author := collapseSpace(msg.Find(".tgme_widget_message_owner_name").First().Text())
	if author == "" {
		author = channel
	}

	return domain.ContentItem{
		ID:           id,
		SourceType:   domain.SourceChannel,
		SourceKey:    channel,
		Text:         text,
		URL:          "https://t.me/" + id,
		Author:       author,
		Timestamp:    published,
		QualityScore: channelQuality(views, text),
		Metadata:     map[string]string{"views": strconv.Itoa(views)},
	}, true
}

// parseViews understands the compact counters of the preview ("987", "1.2K", "3M").
func parseViews(s string) int {
	m := viewsExpr.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	n, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
	if err != nil {
		return 0
	}
	switch strings.ToUpper(m[2]) {
	case "K":
		n *= 1_000
	case "M":
		n *= 1_000_000
	}
	return int(math.Round(n))
}

// channelQuality is mostly reach, with a small bonus for substantive posts.
func channelQuality(views int, text string) float64 {
	score := 0.2 + 0.6*engagementScore(float64(views), 4)
	if len(text) >= 200 {
		score += 0.2
	}
	return clamp01(score)
}
