package parser

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"log/slog"
	"net/http"
	nurl "net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/araddon/dateparse"
	"github.com/go-shiori/go-readability"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

// Descriptions shorter than this are replaced by the extracted article text.
const minDescriptionLength = 280

// FeedCollector reads RSS 2.0 and Atom feeds. The source key is the feed URL.
type FeedCollector struct {
	client  *http.Client
	extract bool
	logger  *slog.Logger
}

var _ ports.Collector = (*FeedCollector)(nil)

// NewFeedCollector wires an HTTP client. With extract set, short entries are
// expanded with the readable text of the linked page.
func NewFeedCollector(client *http.Client, extract bool, logger *slog.Logger) *FeedCollector {
	if logger == nil {
		logger = slog.Default()
	}
	return &FeedCollector{client: defaultClient(client), extract: extract, logger: logger}
}

func (f *FeedCollector) SourceType() domain.SourceType { return domain.SourceFeed }

// Fetch downloads the feed at key and returns its entries in feed order.
// Entries without a date are stamped with the fetch time.
func (f *FeedCollector) Fetch(ctx context.Context, key string, limits domain.FetchLimits) ([]domain.ContentItem, error) {
	body, err := fetchBody(ctx, f.client, key, http.Header{"Accept": {"application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8"}})
	if err != nil {
		return nil, err
	}

	entries, err := parseFeed(body)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", key, err)
	}

	fetchedAt := time.Now().UTC()
	items := make([]domain.ContentItem, 0, len(entries))
	for _, e := range entries {
		if e.published.IsZero() {
			e.published = fetchedAt
		}
		if !limits.Since.IsZero() && e.published.Before(limits.Since) {
			continue
		}
		if f.extract && e.link != "" && utf8.RuneCountInString(e.text) < minDescriptionLength {
			if text, err := f.readable(ctx, e.link); err != nil {
				f.logger.Debug("full text extraction failed", "url", e.link, "error", err)
			} else if len(text) > len(e.text) {
				e.text = text
			}
		}
		items = append(items, e.item(key))
		if limits.MaxItems > 0 && len(items) >= limits.MaxItems {
			break
		}
	}
	return items, nil
}

func (f *FeedCollector) readable(ctx context.Context, link string) (string, error) {
	body, err := fetchBody(ctx, f.client, link, nil)
	if err != nil {
		return "", err
	}
	parsed, _ := nurl.Parse(link)
	article, err := readability.FromReader(bytes.NewReader(body), parsed)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}
	return collapseSpace(article.TextContent), nil
}

type feedEntry struct {
	id        string
	title     string
	link      string
	author    string
	text      string
	published time.Time
}

func (e feedEntry) item(key string) domain.ContentItem {
	id := e.id
	if id == "" {
		id = e.link
	}
	if id == "" {
		id = e.title
	}
	meta := map[string]string{}
	if e.title != "" {
		meta["title"] = e.title
	}
	return domain.ContentItem{
		ID:           id,
		SourceType:   domain.SourceFeed,
		SourceKey:    key,
		Text:         e.text,
		URL:          e.link,
		Author:       e.author,
		Timestamp:    e.published,
		QualityScore: feedQuality(e),
		Metadata:     meta,
	}
}

// feedQuality rewards a title and longer text.
func feedQuality(e feedEntry) float64 {
	score := 0.3
	if e.title != "" {
		score += 0.2
	}
	score += 0.5 * clamp01(float64(utf8.RuneCountInString(e.text))/2000)
	return clamp01(score)
}

type rssDocument struct {
	Channel struct {
		Items []struct {
			Title       string `xml:"title"`
			Link        string `xml:"link"`
			GUID        string `xml:"guid"`
			Description string `xml:"description"`
			Content     string `xml:"http://purl.org/rss/1.0/modules/content/ encoded"`
			Author      string `xml:"author"`
			Creator     string `xml:"http://purl.org/dc/elements/1.1/ creator"`
			PubDate     string `xml:"pubDate"`
			Date        string `xml:"http://purl.org/dc/elements/1.1/ date"`
		} `xml:"item"`
	} `xml:"channel"`
}

type atomDocument struct {
	Entries []struct {
		ID    string `xml:"id"`
		Title string `xml:"title"`
		Links []struct {
			Href string `xml:"href,attr"`
			Rel  string `xml:"rel,attr"`
		} `xml:"link"`
		Summary   string `xml:"summary"`
		Content   string `xml:"content"`
		Published string `xml:"published"`
		Updated   string `xml:"updated"`
		Author    struct {
			Name string `xml:"name"`
		} `xml:"author"`
	} `xml:"entry"`
}

func parseFeed(body []byte) ([]feedEntry, error) {
	var probe struct{ XMLName xml.Name }
	if err := xml.Unmarshal(body, &probe); err != nil {
		return nil, fmt.Errorf("decode xml: %w", err)
	}

	switch strings.ToLower(probe.XMLName.Local) {
	case "rss":
		var doc rssDocument
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode rss: %w", err)
		}
		entries := make([]feedEntry, 0, len(doc.Channel.Items))
		for _, it := range doc.Channel.Items {
			text := it.Content
			if strings.TrimSpace(text) == "" {
				text = it.Description
			}
			author := it.Creator
			if author == "" {
				author = it.Author
			}
			date := it.PubDate
			if date == "" {
				date = it.Date
			}
			entries = append(entries, feedEntry{
				id:        strings.TrimSpace(it.GUID),
				title:     collapseSpace(it.Title),
				link:      strings.TrimSpace(it.Link),
				author:    strings.TrimSpace(author),
				text:      htmlToText(text),
				published: parseDate(date),
			})
		}
		return entries, nil

	case "feed":
		var doc atomDocument
		if err := xml.Unmarshal(body, &doc); err != nil {
			return nil, fmt.Errorf("decode atom: %w", err)
		}
		entries := make([]feedEntry, 0, len(doc.Entries))
		for _, e := range doc.Entries {
			text := e.Content
			if strings.TrimSpace(text) == "" {
				text = e.Summary
			}
			date := e.Published
			if date == "" {
				date = e.Updated
			}
			var link string
			for _, l := range e.Links {
				if l.Rel == "" || l.Rel == "alternate" {
					link = l.Href
					break
				}
			}
			entries = append(entries, feedEntry{
				id:        strings.TrimSpace(e.ID),
				title:     collapseSpace(e.Title),
				link:      strings.TrimSpace(link),
				author:    strings.TrimSpace(e.Author.Name),
				text:      htmlToText(text),
				published: parseDate(date),
			})
		}
		return entries, nil
	}
	return nil, fmt.Errorf("unsupported feed root <%s>", probe.XMLName.Local)
}

func parseDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	t, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}
	}
	return t.UTC()
}
