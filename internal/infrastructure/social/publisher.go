package social

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"ContentDigest/internal/config"
	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

const (
	defaultTimeout = 15 * time.Second
	maxPostRunes   = 280
)

// Publisher posts digests to a social publishing webhook.
type Publisher struct {
	endpoint string
	token    string
	http     *http.Client
}

var _ ports.Distributor = (*Publisher)(nil)

// NewPublisher creates a reusable HTTP client for the configured endpoint.
func NewPublisher(cfg config.SocialConfig, client *http.Client) (*Publisher, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, errors.New("social publisher misconfigured: endpoint is required")
	}
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &Publisher{endpoint: cfg.Endpoint, token: cfg.Token, http: client}, nil
}

func (p *Publisher) Channel() domain.Channel { return domain.ChannelSocial }

type postPayload struct {
	DigestID    string    `json:"digest_id"`
	Text        string    `json:"text"`
	Title       string    `json:"title"`
	Summary     string    `json:"summary"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	ItemCount   int       `json:"item_count"`
}

// Send publishes a short post built from the digest summary. The published URL
// is read from the "url" (or "data.url") field of the response.
func (p *Publisher) Send(ctx context.Context, view domain.DigestView) domain.DistributionResult {
	res := domain.DistributionResult{Channel: domain.ChannelSocial}

	payload := postPayload{
		DigestID:    view.ID,
		Text:        postText(view),
		Title:       view.Title,
		Summary:     view.Summary,
		WindowStart: view.WindowStart.UTC(),
		WindowEnd:   view.WindowEnd.UTC(),
		ItemCount:   view.ItemCount,
	}

	body, err := p.post(ctx, payload)
	if err != nil {
		res.Err = err
		return res
	}

	parsed := gjson.ParseBytes(body)
	res.URL = parsed.Get("url").String()
	if res.URL == "" {
		res.URL = parsed.Get("data.url").String()
	}
	res.Success = true
	return res
}

func (p *Publisher) post(ctx context.Context, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.token != "" {
		req.Header.Set("Authorization", "Bearer "+p.token)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %s: %s", resp.Status, strings.TrimSpace(string(truncate(data, 256))))
	}
	return data, nil
}

// postText prefers the summary and falls back to the title, trimmed to one post.
func postText(v domain.DigestView) string {
	text := strings.TrimSpace(v.Summary)
	if text == "" {
		text = strings.TrimSpace(v.Title)
	}
	r := []rune(text)
	if len(r) > maxPostRunes {
		text = string(r[:maxPostRunes-1]) + "…"
	}
	return text
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
