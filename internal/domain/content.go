package domain

import "time"

// SourceType names one category of origin.
type SourceType string

const (
	SourceSocial  SourceType = "social"
	SourceChannel SourceType = "channel"
	SourceFeed    SourceType = "feed"
)

// SourceTypes lists the known source types in collection order.
var SourceTypes = []SourceType{SourceSocial, SourceChannel, SourceFeed}

// ContentItem is a single piece of collected content.
type ContentItem struct {
	ID           string
	SourceType   SourceType
	SourceKey    string
	Text         string
	URL          string
	Author       string
	Timestamp    time.Time
	QualityScore float64
	Metadata     map[string]string
}

// DedupKey is the natural key used to upsert cached items.
func (c ContentItem) DedupKey() string {
	if c.URL != "" {
		return c.URL
	}
	return string(c.SourceType) + ":" + c.ID
}

// Age reports how old the item is relative to now.
func (c ContentItem) Age(now time.Time) time.Duration {
	return now.Sub(c.Timestamp)
}

// CacheRecord is the cached snapshot for one source key.
type CacheRecord struct {
	SourceType SourceType
	SourceKey  string
	Items      []ContentItem
	FetchedAt  time.Time
}

// Fresh reports whether the record may be served without refetching.
// Item count plays no part in the decision.
func (r CacheRecord) Fresh(now time.Time, ttl time.Duration) bool {
	if r.FetchedAt.IsZero() {
		return false
	}
	return now.Sub(r.FetchedAt) <= ttl
}

// FetchLimits bounds a single collector call.
type FetchLimits struct {
	MaxItems int
	Since    time.Time
}
