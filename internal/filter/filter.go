// Package filter applies the uniform quality and age thresholds to collected content.
package filter

import (
	"time"

	"ContentDigest/internal/domain"
)

// Criteria holds the two independent thresholds.
// A non-positive MaxAge disables the age bound.
type Criteria struct {
	MinQuality float64
	MaxAge     time.Duration
}

// Reason explains why an item was excluded.
type Reason string

const (
	ReasonQuality Reason = "quality"
	ReasonAge     Reason = "age"
)

// Excluded pairs a dropped item with the first failed condition.
type Excluded struct {
	Item   domain.ContentItem
	Reason Reason
}

// Keep reports whether a single item passes both thresholds.
// The age ceiling is inclusive.
func (c Criteria) Keep(item domain.ContentItem, now time.Time) bool {
	_, ok := c.check(item, now)
	return ok
}

func (c Criteria) check(item domain.ContentItem, now time.Time) (Reason, bool) {
	if item.QualityScore < c.MinQuality {
		return ReasonQuality, false
	}
	if c.MaxAge > 0 && item.Age(now) > c.MaxAge {
		return ReasonAge, false
	}
	return "", true
}

// Apply returns the retained items in their original order.
func Apply(items []domain.ContentItem, c Criteria, now time.Time) []domain.ContentItem {
	kept, _ := Partition(items, c, now)
	return kept
}

// Partition splits items into retained and excluded sets, both order-preserving.
func Partition(items []domain.ContentItem, c Criteria, now time.Time) ([]domain.ContentItem, []Excluded) {
	kept := make([]domain.ContentItem, 0, len(items))
	var dropped []Excluded
	for _, item := range items {
		if reason, ok := c.check(item, now); !ok {
			dropped = append(dropped, Excluded{Item: item, Reason: reason})
			continue
		}
		kept = append(kept, item)
	}
	return kept, dropped
}
