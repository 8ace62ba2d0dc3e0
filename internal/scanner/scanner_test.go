package scanner

import (
	"context"
	"testing"

	"ContentDigest/internal/domain"
)

type stubCollector struct{ t domain.SourceType }

func (s stubCollector) SourceType() domain.SourceType { return s.t }

func (s stubCollector) Fetch(context.Context, string, domain.FetchLimits) ([]domain.ContentItem, error) {
	return nil, nil
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry(stubCollector{domain.SourceFeed}, stubCollector{domain.SourceSocial})

	if _, err := r.Resolve(domain.SourceFeed); err != nil {
		t.Fatalf("Resolve(feed): %v", err)
	}
	if _, err := r.Resolve(domain.SourceChannel); err == nil {
		t.Fatal("expected error for unregistered channel collector")
	}

	types := r.Types()
	if len(types) != 2 || types[0] != domain.SourceSocial || types[1] != domain.SourceFeed {
		t.Fatalf("unexpected order: %v", types)
	}
}
