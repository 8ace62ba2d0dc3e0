package scanner

import (
	"fmt"

	"ContentDigest/internal/domain"
	"ContentDigest/internal/ports"
)

// Registry keeps a mapping from source types to their collectors.
type Registry struct {
	collectors map[domain.SourceType]ports.Collector
}

// NewRegistry builds a registry pre-filled with collectors.
func NewRegistry(collectors ...ports.Collector) *Registry {
	r := &Registry{collectors: map[domain.SourceType]ports.Collector{}}
	for _, c := range collectors {
		r.Register(c)
	}
	return r
}

// Register adds or replaces the collector for its source type.
func (r *Registry) Register(c ports.Collector) {
	if r.collectors == nil {
		r.collectors = map[domain.SourceType]ports.Collector{}
	}
	r.collectors[c.SourceType()] = c
}

// Resolve returns the collector for t or an error if it is absent.
func (r *Registry) Resolve(t domain.SourceType) (ports.Collector, error) {
	if c, ok := r.collectors[t]; ok {
		return c, nil
	}
	return nil, fmt.Errorf("collector for %s is not registered", t)
}

// Types lists registered source types in collection order.
func (r *Registry) Types() []domain.SourceType {
	var out []domain.SourceType
	for _, t := range domain.SourceTypes {
		if _, ok := r.collectors[t]; ok {
			out = append(out, t)
		}
	}
	return out
}
