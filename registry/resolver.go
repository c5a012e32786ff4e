package registry

import (
	"log/slog"

	"github.com/poiesic/itk/core"
	"github.com/poiesic/itk/metrics"
)

// Groups maps an entity name to the documents attributed to it.
type Groups map[string][]core.Document

// Resolver attributes documents to entities through the registry's URL index.
type Resolver struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewResolver creates a Resolver over reg. Logger and metrics may be nil.
func NewResolver(reg *Registry, logger *slog.Logger, m *metrics.Metrics) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		registry: reg,
		logger:   logger.With("component", "resolver"),
		metrics:  m,
	}
}

// Group buckets documents by owning entity, preserving document order within
// each bucket. Documents whose source is not registered are dropped, logged,
// and counted in the returned unattributed total.
func (r *Resolver) Group(docs []core.Document) (Groups, int) {
	groups := make(Groups)
	unattributed := 0
	for _, doc := range docs {
		entity, ok := r.registry.Owner(doc.Source)
		if !ok {
			unattributed++
			r.logger.Warn("document source matches no registered url", "url", doc.Source)
			continue
		}
		groups[entity] = append(groups[entity], doc)
	}
	r.metrics.ObserveUnattributed(unattributed)
	return groups, unattributed
}
