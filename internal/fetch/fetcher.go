// Package fetch retrieves raw items from configured sources. One fetcher
// per source type, dispatched through a registry.
package fetch

import (
	"context"
	"fmt"

	"kbingest/internal/domain"
)

// Result is the outcome of one source fetch. NotModified means the
// watermark still holds and Items is empty.
type Result struct {
	Items        []domain.RawItem
	ETag         string
	LastModified string
	NotModified  bool
	// ItemErrors counts malformed items skipped without aborting the fetch.
	ItemErrors int
}

// Fetcher retrieves raw items for one source type. A transport or auth
// failure returns *domain.FetchError; partial malformed content must not.
type Fetcher interface {
	Type() domain.SourceType
	Fetch(ctx context.Context, src domain.SourceConfig, mark domain.Watermark) (*Result, error)
}

// Registry maps source types to their fetcher implementations.
type Registry struct {
	fetchers map[domain.SourceType]Fetcher
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{fetchers: map[domain.SourceType]Fetcher{}}
}

// Register adds or replaces a fetcher implementation.
func (r *Registry) Register(f Fetcher) {
	if r.fetchers == nil {
		r.fetchers = map[domain.SourceType]Fetcher{}
	}
	r.fetchers[f.Type()] = f
}

// Resolve returns the fetcher for a source type or an error if absent.
func (r *Registry) Resolve(t domain.SourceType) (Fetcher, error) {
	if f, ok := r.fetchers[t]; ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: no fetcher for %q", domain.ErrUnsupportedSourceType, t)
}

const userAgent = "kbingest/1.0"
