// Package fetch retrieves raw content for monitored targets.
//
// Each target type has its own Fetcher: plain HTTP for websites, an
// authenticated headless browser for LinkedIn profiles and companies.
// Failures are classified (see Kind) so the worker can choose between
// retrying, pausing for re-authentication, and deactivating the target.
package fetch

import (
	"context"
	"fmt"
)

// Result is the raw outcome of a successful fetch, before canonicalization.
type Result struct {
	Body      []byte // raw HTML (website) or rendered DOM (linkedin)
	Title     string
	FetchedAt int64 // ms since epoch
}

// Fetcher retrieves content for one class of target.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Result, error)
}

// Registry maps a target type to its Fetcher.
type Registry struct {
	byType map[string]Fetcher
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byType: make(map[string]Fetcher)}
}

// Register binds a fetcher to a target type, replacing any previous binding.
func (r *Registry) Register(targetType string, f Fetcher) {
	r.byType[targetType] = f
}

// For returns the fetcher bound to targetType.
func (r *Registry) For(targetType string) (Fetcher, error) {
	f, ok := r.byType[targetType]
	if !ok {
		return nil, fmt.Errorf("fetch: no fetcher for target type %q", targetType)
	}
	return f, nil
}
