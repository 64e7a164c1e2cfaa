// Package search keeps a denormalized copy of stored entities in a
// full-text engine and resolves queries to heap ids.
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
)

// MemoryEndpoint selects the in-process mirror.
const MemoryEndpoint = "memory://"

// Mirror is a full-text index holding one document per stored entity.
// Every document carries a numeric "id" field.
type Mirror interface {
	// AddDocuments upserts docs, which must marshal to a JSON array.
	AddDocuments(ctx context.Context, index string, docs any) error
	// Search returns ids of matching documents, best match first.
	Search(ctx context.Context, index, query string) ([]uint64, error)
}

// Options configures New.
type Options struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	MaxHits  int
	// Dial overrides how the HTTP client connects; nil uses TCP.
	Dial fasthttp.DialFunc
}

// New builds the mirror named by opts.Endpoint.
func New(opts Options) (Mirror, error) {
	ep := strings.TrimSpace(opts.Endpoint)
	switch {
	case ep == MemoryEndpoint:
		return NewMemory(), nil
	case strings.HasPrefix(ep, "http://"), strings.HasPrefix(ep, "https://"):
		return NewMeili(opts), nil
	default:
		return nil, fmt.Errorf("search: unsupported endpoint %q", opts.Endpoint)
	}
}
