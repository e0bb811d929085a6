package affiliate

import (
	"context"
	"errors"

	"zapmark/internal/domain"
)

type SortBy string

const (
	SortCommissionDesc SortBy = "commission_desc"
	SortPriceAsc       SortBy = "price_asc"
)

type SearchFilters struct {
	Categories  []string
	MinPrice    float64
	MaxPrice    float64
	MinDiscount int
	SortBy      SortBy
	Limit       int
}

// ErrSearchUnsupported marks providers that can only convert links, not
// search for offers. Search-mode runs log a skipped entry for them.
var ErrSearchUnsupported = errors.New("store does not support offer search")

// Provider is one affiliate store integration. AffiliateLink may be an
// identity passthrough for stores without a conversion API.
type Provider interface {
	Key() string
	// MatchesProductURL reports whether rawURL is a product link of this
	// store (domain allow-list plus product-path heuristics).
	MatchesProductURL(rawURL string) bool
	Search(ctx context.Context, creds domain.StoreCredential, f SearchFilters) ([]domain.Offer, error)
	AffiliateLink(ctx context.Context, creds domain.StoreCredential, rawURL string) (string, error)
}

// Registry holds the configured providers in a stable order.
type Registry struct {
	providers []Provider
	byKey     map[string]Provider
}

func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byKey: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		r.providers = append(r.providers, p)
		r.byKey[p.Key()] = p
	}
	return r
}

func (r *Registry) Get(key string) (Provider, bool) {
	p, ok := r.byKey[key]
	return p, ok
}

// DetectStore returns the key of the provider whose patterns match
// rawURL, or false when no store claims it.
func (r *Registry) DetectStore(rawURL string) (string, bool) {
	for _, p := range r.providers {
		if p.MatchesProductURL(rawURL) {
			return p.Key(), true
		}
	}
	return "", false
}
