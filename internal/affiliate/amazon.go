package affiliate

import (
	"context"
	"regexp"

	"zapmark/internal/domain"
)

// Amazon has no search/conversion API wired yet: links found in
// monitored groups pass through unchanged. Kept here so store detection
// and credential gating work the same as for full providers.
type Amazon struct{}

const AmazonKey = "amazon"

func (Amazon) Key() string { return AmazonKey }

var amazonPattern = LinkPattern{
	Domains:      []string{"amazon.com.br", "amazon.com"},
	ShortDomains: []string{"amzn.to"},
	ProductPaths: []*regexp.Regexp{
		regexp.MustCompile(`/dp/[a-z0-9]{10}`),
		regexp.MustCompile(`/gp/product/`),
	},
	RejectPaths: []string{"/b/", "/bestsellers", "/deals", "/s?"},
}

func (Amazon) MatchesProductURL(rawURL string) bool { return amazonPattern.Match(rawURL) }

func (Amazon) Search(ctx context.Context, creds domain.StoreCredential, f SearchFilters) ([]domain.Offer, error) {
	return nil, ErrSearchUnsupported
}

func (Amazon) AffiliateLink(ctx context.Context, creds domain.StoreCredential, rawURL string) (string, error) {
	return rawURL, nil
}
