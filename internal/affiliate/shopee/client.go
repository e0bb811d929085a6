// Package shopee implements the Shopee open-platform affiliate API:
// GraphQL over HTTP with an SHA256 app-credential signature.
package shopee

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"zapmark/internal/affiliate"
	"zapmark/internal/domain"
)

const Key = "shopee"

// Shopee sortType values for productOfferV2.
const (
	sortPriceAsc       = 3
	sortCommissionDesc = 5
)

type Client struct {
	BaseURL string
	HTTP    *http.Client

	// now is swappable in tests; the signature embeds a timestamp.
	now func() time.Time
}

func New(baseURL string, httpClient *http.Client) *Client {
	return &Client{BaseURL: baseURL, HTTP: httpClient, now: time.Now}
}

func (c *Client) Key() string { return Key }

var pattern = affiliate.LinkPattern{
	Domains:      []string{"shopee.com.br", "shopee.com"},
	ShortDomains: []string{"s.shopee.com.br", "shp.ee"},
	ProductPaths: []*regexp.Regexp{
		regexp.MustCompile(`/product/\d+/\d+`),
		regexp.MustCompile(`-i\.\d+\.\d+`),
	},
	RejectPaths: []string{"/m/", "/collections", "/cupom", "/cat.", "/flash_sale", "/search", "/universal-link"},
}

func (c *Client) MatchesProductURL(rawURL string) bool { return pattern.Match(rawURL) }

type searchVars struct {
	Keyword  string `json:"keyword,omitempty"`
	SortType int    `json:"sortType"`
	Page     int    `json:"page"`
	Limit    int    `json:"limit"`
}

const searchQuery = `query offers($keyword: String, $sortType: Int!, $page: Int!, $limit: Int!) {
  productOfferV2(keyword: $keyword, sortType: $sortType, page: $page, limit: $limit) {
    nodes {
      productName
      priceMin
      priceMax
      priceDiscountRate
      commissionRate
      imageUrl
      productLink
      offerLink
    }
  }
}`

func (c *Client) Search(ctx context.Context, creds domain.StoreCredential, f affiliate.SearchFilters) ([]domain.Offer, error) {
	sortType := sortCommissionDesc
	if f.SortBy == affiliate.SortPriceAsc {
		sortType = sortPriceAsc
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}

	vars := searchVars{
		Keyword:  strings.Join(f.Categories, " "),
		SortType: sortType,
		Page:     1,
		Limit:    limit,
	}
	var resp struct {
		Data struct {
			ProductOfferV2 struct {
				Nodes []struct {
					ProductName       string `json:"productName"`
					PriceMin          string `json:"priceMin"`
					PriceMax          string `json:"priceMax"`
					PriceDiscountRate int    `json:"priceDiscountRate"`
					CommissionRate    string `json:"commissionRate"`
					ImageURL          string `json:"imageUrl"`
					ProductLink       string `json:"productLink"`
					OfferLink         string `json:"offerLink"`
				} `json:"nodes"`
			} `json:"productOfferV2"`
		} `json:"data"`
	}
	if err := c.graphql(ctx, creds, searchQuery, vars, &resp); err != nil {
		return nil, err
	}

	var out []domain.Offer
	for _, n := range resp.Data.ProductOfferV2.Nodes {
		price := parsePrice(n.PriceMin)
		if f.MinPrice > 0 && price < f.MinPrice {
			continue
		}
		if f.MaxPrice > 0 && price > f.MaxPrice {
			continue
		}
		if f.MinDiscount > 0 && n.PriceDiscountRate < f.MinDiscount {
			continue
		}
		original := price
		if n.PriceDiscountRate > 0 && n.PriceDiscountRate < 100 {
			original = price / (1 - float64(n.PriceDiscountRate)/100)
		}
		out = append(out, domain.Offer{
			Store:         Key,
			Title:         n.ProductName,
			Price:         price,
			OriginalPrice: original,
			Discount:      n.PriceDiscountRate,
			Commission:    parsePrice(n.CommissionRate),
			ProductURL:    n.ProductLink,
			AffiliateURL:  n.OfferLink,
			ImageURL:      n.ImageURL,
		})
	}
	return out, nil
}

const shortLinkQuery = `mutation link($url: String!) {
  generateShortLink(input: {originUrl: $url}) {
    shortLink
  }
}`

func (c *Client) AffiliateLink(ctx context.Context, creds domain.StoreCredential, rawURL string) (string, error) {
	var resp struct {
		Data struct {
			GenerateShortLink struct {
				ShortLink string `json:"shortLink"`
			} `json:"generateShortLink"`
		} `json:"data"`
	}
	err := c.graphql(ctx, creds, shortLinkQuery, map[string]string{"url": rawURL}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Data.GenerateShortLink.ShortLink == "" {
		return "", errors.New("shopee: empty short link")
	}
	return resp.Data.GenerateShortLink.ShortLink, nil
}

func (c *Client) graphql(ctx context.Context, creds domain.StoreCredential, query string, vars, out any) error {
	appID := creds.Fields["app_id"]
	secret := creds.Fields["secret"]
	if appID == "" || secret == "" {
		return errors.New("shopee: credential missing app_id/secret")
	}

	payload, err := json.Marshal(map[string]any{"query": query, "variables": vars})
	if err != nil {
		return err
	}

	ts := c.now().Unix()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/graphql", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", authHeader(appID, secret, ts, payload))

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("shopee: %w", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("shopee: status %d: %s", resp.StatusCode, truncate(raw, 200))
	}

	var envelope struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	if json.Unmarshal(raw, &envelope) == nil && len(envelope.Errors) > 0 {
		return fmt.Errorf("shopee: %s", envelope.Errors[0].Message)
	}
	return json.Unmarshal(raw, out)
}

// authHeader builds the open-platform signature:
// SHA256 of appID + timestamp + payload + secret.
func authHeader(appID, secret string, ts int64, payload []byte) string {
	sum := sha256.Sum256([]byte(appID + strconv.FormatInt(ts, 10) + string(payload) + secret))
	return fmt.Sprintf("SHA256 Credential=%s, Timestamp=%d, Signature=%s",
		appID, ts, hex.EncodeToString(sum[:]))
}

func parsePrice(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
