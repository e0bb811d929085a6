package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"zapmark/internal/affiliate"
	"zapmark/internal/domain"
)

func searchFixture(p *fakeProvider) (*fakeStore, *fakeGateway, *Scheduler) {
	st := &fakeStore{
		automations: []domain.Automation{searchAutomation()},
		creds:       []domain.StoreCredential{{Store: "shopee", Active: true}},
		instance:    "inst",
		hasInstance: true,
	}
	gw := &fakeGateway{}
	return st, gw, newScheduler(st, gw, p)
}

func TestSearchSkipsDuplicateWithin24h(t *testing.T) {
	p := &fakeProvider{key: "shopee", domain: "shopee.com.br", offers: []domain.Offer{
		{Store: "shopee", Title: "A", ProductURL: "https://shopee.com.br/product/1/1", AffiliateURL: "https://s.shopee.com.br/a"},
		{Store: "shopee", Title: "B", ProductURL: "https://shopee.com.br/product/2/2", AffiliateURL: "https://s.shopee.com.br/b"},
	}}
	st, gw, s := searchFixture(p)
	st.sentURLs = []string{"https://shopee.com.br/product/1/1"}

	res, err := s.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(gw.sent) != 2 {
		t.Fatalf("expected fan-out to 2 groups, got %d", len(gw.sent))
	}
	for _, m := range gw.sent {
		if !strings.Contains(m.text, "https://s.shopee.com.br/b") {
			t.Fatalf("expected second offer sent, got %q", m.text)
		}
	}
	for _, d := range st.dispatches {
		if d.Status == domain.DispatchSent && d.ProductURL != "https://shopee.com.br/product/2/2" {
			t.Fatalf("unexpected sent url %q", d.ProductURL)
		}
	}
}

func TestSearchAllDuplicatesSkips(t *testing.T) {
	p := &fakeProvider{key: "shopee", domain: "shopee.com.br", offers: []domain.Offer{
		{Store: "shopee", ProductURL: "https://shopee.com.br/product/1/1", AffiliateURL: "https://s.shopee.com.br/a"},
	}}
	st, gw, s := searchFixture(p)
	st.sentURLs = []string{"https://shopee.com.br/product/1/1"}

	res, err := s.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Processed != 1 || res.Errors != 0 {
		t.Fatalf("duplicates are not an error: %+v", res)
	}
	if len(gw.sent) != 0 {
		t.Fatalf("expected zero sends, got %d", len(gw.sent))
	}
	var skipped bool
	for _, d := range st.dispatches {
		if d.Status == domain.DispatchSkipped {
			skipped = true
		}
	}
	if !skipped {
		t.Fatalf("expected a skipped dispatch row, got %+v", st.dispatches)
	}
}

func TestSearchSendsOnlyFirstDealPerRun(t *testing.T) {
	p := &fakeProvider{key: "shopee", domain: "shopee.com.br", offers: []domain.Offer{
		{Store: "shopee", ProductURL: "https://shopee.com.br/product/1/1", AffiliateURL: "https://s.shopee.com.br/a"},
		{Store: "shopee", ProductURL: "https://shopee.com.br/product/2/2", AffiliateURL: "https://s.shopee.com.br/b"},
		{Store: "shopee", ProductURL: "https://shopee.com.br/product/3/3", AffiliateURL: "https://s.shopee.com.br/c"},
	}}
	st, gw, s := searchFixture(p)

	if _, err := s.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("run: %v", err)
	}
	// One deal, fanned out to both send groups.
	if len(gw.sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(gw.sent))
	}
	var sentRows int
	for _, d := range st.dispatches {
		if d.Status == domain.DispatchSent {
			sentRows++
			if d.ProductURL != "https://shopee.com.br/product/1/1" {
				t.Fatalf("expected only the first deal, got %q", d.ProductURL)
			}
		}
	}
	if sentRows != 2 {
		t.Fatalf("expected 2 sent rows, got %d", sentRows)
	}
}

func TestSearchEmptyResultsIsSkipNotError(t *testing.T) {
	p := &fakeProvider{key: "shopee", domain: "shopee.com.br"}
	st, _, s := searchFixture(p)

	res, err := s.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Processed != 1 || res.Errors != 0 {
		t.Fatalf("empty results are not an error: %+v", res)
	}
	if len(st.dispatches) != 1 || st.dispatches[0].Status != domain.DispatchSkipped {
		t.Fatalf("expected one skipped row, got %+v", st.dispatches)
	}
}

func TestSearchRegeneratesMissingAffiliateLink(t *testing.T) {
	p := &fakeProvider{key: "shopee", domain: "shopee.com.br", offers: []domain.Offer{
		{Store: "shopee", ProductURL: "https://shopee.com.br/product/1/1"}, // no short link
	}}
	st, gw, s := searchFixture(p)

	if _, err := s.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(gw.sent) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(gw.sent))
	}
	if !strings.Contains(gw.sent[0].text, "https://short.link/shopee") {
		t.Fatalf("expected regenerated link in message, got %q", gw.sent[0].text)
	}
	for _, d := range st.dispatches {
		if d.Status == domain.DispatchSent && d.AffiliateURL != "https://short.link/shopee" {
			t.Fatalf("expected affiliate url recorded, got %q", d.AffiliateURL)
		}
	}
}

func TestSearchUnsupportedStoreIsSkipped(t *testing.T) {
	st := &fakeStore{
		automations: []domain.Automation{searchAutomation()},
		creds:       []domain.StoreCredential{{Store: "amazon", Active: true}},
		instance:    "inst",
		hasInstance: true,
	}
	st.automations[0].Stores = []string{"amazon"}
	gw := &fakeGateway{}
	s := newScheduler(st, gw, affiliate.Amazon{})

	res, err := s.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Errors != 0 {
		t.Fatalf("unsupported search is not an error: %+v", res)
	}
	if len(st.dispatches) != 1 || st.dispatches[0].Status != domain.DispatchSkipped {
		t.Fatalf("expected skipped row, got %+v", st.dispatches)
	}
}

func TestSearchNoCredentialsIsHardError(t *testing.T) {
	st := &fakeStore{
		automations: []domain.Automation{searchAutomation()},
		instance:    "inst",
		hasInstance: true,
	}
	s := newScheduler(st, &fakeGateway{}, &fakeProvider{key: "shopee", domain: "shopee.com.br"})

	res, err := s.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Errors != 1 {
		t.Fatalf("expected hard error, got %+v", res)
	}
	if len(st.runUpdates) != 1 || !strings.Contains(st.runUpdates[0].LastError, "credenciais") {
		t.Fatalf("expected credential error recorded, got %+v", st.runUpdates)
	}
}
