package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zapmark/internal/affiliate"
	"zapmark/internal/domain"
	"zapmark/internal/observability"
)

const searchLimit = 20

// runSearch queries every credentialed store for fresh offers and sends
// at most one new deal per store per run. One product per tick is the
// intended throttle, not a batch blast.
func (s *Scheduler) runSearch(ctx context.Context, a domain.Automation, now time.Time) error {
	creds, err := s.Store.ActiveCredentials(ctx, a.UserID, a.Stores)
	if err != nil {
		return err
	}
	if len(creds) == 0 {
		return errors.New("configure suas credenciais de loja para usar a automação")
	}

	instance, ok, err := s.Store.ActiveInstance(ctx, a.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("nenhuma instância do WhatsApp conectada")
	}

	filters := affiliate.SearchFilters{
		Categories:  a.Categories,
		MinPrice:    a.MinPrice,
		MaxPrice:    a.MaxPrice,
		MinDiscount: a.MinDiscount,
		SortBy:      sortFor(a.Priority),
		Limit:       searchLimit,
	}

	for _, cred := range creds {
		provider, ok := s.Providers.Get(cred.Store)
		if !ok {
			slog.Warn("no provider for credentialed store", "store", cred.Store)
			continue
		}

		offers, err := provider.Search(ctx, cred, filters)
		if errors.Is(err, affiliate.ErrSearchUnsupported) {
			s.logDispatch(ctx, domain.DispatchEntry{
				AutomationID: a.ID, Store: cred.Store,
				Status: domain.DispatchSkipped, Error: "loja não suporta busca de ofertas",
			})
			continue
		}
		if err != nil {
			// One store failing must not stop the others.
			slog.Warn("offer search failed", "automation_id", a.ID, "store", cred.Store, "err", err)
			s.logDispatch(ctx, domain.DispatchEntry{
				AutomationID: a.ID, Store: cred.Store,
				Status: domain.DispatchError, Error: err.Error(),
			})
			continue
		}
		if len(offers) == 0 {
			s.logDispatch(ctx, domain.DispatchEntry{
				AutomationID: a.ID, Store: cred.Store,
				Status: domain.DispatchSkipped, Error: "nenhuma oferta encontrada",
			})
			continue
		}

		if err := s.dispatchOneDeal(ctx, a, cred, provider, offers, instance, now); err != nil {
			return err
		}
	}
	return nil
}

// dispatchOneDeal picks the first candidate not sent in the last 24h and
// fans it out to the send groups. No qualifying candidate is a skip, not
// an error.
func (s *Scheduler) dispatchOneDeal(ctx context.Context, a domain.Automation, cred domain.StoreCredential, provider affiliate.Provider, offers []domain.Offer, instance string, now time.Time) error {
	sent, err := s.sentSince(ctx, a.ID, now)
	if err != nil {
		return err
	}

	var deal *domain.Offer
	for i := range offers {
		if sent[offers[i].ProductURL] {
			observability.DedupSkips.Inc()
			continue
		}
		deal = &offers[i]
		break
	}
	if deal == nil {
		s.logDispatch(ctx, domain.DispatchEntry{
			AutomationID: a.ID, Store: cred.Store,
			Status: domain.DispatchSkipped, Error: "todas as ofertas já foram enviadas nas últimas 24h",
		})
		return nil
	}

	link := deal.AffiliateURL
	if link == "" {
		link, err = provider.AffiliateLink(ctx, cred, deal.ProductURL)
		if err != nil {
			s.logDispatch(ctx, domain.DispatchEntry{
				AutomationID: a.ID, Store: cred.Store, ProductURL: deal.ProductURL,
				Status: domain.DispatchError, Error: "falha ao gerar link de afiliado: " + err.Error(),
			})
			return nil
		}
	}

	message := BuildOfferMessage(a, *deal, link)
	s.fanOut(ctx, a, instance, cred.Store, deal.ProductURL, link, message)
	return nil
}

func sortFor(p domain.Priority) affiliate.SortBy {
	if p == domain.PriorityDiscount {
		return affiliate.SortCommissionDesc
	}
	return affiliate.SortPriceAsc
}
