package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"zapmark/internal/affiliate"
	"zapmark/internal/domain"
)

const historyLimit = 50

// runMonitor scans the monitored groups for product links posted by
// others and routes the first new one to the send groups. At most one
// link is processed per invocation, across all groups and messages;
// that throttle is deliberate.
func (s *Scheduler) runMonitor(ctx context.Context, a domain.Automation, now time.Time) error {
	if len(a.MonitorGroups) == 0 || len(a.SendGroups) == 0 {
		return errors.New("configure os grupos monitorados e os grupos de envio")
	}

	instance, ok, err := s.Store.ActiveInstance(ctx, a.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("nenhuma instância do WhatsApp conectada")
	}

	self, err := s.Gateway.SessionIdentity(ctx, instance)
	if err != nil {
		return err
	}

	sent, err := s.sentSince(ctx, a.ID, now)
	if err != nil {
		return err
	}

	creds, err := s.Store.ActiveCredentials(ctx, a.UserID, a.Stores)
	if err != nil {
		return err
	}
	credByStore := make(map[string]domain.StoreCredential, len(creds))
	for _, c := range creds {
		credByStore[c.Store] = c
	}

	for _, groupJID := range a.MonitorGroups {
		messages, err := s.Gateway.RecentMessages(ctx, instance, groupJID, historyLimit)
		if err != nil {
			slog.Warn("history fetch failed", "automation_id", a.ID, "group", groupJID, "err", err)
			s.logDispatch(ctx, domain.DispatchEntry{
				AutomationID: a.ID, GroupJID: groupJID,
				Status: domain.DispatchError, Error: "falha ao ler histórico: " + err.Error(),
			})
			continue
		}

		for _, m := range messages {
			if m.FromMe || m.SenderJID == self {
				continue
			}
			if m.Text == "" {
				continue
			}

			rawURL, storeKey, found := affiliate.FirstProductLink(m.Text, s.Providers)
			if !found {
				continue
			}
			if sent[rawURL] {
				continue
			}
			cred, hasCred := credByStore[storeKey]
			if !hasCred {
				continue
			}

			provider, _ := s.Providers.Get(storeKey)
			link, err := provider.AffiliateLink(ctx, cred, rawURL)
			if err != nil {
				slog.Warn("link conversion failed", "automation_id", a.ID, "store", storeKey, "err", err)
				s.logDispatch(ctx, domain.DispatchEntry{
					AutomationID: a.ID, Store: storeKey, ProductURL: rawURL,
					Status: domain.DispatchError, Error: "falha ao gerar link de afiliado: " + err.Error(),
				})
				continue
			}

			message := BuildMonitorMessage(a, link)
			s.fanOut(ctx, a, instance, storeKey, rawURL, link, message)

			// One routed link ends the run, even if some group sends
			// above failed.
			return nil
		}
	}
	return nil
}
