package scheduler

import (
	"context"
	"strings"
	"testing"
	"time"

	"zapmark/internal/domain"
	"zapmark/internal/gateway"
)

func monitorAutomation() domain.Automation {
	return domain.Automation{
		ID:              "auto-m1",
		UserID:          "u1",
		Mode:            domain.ModeMonitor,
		Status:          domain.AutomationActive,
		Stores:          []string{"shopee"},
		MonitorGroups:   []string{"mon1@g.us", "mon2@g.us"},
		SendGroups:      []string{"send1@g.us"},
		IntervalMinutes: 15,
	}
}

func monitorFixture(history map[string][]gateway.ChatMessage) (*fakeStore, *fakeGateway, *Scheduler) {
	st := &fakeStore{
		automations: []domain.Automation{monitorAutomation()},
		creds:       []domain.StoreCredential{{Store: "shopee", Active: true}},
		instance:    "inst",
		hasInstance: true,
	}
	gw := &fakeGateway{history: history, identity: "self@s.whatsapp.net"}
	p := &fakeProvider{key: "shopee", domain: "shopee.com.br"}
	return st, gw, newScheduler(st, gw, p)
}

func msg(sender, text string) gateway.ChatMessage {
	return gateway.ChatMessage{SenderJID: sender, Text: text}
}

func TestMonitorRoutesFirstLinkOnly(t *testing.T) {
	history := map[string][]gateway.ChatMessage{
		"mon1@g.us": {
			msg("a@s.whatsapp.net", "olha essa https://shopee.com.br/product/1/1"),
			msg("b@s.whatsapp.net", "e essa https://shopee.com.br/product/2/2"),
		},
		"mon2@g.us": {
			msg("c@s.whatsapp.net", "https://shopee.com.br/product/3/3"),
		},
	}
	st, gw, s := monitorFixture(history)

	res, err := s.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Processed != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
	if len(gw.sent) != 1 {
		t.Fatalf("expected exactly one routed link, got %d sends", len(gw.sent))
	}
	if !strings.Contains(gw.sent[0].text, "https://short.link/shopee") {
		t.Fatalf("expected converted link in message, got %q", gw.sent[0].text)
	}
	var sentRows int
	for _, d := range st.dispatches {
		if d.Status == domain.DispatchSent {
			sentRows++
			if d.ProductURL != "https://shopee.com.br/product/1/1" {
				t.Fatalf("expected first link routed, got %q", d.ProductURL)
			}
		}
	}
	if sentRows != 1 {
		t.Fatalf("expected one sent row, got %d", sentRows)
	}
}

func TestMonitorSkipsOwnMessages(t *testing.T) {
	history := map[string][]gateway.ChatMessage{
		"mon1@g.us": {
			msg("self@s.whatsapp.net", "https://shopee.com.br/product/1/1"),
			{SenderJID: "a@s.whatsapp.net", FromMe: true, Text: "https://shopee.com.br/product/2/2"},
		},
	}
	_, gw, s := monitorFixture(history)

	if _, err := s.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(gw.sent) != 0 {
		t.Fatalf("own messages must not be routed, got %d sends", len(gw.sent))
	}
}

func TestMonitorSkipsRecentlySentLink(t *testing.T) {
	history := map[string][]gateway.ChatMessage{
		"mon1@g.us": {
			msg("a@s.whatsapp.net", "https://shopee.com.br/product/1/1"),
			msg("b@s.whatsapp.net", "https://shopee.com.br/product/2/2"),
		},
	}
	st, gw, s := monitorFixture(history)
	st.sentURLs = []string{"https://shopee.com.br/product/1/1"}

	if _, err := s.Run(context.Background(), time.Now()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(gw.sent) != 1 {
		t.Fatalf("expected one send, got %d", len(gw.sent))
	}
	for _, d := range st.dispatches {
		if d.Status == domain.DispatchSent && d.ProductURL != "https://shopee.com.br/product/2/2" {
			t.Fatalf("expected deduped link skipped, routed %q", d.ProductURL)
		}
	}
}

func TestMonitorIgnoresStoresWithoutCredentials(t *testing.T) {
	history := map[string][]gateway.ChatMessage{
		"mon1@g.us": {
			msg("a@s.whatsapp.net", "https://shopee.com.br/product/1/1"),
		},
	}
	st, gw, s := monitorFixture(history)
	st.creds = nil

	res, err := s.Run(context.Background(), time.Now())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if res.Errors != 0 {
		t.Fatalf("missing credential is a silent skip, got %+v", res)
	}
	if len(gw.sent) != 0 {
		t.Fatalf("expected no sends, got %d", len(gw.sent))
	}
}

func TestMonitorMissingGroupsIsHardError(t *testing.T) {
	a := monitorAutomation()
	a.SendGroups = nil
	st := &fakeStore{
		automations: []domain.Automation{a},
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
	if len(st.runUpdates) != 1 || !strings.Contains(st.runUpdates[0].LastError, "grupos") {
		t.Fatalf("expected group config error recorded, got %+v", st.runUpdates)
	}
}
