package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"zapmark/internal/affiliate"
	"zapmark/internal/domain"
	"zapmark/internal/gateway"
	"zapmark/internal/observability"
	"zapmark/internal/store"
	"zapmark/internal/util"
)

// ErrNotFound is returned by RunOne for an unknown automation id.
var ErrNotFound = errors.New("automation not found")

type Store interface {
	ListDueAutomations(ctx context.Context, now time.Time) ([]domain.Automation, error)
	GetAutomation(ctx context.Context, id string) (domain.Automation, bool, error)
	UpdateAutomationRun(ctx context.Context, in store.AutomationRunUpdate) error
	AcquireLock(ctx context.Context, automationID string, until, now time.Time) (*time.Time, bool, error)
	ReleaseLock(ctx context.Context, in store.LockRelease) error
	AppendDispatch(ctx context.Context, e domain.DispatchEntry) error
	SentProductURLsSince(ctx context.Context, automationID string, since time.Time) ([]string, error)
	ActiveCredentials(ctx context.Context, userID string, stores []string) ([]domain.StoreCredential, error)
	ActiveInstance(ctx context.Context, userID string) (string, bool, error)
}

type Gateway interface {
	SendText(ctx context.Context, instance, groupJID, text string, mentions []string) error
	RecentMessages(ctx context.Context, instance, groupJID string, limit int) ([]gateway.ChatMessage, error)
	SessionIdentity(ctx context.Context, instance string) (string, error)
}

// EventSink mirrors dispatch-log entries to an external stream (the
// dashboard activity feed). Publishing is best effort.
type EventSink interface {
	Publish(ctx context.Context, e domain.DispatchEntry) error
}

// Scheduler runs due automations: lock lease, interval throttle, then
// the mode handler. One invocation does one bounded pass and returns.
type Scheduler struct {
	Store     Store
	Gateway   Gateway
	Providers *affiliate.Registry
	Loc       *time.Location
	LockLease time.Duration // lease long enough for one run, short enough to self-heal
	SendPace  *rate.Limiter // spacing between outbound group sends
	Events    EventSink
}

type Result struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
	Total     int `json:"total"`
}

// Run executes every due automation: active, inside its time-of-day
// window, next_run_at elapsed.
func (s *Scheduler) Run(ctx context.Context, now time.Time) (Result, error) {
	due, err := s.Store.ListDueAutomations(ctx, now)
	if err != nil {
		return Result{}, fmt.Errorf("list due automations: %w", err)
	}

	var res Result
	for _, a := range due {
		if !inWindow(now.In(s.location()), a.StartTime, a.EndTime) {
			continue
		}
		res.Total++
		switch s.runAutomation(ctx, a, now, false) {
		case runOK:
			res.Processed++
		case runErrored:
			res.Errors++
		}
	}
	return res, nil
}

// RunOne forces a single automation, bypassing the window and interval
// checks. The lock still applies: a forced run never overlaps an
// in-flight one.
func (s *Scheduler) RunOne(ctx context.Context, automationID string, now time.Time) (Result, error) {
	a, found, err := s.Store.GetAutomation(ctx, automationID)
	if err != nil {
		return Result{}, fmt.Errorf("get automation: %w", err)
	}
	if !found {
		return Result{}, fmt.Errorf("%w: %s", ErrNotFound, automationID)
	}

	res := Result{Total: 1}
	switch s.runAutomation(ctx, a, now, true) {
	case runOK:
		res.Processed++
	case runErrored:
		res.Errors++
	}
	return res, nil
}

type runOutcome int

const (
	runSkipped runOutcome = iota
	runOK
	runErrored
)

func (s *Scheduler) runAutomation(ctx context.Context, a domain.Automation, now time.Time, forced bool) runOutcome {
	log := slog.With("automation_id", a.ID, "mode", string(a.Mode))

	lease := s.LockLease
	if lease <= 0 {
		lease = 90 * time.Second
	}

	lastSent, acquired, err := s.Store.AcquireLock(ctx, a.ID, now.Add(lease), now)
	if err != nil {
		log.Error("lock acquire failed", "err", err)
		return runErrored
	}
	if !acquired {
		log.Info("automation locked, skipping")
		return runSkipped
	}

	interval := time.Duration(a.IntervalMinutes) * time.Minute
	if !forced && lastSent != nil && now.Sub(*lastSent) < interval {
		// Not due yet; give the lease back untouched.
		if err := s.Store.ReleaseLock(ctx, store.LockRelease{AutomationID: a.ID, Now: now}); err != nil {
			log.Error("lock release failed", "err", err)
		}
		return runSkipped
	}

	runErr := s.dispatch(ctx, a, now)
	if runErr != nil {
		log.Error("automation run failed", "err", runErr)
		observability.AutomationRuns.WithLabelValues(string(a.Mode), "error").Inc()
		s.logDispatch(ctx, domain.DispatchEntry{
			AutomationID: a.ID,
			Status:       domain.DispatchError,
			Error:        runErr.Error(),
		})
		if err := s.Store.UpdateAutomationRun(ctx, store.AutomationRunUpdate{
			ID: a.ID, LastRunAt: now, NextRunAt: a.NextRunAt, LastError: runErr.Error(),
		}); err != nil {
			log.Error("run meta update failed", "err", err)
		}
		if err := s.Store.ReleaseLock(ctx, store.LockRelease{AutomationID: a.ID, Now: now}); err != nil {
			log.Error("lock release failed", "err", err)
		}
		return runErrored
	}

	next := now.Add(interval)
	observability.AutomationRuns.WithLabelValues(string(a.Mode), "ok").Inc()
	if err := s.Store.UpdateAutomationRun(ctx, store.AutomationRunUpdate{
		ID: a.ID, LastRunAt: now, NextRunAt: &next,
	}); err != nil {
		log.Error("run meta update failed", "err", err)
	}
	if err := s.Store.ReleaseLock(ctx, store.LockRelease{
		AutomationID: a.ID, LastSentAt: &now, NextRunAt: &next, Now: now,
	}); err != nil {
		log.Error("lock release failed", "err", err)
	}
	return runOK
}

func (s *Scheduler) dispatch(ctx context.Context, a domain.Automation, now time.Time) error {
	switch a.Mode {
	case domain.ModeSearch:
		return s.runSearch(ctx, a, now)
	case domain.ModeMonitor:
		return s.runMonitor(ctx, a, now)
	default:
		return fmt.Errorf("unknown automation mode %q", a.Mode)
	}
}

// fanOut sends one formatted message to every send group, pacing the
// sends and logging one dispatch row per group.
func (s *Scheduler) fanOut(ctx context.Context, a domain.Automation, instance, storeKey, productURL, affiliateURL, message string) {
	for _, jid := range a.SendGroups {
		if s.SendPace != nil {
			if err := s.SendPace.Wait(ctx); err != nil {
				return
			}
		}

		entry := domain.DispatchEntry{
			AutomationID: a.ID,
			Store:        storeKey,
			GroupJID:     jid,
			ProductURL:   productURL,
			AffiliateURL: affiliateURL,
		}
		if err := s.Gateway.SendText(ctx, instance, jid, message, nil); err != nil {
			entry.Status = domain.DispatchError
			entry.Error = err.Error()
		} else {
			entry.Status = domain.DispatchSent
		}
		s.logDispatch(ctx, entry)
	}
}

func (s *Scheduler) logDispatch(ctx context.Context, e domain.DispatchEntry) {
	e.ID = util.NewDispatchID()
	e.CreatedAt = util.NowUTC()
	if err := s.Store.AppendDispatch(ctx, e); err != nil {
		slog.Error("dispatch log append failed", "automation_id", e.AutomationID, "err", err)
	}
	observability.Dispatches.WithLabelValues(orUnknown(e.Store), string(e.Status)).Inc()
	if s.Events != nil {
		if err := s.Events.Publish(ctx, e); err != nil {
			slog.Warn("dispatch event publish failed", "err", err)
		}
	}
}

// sentSince builds the rolling 24h duplicate window for one automation.
func (s *Scheduler) sentSince(ctx context.Context, automationID string, now time.Time) (map[string]bool, error) {
	urls, err := s.Store.SentProductURLsSince(ctx, automationID, now.Add(-24*time.Hour))
	if err != nil {
		return nil, fmt.Errorf("load sent urls: %w", err)
	}
	set := make(map[string]bool, len(urls))
	for _, u := range urls {
		set[u] = true
	}
	return set, nil
}

func (s *Scheduler) location() *time.Location {
	if s.Loc != nil {
		return s.Loc
	}
	return time.UTC
}

// inWindow reports whether the local time of day falls inside the
// HH:MM window. A window with start after end wraps past midnight;
// missing bounds disable the check.
func inWindow(now time.Time, start, end string) bool {
	startMin, okS := parseHHMM(start)
	endMin, okE := parseHHMM(end)
	if !okS || !okE {
		return true
	}
	cur := now.Hour()*60 + now.Minute()
	if startMin == endMin {
		return true
	}
	if startMin < endMin {
		return cur >= startMin && cur <= endMin
	}
	return cur >= startMin || cur <= endMin
}

func parseHHMM(s string) (int, bool) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, false
	}
	h, err1 := strconv.Atoi(parts[0])
	m, err2 := strconv.Atoi(parts[1])
	if err1 != nil || err2 != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, false
	}
	return h*60 + m, true
}

func orUnknown(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
