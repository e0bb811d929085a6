package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"zapmark/internal/domain"
	"zapmark/internal/gateway"
	"zapmark/internal/observability"
	"zapmark/internal/store"
)

// mentionToken in a message expands to every group participant.
const mentionToken = "@todos"

type Store interface {
	ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]store.ClaimedJob, error)
	FinishJob(ctx context.Context, in store.JobFinish) error
	ActiveInstance(ctx context.Context, userID string) (string, bool, error)
	ResolveGroups(ctx context.Context, userID string, ids []string) ([]store.GroupRef, error)
}

type Gateway interface {
	SendText(ctx context.Context, instance, groupJID, text string, mentions []string) error
	UpdateGroupSubject(ctx context.Context, instance, groupJID, subject string) error
	UpdateGroupDescription(ctx context.Context, instance, groupJID, description string) error
	UpdateGroupPicture(ctx context.Context, instance, groupJID, imageBase64 string) error
	UpdateGroupSetting(ctx context.Context, instance, groupJID, action string) error
	Participants(ctx context.Context, instance, groupJID string) ([]string, error)
}

// Dispatcher runs one bounded batch of due jobs per invocation. Jobs are
// claimed atomically (pending -> running) so overlapping invocations
// never double-send. Per-group failures are isolated: a job ends done
// when at least one group succeeded.
type Dispatcher struct {
	Store     Store
	Gateway   Gateway
	BatchSize int
	Pace      *rate.Limiter // spacing between per-group gateway calls
	Breaker   *gobreaker.CircuitBreaker
}

type Result struct {
	Processed int `json:"processed"`
	Errors    int `json:"errors"`
	Total     int `json:"total"`
}

func (d *Dispatcher) Run(ctx context.Context, now time.Time) (Result, error) {
	limit := d.BatchSize
	if limit <= 0 {
		limit = 10
	}

	claimed, err := d.Store.ClaimDueJobs(ctx, now, limit)
	if err != nil {
		return Result{}, fmt.Errorf("claim due jobs: %w", err)
	}

	res := Result{Total: len(claimed)}
	for _, cj := range claimed {
		status, errMsg := d.runJob(ctx, cj)
		if ferr := d.Store.FinishJob(ctx, store.JobFinish{
			ID: cj.Job.ID, Status: status, ErrorMessage: errMsg, Now: time.Now(),
		}); ferr != nil {
			slog.Error("finish job failed", "job_id", cj.Job.ID, "err", ferr)
		}
		observability.JobsProcessed.WithLabelValues(string(cj.Job.ActionType), string(status)).Inc()
		if status == domain.JobDone {
			res.Processed++
		} else {
			res.Errors++
		}
	}
	return res, nil
}

func (d *Dispatcher) runJob(ctx context.Context, cj store.ClaimedJob) (domain.JobStatus, string) {
	job := cj.Job
	log := slog.With("job_id", job.ID, "action", string(job.ActionType))

	if cj.DecodeErr != "" {
		log.Error("job payload invalid", "err", cj.DecodeErr)
		return domain.JobFailed, "payload inválido: " + cj.DecodeErr
	}

	instance, ok, err := d.Store.ActiveInstance(ctx, job.UserID)
	if err != nil {
		log.Error("instance lookup failed", "err", err)
		return domain.JobFailed, "erro ao buscar instância: " + err.Error()
	}
	if !ok {
		return domain.JobFailed, "nenhuma instância do WhatsApp conectada"
	}

	groups, err := d.Store.ResolveGroups(ctx, job.UserID, job.Groups)
	if err != nil {
		log.Error("group resolution failed", "err", err)
		return domain.JobFailed, "erro ao buscar grupos: " + err.Error()
	}
	if len(groups) == 0 {
		return domain.JobFailed, "nenhum grupo válido encontrado"
	}

	var (
		succeeded int
		failures  []string
	)
	for i, g := range groups {
		if d.Pace != nil {
			if err := d.Pace.Wait(ctx); err != nil {
				failures = append(failures, g.Name+" - "+gateway.Reason(err))
				continue
			}
		}

		err := d.withBreaker(func() error {
			return d.execute(ctx, instance, g, i, job.Action)
		})
		if err != nil {
			observability.GroupActions.WithLabelValues(string(job.ActionType), "error").Inc()
			log.Warn("group action failed", "group", g.JID, "err", err)
			failures = append(failures, g.Name+" - "+gateway.Reason(err))
			continue
		}
		observability.GroupActions.WithLabelValues(string(job.ActionType), "ok").Inc()
		succeeded++
	}

	errMsg := strings.Join(failures, "; ")
	if succeeded == 0 {
		return domain.JobFailed, errMsg
	}
	// Partial success still counts as done; the failed groups stay
	// visible through error_message.
	return domain.JobDone, errMsg
}

func (d *Dispatcher) execute(ctx context.Context, instance string, g store.GroupRef, idx int, act domain.Action) error {
	switch a := act.(type) {
	case domain.SendMessage:
		var mentions []string
		if strings.Contains(a.Message, mentionToken) {
			var err error
			mentions, err = d.Gateway.Participants(ctx, instance, g.JID)
			if err != nil {
				// The group is not sent at all when expansion fails;
				// sibling groups keep going.
				return fmt.Errorf("buscar participantes: %w", err)
			}
		}
		return d.Gateway.SendText(ctx, instance, g.JID, a.Message, mentions)
	case domain.UpdateDescription:
		return d.Gateway.UpdateGroupDescription(ctx, instance, g.JID, a.Description)
	case domain.CloseGroups:
		return d.Gateway.UpdateGroupSetting(ctx, instance, g.JID, "announcement")
	case domain.OpenGroups:
		return d.Gateway.UpdateGroupSetting(ctx, instance, g.JID, "not_announcement")
	case domain.ChangeGroupName:
		name := a.Name
		if a.AutoNumber {
			name = fmt.Sprintf("%s %02d", a.Name, idx+1)
		}
		return d.Gateway.UpdateGroupSubject(ctx, instance, g.JID, name)
	case domain.ChangeGroupPhoto:
		return d.Gateway.UpdateGroupPicture(ctx, instance, g.JID, a.ImageBase64)
	default:
		return fmt.Errorf("%w: %T", domain.ErrUnknownAction, act)
	}
}

func (d *Dispatcher) withBreaker(call func() error) error {
	if d.Breaker == nil {
		return call()
	}
	_, err := d.Breaker.Execute(func() (any, error) { return nil, call() })
	return err
}
