package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"zapmark/internal/dispatcher"
	"zapmark/internal/domain"
	"zapmark/internal/observability"
	"zapmark/internal/scheduler"
	"zapmark/internal/store"
	"zapmark/internal/util"
)

type runResponse struct {
	Success   bool   `json:"success"`
	Processed int    `json:"processed"`
	Errors    int    `json:"errors"`
	Total     int    `json:"total"`
	Error     string `json:"error,omitempty"`
}

// JobCreator persists a batch of pending jobs.
type JobCreator interface {
	CreateJobs(ctx context.Context, jobs []store.JobInsert) error
}

// DispatcherAPI exposes the job-dispatch trigger: each POST runs one
// bounded batch of due jobs. The schedule endpoint is the staggered
// bulk helper: one job per group, spaced stepSeconds apart.
type DispatcherAPI struct {
	Dispatcher *dispatcher.Dispatcher
	Jobs       JobCreator
}

func (a *DispatcherAPI) Register(r *mux.Router) {
	r.HandleFunc("/v1/jobs/run", a.handleRun).Methods(http.MethodPost)
	r.HandleFunc("/v1/jobs/schedule", a.handleSchedule).Methods(http.MethodPost)
}

type scheduleRequest struct {
	UserID      string          `json:"userId"`
	ActionType  string          `json:"actionType"`
	Payload     json.RawMessage `json:"payload"` // groups + action fields
	StartAt     time.Time       `json:"startAt"`
	StepSeconds int             `json:"stepSeconds"`
}

type scheduleResponse struct {
	Success bool     `json:"success"`
	JobIDs  []string `json:"jobIds,omitempty"`
	Error   string   `json:"error,omitempty"`
}

func (a *DispatcherAPI) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		countTrigger("/v1/jobs/schedule", http.StatusBadRequest)
		writeJSON(w, http.StatusBadRequest, scheduleResponse{Error: "invalid json"})
		return
	}

	groups, act, err := domain.DecodePayload(domain.ActionType(req.ActionType), req.Payload)
	if err != nil {
		countTrigger("/v1/jobs/schedule", http.StatusBadRequest)
		writeJSON(w, http.StatusBadRequest, scheduleResponse{Error: err.Error()})
		return
	}
	if req.UserID == "" || len(groups) == 0 {
		countTrigger("/v1/jobs/schedule", http.StatusBadRequest)
		writeJSON(w, http.StatusBadRequest, scheduleResponse{Error: "userId and payload groups are required"})
		return
	}

	start := req.StartAt
	if start.IsZero() {
		start = util.NowUTC()
	}
	step := time.Duration(req.StepSeconds) * time.Second

	now := util.NowUTC()
	times := util.SpreadSchedule(start, len(groups), step)
	jobs := make([]store.JobInsert, 0, len(groups))
	ids := make([]string, 0, len(groups))
	for i, g := range groups {
		payload, err := domain.EncodePayload([]string{g}, act)
		if err != nil {
			countTrigger("/v1/jobs/schedule", http.StatusInternalServerError)
			writeJSON(w, http.StatusInternalServerError, scheduleResponse{Error: err.Error()})
			return
		}
		id := util.NewJobID()
		ids = append(ids, id)
		jobs = append(jobs, store.JobInsert{
			ID:           id,
			UserID:       req.UserID,
			ActionType:   domain.ActionType(req.ActionType),
			PayloadJSON:  payload,
			ScheduledFor: times[i],
			Now:          now,
		})
	}

	if err := a.Jobs.CreateJobs(r.Context(), jobs); err != nil {
		slog.Error("bulk job insert failed", "err", err, "jobs", len(jobs))
		countTrigger("/v1/jobs/schedule", http.StatusInternalServerError)
		writeJSON(w, http.StatusInternalServerError, scheduleResponse{Error: err.Error()})
		return
	}

	countTrigger("/v1/jobs/schedule", http.StatusOK)
	writeJSON(w, http.StatusOK, scheduleResponse{Success: true, JobIDs: ids})
}

func (a *DispatcherAPI) handleRun(w http.ResponseWriter, r *http.Request) {
	res, err := a.Dispatcher.Run(r.Context(), util.NowUTC())
	if err != nil {
		slog.Error("job dispatch batch failed", "err", err)
		countTrigger("/v1/jobs/run", http.StatusInternalServerError)
		writeJSON(w, http.StatusInternalServerError, runResponse{Success: false, Error: err.Error()})
		return
	}
	countTrigger("/v1/jobs/run", http.StatusOK)
	writeJSON(w, http.StatusOK, runResponse{
		Success: true, Processed: res.Processed, Errors: res.Errors, Total: res.Total,
	})
}

// SchedulerAPI exposes the automation trigger. An optional body
// {"automationId": "..."} forces one automation, bypassing the window
// and interval checks.
type SchedulerAPI struct {
	Scheduler *scheduler.Scheduler
}

type runRequest struct {
	AutomationID string `json:"automationId"`
}

func (a *SchedulerAPI) Register(r *mux.Router) {
	r.HandleFunc("/v1/automations/run", a.handleRun).Methods(http.MethodPost)
}

func (a *SchedulerAPI) handleRun(w http.ResponseWriter, r *http.Request) {
	var req runRequest
	if r.Body != nil {
		body, _ := io.ReadAll(r.Body)
		if len(body) > 0 {
			if err := json.Unmarshal(body, &req); err != nil {
				countTrigger("/v1/automations/run", http.StatusBadRequest)
				writeJSON(w, http.StatusBadRequest, runResponse{Success: false, Error: "invalid json"})
				return
			}
		}
	}

	now := util.NowUTC()
	var (
		res scheduler.Result
		err error
	)
	if req.AutomationID != "" {
		res, err = a.Scheduler.RunOne(r.Context(), req.AutomationID, now)
	} else {
		res, err = a.Scheduler.Run(r.Context(), now)
	}

	if err != nil {
		if errors.Is(err, scheduler.ErrNotFound) {
			countTrigger("/v1/automations/run", http.StatusOK)
			writeJSON(w, http.StatusOK, runResponse{Success: false, Error: err.Error()})
			return
		}
		slog.Error("automation batch failed", "err", err, "automation_id", req.AutomationID)
		countTrigger("/v1/automations/run", http.StatusInternalServerError)
		writeJSON(w, http.StatusInternalServerError, runResponse{Success: false, Error: err.Error()})
		return
	}

	countTrigger("/v1/automations/run", http.StatusOK)
	writeJSON(w, http.StatusOK, runResponse{
		Success: true, Processed: res.Processed, Errors: res.Errors, Total: res.Total,
	})
}

func countTrigger(endpoint string, status int) {
	observability.TriggerRequests.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
