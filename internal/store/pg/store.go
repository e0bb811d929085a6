package pg

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"zapmark/internal/domain"
	"zapmark/internal/store"
)

type Store struct {
	DB *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store { return &Store{DB: db} }

// ClaimDueJobs moves up to limit due pending jobs to running in a single
// conditional UPDATE, so overlapping dispatcher invocations can never
// claim the same job twice. Returned jobs are ordered by scheduled_for.
func (s *Store) ClaimDueJobs(ctx context.Context, now time.Time, limit int) ([]store.ClaimedJob, error) {
	rows, err := s.DB.Query(ctx, `
		UPDATE scheduled_jobs j
		SET status='running', updated_at=$1
		FROM (
			SELECT id FROM scheduled_jobs
			WHERE status='pending' AND scheduled_for <= $1
			ORDER BY scheduled_for ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		) due
		WHERE j.id = due.id
		RETURNING j.id, j.user_id, j.action_type, j.payload_json, j.scheduled_for, j.created_at
	`, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.ClaimedJob
	for rows.Next() {
		var (
			cj      store.ClaimedJob
			actType string
			payload []byte
		)
		if err := rows.Scan(&cj.Job.ID, &cj.Job.UserID, &actType, &payload, &cj.Job.ScheduledFor, &cj.Job.CreatedAt); err != nil {
			return nil, err
		}
		cj.Job.ActionType = domain.ActionType(actType)
		cj.Job.Status = domain.JobRunning

		groups, act, err := domain.DecodePayload(cj.Job.ActionType, payload)
		if err != nil {
			cj.DecodeErr = err.Error()
		} else {
			cj.Job.Groups = groups
			cj.Job.Action = act
		}
		out = append(out, cj)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// UPDATE ... RETURNING does not preserve the subquery order.
	sort.Slice(out, func(i, j int) bool {
		return out[i].Job.ScheduledFor.Before(out[j].Job.ScheduledFor)
	})
	return out, nil
}

func (s *Store) FinishJob(ctx context.Context, in store.JobFinish) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE scheduled_jobs SET status=$2, error_message=$3, updated_at=$4 WHERE id=$1
	`, in.ID, string(in.Status), nullIfEmpty(in.ErrorMessage), in.Now)
	return err
}

// CreateJobs inserts a batch of pending jobs in one transaction. Used by
// the staggered bulk scheduling helper.
func (s *Store) CreateJobs(ctx context.Context, jobs []store.JobInsert) error {
	tx, err := s.DB.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, j := range jobs {
		_, err := tx.Exec(ctx, `
			INSERT INTO scheduled_jobs (id, user_id, action_type, payload_json, scheduled_for, status, created_at, updated_at)
			VALUES ($1,$2,$3,$4,$5,'pending',$6,$6)
		`, j.ID, j.UserID, string(j.ActionType), j.PayloadJSON, j.ScheduledFor, j.Now)
		if err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// ActiveInstance returns the user's connected gateway session name.
// ok is false when the user has no connected session.
func (s *Store) ActiveInstance(ctx context.Context, userID string) (string, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT instance_name FROM instances WHERE user_id=$1 AND status='connected' LIMIT 1
	`, userID)
	var name string
	if err := row.Scan(&name); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	return name, true, nil
}

// ResolveGroups maps internal group ids to gateway jids. Unknown ids are
// silently dropped; callers treat an empty result as a precondition
// failure.
func (s *Store) ResolveGroups(ctx context.Context, userID string, ids []string) ([]store.GroupRef, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, group_jid, name FROM user_groups WHERE user_id=$1 AND id = ANY($2)
	`, userID, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.GroupRef
	for rows.Next() {
		var g store.GroupRef
		if err := rows.Scan(&g.ID, &g.JID, &g.Name); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

const automationColumns = `
	id, user_id, name, mode, status,
	stores, send_groups, monitor_groups,
	categories, min_discount, min_price, max_price, priority,
	start_time, end_time, interval_minutes,
	texts, ctas,
	last_run_at, next_run_at, COALESCE(last_error,'')
`

func (s *Store) ListDueAutomations(ctx context.Context, now time.Time) ([]domain.Automation, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT `+automationColumns+`
		FROM automations
		WHERE status='active' AND (next_run_at IS NULL OR next_run_at <= $1)
	`, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Automation
	for rows.Next() {
		a, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) GetAutomation(ctx context.Context, id string) (domain.Automation, bool, error) {
	row := s.DB.QueryRow(ctx, `
		SELECT `+automationColumns+` FROM automations WHERE id=$1
	`, id)
	a, err := scanAutomation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Automation{}, false, nil
		}
		return domain.Automation{}, false, err
	}
	return a, true, nil
}

func scanAutomation(row pgx.Row) (domain.Automation, error) {
	var (
		a              domain.Automation
		mode, status   string
		priority       string
		lastRun, nextR *time.Time
	)
	err := row.Scan(
		&a.ID, &a.UserID, &a.Name, &mode, &status,
		&a.Stores, &a.SendGroups, &a.MonitorGroups,
		&a.Categories, &a.MinDiscount, &a.MinPrice, &a.MaxPrice, &priority,
		&a.StartTime, &a.EndTime, &a.IntervalMinutes,
		&a.Texts, &a.CTAs,
		&lastRun, &nextR, &a.LastError,
	)
	if err != nil {
		return domain.Automation{}, err
	}
	a.Mode = domain.AutomationMode(mode)
	a.Status = domain.AutomationStatus(status)
	a.Priority = domain.Priority(priority)
	a.LastRunAt = lastRun
	a.NextRunAt = nextR
	return a, nil
}

func (s *Store) UpdateAutomationRun(ctx context.Context, in store.AutomationRunUpdate) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE automations SET last_run_at=$2, next_run_at=$3, last_error=$4 WHERE id=$1
	`, in.ID, in.LastRunAt, in.NextRunAt, nullIfEmpty(in.LastError))
	return err
}

// AcquireLock takes the per-automation lease with a single conditional
// upsert: it succeeds only when no lease exists or the existing one has
// expired. Returns the lock's last_sent_at for interval throttling.
func (s *Store) AcquireLock(ctx context.Context, automationID string, until, now time.Time) (*time.Time, bool, error) {
	row := s.DB.QueryRow(ctx, `
		INSERT INTO automation_locks (automation_id, lock_until, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (automation_id)
		DO UPDATE SET lock_until = EXCLUDED.lock_until, updated_at = EXCLUDED.updated_at
		WHERE automation_locks.lock_until <= $3
		RETURNING last_sent_at
	`, automationID, until, now)

	var lastSent *time.Time
	if err := row.Scan(&lastSent); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil // lease held by another invocation
		}
		return nil, false, err
	}
	return lastSent, true, nil
}

// ReleaseLock expires the lease by setting lock_until into the past.
// LastSentAt/NextRunAt are written only when provided (successful runs).
func (s *Store) ReleaseLock(ctx context.Context, in store.LockRelease) error {
	_, err := s.DB.Exec(ctx, `
		UPDATE automation_locks
		SET lock_until = $2 - interval '1 second',
		    last_sent_at = COALESCE($3, last_sent_at),
		    next_run_at = COALESCE($4, next_run_at),
		    updated_at = $2
		WHERE automation_id = $1
	`, in.AutomationID, in.Now, in.LastSentAt, in.NextRunAt)
	return err
}

func (s *Store) AppendDispatch(ctx context.Context, e domain.DispatchEntry) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO dispatch_log (id, automation_id, store, group_jid, product_url, affiliate_url, status, error, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, e.ID, e.AutomationID, nullIfEmpty(e.Store), nullIfEmpty(e.GroupJID),
		nullIfEmpty(e.ProductURL), nullIfEmpty(e.AffiliateURL), string(e.Status), nullIfEmpty(e.Error), e.CreatedAt)
	return err
}

// SentProductURLsSince feeds the 24h duplicate window: product urls this
// automation already sent after the cutoff.
func (s *Store) SentProductURLsSince(ctx context.Context, automationID string, since time.Time) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT DISTINCT product_url FROM dispatch_log
		WHERE automation_id=$1 AND status='sent' AND product_url IS NOT NULL AND created_at >= $2
	`, automationID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var u string
		if err := rows.Scan(&u); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *Store) ActiveCredentials(ctx context.Context, userID string, stores []string) ([]domain.StoreCredential, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT store, fields_json FROM store_credentials
		WHERE user_id=$1 AND active AND store = ANY($2)
	`, userID, stores)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.StoreCredential
	for rows.Next() {
		c := domain.StoreCredential{UserID: userID, Active: true}
		var fields map[string]string
		if err := rows.Scan(&c.Store, &fields); err != nil {
			return nil, err
		}
		c.Fields = fields
		out = append(out, c)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
