package store

import (
	"time"

	"zapmark/internal/domain"
)

// ClaimedJob is a job atomically moved to running, plus the payload
// decode error if its stored payload turned out unusable.
type ClaimedJob struct {
	Job       domain.Job
	DecodeErr string
}

// GroupRef is a user's group resolved to its gateway identity.
type GroupRef struct {
	ID   string // internal id
	JID  string // gateway group jid
	Name string
}

// JobInsert is the shape used by the bulk scheduling helper.
type JobInsert struct {
	ID           string
	UserID       string
	ActionType   domain.ActionType
	PayloadJSON  []byte
	ScheduledFor time.Time
	Now          time.Time
}

type JobFinish struct {
	ID           string
	Status       domain.JobStatus
	ErrorMessage string
	Now          time.Time
}

type AutomationRunUpdate struct {
	ID        string
	LastRunAt time.Time
	NextRunAt *time.Time
	LastError string
}

// LockRelease expires the lease by moving lock_until into the past.
// LastSentAt and NextRunAt are only written on successful runs.
type LockRelease struct {
	AutomationID string
	LastSentAt   *time.Time
	NextRunAt    *time.Time
	Now          time.Time
}
