package domain

import "time"

type JobStatus string

const (
	JobPending JobStatus = "pending"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Job is a one-shot scheduled action against one or more groups.
// Partial success (some groups failed) still ends in JobDone with the
// per-group reasons joined into ErrorMessage.
type Job struct {
	ID           string
	UserID       string
	ActionType   ActionType
	Groups       []string // internal group ids, resolved to gateway jids at dispatch
	Action       Action
	ScheduledFor time.Time
	Status       JobStatus
	ErrorMessage string
	CreatedAt    time.Time
}

type AutomationMode string

const (
	ModeSearch  AutomationMode = "search"
	ModeMonitor AutomationMode = "monitor"
)

type AutomationStatus string

const (
	AutomationActive AutomationStatus = "active"
	AutomationPaused AutomationStatus = "paused"
)

type Priority string

const (
	PriorityDiscount Priority = "discount"
	PriorityPrice    Priority = "price"
)

// Automation is a recurring offer job: either search an affiliate
// provider for deals or monitor WhatsApp groups for product links
// posted by others, then post into SendGroups.
type Automation struct {
	ID     string
	UserID string
	Name   string
	Mode   AutomationMode
	Status AutomationStatus

	Stores        []string // provider keys this automation may use
	SendGroups    []string // gateway group jids to post into
	MonitorGroups []string // gateway group jids to watch (monitor mode)

	Categories  []string
	MinDiscount int
	MinPrice    float64
	MaxPrice    float64
	Priority    Priority

	StartTime       string // HH:MM, window start
	EndTime         string // HH:MM
	IntervalMinutes int

	Texts []string // message templates, one picked at random per run
	CTAs  []string // optional call-to-action lines

	LastRunAt *time.Time
	NextRunAt *time.Time
	LastError string
}

// RunLock is the per-automation lease. While LockUntil is in the future
// the automation is considered in-flight and other invocations skip it.
type RunLock struct {
	AutomationID string
	LockUntil    time.Time
	LastSentAt   *time.Time
}

type DispatchStatus string

const (
	DispatchSent    DispatchStatus = "sent"
	DispatchSkipped DispatchStatus = "skipped"
	DispatchError   DispatchStatus = "error"
)

// DispatchEntry is one row of the append-only dispatch log. Rows with
// status sent double as the 24h deduplication source per automation.
type DispatchEntry struct {
	ID           string
	AutomationID string
	Store        string
	GroupJID     string
	ProductURL   string
	AffiliateURL string
	Status       DispatchStatus
	Error        string
	CreatedAt    time.Time
}

// Offer is a product candidate returned by an affiliate provider.
type Offer struct {
	Store         string
	Title         string
	Price         float64
	OriginalPrice float64
	Discount      int // percent
	Commission    float64
	ProductURL    string
	AffiliateURL  string // short/affiliate form; empty until generated
	ImageURL      string
}

// StoreCredential holds one user's credentials for one affiliate
// provider. Fields is provider-specific (app id, secret, tag...).
type StoreCredential struct {
	UserID string
	Store  string
	Fields map[string]string
	Active bool
}
