package stores

import (
	"context"
	"database/sql"
	"time"
)

// RunStatus represents the status of a resolution run
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
	RunStatusRejected  RunStatus = "rejected" // finished but blocked by the policy gate
)

// AugmentStatus represents the outcome of a single resolution request
type AugmentStatus string

const (
	AugmentStatusResolved AugmentStatus = "resolved"
	AugmentStatusRejected AugmentStatus = "rejected"
)

// EventLevel represents the severity level of an event
type EventLevel string

const (
	EventLevelDebug   EventLevel = "debug"
	EventLevelInfo    EventLevel = "info"
	EventLevelWarning EventLevel = "warning"
	EventLevelError   EventLevel = "error"
)

// Run represents a resolution run
type Run struct {
	ID           string     `json:"id"`
	ManifestPath string     `json:"manifest_path"`
	Status       RunStatus  `json:"status"`
	Environment  *string    `json:"environment,omitempty"` // JSON blob of the finalized environment
	Providers    *string    `json:"providers,omitempty"`   // JSON array of applied provider names
	StartedAt    time.Time  `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
	Error        *string    `json:"error,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Augment represents a single resolution request within a run
type Augment struct {
	ID        string        `json:"id"`
	RunID     string        `json:"run_id"`
	SpecName  string        `json:"spec_name"`
	Kind      string        `json:"kind"` // requirement, component, library, program
	Provider  *string       `json:"provider,omitempty"`
	Component *string       `json:"component,omitempty"`
	Status    AugmentStatus `json:"status"`
	Reason    *string       `json:"reason,omitempty"` // rejection reason
	CreatedAt time.Time     `json:"created_at"`
}

// Event represents an append-only log event
type Event struct {
	ID        int64      `json:"id"`
	RunID     *string    `json:"run_id,omitempty"`
	AugmentID *string    `json:"augment_id,omitempty"`
	Level     EventLevel `json:"level"`
	Message   string     `json:"message"`
	Details   *string    `json:"details,omitempty"` // JSON blob
	Timestamp time.Time  `json:"timestamp"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Run operations
	CreateRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, id string) (*Run, error)
	UpdateRunStatus(ctx context.Context, id string, status RunStatus, err *string) error
	SetRunEnvironment(ctx context.Context, id string, environment, providers string) error
	ListRuns(ctx context.Context, limit, offset int) ([]*Run, error)
	DeleteRun(ctx context.Context, id string) error

	// Augment operations
	CreateAugment(ctx context.Context, augment *Augment) error
	GetAugment(ctx context.Context, id string) (*Augment, error)
	ListAugmentsByRun(ctx context.Context, runID string) ([]*Augment, error)

	// Event operations
	AppendEvent(ctx context.Context, event *Event) error
	GetEvents(ctx context.Context, runID *string, level *EventLevel, limit, offset int) ([]*Event, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
