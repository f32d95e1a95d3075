package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/platform/auth"
)

// InstanceState is the lifecycle state of a workflow instance.
type InstanceState string

const (
	InstanceActive    InstanceState = "active"
	InstanceCompleted InstanceState = "completed"
)

// Instance is a running workflow attached to an arbitrary entity. Unlike the
// record-embedded Status, instances live behind an InstanceRepository so that
// storage lifecycle (eviction, TTL, persistence) is explicit.
type Instance struct {
	ID           uuid.UUID              `json:"id"`
	WorkflowName string                 `json:"workflow_name"`
	EntityID     string                 `json:"entity_id"`
	CurrentStep  Step                   `json:"current_step"`
	State        InstanceState          `json:"state"`
	History      []StepHistoryEntry     `json:"history"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
	// Version is the optimistic concurrency token. Zero marks an instance
	// that has never been stored; Put bumps it on every successful write.
	Version     int        `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// clone returns a deep-enough copy for copy-on-write transitions: history is
// copied so the stored instance is never mutated in place.
func (in *Instance) clone() *Instance {
	out := *in
	out.History = make([]StepHistoryEntry, len(in.History))
	copy(out.History, in.History)
	return &out
}

// InstanceRepository stores workflow instances. Implementations must be safe
// for concurrent use. Put is a compare-and-swap on Instance.Version: a zero
// version inserts a new instance, a non-zero version only succeeds when it
// matches the stored one, and either way the write bumps the caller's
// Version. A mismatch fails with a conflict so two concurrent transitions
// from the same step cannot both commit.
type InstanceRepository interface {
	Get(ctx context.Context, id uuid.UUID) (*Instance, error)
	Put(ctx context.Context, in *Instance) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByWorkflow(ctx context.Context, workflowName string, limit, offset int) ([]*Instance, int, error)
}

// TransitionEvent describes a committed transition for the audit sink.
type TransitionEvent struct {
	EntityType    string
	EntityID      string
	WorkflowName  string
	FromStep      Step
	ToStep        Step
	Action        Action
	PerformedBy   uuid.UUID
	PerformedName string
	PerformedRole auth.Role
	PerformedAt   time.Time
	Comments      string
}

// AuditSink records committed transitions. Sink failures must never undo or
// block the transition they describe; callers log and swallow them.
type AuditSink interface {
	LogTransition(ctx context.Context, ev *TransitionEvent) error
}

// NopAuditSink discards events. Used in tests and when no audit store is
// configured.
type NopAuditSink struct{}

func (NopAuditSink) LogTransition(context.Context, *TransitionEvent) error { return nil }
