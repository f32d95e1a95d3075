// Package audit persists an append-only trail of workflow transitions.
// Writes happen after the primary transition has committed; callers treat a
// failed append as a logged warning, never as a reason to roll back.
package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/domain/workflow"
	"github.com/hms/hms/internal/platform/db"
)

// Logger writes workflow audit events to the workflow_audit_event table.
// It implements workflow.AuditSink.
type Logger struct {
	pool *pgxpool.Pool
}

// NewLogger creates a Logger backed by the given connection pool.
func NewLogger(pool *pgxpool.Pool) *Logger {
	return &Logger{pool: pool}
}

// LogTransition records a committed transition. The insert deliberately runs
// outside any ambient transaction: the transition it describes has already
// committed and must not be tied to a later rollback.
func (l *Logger) LogTransition(ctx context.Context, ev *workflow.TransitionEvent) error {
	if ev.PerformedAt.IsZero() {
		ev.PerformedAt = time.Now().UTC()
	}

	_, err := l.pool.Exec(ctx, `
		INSERT INTO workflow_audit_event (
			id, entity_type, entity_id, workflow_name,
			from_step, to_step, action,
			performed_by, performed_by_name, performed_by_role,
			performed_at, comments
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
		uuid.New(), ev.EntityType, ev.EntityID, ev.WorkflowName,
		ev.FromStep, ev.ToStep, ev.Action,
		ev.PerformedBy, ev.PerformedName, ev.PerformedRole,
		ev.PerformedAt, ev.Comments)
	if err != nil {
		return fmt.Errorf("audit: insert transition event: %w", err)
	}
	return nil
}

// Entry is a stored audit event as read back for review endpoints.
type Entry struct {
	ID              uuid.UUID     `json:"id"`
	EntityType      string        `json:"entity_type"`
	EntityID        string        `json:"entity_id"`
	WorkflowName    string        `json:"workflow_name"`
	FromStep        workflow.Step `json:"from_step"`
	ToStep          workflow.Step `json:"to_step"`
	Action          string        `json:"action"`
	PerformedBy     uuid.UUID     `json:"performed_by"`
	PerformedByName string        `json:"performed_by_name"`
	PerformedByRole string        `json:"performed_by_role"`
	PerformedAt     time.Time     `json:"performed_at"`
	Comments        string        `json:"comments,omitempty"`
}

// ListByEntity returns the audit trail for one entity, oldest first.
func (l *Logger) ListByEntity(ctx context.Context, entityType, entityID string, limit, offset int) ([]*Entry, int, error) {
	var conn db.Queryable = l.pool
	if q := db.QueryableFromContext(ctx); q != nil {
		conn = q
	}

	var total int
	if err := conn.QueryRow(ctx,
		`SELECT COUNT(*) FROM workflow_audit_event WHERE entity_type = $1 AND entity_id = $2`,
		entityType, entityID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := conn.Query(ctx, `
		SELECT id, entity_type, entity_id, workflow_name, from_step, to_step, action,
			performed_by, performed_by_name, performed_by_role, performed_at, comments
		FROM workflow_audit_event
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY performed_at ASC LIMIT $3 OFFSET $4`,
		entityType, entityID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.EntityType, &e.EntityID, &e.WorkflowName,
			&e.FromStep, &e.ToStep, &e.Action,
			&e.PerformedBy, &e.PerformedByName, &e.PerformedByRole,
			&e.PerformedAt, &e.Comments); err != nil {
			return nil, 0, err
		}
		entries = append(entries, &e)
	}
	return entries, total, rows.Err()
}
