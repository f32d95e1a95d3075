package workflow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/platform/db"
)

// pgInstanceStore is the Postgres-backed InstanceRepository used in
// production, where instances must survive the process and be queryable.
type pgInstanceStore struct{ pool *pgxpool.Pool }

// NewPGInstanceStore creates an InstanceRepository over the workflow_instance
// table.
func NewPGInstanceStore(pool *pgxpool.Pool) InstanceRepository {
	return &pgInstanceStore{pool: pool}
}

func (s *pgInstanceStore) conn(ctx context.Context) db.Queryable {
	if q := db.QueryableFromContext(ctx); q != nil {
		return q
	}
	return s.pool
}

const instanceCols = `id, workflow_name, entity_id, current_step, state,
	history, metadata, version, created_at, updated_at, completed_at`

func (s *pgInstanceStore) scan(row pgx.Row) (*Instance, error) {
	var in Instance
	var history, metadata []byte
	err := row.Scan(&in.ID, &in.WorkflowName, &in.EntityID, &in.CurrentStep, &in.State,
		&history, &metadata, &in.Version, &in.CreatedAt, &in.UpdatedAt, &in.CompletedAt)
	if err != nil {
		return nil, err
	}
	if len(history) > 0 {
		if err := json.Unmarshal(history, &in.History); err != nil {
			return nil, fmt.Errorf("decode instance history: %w", err)
		}
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &in.Metadata); err != nil {
			return nil, fmt.Errorf("decode instance metadata: %w", err)
		}
	}
	return &in, nil
}

func (s *pgInstanceStore) Get(ctx context.Context, id uuid.UUID) (*Instance, error) {
	in, err := s.scan(s.conn(ctx).QueryRow(ctx,
		`SELECT `+instanceCols+` FROM workflow_instance WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, NewRecordNotFound("workflow instance", id.String())
	}
	return in, err
}

// Put inserts a new instance (Version 0) or performs a version-guarded
// update. Zero affected rows on the guarded update means a concurrent writer
// committed first; the caller gets a conflict, never a silent overwrite.
func (s *pgInstanceStore) Put(ctx context.Context, in *Instance) error {
	history, err := json.Marshal(in.History)
	if err != nil {
		return fmt.Errorf("encode instance history: %w", err)
	}
	metadata, err := json.Marshal(in.Metadata)
	if err != nil {
		return fmt.Errorf("encode instance metadata: %w", err)
	}

	if in.Version == 0 {
		tag, err := s.conn(ctx).Exec(ctx, `
			INSERT INTO workflow_instance (id, workflow_name, entity_id, current_step, state,
				history, metadata, version, created_at, updated_at, completed_at)
			VALUES ($1,$2,$3,$4,$5,$6,$7,1,$8,$9,$10)
			ON CONFLICT (id) DO NOTHING`,
			in.ID, in.WorkflowName, in.EntityID, in.CurrentStep, in.State,
			history, metadata, in.CreatedAt, in.UpdatedAt, in.CompletedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return NewConflict("workflow instance already exists")
		}
		in.Version = 1
		return nil
	}

	tag, err := s.conn(ctx).Exec(ctx, `
		UPDATE workflow_instance SET
			current_step = $2,
			state = $3,
			history = $4,
			metadata = $5,
			updated_at = $6,
			completed_at = $7,
			version = version + 1
		WHERE id = $1 AND version = $8`,
		in.ID, in.CurrentStep, in.State, history, metadata,
		in.UpdatedAt, in.CompletedAt, in.Version)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return NewConflict("workflow instance was modified concurrently")
	}
	in.Version++
	return nil
}

func (s *pgInstanceStore) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := s.conn(ctx).Exec(ctx, `DELETE FROM workflow_instance WHERE id = $1`, id)
	return err
}

func (s *pgInstanceStore) ListByWorkflow(ctx context.Context, workflowName string, limit, offset int) ([]*Instance, int, error) {
	var total int
	if err := s.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM workflow_instance WHERE workflow_name = $1`, workflowName).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := s.conn(ctx).Query(ctx,
		`SELECT `+instanceCols+` FROM workflow_instance
		 WHERE workflow_name = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		workflowName, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Instance
	for rows.Next() {
		in, err := s.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, in)
	}
	return items, total, rows.Err()
}
