package record

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hms/hms/internal/domain/workflow"
	"github.com/hms/hms/internal/platform/db"
)

type recordRepoPG struct{ pool *pgxpool.Pool }

// NewRecordRepoPG creates a RecordRepository over the medical_record table.
// Workflow status and access control are stored as JSONB, with the current
// step, owner and estimated completion denormalized into columns for search.
func NewRecordRepoPG(pool *pgxpool.Pool) RecordRepository {
	return &recordRepoPG{pool: pool}
}

func (r *recordRepoPG) conn(ctx context.Context) db.Queryable {
	if q := db.QueryableFromContext(ctx); q != nil {
		return q
	}
	return r.pool
}

const recordCols = `id, patient_id, record_number, priority,
	chief_complaint, clinical_impression, treatment_plan, diagnoses, signature,
	workflow, access, version_id, created_at, updated_at`

func (r *recordRepoPG) scan(row pgx.Row) (*MedicalRecord, error) {
	var rec MedicalRecord
	var plan, diagnoses, signature, wf, access []byte
	err := row.Scan(&rec.ID, &rec.PatientID, &rec.RecordNumber, &rec.Priority,
		&rec.ChiefComplaint, &rec.ClinicalImpression, &plan, &diagnoses, &signature,
		&wf, &access, &rec.VersionID, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(plan) > 0 {
		if err := json.Unmarshal(plan, &rec.TreatmentPlan); err != nil {
			return nil, fmt.Errorf("decode treatment plan: %w", err)
		}
	}
	if len(diagnoses) > 0 {
		if err := json.Unmarshal(diagnoses, &rec.Diagnoses); err != nil {
			return nil, fmt.Errorf("decode diagnoses: %w", err)
		}
	}
	if len(signature) > 0 && string(signature) != "null" {
		rec.Signature = &ElectronicSignature{}
		if err := json.Unmarshal(signature, rec.Signature); err != nil {
			return nil, fmt.Errorf("decode signature: %w", err)
		}
	}
	if err := json.Unmarshal(wf, &rec.Workflow); err != nil {
		return nil, fmt.Errorf("decode workflow status: %w", err)
	}
	if err := json.Unmarshal(access, &rec.Access); err != nil {
		return nil, fmt.Errorf("decode access control: %w", err)
	}
	return &rec, nil
}

func (r *recordRepoPG) encode(rec *MedicalRecord) (plan, diagnoses, signature, wf, access []byte, err error) {
	if plan, err = json.Marshal(rec.TreatmentPlan); err != nil {
		return
	}
	if diagnoses, err = json.Marshal(rec.Diagnoses); err != nil {
		return
	}
	if signature, err = json.Marshal(rec.Signature); err != nil {
		return
	}
	if wf, err = json.Marshal(rec.Workflow); err != nil {
		return
	}
	access, err = json.Marshal(rec.Access)
	return
}

func (r *recordRepoPG) Create(ctx context.Context, rec *MedicalRecord) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	rec.VersionID = 1
	plan, diagnoses, signature, wf, access, err := r.encode(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO medical_record (id, patient_id, record_number, priority,
			chief_complaint, clinical_impression, treatment_plan, diagnoses, signature,
			workflow, access, current_step, owner_id, estimated_completion, version_id)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		rec.ID, rec.PatientID, rec.RecordNumber, rec.Priority,
		rec.ChiefComplaint, rec.ClinicalImpression, plan, diagnoses, signature,
		wf, access, rec.Workflow.CurrentStep, rec.Access.CurrentOwner,
		rec.Workflow.EstimatedCompletionTime, rec.VersionID)
	return err
}

func (r *recordRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error) {
	rec, err := r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+recordCols+` FROM medical_record WHERE id = $1`, id))
	if err == pgx.ErrNoRows {
		return nil, workflow.NewRecordNotFound("medical record", id.String())
	}
	return rec, err
}

// Update writes the record back, guarded by its version token. A concurrent
// writer that committed first leaves the stored version ahead of ours, the
// WHERE clause matches nothing, and the caller gets a Conflict.
func (r *recordRepoPG) Update(ctx context.Context, rec *MedicalRecord) error {
	plan, diagnoses, signature, wf, access, err := r.encode(rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE medical_record SET
			priority = $3, chief_complaint = $4, clinical_impression = $5,
			treatment_plan = $6, diagnoses = $7, signature = $8,
			workflow = $9, access = $10,
			current_step = $11, owner_id = $12, estimated_completion = $13,
			version_id = version_id + 1, updated_at = NOW()
		WHERE id = $1 AND version_id = $2`,
		rec.ID, rec.VersionID,
		rec.Priority, rec.ChiefComplaint, rec.ClinicalImpression,
		plan, diagnoses, signature, wf, access,
		rec.Workflow.CurrentStep, rec.Access.CurrentOwner, rec.Workflow.EstimatedCompletionTime)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return workflow.NewConflict(fmt.Sprintf(
			"medical record %s was modified concurrently (version %d is stale)", rec.ID, rec.VersionID))
	}
	rec.VersionID++
	return nil
}

func (r *recordRepoPG) list(ctx context.Context, where string, countArgs, dataArgs []interface{}) ([]*MedicalRecord, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM medical_record WHERE `+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+recordCols+` FROM medical_record WHERE `+where+
			` ORDER BY created_at DESC LIMIT $`+fmt.Sprint(len(countArgs)+1)+
			` OFFSET $`+fmt.Sprint(len(countArgs)+2), dataArgs...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*MedicalRecord
	for rows.Next() {
		rec, err := r.scan(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, rec)
	}
	return items, total, rows.Err()
}

func (r *recordRepoPG) ListByStep(ctx context.Context, step workflow.Step, limit, offset int) ([]*MedicalRecord, int, error) {
	return r.list(ctx, `current_step = $1`,
		[]interface{}{step}, []interface{}{step, limit, offset})
}

func (r *recordRepoPG) ListByAssignee(ctx context.Context, user uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	where := `access -> 'assigned_to' @> jsonb_build_array(jsonb_build_object('user', $1::text))`
	return r.list(ctx, where,
		[]interface{}{user.String()}, []interface{}{user.String(), limit, offset})
}

func (r *recordRepoPG) ListByOwner(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error) {
	return r.list(ctx, `owner_id = $1`,
		[]interface{}{owner}, []interface{}{owner, limit, offset})
}

func (r *recordRepoPG) CountByStep(ctx context.Context) (map[workflow.Step]int, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT current_step, COUNT(*) FROM medical_record GROUP BY current_step`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[workflow.Step]int)
	for rows.Next() {
		var step workflow.Step
		var n int
		if err := rows.Scan(&step, &n); err != nil {
			return nil, err
		}
		counts[step] = n
	}
	return counts, rows.Err()
}

func (r *recordRepoPG) CountByPriority(ctx context.Context) (map[string]int, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT priority, COUNT(*) FROM medical_record GROUP BY priority`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := make(map[string]int)
	for rows.Next() {
		var priority string
		var n int
		if err := rows.Scan(&priority, &n); err != nil {
			return nil, err
		}
		counts[priority] = n
	}
	return counts, rows.Err()
}

const overdueWhere = `estimated_completion IS NOT NULL AND estimated_completion < $1
	AND current_step NOT IN ('finalized', 'archived', 'cancelled')`

func (r *recordRepoPG) ListOverdue(ctx context.Context, now time.Time, limit, offset int) ([]*MedicalRecord, int, error) {
	return r.list(ctx, overdueWhere,
		[]interface{}{now}, []interface{}{now, limit, offset})
}
