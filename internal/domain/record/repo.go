package record

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hms/hms/internal/domain/workflow"
)

// RecordRepository stores medical records. Update must apply the record's
// optimistic version token: the write succeeds only when the stored version
// matches the one the record was loaded with, and bumps it by one.
type RecordRepository interface {
	Create(ctx context.Context, r *MedicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*MedicalRecord, error)
	Update(ctx context.Context, r *MedicalRecord) error
	ListByStep(ctx context.Context, step workflow.Step, limit, offset int) ([]*MedicalRecord, int, error)
	ListByAssignee(ctx context.Context, user uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error)
	ListByOwner(ctx context.Context, owner uuid.UUID, limit, offset int) ([]*MedicalRecord, int, error)
	CountByStep(ctx context.Context) (map[workflow.Step]int, error)
	CountByPriority(ctx context.Context) (map[string]int, error)
	ListOverdue(ctx context.Context, now time.Time, limit, offset int) ([]*MedicalRecord, int, error)
}
