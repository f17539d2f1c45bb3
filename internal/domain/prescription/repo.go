package prescription

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines persistence for prescriptions.
type Repository interface {
	Create(ctx context.Context, p *Prescription) error
	GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error)
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (bool, error)
	SetRemindersGenerated(ctx context.Context, id uuid.UUID) error
	CountCreatedSince(ctx context.Context, since time.Time) (int, error)
}
