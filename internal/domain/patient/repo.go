package patient

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence for patients and their device tokens.
type Repository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	List(ctx context.Context, limit, offset int) ([]*Patient, int, error)
	Update(ctx context.Context, p *Patient) error
	Delete(ctx context.Context, id uuid.UUID) error

	AddDeviceToken(ctx context.Context, id uuid.UUID, token string) error
	RemoveDeviceToken(ctx context.Context, id uuid.UUID, token string) error
	DeviceTokens(ctx context.Context, id uuid.UUID) ([]string, error)
}
