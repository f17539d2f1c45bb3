package patient

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a patient does not exist.
var ErrNotFound = errors.New("patient not found")

type Service struct {
	patients Repository
}

func NewService(patients Repository) *Service {
	return &Service{patients: patients}
}

func (s *Service) Create(ctx context.Context, p *Patient) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.patients.Create(ctx, p)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return s.patients.GetByID(ctx, id)
}

func (s *Service) List(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	return s.patients.List(ctx, limit, offset)
}

func (s *Service) Update(ctx context.Context, p *Patient) error {
	if p.Name == "" {
		return fmt.Errorf("name is required")
	}
	return s.patients.Update(ctx, p)
}

func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.patients.Delete(ctx, id)
}

// RegisterDeviceToken records an FCM registration token for the patient.
// Registering the same token twice is a no-op.
func (s *Service) RegisterDeviceToken(ctx context.Context, id uuid.UUID, token string) error {
	if token == "" {
		return fmt.Errorf("device token is required")
	}
	return s.patients.AddDeviceToken(ctx, id, token)
}

// UnregisterDeviceToken removes a device token, e.g. on sign-out.
func (s *Service) UnregisterDeviceToken(ctx context.Context, id uuid.UUID, token string) error {
	if token == "" {
		return fmt.Errorf("device token is required")
	}
	return s.patients.RemoveDeviceToken(ctx, id, token)
}

// DeviceTokens returns all registered tokens for a patient. Used by the
// notification dispatcher to address push messages.
func (s *Service) DeviceTokens(ctx context.Context, id uuid.UUID) ([]string, error) {
	return s.patients.DeviceTokens(ctx, id)
}
