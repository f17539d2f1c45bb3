package prescription

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a prescription does not exist.
	ErrNotFound = errors.New("prescription not found")
	// ErrInvalidStatus is returned for unknown status values or disallowed
	// status changes.
	ErrInvalidStatus = errors.New("invalid prescription status")
)

// ReminderPlanner expands a prescription into scheduled reminders and
// retires them when the prescription ends. Implemented by the reminder
// service; declared here so the two packages stay decoupled.
type ReminderPlanner interface {
	GenerateForPrescription(ctx context.Context, p *Prescription) (int, error)
	SkipPendingForPrescription(ctx context.Context, prescriptionID uuid.UUID) (int, error)
}

// TxRunner executes a function within a database transaction.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type Service struct {
	prescriptions Repository
	planner       ReminderPlanner
	tx            TxRunner
	logger        zerolog.Logger
}

func NewService(prescriptions Repository, planner ReminderPlanner, tx TxRunner, logger zerolog.Logger) *Service {
	return &Service{
		prescriptions: prescriptions,
		planner:       planner,
		tx:            tx,
		logger:        logger,
	}
}

// Create validates and stores a prescription, then expands it into scheduled
// reminders. The insert, the reminder generation, and the generated flag are
// committed atomically so a prescription is never half-expanded.
func (s *Service) Create(ctx context.Context, p *Prescription) error {
	if p.PatientID == uuid.Nil {
		return fmt.Errorf("patient_id is required")
	}
	if len(p.Medicines) == 0 {
		return fmt.Errorf("at least one medicine is required")
	}
	for i := range p.Medicines {
		if err := p.Medicines[i].Validate(); err != nil {
			return err
		}
	}

	if p.Status == "" {
		p.Status = StatusActive
	}
	if !validStatuses[p.Status] {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, p.Status)
	}
	if p.StartDate.IsZero() {
		p.StartDate = time.Now().UTC()
	}
	p.EndDate = p.StartDate.AddDate(0, 0, p.MaxDurationDays())

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		rx, err := s.nextRxNumber(ctx)
		if err != nil {
			return err
		}
		p.RxNumber = rx

		if err := s.prescriptions.Create(ctx, p); err != nil {
			return err
		}

		count, err := s.planner.GenerateForPrescription(ctx, p)
		if err != nil {
			return fmt.Errorf("generate reminders: %w", err)
		}
		if err := s.prescriptions.SetRemindersGenerated(ctx, p.ID); err != nil {
			return err
		}
		p.RemindersGenerated = true

		s.logger.Info().
			Str("prescription_id", p.ID.String()).
			Str("rx_number", p.RxNumber).
			Int("reminders", count).
			Msg("prescription created")
		return nil
	})
}

// nextRxNumber builds a unique RX number from the current timestamp and a
// daily sequence, e.g. "RX17254603200000023".
func (s *Service) nextRxNumber(ctx context.Context) (string, error) {
	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	count, err := s.prescriptions.CountCreatedSince(ctx, dayStart)
	if err != nil {
		return "", fmt.Errorf("count prescriptions: %w", err)
	}
	return fmt.Sprintf("RX%d%04d", now.UnixMilli(), (count+1)%10000), nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return s.prescriptions.GetByID(ctx, id)
}

func (s *Service) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	return s.prescriptions.ListByPatient(ctx, patientID, limit, offset)
}

// ChangeStatus moves a prescription to the given status. Completing or
// cancelling a prescription retires all of its pending reminders in the same
// transaction, so no orphaned reminders can fire afterwards.
func (s *Service) ChangeStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if !validStatuses[status] {
		return fmt.Errorf("%w: %s", ErrInvalidStatus, status)
	}

	return s.tx.RunInTx(ctx, func(ctx context.Context) error {
		p, err := s.prescriptions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Status == status {
			return nil
		}
		// Terminal prescriptions cannot be reactivated; paused ones can.
		if p.Status != StatusActive && p.Status != StatusPaused {
			return fmt.Errorf("%w: cannot move %s prescription to %s", ErrInvalidStatus, p.Status, status)
		}

		changed, err := s.prescriptions.UpdateStatus(ctx, id, status)
		if err != nil {
			return err
		}
		if !changed {
			return nil
		}

		if status == StatusCompleted || status == StatusCancelled || status == StatusPaused {
			skipped, err := s.planner.SkipPendingForPrescription(ctx, id)
			if err != nil {
				return fmt.Errorf("skip pending reminders: %w", err)
			}
			s.logger.Info().
				Str("prescription_id", id.String()).
				Str("status", string(status)).
				Int("skipped_reminders", skipped).
				Msg("prescription deactivated")
		}
		return nil
	})
}
