package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medremind/medremind/internal/domain/prescription"
)

// Config carries the timing knobs of the reminder engine.
type Config struct {
	// NotifyLead is how long before the scheduled dose the push goes out.
	NotifyLead time.Duration
	// SnoozeDelay is how far a snooze pushes the reminder.
	SnoozeDelay time.Duration
	// SnoozeLimit is the maximum number of snoozes per reminder.
	SnoozeLimit int
	// MissedAfter is how long after the scheduled time an unanswered
	// reminder counts as missed.
	MissedAfter time.Duration
}

// DefaultConfig mirrors the stock engine timings: 5 minute notify lead,
// 15 minute snooze capped at 3, missed after 2 hours.
func DefaultConfig() Config {
	return Config{
		NotifyLead:  5 * time.Minute,
		SnoozeDelay: 15 * time.Minute,
		SnoozeLimit: 3,
		MissedAfter: 2 * time.Hour,
	}
}

// Service owns the reminder state machine. Every state change and its audit
// log entry commit in one transaction.
type Service struct {
	reminders Repository
	logs      LogRepository
	tx        TxRunner
	cfg       Config
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(reminders Repository, logs LogRepository, tx TxRunner, cfg Config, logger zerolog.Logger) *Service {
	return &Service{
		reminders: reminders,
		logs:      logs,
		tx:        tx,
		cfg:       cfg,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GenerateForPrescription expands a prescription into reminders and stores
// them. Prescriptions already expanded are left alone, making the call
// idempotent. Returns the number of reminders created.
func (s *Service) GenerateForPrescription(ctx context.Context, p *prescription.Prescription) (int, error) {
	if p.RemindersGenerated {
		return 0, nil
	}
	reminders, err := Expand(p, s.now(), s.cfg.NotifyLead)
	if err != nil {
		return 0, err
	}
	if err := s.reminders.InsertMany(ctx, reminders); err != nil {
		return 0, fmt.Errorf("insert reminders: %w", err)
	}
	return len(reminders), nil
}

// SkipPendingForPrescription retires a prescription's open reminders that
// are still in the future. Occurrences already in the past keep whatever
// outcome they had; bulk retirement does not rewrite history, so no audit
// log entries are written either.
func (s *Service) SkipPendingForPrescription(ctx context.Context, prescriptionID uuid.UUID) (int, error) {
	n, err := s.reminders.SkipPendingByPrescription(ctx, prescriptionID, s.now())
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// MarkTaken records that the patient took the dose, optionally with the GPS
// fix reported by the device. Allowed from pending, sent, or skipped (a
// retired dose can still be taken); taken and missed reminders return
// ErrAlreadyCompleted.
func (s *Service) MarkTaken(ctx context.Context, id uuid.UUID, note string, loc *Location) (*Reminder, error) {
	return s.complete(ctx, id, StatusTaken, ActionTaken, note, loc)
}

// MarkMissed records that the patient skipped the dose. Allowed from any
// non-terminal state; taken and missed reminders return ErrAlreadyCompleted.
func (s *Service) MarkMissed(ctx context.Context, id uuid.UUID, note string) (*Reminder, error) {
	return s.complete(ctx, id, StatusMissed, ActionMissed, note, nil)
}

func (s *Service) complete(ctx context.Context, id uuid.UUID, to Status, action Action, note string, loc *Location) (*Reminder, error) {
	var result *Reminder
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.reminders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if r.Status.Terminal() {
			return ErrAlreadyCompleted
		}

		now := s.now()
		ok, err := s.reminders.Transition(ctx, id, []Status{StatusPending, StatusSent, StatusSkipped}, to, now)
		if err != nil {
			return err
		}
		if !ok {
			// Lost a race; reread to report the right error.
			r, err = s.reminders.GetByID(ctx, id)
			if err != nil {
				return err
			}
			if r.Status.Terminal() {
				return ErrAlreadyCompleted
			}
			return ErrInvalidState
		}

		log := newActionLog(r, action, now, note)
		log.Location = loc
		if err := s.logs.Insert(ctx, log); err != nil {
			return err
		}

		r.Status = to
		r.ActionAt = &now
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("reminder_id", id.String()).
		Str("action", string(action)).
		Msg("reminder completed")
	return result, nil
}

// Snooze pushes a reminder's notification forward and returns it to pending
// so it will be dispatched again. The scheduled intake time never moves, so
// delay bookkeeping and the missed sweep still measure against the original
// schedule. A non-positive minutes falls back to the configured delay. Each
// reminder can be snoozed at most SnoozeLimit times.
func (s *Service) Snooze(ctx context.Context, id uuid.UUID, minutes int) (*Reminder, error) {
	var result *Reminder
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		r, err := s.reminders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if r.Status.Terminal() {
			return ErrAlreadyCompleted
		}
		if r.SnoozeCount >= s.cfg.SnoozeLimit {
			return ErrSnoozeLimitExceeded
		}

		delay := s.cfg.SnoozeDelay
		if minutes > 0 {
			delay = time.Duration(minutes) * time.Minute
		}
		now := s.now()
		snoozedUntil := now.Add(delay)

		ok, err := s.reminders.Snooze(ctx, id, []Status{StatusPending, StatusSent}, snoozedUntil, snoozedUntil)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidState
		}

		if err := s.logs.Insert(ctx, newActionLog(r, ActionSnoozed, now,
			fmt.Sprintf("snoozed for %d minutes", int(delay/time.Minute)))); err != nil {
			return err
		}

		r.Status = StatusPending
		r.NotifyAt = snoozedUntil
		r.SnoozedUntil = &snoozedUntil
		r.SnoozeCount++
		r.SentAt = nil
		result = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("reminder_id", id.String()).
		Int("snooze_count", result.SnoozeCount).
		Time("snoozed_until", *result.SnoozedUntil).
		Msg("reminder snoozed")
	return result, nil
}

// SweepMissed closes out sent reminders that were never acted on. A reminder
// is missed once it was notified and its scheduled time is more than
// MissedAfter in the past. Returns the number of reminders swept.
func (s *Service) SweepMissed(ctx context.Context) (int, error) {
	var count int
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		now := s.now()
		cutoff := now.Add(-s.cfg.MissedAfter)
		missed, err := s.reminders.SweepMissed(ctx, cutoff, now)
		if err != nil {
			return err
		}
		logs := make([]*ActionLog, 0, len(missed))
		for _, r := range missed {
			logs = append(logs, newActionLog(r, ActionMissed, now, "no response"))
		}
		if err := s.logs.InsertMany(ctx, logs); err != nil {
			return err
		}
		count = len(missed)
		return nil
	})
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.logger.Info().Int("count", count).Msg("reminders marked missed")
	}
	return count, nil
}

// Get returns one reminder.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return s.reminders.GetByID(ctx, id)
}

// Today lists a patient's reminders for the current UTC day.
func (s *Service) Today(ctx context.Context, patientID uuid.UUID) ([]*Reminder, error) {
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	return s.reminders.ListByPatientAndRange(ctx, patientID, dayStart, dayStart.AddDate(0, 0, 1))
}

// Range lists a patient's reminders scheduled within [from, to).
func (s *Service) Range(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*Reminder, error) {
	if !to.After(from) {
		return nil, fmt.Errorf("invalid range: to must be after from")
	}
	return s.reminders.ListByPatientAndRange(ctx, patientID, from, to)
}

// Upcoming lists a patient's open reminders due within the next N hours,
// soonest first. Non-positive hours defaults to 24.
func (s *Service) Upcoming(ctx context.Context, patientID uuid.UUID, hours int) ([]*Reminder, error) {
	if hours <= 0 {
		hours = 24
	}
	now := s.now()
	all, err := s.reminders.ListByPatientAndRange(ctx, patientID, now, now.Add(time.Duration(hours)*time.Hour))
	if err != nil {
		return nil, err
	}
	open := make([]*Reminder, 0, len(all))
	for _, r := range all {
		if r.Status == StatusPending || r.Status == StatusSent {
			open = append(open, r)
		}
	}
	return open, nil
}

// TodaySummary bundles the current UTC day's reminder counts per status.
type TodaySummary struct {
	Date    string `json:"date"`
	Total   int    `json:"total"`
	Pending int    `json:"pending"`
	Sent    int    `json:"sent"`
	Taken   int    `json:"taken"`
	Missed  int    `json:"missed"`
	Skipped int    `json:"skipped"`
}

// Summary returns today's reminder counts for a patient.
func (s *Service) Summary(ctx context.Context, patientID uuid.UUID) (*TodaySummary, error) {
	now := s.now()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	counts, err := s.reminders.StatusCounts(ctx, patientID, dayStart, dayStart.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}
	sum := &TodaySummary{
		Date:    dayStart.Format("2006-01-02"),
		Pending: counts[StatusPending],
		Sent:    counts[StatusSent],
		Taken:   counts[StatusTaken],
		Missed:  counts[StatusMissed],
		Skipped: counts[StatusSkipped],
	}
	sum.Total = sum.Pending + sum.Sent + sum.Taken + sum.Missed + sum.Skipped
	return sum, nil
}

// History returns the patient's action log, newest first, optionally
// narrowed by action and time window.
func (s *Service) History(ctx context.Context, patientID uuid.UUID, f LogFilter, limit, offset int) ([]*ActionLog, int, error) {
	return s.logs.ListByPatient(ctx, patientID, f, limit, offset)
}
