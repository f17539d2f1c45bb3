package reminder

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DayCounts aggregates logged reminder actions for one calendar day (UTC).
type DayCounts struct {
	Day    string `json:"date"`
	Total  int    `json:"total"`
	Taken  int    `json:"taken"`
	Missed int    `json:"missed"`
}

// Repository defines persistence for reminders.
type Repository interface {
	InsertMany(ctx context.Context, reminders []*Reminder) error
	GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error)
	ListByPatientAndRange(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*Reminder, error)

	// FindDue returns pending reminders whose notify time has arrived,
	// oldest first.
	FindDue(ctx context.Context, now time.Time, limit int) ([]*Reminder, error)

	// MarkSent moves the given reminders from pending to sent. Reminders
	// that changed state concurrently are left untouched. Returns the number
	// of rows updated.
	MarkSent(ctx context.Context, ids []uuid.UUID, sentAt time.Time) (int64, error)

	// Transition atomically moves a reminder from one of the allowed states
	// to the target state. Returns false when the reminder was not in an
	// allowed state.
	Transition(ctx context.Context, id uuid.UUID, allowed []Status, to Status, actionAt time.Time) (bool, error)

	// Snooze re-arms a reminder: back to pending with a pushed-out notify
	// time and an incremented snooze counter. The scheduled intake time is
	// left untouched. Returns false when the reminder was not in an allowed
	// state.
	Snooze(ctx context.Context, id uuid.UUID, allowed []Status, notifyAt, snoozedUntil time.Time) (bool, error)

	// SkipPendingByPrescription marks a prescription's open reminders that
	// are still in the future as skipped. Past occurrences keep their
	// outcome. Returns the number of rows updated.
	SkipPendingByPrescription(ctx context.Context, prescriptionID uuid.UUID, now time.Time) (int64, error)

	// SweepMissed marks sent reminders whose scheduled time passed before
	// the cutoff as missed, and returns them. Pending reminders are never
	// swept: a patient who was never notified is not charged with a miss.
	SweepMissed(ctx context.Context, cutoff, actionAt time.Time) ([]*Reminder, error)

	// StatusCounts returns reminder counts per status for a patient within
	// [from, to).
	StatusCounts(ctx context.Context, patientID uuid.UUID, from, to time.Time) (map[Status]int, error)
}

// LogFilter narrows an action log listing. Zero values mean no constraint.
type LogFilter struct {
	Action Action
	From   *time.Time
	To     *time.Time
}

// LogRepository defines persistence for the reminder audit trail. Adherence
// reporting reads from here, not from the reminders table: what the patient
// actually did is the record of adherence, open occurrences are not.
type LogRepository interface {
	Insert(ctx context.Context, log *ActionLog) error
	InsertMany(ctx context.Context, logs []*ActionLog) error
	ListByPatient(ctx context.Context, patientID uuid.UUID, f LogFilter, limit, offset int) ([]*ActionLog, int, error)

	// ActionCounts returns logged patient-action counts (sent entries are
	// dispatch bookkeeping and excluded) with action times within [from, to).
	ActionCounts(ctx context.Context, patientID uuid.UUID, from, to time.Time) (map[Action]int, error)

	// DailyActionCounts groups logged patient actions (excluding sent) by
	// UTC calendar day of their action time within [from, to), ascending.
	DailyActionCounts(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]DayCounts, error)
}

// TxRunner executes a function within a database transaction, so that a
// state transition and its log entry commit together.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}
