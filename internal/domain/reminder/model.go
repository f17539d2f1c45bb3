package reminder

import (
	"time"

	"github.com/google/uuid"

	"github.com/medremind/medremind/internal/domain/prescription"
)

// Status is the lifecycle state of a reminder.
//
// A reminder starts pending, moves to sent when a notification has been
// dispatched, and ends taken, missed, or skipped. Snoozing returns a sent
// reminder to pending with a later notify time; the scheduled intake time
// never moves.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusTaken   Status = "taken"
	StatusMissed  Status = "missed"
	StatusSkipped Status = "skipped"
)

// Terminal reports whether the status is an end state. Terminal reminders
// never change again. Skipped is not terminal: a patient may still take a
// dose whose reminder was retired with its prescription.
func (s Status) Terminal() bool {
	return s == StatusTaken || s == StatusMissed
}

// Reminder is a single scheduled medication intake occurrence. ScheduledAt
// is when the dose is due; NotifyAt is when the push notification should go
// out (a few minutes earlier).
type Reminder struct {
	ID             uuid.UUID                 `json:"id"`
	PrescriptionID uuid.UUID                 `json:"prescription_id"`
	PatientID      uuid.UUID                 `json:"patient_id"`
	MedicineName   string                    `json:"medicine_name"`
	Dosage         string                    `json:"dosage"`
	MealRelation   prescription.MealRelation `json:"meal_relation"`
	ScheduledAt    time.Time                 `json:"scheduled_at"`
	NotifyAt       time.Time                 `json:"notify_at"`
	Status         Status                    `json:"status"`
	SnoozeCount    int                       `json:"snooze_count"`
	SnoozedUntil   *time.Time                `json:"snoozed_until,omitempty"`
	SentAt         *time.Time                `json:"sent_at,omitempty"`
	ActionAt       *time.Time                `json:"action_at,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	UpdatedAt      time.Time                 `json:"updated_at"`
}

// Action identifies an entry in a reminder's audit trail.
type Action string

const (
	ActionSent    Action = "sent"
	ActionTaken   Action = "taken"
	ActionMissed  Action = "missed"
	ActionSnoozed Action = "snoozed"
	ActionSkipped Action = "skipped"
)

// Location is an optional GPS fix recorded with a patient action.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// ActionLog records one state change of a reminder. DelayMinutes is the
// rounded distance between the scheduled time and the action, negative when
// the action happened early.
type ActionLog struct {
	ID             uuid.UUID `json:"id"`
	ReminderID     uuid.UUID `json:"reminder_id"`
	PatientID      uuid.UUID `json:"patient_id"`
	PrescriptionID uuid.UUID `json:"prescription_id"`
	MedicineName   string    `json:"medicine_name"`
	Dosage         string    `json:"dosage"`
	Action         Action    `json:"action"`
	ScheduledAt    time.Time `json:"scheduled_at"`
	ActionAt       time.Time `json:"action_at"`
	DelayMinutes   int       `json:"delay_minutes"`
	Note           string    `json:"note,omitempty"`
	Location       *Location `json:"location,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// delayMinutes computes the signed delay between schedule and action,
// rounded to the nearest minute.
func delayMinutes(scheduledAt, actionAt time.Time) int {
	return int(actionAt.Sub(scheduledAt).Round(time.Minute) / time.Minute)
}

// newActionLog builds a log entry for a reminder state change.
func newActionLog(r *Reminder, action Action, actionAt time.Time, note string) *ActionLog {
	return &ActionLog{
		ReminderID:     r.ID,
		PatientID:      r.PatientID,
		PrescriptionID: r.PrescriptionID,
		MedicineName:   r.MedicineName,
		Dosage:         r.Dosage,
		Action:         action,
		ScheduledAt:    r.ScheduledAt,
		ActionAt:       actionAt,
		DelayMinutes:   delayMinutes(r.ScheduledAt, actionAt),
		Note:           note,
	}
}
