package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medremind/medremind/internal/platform/push"
)

// notificationTitle is the push title for every medication reminder.
const notificationTitle = "💊 Medicine Reminder"

// defaultDispatchLimit caps how many reminders one scan picks up.
const defaultDispatchLimit = 500

// TokenDirectory resolves a patient to their registered device tokens.
// Implemented by the patient service.
type TokenDirectory interface {
	DeviceTokens(ctx context.Context, patientID uuid.UUID) ([]string, error)
}

// DispatchReport summarises one dispatch pass.
type DispatchReport struct {
	Due          int `json:"due"`
	Attempted    int `json:"attempted"`
	SuccessCount int `json:"success_count"`
	FailureCount int `json:"failure_count"`
	MarkedSent   int `json:"marked_sent"`
}

// Dispatcher finds reminders whose notify time has arrived and pushes them
// to patient devices.
//
// The push gateway reports aggregate counts only, so the dispatcher cannot
// tell which device rejected a message. Every reminder it attempted is
// marked sent regardless; undelivered ones are later caught by the missed
// sweep. Only a transport-level failure keeps reminders pending for the next
// scan.
type Dispatcher struct {
	reminders Repository
	logs      LogRepository
	tokens    TokenDirectory
	gateway   push.Gateway
	tx        TxRunner
	logger    zerolog.Logger
	limit     int
	now       func() time.Time
}

func NewDispatcher(reminders Repository, logs LogRepository, tokens TokenDirectory, gateway push.Gateway, tx TxRunner, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		reminders: reminders,
		logs:      logs,
		tokens:    tokens,
		gateway:   gateway,
		tx:        tx,
		logger:    logger,
		limit:     defaultDispatchLimit,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// buildMessage renders the push payload for one reminder.
func buildMessage(r *Reminder, token string) push.Message {
	return push.Message{
		Token: token,
		Title: notificationTitle,
		Body:  fmt.Sprintf("Time to take %s (%s)%s", r.MedicineName, r.Dosage, r.MealRelation.Suffix()),
		Data: map[string]string{
			"type":            "medicine_reminder",
			"reminder_id":     r.ID.String(),
			"prescription_id": r.PrescriptionID.String(),
			"medicine_name":   r.MedicineName,
			"dosage":          r.Dosage,
			"scheduled_at":    r.ScheduledAt.UTC().Format(time.RFC3339),
		},
	}
}

// DispatchDue sends notifications for all currently due reminders and marks
// them sent. Reminders whose patient has no registered devices are left
// pending.
func (d *Dispatcher) DispatchDue(ctx context.Context) (*DispatchReport, error) {
	now := d.now()
	due, err := d.reminders.FindDue(ctx, now, d.limit)
	if err != nil {
		return nil, fmt.Errorf("find due reminders: %w", err)
	}

	report := &DispatchReport{Due: len(due)}
	if len(due) == 0 {
		return report, nil
	}

	// Patients repeat across reminders; resolve each once.
	tokensByPatient := make(map[uuid.UUID][]string)
	var messages []push.Message
	var attempted []*Reminder
	for _, r := range due {
		tokens, ok := tokensByPatient[r.PatientID]
		if !ok {
			tokens, err = d.tokens.DeviceTokens(ctx, r.PatientID)
			if err != nil {
				d.logger.Warn().
					Err(err).
					Str("patient_id", r.PatientID.String()).
					Msg("device token lookup failed")
				tokens = nil
			}
			tokensByPatient[r.PatientID] = tokens
		}
		if len(tokens) == 0 {
			d.logger.Warn().
				Str("patient_id", r.PatientID.String()).
				Str("reminder_id", r.ID.String()).
				Msg("no registered devices, delivery skipped")
			continue
		}
		for _, token := range tokens {
			messages = append(messages, buildMessage(r, token))
		}
		attempted = append(attempted, r)
	}

	if len(attempted) == 0 {
		return report, nil
	}
	report.Attempted = len(attempted)

	result, err := d.gateway.SendBatch(ctx, messages)
	if err != nil {
		return report, fmt.Errorf("%w: %v", ErrDeliveryTransport, err)
	}
	report.SuccessCount = result.SuccessCount
	report.FailureCount = result.FailureCount

	ids := make([]uuid.UUID, len(attempted))
	for i, r := range attempted {
		ids[i] = r.ID
	}

	err = d.tx.RunInTx(ctx, func(ctx context.Context) error {
		marked, err := d.reminders.MarkSent(ctx, ids, now)
		if err != nil {
			return err
		}
		report.MarkedSent = int(marked)

		logs := make([]*ActionLog, 0, len(attempted))
		for _, r := range attempted {
			logs = append(logs, newActionLog(r, ActionSent, now, ""))
		}
		return d.logs.InsertMany(ctx, logs)
	})
	if err != nil {
		return report, fmt.Errorf("mark reminders sent: %w", err)
	}

	d.logger.Info().
		Int("due", report.Due).
		Int("attempted", report.Attempted).
		Int("success", report.SuccessCount).
		Int("failure", report.FailureCount).
		Msg("reminders dispatched")
	return report, nil
}
