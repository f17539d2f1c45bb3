package reminder

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medremind/medremind/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// =========== Reminder Repository ===========

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const reminderCols = `id, prescription_id, patient_id, medicine_name, dosage, meal_relation,
	scheduled_at, notify_at, status, snooze_count, snoozed_until, sent_at, action_at, created_at, updated_at`

func scanReminder(row pgx.Row) (*Reminder, error) {
	var rem Reminder
	err := row.Scan(&rem.ID, &rem.PrescriptionID, &rem.PatientID, &rem.MedicineName, &rem.Dosage,
		&rem.MealRelation, &rem.ScheduledAt, &rem.NotifyAt, &rem.Status, &rem.SnoozeCount,
		&rem.SnoozedUntil, &rem.SentAt, &rem.ActionAt, &rem.CreatedAt, &rem.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	return &rem, err
}

func collectReminders(rows pgx.Rows) ([]*Reminder, error) {
	defer rows.Close()
	var reminders []*Reminder
	for rows.Next() {
		rem, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, rem)
	}
	return reminders, rows.Err()
}

func (r *repoPG) InsertMany(ctx context.Context, reminders []*Reminder) error {
	if len(reminders) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rem := range reminders {
		if rem.ID == uuid.Nil {
			rem.ID = uuid.New()
		}
		batch.Queue(`
			INSERT INTO reminders (id, prescription_id, patient_id, medicine_name, dosage,
				meal_relation, scheduled_at, notify_at, status, snooze_count)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			rem.ID, rem.PrescriptionID, rem.PatientID, rem.MedicineName, rem.Dosage,
			rem.MealRelation, rem.ScheduledAt, rem.NotifyAt, rem.Status, rem.SnoozeCount)
	}
	results := r.conn(ctx).SendBatch(ctx, batch)
	defer results.Close()
	for range reminders {
		if _, err := results.Exec(); err != nil {
			return err
		}
	}
	return results.Close()
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Reminder, error) {
	return scanReminder(r.conn(ctx).QueryRow(ctx,
		`SELECT `+reminderCols+` FROM reminders WHERE id = $1`, id))
}

func (r *repoPG) ListByPatientAndRange(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reminderCols+` FROM reminders
		 WHERE patient_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		 ORDER BY scheduled_at ASC`,
		patientID, from, to)
	if err != nil {
		return nil, err
	}
	return collectReminders(rows)
}

func (r *repoPG) FindDue(ctx context.Context, now time.Time, limit int) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+reminderCols+` FROM reminders
		 WHERE status = $1 AND notify_at <= $2
		 ORDER BY notify_at ASC
		 LIMIT $3`,
		StatusPending, now, limit)
	if err != nil {
		return nil, err
	}
	return collectReminders(rows)
}

func (r *repoPG) MarkSent(ctx context.Context, ids []uuid.UUID, sentAt time.Time) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminders
		SET status = $1, sent_at = $2, updated_at = NOW()
		WHERE id = ANY($3) AND status = $4`,
		StatusSent, sentAt, ids, StatusPending)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) Transition(ctx context.Context, id uuid.UUID, allowed []Status, to Status, actionAt time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminders
		SET status = $1, action_at = $2, updated_at = NOW()
		WHERE id = $3 AND status = ANY($4)`,
		to, actionAt, id, statusStrings(allowed))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) Snooze(ctx context.Context, id uuid.UUID, allowed []Status, notifyAt, snoozedUntil time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminders
		SET status = $1, notify_at = $2, snoozed_until = $3,
		    snooze_count = snooze_count + 1, sent_at = NULL, updated_at = NOW()
		WHERE id = $4 AND status = ANY($5)`,
		StatusPending, notifyAt, snoozedUntil, id, statusStrings(allowed))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) SkipPendingByPrescription(ctx context.Context, prescriptionID uuid.UUID, now time.Time) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE reminders
		SET status = $1, action_at = $2, updated_at = NOW()
		WHERE prescription_id = $3 AND status = ANY($4) AND scheduled_at > $2`,
		StatusSkipped, now, prescriptionID,
		statusStrings([]Status{StatusPending, StatusSent}))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *repoPG) SweepMissed(ctx context.Context, cutoff, actionAt time.Time) ([]*Reminder, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		UPDATE reminders
		SET status = $1, action_at = $2, updated_at = NOW()
		WHERE status = $3 AND scheduled_at < $4
		RETURNING `+reminderCols,
		StatusMissed, actionAt, StatusSent, cutoff)
	if err != nil {
		return nil, err
	}
	return collectReminders(rows)
}

func (r *repoPG) StatusCounts(ctx context.Context, patientID uuid.UUID, from, to time.Time) (map[Status]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT status, COUNT(*) FROM reminders
		WHERE patient_id = $1 AND scheduled_at >= $2 AND scheduled_at < $3
		GROUP BY status`,
		patientID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status Status
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		counts[status] = count
	}
	return counts, rows.Err()
}

func statusStrings(statuses []Status) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}

// =========== Action Log Repository ===========

type logRepoPG struct{ pool *pgxpool.Pool }

func NewLogRepoPG(pool *pgxpool.Pool) LogRepository {
	return &logRepoPG{pool: pool}
}

func (r *logRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const logCols = `id, reminder_id, patient_id, prescription_id, medicine_name, dosage, action,
	scheduled_at, action_at, delay_minutes, note, latitude, longitude, created_at`

func (r *logRepoPG) Insert(ctx context.Context, log *ActionLog) error {
	if log.ID == uuid.Nil {
		log.ID = uuid.New()
	}
	var lat, lon *float64
	if log.Location != nil {
		lat, lon = &log.Location.Latitude, &log.Location.Longitude
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO reminder_logs (id, reminder_id, patient_id, prescription_id, medicine_name,
			dosage, action, scheduled_at, action_at, delay_minutes, note, latitude, longitude)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		log.ID, log.ReminderID, log.PatientID, log.PrescriptionID, log.MedicineName,
		log.Dosage, log.Action, log.ScheduledAt, log.ActionAt, log.DelayMinutes, log.Note, lat, lon)
	return err
}

func (r *logRepoPG) InsertMany(ctx context.Context, logs []*ActionLog) error {
	for _, log := range logs {
		if err := r.Insert(ctx, log); err != nil {
			return err
		}
	}
	return nil
}

func (r *logRepoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, f LogFilter, limit, offset int) ([]*ActionLog, int, error) {
	where := `WHERE patient_id = $1`
	args := []any{patientID}
	if f.Action != "" {
		args = append(args, f.Action)
		where += fmt.Sprintf(` AND action = $%d`, len(args))
	}
	if f.From != nil {
		args = append(args, *f.From)
		where += fmt.Sprintf(` AND action_at >= $%d`, len(args))
	}
	if f.To != nil {
		args = append(args, *f.To)
		where += fmt.Sprintf(` AND action_at < $%d`, len(args))
	}

	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM reminder_logs `+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT `+logCols+` FROM reminder_logs %s
		 ORDER BY action_at DESC LIMIT $%d OFFSET $%d`,
		where, len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var logs []*ActionLog
	for rows.Next() {
		var l ActionLog
		var lat, lon *float64
		if err := rows.Scan(&l.ID, &l.ReminderID, &l.PatientID, &l.PrescriptionID, &l.MedicineName,
			&l.Dosage, &l.Action, &l.ScheduledAt, &l.ActionAt, &l.DelayMinutes, &l.Note,
			&lat, &lon, &l.CreatedAt); err != nil {
			return nil, 0, err
		}
		if lat != nil && lon != nil {
			l.Location = &Location{Latitude: *lat, Longitude: *lon}
		}
		logs = append(logs, &l)
	}
	return logs, total, rows.Err()
}

func (r *logRepoPG) ActionCounts(ctx context.Context, patientID uuid.UUID, from, to time.Time) (map[Action]int, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT action, COUNT(*) FROM reminder_logs
		WHERE patient_id = $1 AND action <> 'sent'
		  AND action_at >= $2 AND action_at < $3
		GROUP BY action`,
		patientID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[Action]int)
	for rows.Next() {
		var action Action
		var count int
		if err := rows.Scan(&action, &count); err != nil {
			return nil, err
		}
		counts[action] = count
	}
	return counts, rows.Err()
}

func (r *logRepoPG) DailyActionCounts(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]DayCounts, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(action_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day,
		       COUNT(*) AS total,
		       COUNT(*) FILTER (WHERE action = 'taken') AS taken,
		       COUNT(*) FILTER (WHERE action = 'missed') AS missed
		FROM reminder_logs
		WHERE patient_id = $1 AND action <> 'sent'
		  AND action_at >= $2 AND action_at < $3
		GROUP BY day
		ORDER BY day ASC`,
		patientID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []DayCounts
	for rows.Next() {
		var d DayCounts
		if err := rows.Scan(&d.Day, &d.Total, &d.Taken, &d.Missed); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	return days, rows.Err()
}
