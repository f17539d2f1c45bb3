package prescription

import (
	"context"
	"encoding/json"
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
}

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

const rxCols = `id, rx_number, patient_id, prescribed_by, diagnosis, status,
	start_date, end_date, medicines, reminders_generated, notes, created_at, updated_at`

func scanPrescription(row pgx.Row) (*Prescription, error) {
	var p Prescription
	var medicines []byte
	err := row.Scan(&p.ID, &p.RxNumber, &p.PatientID, &p.PrescribedBy, &p.Diagnosis, &p.Status,
		&p.StartDate, &p.EndDate, &medicines, &p.RemindersGenerated, &p.Notes, &p.CreatedAt, &p.UpdatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(medicines, &p.Medicines); err != nil {
		return nil, fmt.Errorf("decode medicines: %w", err)
	}
	return &p, nil
}

func (r *repoPG) Create(ctx context.Context, p *Prescription) error {
	p.ID = uuid.New()
	medicines, err := json.Marshal(p.Medicines)
	if err != nil {
		return fmt.Errorf("encode medicines: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO prescriptions (id, rx_number, patient_id, prescribed_by, diagnosis, status,
			start_date, end_date, medicines, reminders_generated, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		p.ID, p.RxNumber, p.PatientID, p.PrescribedBy, p.Diagnosis, p.Status,
		p.StartDate, p.EndDate, medicines, p.RemindersGenerated, p.Notes)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Prescription, error) {
	return scanPrescription(r.conn(ctx).QueryRow(ctx,
		`SELECT `+rxCols+` FROM prescriptions WHERE id = $1`, id))
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Prescription, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescriptions WHERE patient_id = $1`, patientID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+rxCols+` FROM prescriptions
		 WHERE patient_id = $1
		 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var prescriptions []*Prescription
	for rows.Next() {
		p, err := scanPrescription(rows)
		if err != nil {
			return nil, 0, err
		}
		prescriptions = append(prescriptions, p)
	}
	return prescriptions, total, rows.Err()
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions SET status = $2, updated_at = NOW()
		WHERE id = $1 AND status <> $2`,
		id, status)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *repoPG) SetRemindersGenerated(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE prescriptions SET reminders_generated = TRUE, updated_at = NOW()
		WHERE id = $1`, id)
	return err
}

func (r *repoPG) CountCreatedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM prescriptions WHERE created_at >= $1`, since).Scan(&count)
	return count, err
}
