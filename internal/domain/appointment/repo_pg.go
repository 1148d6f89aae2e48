package appointment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

const activeSlotKey = "appointment_active_slot_key"

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const apptCols = `id, patient_id, doctor_id, scheduled_at, status, notes, created_at, updated_at`

func scanAppt(row pgx.Row) (*Appointment, error) {
	var (
		a      Appointment
		status string
	)
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.ScheduledAt, &status, &a.Notes,
		&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	a.Status = Status(status)
	return &a, nil
}

func statusStrings(in []Status) []string {
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = string(s)
	}
	return out
}

func (r *repoPG) Create(ctx context.Context, a *Appointment) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, scheduled_at, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6)
		RETURNING created_at, updated_at`,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, string(a.Status), a.Notes,
	).Scan(&a.CreatedAt, &a.UpdatedAt)
	if db.IsUniqueViolation(err, activeSlotKey) {
		return ErrSlotTaken
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	a, err := scanAppt(r.conn(ctx).QueryRow(ctx, `SELECT `+apptCols+` FROM appointment WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (r *repoPG) UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, scheduledAt *time.Time) (*Appointment, error) {
	a, err := scanAppt(r.conn(ctx).QueryRow(ctx, `
		UPDATE appointment
		SET status = $3, scheduled_at = COALESCE($4::timestamptz, scheduled_at), updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+apptCols,
		id, string(from), string(to), scheduledAt))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return nil, ErrStale
	case db.IsUniqueViolation(err, activeSlotKey):
		return nil, ErrSlotTaken
	}
	return a, err
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Appointment, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1

	if f.PatientID != uuid.Nil {
		where += fmt.Sprintf(` AND patient_id = $%d`, idx)
		args = append(args, f.PatientID)
		idx++
	}
	if f.DoctorID != uuid.Nil {
		where += fmt.Sprintf(` AND doctor_id = $%d`, idx)
		args = append(args, f.DoctorID)
		idx++
	}
	if !f.From.IsZero() {
		where += fmt.Sprintf(` AND scheduled_at >= $%d`, idx)
		args = append(args, f.From)
		idx++
	}
	if !f.To.IsZero() {
		where += fmt.Sprintf(` AND scheduled_at < $%d`, idx)
		args = append(args, f.To)
		idx++
	}
	if len(f.Statuses) > 0 {
		where += fmt.Sprintf(` AND status = ANY($%d)`, idx)
		args = append(args, statusStrings(f.Statuses))
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM appointment`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	order := "DESC"
	if f.Ascending {
		order = "ASC"
	}
	query := `SELECT ` + apptCols + ` FROM appointment` + where +
		fmt.Sprintf(` ORDER BY scheduled_at %s, created_at %s LIMIT $%d OFFSET $%d`, order, order, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Appointment
	for rows.Next() {
		a, err := scanAppt(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, a)
	}
	return items, total, rows.Err()
}

func (r *repoPG) SlotTaken(ctx context.Context, doctorID uuid.UUID, at time.Time, excludeID uuid.UUID) (bool, error) {
	var taken bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointment
			WHERE doctor_id = $1 AND scheduled_at = $2 AND id <> $3
			  AND status NOT IN ('CANCELLED', 'COMPLETED'))`,
		doctorID, at, excludeID).Scan(&taken)
	return taken, err
}

func (r *repoPG) Exists(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	var ok bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM appointment WHERE patient_id = $1 AND doctor_id = $2)`,
		patientID, doctorID).Scan(&ok)
	return ok, err
}

func (r *repoPG) DoctorStats(ctx context.Context, doctorID uuid.UUID, dayStart, dayEnd time.Time) (DoctorStats, error) {
	var st DoctorStats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE scheduled_at >= $2 AND scheduled_at < $3
				AND status IN ('PENDING', 'CONFIRMED', 'SCHEDULED', 'RESCHEDULED')),
			COUNT(*) FILTER (WHERE status = 'PENDING'),
			COUNT(DISTINCT patient_id)
		FROM appointment WHERE doctor_id = $1`,
		doctorID, dayStart, dayEnd).Scan(&st.TodayAppointments, &st.PendingAppointments, &st.TotalPatients)
	return st, err
}

func (r *repoPG) PatientStats(ctx context.Context, patientID uuid.UUID, now time.Time) (PatientStats, error) {
	var st PatientStats
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE scheduled_at > $2
				AND status IN ('PENDING', 'CONFIRMED', 'SCHEDULED', 'RESCHEDULED')),
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'COMPLETED')
		FROM appointment WHERE patient_id = $1`,
		patientID, now).Scan(&st.UpcomingAppointments, &st.TotalAppointments, &st.CompletedAppointments)
	return st, err
}

func (r *repoPG) Upsert(ctx context.Context, a *Appointment) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO appointment (id, patient_id, doctor_id, scheduled_at, status, notes)
		VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (id) DO UPDATE SET
			scheduled_at = EXCLUDED.scheduled_at, status = EXCLUDED.status, updated_at = NOW()`,
		a.ID, a.PatientID, a.DoctorID, a.ScheduledAt, string(a.Status), a.Notes)
	if db.IsUniqueViolation(err, activeSlotKey) {
		return ErrSlotTaken
	}
	return err
}
