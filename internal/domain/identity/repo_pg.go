package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/db"
)

func connOf(ctx context.Context, pool *pgxpool.Pool) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return pool
}

// =========== Patient ===========

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepoPG(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

const patientCols = `id, first_name, last_name, email, phone, sex, wilaya, city, created_at, updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(&p.ID, &p.FirstName, &p.LastName, &p.Email, &p.Phone, &p.Sex,
		&p.Wilaya, &p.City, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	err := connOf(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO patient (id, first_name, last_name, email, phone, sex, wilaya, city)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		RETURNING created_at, updated_at`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.Sex, p.Wilaya, p.City,
	).Scan(&p.CreatedAt, &p.UpdatedAt)
	if db.IsUniqueViolation(err, "patient_email_key") {
		return ErrEmailTaken
	}
	return err
}

func (r *patientRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	return scanPatient(connOf(ctx, r.pool).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patient WHERE id = $1`, id))
}

func (r *patientRepoPG) Update(ctx context.Context, p *Patient) error {
	err := connOf(ctx, r.pool).QueryRow(ctx, `
		UPDATE patient SET first_name=$2, last_name=$3, phone=$4, sex=$5, wilaya=$6, city=$7,
			updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		p.ID, p.FirstName, p.LastName, p.Phone, p.Sex, p.Wilaya, p.City,
	).Scan(&p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *patientRepoPG) Upsert(ctx context.Context, p *Patient) error {
	_, err := connOf(ctx, r.pool).Exec(ctx, `
		INSERT INTO patient (id, first_name, last_name, email, phone, sex, wilaya, city)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (id) DO UPDATE SET first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name,
			phone=EXCLUDED.phone, sex=EXCLUDED.sex, wilaya=EXCLUDED.wilaya, city=EXCLUDED.city,
			updated_at=NOW()`,
		p.ID, p.FirstName, p.LastName, p.Email, p.Phone, p.Sex, p.Wilaya, p.City)
	return err
}

// =========== Account ===========

type accountRepoPG struct{ pool *pgxpool.Pool }

func NewAccountRepoPG(pool *pgxpool.Pool) AccountRepository { return &accountRepoPG{pool: pool} }

func (r *accountRepoPG) Create(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	err := connOf(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO account (id, email, password_hash, role, subject_id)
		VALUES ($1,$2,$3,$4,$5)
		RETURNING created_at`,
		a.ID, a.Email, a.PasswordHash, string(a.Role), a.SubjectID,
	).Scan(&a.CreatedAt)
	if db.IsUniqueViolation(err, "account_email_key") {
		return ErrEmailTaken
	}
	return err
}

func (r *accountRepoPG) GetByEmail(ctx context.Context, email string) (*Account, error) {
	var a Account
	var role string
	err := connOf(ctx, r.pool).QueryRow(ctx, `
		SELECT id, email, password_hash, role, subject_id, created_at
		FROM account WHERE LOWER(email) = LOWER($1)`, email,
	).Scan(&a.ID, &a.Email, &a.PasswordHash, &role, &a.SubjectID, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	a.Role = auth.Role(role)
	return &a, nil
}

// Upsert keys on (role, subject_id) so reseeding refreshes the password hash.
func (r *accountRepoPG) Upsert(ctx context.Context, a *Account) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	_, err := connOf(ctx, r.pool).Exec(ctx, `
		INSERT INTO account (id, email, password_hash, role, subject_id)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (role, subject_id) DO UPDATE SET email=EXCLUDED.email,
			password_hash=EXCLUDED.password_hash`,
		a.ID, a.Email, a.PasswordHash, string(a.Role), a.SubjectID)
	if db.IsUniqueViolation(err, "account_email_key") {
		return ErrEmailTaken
	}
	return err
}
