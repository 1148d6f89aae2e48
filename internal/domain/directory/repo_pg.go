package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carelink/carelink/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier {
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

// =========== Reference data ===========

func (r *repoPG) ListWilayas(ctx context.Context) ([]Wilaya, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT w.name, COALESCE(array_agg(c.name ORDER BY c.name) FILTER (WHERE c.name IS NOT NULL), '{}')
		FROM wilaya w LEFT JOIN city c ON c.wilaya = w.name
		GROUP BY w.name ORDER BY w.name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Wilaya
	for rows.Next() {
		var w Wilaya
		if err := rows.Scan(&w.Name, &w.Cities); err != nil {
			return nil, err
		}
		items = append(items, w)
	}
	return items, rows.Err()
}

func (r *repoPG) ListCities(ctx context.Context, wilaya string) ([]City, error) {
	query := `SELECT wilaya, name FROM city`
	var args []interface{}
	if wilaya != "" {
		query += ` WHERE LOWER(wilaya) = LOWER($1)`
		args = append(args, wilaya)
	}
	query += ` ORDER BY wilaya, name`

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []City
	for rows.Next() {
		var c City
		if err := rows.Scan(&c.Wilaya, &c.Name); err != nil {
			return nil, err
		}
		items = append(items, c)
	}
	return items, rows.Err()
}

func (r *repoPG) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT id, name FROM specialty ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Specialty
	for rows.Next() {
		var s Specialty
		if err := rows.Scan(&s.ID, &s.Name); err != nil {
			return nil, err
		}
		items = append(items, s)
	}
	return items, rows.Err()
}

func (r *repoPG) UpsertCity(ctx context.Context, c City) error {
	if _, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO wilaya (name) VALUES ($1) ON CONFLICT DO NOTHING`, c.Wilaya); err != nil {
		return fmt.Errorf("upsert wilaya %s: %w", c.Wilaya, err)
	}
	_, err := r.conn(ctx).Exec(ctx,
		`INSERT INTO city (wilaya, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`, c.Wilaya, c.Name)
	return err
}

func (r *repoPG) UpsertSpecialty(ctx context.Context, s Specialty) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO specialty (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, s.ID, s.Name)
	return err
}

// =========== Doctors ===========

const doctorCols = `id, first_name, last_name, email, phone, sex, wilaya, city, specialty,
	location_link, created_at, updated_at`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	err := row.Scan(&d.ID, &d.FirstName, &d.LastName, &d.Email, &d.Phone, &d.Sex,
		&d.Wilaya, &d.City, &d.Specialty, &d.LocationLink, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repoPG) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx, `SELECT `+doctorCols+` FROM doctor WHERE id = $1`, id))
}

func (r *repoPG) GetDoctorByEmail(ctx context.Context, email string) (*Doctor, error) {
	return scanDoctor(r.conn(ctx).QueryRow(ctx,
		`SELECT `+doctorCols+` FROM doctor WHERE LOWER(email) = LOWER($1)`, email))
}

func (r *repoPG) CreateDoctor(ctx context.Context, d *Doctor) error {
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctor (id, first_name, last_name, email, phone, sex, wilaya, city, specialty, location_link)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		RETURNING created_at, updated_at`,
		d.ID, d.FirstName, d.LastName, d.Email, d.Phone, d.Sex,
		d.Wilaya, d.City, d.Specialty, d.LocationLink).Scan(&d.CreatedAt, &d.UpdatedAt)
	if db.IsUniqueViolation(err, "doctor_email_key") {
		return ErrEmailTaken
	}
	return err
}

func (r *repoPG) UpdateDoctor(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		UPDATE doctor SET first_name=$2, last_name=$3, phone=$4, wilaya=$5, city=$6,
			specialty=$7, location_link=$8, updated_at=NOW()
		WHERE id = $1
		RETURNING updated_at`,
		d.ID, d.FirstName, d.LastName, d.Phone, d.Wilaya, d.City,
		d.Specialty, d.LocationLink).Scan(&d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func (r *repoPG) UpsertDoctor(ctx context.Context, d *Doctor) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO doctor (id, first_name, last_name, email, phone, sex, wilaya, city, specialty, location_link)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		ON CONFLICT (id) DO UPDATE SET first_name=EXCLUDED.first_name, last_name=EXCLUDED.last_name,
			phone=EXCLUDED.phone, sex=EXCLUDED.sex, wilaya=EXCLUDED.wilaya, city=EXCLUDED.city,
			specialty=EXCLUDED.specialty, location_link=EXCLUDED.location_link, updated_at=NOW()`,
		d.ID, d.FirstName, d.LastName, d.Email, d.Phone, d.Sex,
		d.Wilaya, d.City, d.Specialty, d.LocationLink)
	return err
}

func (r *repoPG) ListDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	where := ` WHERE 1=1`
	var args []interface{}
	idx := 1
	add := func(col, v string) {
		if v = strings.TrimSpace(v); v == "" {
			return
		}
		where += fmt.Sprintf(` AND LOWER(%s) = LOWER($%d)`, col, idx)
		args = append(args, v)
		idx++
	}
	add("wilaya", f.Wilaya)
	add("city", f.City)
	add("specialty", f.Specialty)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM doctor`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + doctorCols + ` FROM doctor` + where +
		fmt.Sprintf(` ORDER BY last_name, first_name LIMIT $%d OFFSET $%d`, idx, idx+1)
	args = append(args, limit, offset)

	rows, err := r.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var items []*Doctor
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, d)
	}
	return items, total, rows.Err()
}
