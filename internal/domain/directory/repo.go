package directory

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound          = errors.New("doctor not found")
	ErrEmailTaken        = errors.New("email already registered")
	ErrUnknownSearchType = errors.New("search type must be specialty, location or availability")
)

type Repository interface {
	ListWilayas(ctx context.Context) ([]Wilaya, error)
	ListCities(ctx context.Context, wilaya string) ([]City, error)
	ListSpecialties(ctx context.Context) ([]Specialty, error)

	ListDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error)
	GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetDoctorByEmail(ctx context.Context, email string) (*Doctor, error)
	CreateDoctor(ctx context.Context, d *Doctor) error
	UpdateDoctor(ctx context.Context, d *Doctor) error

	UpsertCity(ctx context.Context, c City) error
	UpsertSpecialty(ctx context.Context, s Specialty) error
	UpsertDoctor(ctx context.Context, d *Doctor) error
}
