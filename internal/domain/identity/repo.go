package identity

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("patient not found")
	ErrAccountNotFound    = errors.New("account not found")
	ErrEmailTaken         = errors.New("Email already registered")
	ErrInvalid            = errors.New("invalid registration")
	ErrInvalidCredentials = errors.New("Invalid email or password")
	ErrForbidden          = errors.New("Forbidden")
)

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	Update(ctx context.Context, p *Patient) error
	Upsert(ctx context.Context, p *Patient) error
}

type AccountRepository interface {
	Create(ctx context.Context, a *Account) error
	GetByEmail(ctx context.Context, email string) (*Account, error)
	Upsert(ctx context.Context, a *Account) error
}
