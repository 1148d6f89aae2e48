package identity

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/auth"
)

const minPasswordLength = 8

// DoctorDirectory is the part of the directory service identity writes to.
type DoctorDirectory interface {
	CreateDoctor(ctx context.Context, d *directory.Doctor) error
	GetDoctor(ctx context.Context, id uuid.UUID) (*directory.Doctor, error)
	ImportDoctor(ctx context.Context, d *directory.Doctor) error
}

// TxRunner is satisfied by *db.Transactor.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CareRelation reports whether a doctor has ever been booked by a patient.
type CareRelation interface {
	HasAppointmentWith(ctx context.Context, patientID, doctorID uuid.UUID) (bool, error)
}

type Service struct {
	patients PatientRepository
	accounts AccountRepository
	doctors  DoctorDirectory
	tx       TxRunner
	tokens   *auth.TokenIssuer
	care     CareRelation
	logger   zerolog.Logger
}

func NewService(patients PatientRepository, accounts AccountRepository, doctors DoctorDirectory,
	tx TxRunner, tokens *auth.TokenIssuer, logger zerolog.Logger) *Service {
	return &Service{
		patients: patients,
		accounts: accounts,
		doctors:  doctors,
		tx:       tx,
		tokens:   tokens,
		logger:   logger.With().Str("component", "identity").Logger(),
	}
}

// SetCareRelation wires the appointment lookup used to let doctors read the
// profiles of their patients.
func (s *Service) SetCareRelation(c CareRelation) {
	s.care = c
}

func normalizeEmail(v string) string {
	return strings.ToLower(strings.TrimSpace(v))
}

func validateRegistration(req *RegisterRequest, role auth.Role) error {
	required := []struct{ name, value string }{
		{"first_name", req.FirstName},
		{"last_name", req.LastName},
		{"email", req.Email},
		{"password", req.Password},
		{"phone", req.Phone},
		{"sex", req.Sex},
		{"wilaya", req.Wilaya},
		{"city", req.City},
	}
	if role == auth.RoleDoctor {
		required = append(required, struct{ name, value string }{"specialty", req.Specialty})
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalid, f.name)
		}
	}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		return fmt.Errorf("%w: email is not valid", ErrInvalid)
	}
	if len(req.Password) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalid, minPasswordLength)
	}
	return nil
}

// RegisterPatient creates the patient profile and its login account together.
func (s *Service) RegisterPatient(ctx context.Context, req RegisterRequest) (*Patient, error) {
	if err := validateRegistration(&req, auth.RolePatient); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	p := &Patient{
		ID:        uuid.New(),
		FirstName: strings.TrimSpace(req.FirstName),
		LastName:  strings.TrimSpace(req.LastName),
		Email:     normalizeEmail(req.Email),
		Phone:     strings.TrimSpace(req.Phone),
		Sex:       strings.TrimSpace(req.Sex),
		Wilaya:    strings.TrimSpace(req.Wilaya),
		City:      strings.TrimSpace(req.City),
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.Create(ctx, &Account{
			Email: p.Email, PasswordHash: hash, Role: auth.RolePatient, SubjectID: p.ID,
		}); err != nil {
			return err
		}
		return s.patients.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("patient_id", p.ID.String()).Msg("patient registered")
	return p, nil
}

// RegisterDoctor creates the doctor's directory entry and login account together.
func (s *Service) RegisterDoctor(ctx context.Context, req RegisterRequest) (*directory.Doctor, error) {
	if err := validateRegistration(&req, auth.RoleDoctor); err != nil {
		return nil, err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	d := &directory.Doctor{
		ID:           uuid.New(),
		FirstName:    strings.TrimSpace(req.FirstName),
		LastName:     strings.TrimSpace(req.LastName),
		Email:        normalizeEmail(req.Email),
		Phone:        strings.TrimSpace(req.Phone),
		Sex:          strings.TrimSpace(req.Sex),
		Wilaya:       strings.TrimSpace(req.Wilaya),
		City:         strings.TrimSpace(req.City),
		Specialty:    strings.TrimSpace(req.Specialty),
		LocationLink: strings.TrimSpace(req.LocationLink),
	}
	err = s.tx.WithTx(ctx, func(ctx context.Context) error {
		if err := s.accounts.Create(ctx, &Account{
			Email: d.Email, PasswordHash: hash, Role: auth.RoleDoctor, SubjectID: d.ID,
		}); err != nil {
			return err
		}
		if err := s.doctors.CreateDoctor(ctx, d); err != nil {
			if errors.Is(err, directory.ErrEmailTaken) {
				return ErrEmailTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("doctor_id", d.ID.String()).Msg("doctor registered")
	return d, nil
}

// Login checks the credentials against the account registered for role and
// returns a signed session. Every mismatch yields ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, role auth.Role, req LoginRequest) (*Session, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalid, role)
	}
	acct, err := s.accounts.GetByEmail(ctx, normalizeEmail(req.Email))
	if errors.Is(err, ErrAccountNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if acct.Role != role {
		return nil, ErrInvalidCredentials
	}
	if err := auth.CheckPassword(acct.PasswordHash, req.Password); err != nil {
		return nil, ErrInvalidCredentials
	}

	var name string
	switch role {
	case auth.RolePatient:
		p, err := s.patients.GetByID(ctx, acct.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("load patient for account: %w", err)
		}
		name = p.FullName()
	case auth.RoleDoctor:
		d, err := s.doctors.GetDoctor(ctx, acct.SubjectID)
		if err != nil {
			return nil, fmt.Errorf("load doctor for account: %w", err)
		}
		name = d.FullName()
	}

	token, exp, err := s.tokens.Issue(acct.SubjectID, role)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: exp, Role: role, SubjectID: acct.SubjectID, Name: name}, nil
}

// GetPatient returns a patient profile to the patient themself or to a doctor
// who has an appointment with them.
func (s *Service) GetPatient(ctx context.Context, actor auth.Actor, id uuid.UUID) (*Patient, error) {
	switch {
	case actor.IsPatient() && actor.ID == id:
	case actor.IsDoctor() && s.care != nil:
		ok, err := s.care.HasAppointmentWith(ctx, id, actor.ID)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrForbidden
		}
	default:
		return nil, ErrForbidden
	}
	return s.patients.GetByID(ctx, id)
}

// UpdatePatient applies a patient's edits to their own profile.
func (s *Service) UpdatePatient(ctx context.Context, actor auth.Actor, patch PatientPatch) (*Patient, error) {
	if !actor.IsPatient() {
		return nil, ErrForbidden
	}
	p, err := s.patients.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	patch.apply(p)
	if strings.TrimSpace(p.FirstName) == "" || strings.TrimSpace(p.LastName) == "" {
		return nil, fmt.Errorf("%w: first_name and last_name are required", ErrInvalid)
	}
	if err := s.patients.Update(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}
