package identity

import (
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/auth"
)

// Patient maps to the patient table.
type Patient struct {
	ID        uuid.UUID `db:"id" json:"id"`
	FirstName string    `db:"first_name" json:"first_name"`
	LastName  string    `db:"last_name" json:"last_name"`
	Email     string    `db:"email" json:"email"`
	Phone     string    `db:"phone" json:"phone"`
	Sex       string    `db:"sex" json:"sex"`
	Wilaya    string    `db:"wilaya" json:"wilaya"`
	City      string    `db:"city" json:"city"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

func (p *Patient) FullName() string {
	return p.FirstName + " " + p.LastName
}

// Account holds login credentials. SubjectID is the patient or doctor id.
type Account struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	Role         auth.Role `db:"role" json:"role"`
	SubjectID    uuid.UUID `db:"subject_id" json:"subject_id"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// RegisterRequest is the sign-up form for both roles. Specialty and
// LocationLink only apply to doctors.
type RegisterRequest struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email"`
	Password     string `json:"password"`
	Phone        string `json:"phone"`
	Sex          string `json:"sex"`
	Wilaya       string `json:"wilaya"`
	City         string `json:"city"`
	Specialty    string `json:"specialty,omitempty"`
	LocationLink string `json:"location_link,omitempty"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type Session struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Role      auth.Role `json:"role"`
	SubjectID uuid.UUID `json:"subject_id"`
	Name      string    `json:"name"`
}

// PatientPatch carries a patient's own profile edits. Nil fields are
// unchanged; email and password are not editable here.
type PatientPatch struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Phone     *string `json:"phone"`
	Sex       *string `json:"sex"`
	Wilaya    *string `json:"wilaya"`
	City      *string `json:"city"`
}

func (p PatientPatch) apply(pt *Patient) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&pt.FirstName, p.FirstName)
	set(&pt.LastName, p.LastName)
	set(&pt.Phone, p.Phone)
	set(&pt.Sex, p.Sex)
	set(&pt.Wilaya, p.Wilaya)
	set(&pt.City, p.City)
}
