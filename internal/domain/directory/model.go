package directory

import (
	"time"

	"github.com/google/uuid"
)

// Wilaya is a first-level region with its cities.
type Wilaya struct {
	Name   string   `json:"name"`
	Cities []string `json:"cities,omitempty"`
}

type City struct {
	Wilaya string `json:"wilaya"`
	Name   string `json:"name"`
}

type Specialty struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Doctor struct {
	ID           uuid.UUID `db:"id" json:"id"`
	FirstName    string    `db:"first_name" json:"first_name"`
	LastName     string    `db:"last_name" json:"last_name"`
	Email        string    `db:"email" json:"email"`
	Phone        string    `db:"phone" json:"phone"`
	Sex          string    `db:"sex" json:"sex"`
	Wilaya       string    `db:"wilaya" json:"wilaya"`
	City         string    `db:"city" json:"city"`
	Specialty    string    `db:"specialty" json:"specialty"`
	LocationLink string    `db:"location_link" json:"location_link,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

func (d *Doctor) FullName() string {
	return "Dr. " + d.FirstName + " " + d.LastName
}

// DoctorFilter narrows ListDoctors. Empty fields match everything; matching
// is case-insensitive.
type DoctorFilter struct {
	Wilaya    string
	City      string
	Specialty string
}

// DoctorPatch carries a doctor's own profile edits. Nil fields are unchanged.
type DoctorPatch struct {
	FirstName    *string `json:"first_name"`
	LastName     *string `json:"last_name"`
	Phone        *string `json:"phone"`
	Wilaya       *string `json:"wilaya"`
	City         *string `json:"city"`
	Specialty    *string `json:"specialty"`
	LocationLink *string `json:"location_link"`
}

func (p DoctorPatch) apply(d *Doctor) {
	set := func(dst *string, v *string) {
		if v != nil {
			*dst = *v
		}
	}
	set(&d.FirstName, p.FirstName)
	set(&d.LastName, p.LastName)
	set(&d.Phone, p.Phone)
	set(&d.Wilaya, p.Wilaya)
	set(&d.City, p.City)
	set(&d.Specialty, p.Specialty)
	set(&d.LocationLink, p.LocationLink)
}
