package directory

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/carelink/carelink/internal/platform/seed"
)

// DoctorRecord is one row of doctors.csv. Password is whatever the file
// holds; the identity service hashes it unless it already is a bcrypt hash.
type DoctorRecord struct {
	Doctor   Doctor
	Password string
}

// ReadSpecialties parses specialties.csv (id,name).
func ReadSpecialties(r io.Reader) ([]Specialty, error) {
	var out []Specialty
	err := seed.Each(r, 2, func(_ int, rec []string) error {
		id, err := strconv.Atoi(rec[0])
		if err != nil {
			return fmt.Errorf("specialty id %q: %w", rec[0], err)
		}
		out = append(out, Specialty{ID: id, Name: rec[1]})
		return nil
	})
	return out, err
}

// ReadCities parses cities.csv (wilaya,city).
func ReadCities(r io.Reader) ([]City, error) {
	var out []City
	err := seed.Each(r, 2, func(_ int, rec []string) error {
		out = append(out, City{Wilaya: rec[0], Name: rec[1]})
		return nil
	})
	return out, err
}

// ReadDoctors parses doctors.csv
// (id,firstName,lastName,wilaya,city,email,password,phone,sex,speciality,locationLink).
func ReadDoctors(r io.Reader) ([]DoctorRecord, error) {
	var out []DoctorRecord
	err := seed.Each(r, 11, func(_ int, rec []string) error {
		out = append(out, DoctorRecord{
			Doctor: Doctor{
				ID:           seed.ID("doctor", rec[0]),
				FirstName:    rec[1],
				LastName:     rec[2],
				Wilaya:       rec[3],
				City:         rec[4],
				Email:        rec[5],
				Phone:        rec[7],
				Sex:          rec[8],
				Specialty:    rec[9],
				LocationLink: rec[10],
			},
			Password: rec[6],
		})
		return nil
	})
	return out, err
}

// ImportReference upserts specialties and the wilaya/city tree.
func (s *Service) ImportReference(ctx context.Context, specialties []Specialty, cities []City) error {
	for _, sp := range specialties {
		if err := s.repo.UpsertSpecialty(ctx, sp); err != nil {
			return fmt.Errorf("import specialty %s: %w", sp.Name, err)
		}
	}
	for _, c := range cities {
		if err := s.repo.UpsertCity(ctx, c); err != nil {
			return fmt.Errorf("import city %s/%s: %w", c.Wilaya, c.Name, err)
		}
	}
	return nil
}

// ImportDoctor upserts a doctor keyed by its id.
func (s *Service) ImportDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	if err := s.repo.UpsertDoctor(ctx, d); err != nil {
		return err
	}
	s.cache.remove(d.ID)
	return nil
}

// InvalidateCache drops every memoised doctor.
func (s *Service) InvalidateCache() {
	s.cache.purge()
}
