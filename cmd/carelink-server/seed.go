package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/carelink/carelink/internal/domain/appointment"
	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/domain/identity"
)

// seed imports the CSV files found in fsys in dependency order. Missing files
// are skipped.
func (a *app) seed(ctx context.Context, fsys fs.FS) error {
	var (
		specialties []directory.Specialty
		cities      []directory.City
	)
	if err := readFile(fsys, "specialties.csv", func(f fs.File) (err error) {
		specialties, err = directory.ReadSpecialties(f)
		return err
	}); err != nil {
		return err
	}
	if err := readFile(fsys, "cities.csv", func(f fs.File) (err error) {
		cities, err = directory.ReadCities(f)
		return err
	}); err != nil {
		return err
	}
	if err := a.directory.ImportReference(ctx, specialties, cities); err != nil {
		return fmt.Errorf("import reference data: %w", err)
	}

	if err := readFile(fsys, "doctors.csv", func(f fs.File) error {
		recs, err := directory.ReadDoctors(f)
		if err != nil {
			return err
		}
		return a.identity.ImportDoctors(ctx, recs)
	}); err != nil {
		return err
	}

	if err := readFile(fsys, "patients.csv", func(f fs.File) error {
		recs, err := identity.ReadPatients(f)
		if err != nil {
			return err
		}
		return a.identity.ImportPatients(ctx, recs)
	}); err != nil {
		return err
	}

	if err := readFile(fsys, "appointments.csv", func(f fs.File) error {
		items, skipped, err := appointment.ReadAppointments(f, a.policy.Location)
		if err != nil {
			return err
		}
		if skipped > 0 {
			a.logger.Warn().Int("skipped", skipped).Msg("appointments.csv rows skipped")
		}
		return a.appointments.Import(ctx, items)
	}); err != nil {
		return err
	}

	a.directory.InvalidateCache()
	a.logger.Info().Msg("seed complete")
	return nil
}

func readFile(fsys fs.FS, name string, fn func(f fs.File) error) error {
	f, err := fsys.Open(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer f.Close()
	if err := fn(f); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}
