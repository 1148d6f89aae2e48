package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/carelink/carelink/internal/platform/calendar"
)

type SearchType string

const (
	SearchBySpecialty    SearchType = "specialty"
	SearchByLocation     SearchType = "location"
	SearchByAvailability SearchType = "availability"
)

// AvailabilityChecker reports whether a doctor is free at a slot.
type AvailabilityChecker interface {
	IsSlotAvailable(ctx context.Context, doctorID uuid.UUID, slot calendar.Slot) (bool, error)
}

// strategy filters doctors by a non-blank criteria string.
type strategy func(ctx context.Context, doctors []*Doctor, criteria string) ([]*Doctor, error)

func filter(doctors []*Doctor, keep func(*Doctor) bool) []*Doctor {
	out := make([]*Doctor, 0, len(doctors))
	for _, d := range doctors {
		if keep(d) {
			out = append(out, d)
		}
	}
	return out
}

func bySpecialty(_ context.Context, doctors []*Doctor, criteria string) ([]*Doctor, error) {
	return filter(doctors, func(d *Doctor) bool {
		return strings.EqualFold(d.Specialty, criteria)
	}), nil
}

func byLocation(_ context.Context, doctors []*Doctor, criteria string) ([]*Doctor, error) {
	return filter(doctors, func(d *Doctor) bool {
		return strings.EqualFold(d.Wilaya, criteria) || strings.EqualFold(d.City, criteria)
	}), nil
}

// byAvailability accepts either a time of day ("09:30"), matched against the
// clinic grid, or a full slot ("2025-06-10T09:30"), which must also pass the
// calendar rules and be free for each doctor.
func byAvailability(policy calendar.Policy, now func() time.Time, checker AvailabilityChecker) strategy {
	return func(ctx context.Context, doctors []*Doctor, criteria string) ([]*Doctor, error) {
		if !strings.ContainsAny(criteria, "T ") {
			if _, err := time.Parse(calendar.TimeLayout, criteria); err != nil {
				return nil, calendar.ErrInvalidTime
			}
			if !policy.InGrid(criteria) {
				return []*Doctor{}, nil
			}
			return doctors, nil
		}

		slot, err := calendar.ParseSlot(criteria)
		if err != nil {
			return nil, err
		}
		if _, err := policy.Validate(now(), slot); err != nil {
			if errors.Is(err, calendar.ErrInvalidDate) || errors.Is(err, calendar.ErrInvalidTime) {
				return nil, err
			}
			return []*Doctor{}, nil
		}
		if checker == nil {
			return doctors, nil
		}
		out := make([]*Doctor, 0, len(doctors))
		for _, d := range doctors {
			free, err := checker.IsSlotAvailable(ctx, d.ID, slot)
			if err != nil {
				return nil, fmt.Errorf("check availability of %s: %w", d.ID, err)
			}
			if free {
				out = append(out, d)
			}
		}
		return out, nil
	}
}
