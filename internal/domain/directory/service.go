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

var ErrInvalid = errors.New("invalid doctor")

// searchPage is how many doctors a strategy search loads per repository call.
const searchPage = 500

type Service struct {
	repo         Repository
	cache        *doctorCache
	policy       calendar.Policy
	availability AvailabilityChecker
	now          func() time.Time
	page         int
}

type Option func(*Service)

// WithCache memoises GetDoctor in an LRU of size entries that expire after ttl.
func WithCache(size int, ttl time.Duration) Option {
	return func(s *Service) { s.cache = newDoctorCache(size, ttl) }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func NewService(repo Repository, policy calendar.Policy, opts ...Option) *Service {
	s := &Service{repo: repo, policy: policy, now: time.Now, page: searchPage}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAvailabilityChecker wires the appointment book used by availability
// searches. It must be called before the service handles requests.
func (s *Service) SetAvailabilityChecker(c AvailabilityChecker) {
	s.availability = c
}

// -- Reference data --

func (s *Service) ListWilayas(ctx context.Context) ([]Wilaya, error) {
	return s.repo.ListWilayas(ctx)
}

func (s *Service) ListCities(ctx context.Context, wilaya string) ([]City, error) {
	return s.repo.ListCities(ctx, strings.TrimSpace(wilaya))
}

func (s *Service) ListSpecialties(ctx context.Context) ([]Specialty, error) {
	return s.repo.ListSpecialties(ctx)
}

// -- Doctors --

func (s *Service) ListDoctors(ctx context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	return s.repo.ListDoctors(ctx, f, limit, offset)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	if d, ok := s.cache.get(id); ok {
		return d, nil
	}
	d, err := s.repo.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.add(d)
	return d, nil
}

func (s *Service) GetDoctorByEmail(ctx context.Context, email string) (*Doctor, error) {
	return s.repo.GetDoctorByEmail(ctx, strings.TrimSpace(email))
}

func validateDoctor(d *Doctor) error {
	required := []struct{ name, value string }{
		{"first_name", d.FirstName},
		{"last_name", d.LastName},
		{"email", d.Email},
		{"wilaya", d.Wilaya},
		{"city", d.City},
		{"specialty", d.Specialty},
	}
	for _, f := range required {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalid, f.name)
		}
	}
	return nil
}

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	return s.repo.CreateDoctor(ctx, d)
}

// UpdateDoctor applies a doctor's edits to their own profile.
func (s *Service) UpdateDoctor(ctx context.Context, id uuid.UUID, patch DoctorPatch) (*Doctor, error) {
	d, err := s.repo.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.apply(d)
	if err := validateDoctor(d); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateDoctor(ctx, d); err != nil {
		return nil, err
	}
	s.cache.remove(id)
	return d, nil
}

// Search filters the directory with the named strategy. Blank criteria
// returns every doctor.
func (s *Service) Search(ctx context.Context, typ SearchType, criteria string) ([]*Doctor, error) {
	var run strategy
	switch SearchType(strings.ToLower(string(typ))) {
	case SearchBySpecialty:
		run = bySpecialty
	case SearchByLocation:
		run = byLocation
	case SearchByAvailability:
		run = byAvailability(s.policy, s.now, s.availability)
	default:
		return nil, ErrUnknownSearchType
	}

	doctors, err := s.allDoctors(ctx)
	if err != nil {
		return nil, err
	}
	criteria = strings.TrimSpace(criteria)
	if criteria == "" {
		return doctors, nil
	}
	return run(ctx, doctors, criteria)
}

// allDoctors pages through the whole directory.
func (s *Service) allDoctors(ctx context.Context) ([]*Doctor, error) {
	all := []*Doctor{}
	for {
		items, total, err := s.repo.ListDoctors(ctx, DoctorFilter{}, s.page, len(all))
		if err != nil {
			return nil, err
		}
		all = append(all, items...)
		if len(items) == 0 || len(all) >= total {
			return all, nil
		}
	}
}
