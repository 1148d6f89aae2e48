package directory

import (
	"context"
	"errors"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/carelink/internal/platform/calendar"
)

// -- Mock Repository --

type mockRepo struct {
	doctors     map[uuid.UUID]*Doctor
	cities      []City
	specialties map[int]Specialty
	gets        int
}

func newMockRepo() *mockRepo {
	return &mockRepo{doctors: make(map[uuid.UUID]*Doctor), specialties: make(map[int]Specialty)}
}

func (m *mockRepo) ListWilayas(_ context.Context) ([]Wilaya, error) {
	byName := map[string]*Wilaya{}
	var names []string
	for _, c := range m.cities {
		w, ok := byName[c.Wilaya]
		if !ok {
			w = &Wilaya{Name: c.Wilaya}
			byName[c.Wilaya] = w
			names = append(names, c.Wilaya)
		}
		w.Cities = append(w.Cities, c.Name)
	}
	sort.Strings(names)
	out := make([]Wilaya, 0, len(names))
	for _, n := range names {
		out = append(out, *byName[n])
	}
	return out, nil
}

func (m *mockRepo) ListCities(_ context.Context, wilaya string) ([]City, error) {
	var out []City
	for _, c := range m.cities {
		if wilaya == "" || strings.EqualFold(c.Wilaya, wilaya) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *mockRepo) ListSpecialties(_ context.Context) ([]Specialty, error) {
	var out []Specialty
	for _, s := range m.specialties {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepo) sorted() []*Doctor {
	out := make([]*Doctor, 0, len(m.doctors))
	for _, d := range m.doctors {
		cp := *d
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastName < out[j].LastName })
	return out
}

func (m *mockRepo) ListDoctors(_ context.Context, f DoctorFilter, limit, offset int) ([]*Doctor, int, error) {
	match := func(field, want string) bool { return want == "" || strings.EqualFold(field, want) }
	var all []*Doctor
	for _, d := range m.sorted() {
		if match(d.Wilaya, f.Wilaya) && match(d.City, f.City) && match(d.Specialty, f.Specialty) {
			all = append(all, d)
		}
	}
	total := len(all)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (m *mockRepo) GetDoctor(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.gets++
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockRepo) GetDoctorByEmail(_ context.Context, email string) (*Doctor, error) {
	for _, d := range m.doctors {
		if strings.EqualFold(d.Email, email) {
			cp := *d
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *mockRepo) CreateDoctor(_ context.Context, d *Doctor) error {
	for _, existing := range m.doctors {
		if strings.EqualFold(existing.Email, d.Email) {
			return ErrEmailTaken
		}
	}
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockRepo) UpdateDoctor(_ context.Context, d *Doctor) error {
	if _, ok := m.doctors[d.ID]; !ok {
		return ErrNotFound
	}
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockRepo) UpsertCity(_ context.Context, c City) error {
	for _, existing := range m.cities {
		if existing == c {
			return nil
		}
	}
	m.cities = append(m.cities, c)
	return nil
}

func (m *mockRepo) UpsertSpecialty(_ context.Context, s Specialty) error {
	m.specialties[s.ID] = s
	return nil
}

func (m *mockRepo) UpsertDoctor(_ context.Context, d *Doctor) error {
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

// -- Helpers --

func seedDoctors(repo *mockRepo) (cardio, derma, pedia *Doctor) {
	cardio = &Doctor{ID: uuid.New(), FirstName: "Amine", LastName: "Benali", Email: "amine@carelink.dz",
		Wilaya: "Alger", City: "Bab Ezzouar", Specialty: "Cardiology"}
	derma = &Doctor{ID: uuid.New(), FirstName: "Sara", LastName: "Cherif", Email: "sara@carelink.dz",
		Wilaya: "Oran", City: "Es Senia", Specialty: "Dermatology"}
	pedia = &Doctor{ID: uuid.New(), FirstName: "Yacine", LastName: "Djaballah", Email: "yacine@carelink.dz",
		Wilaya: "Alger", City: "Kouba", Specialty: "Pediatrics"}
	for _, d := range []*Doctor{cardio, derma, pedia} {
		_ = repo.UpsertDoctor(context.Background(), d)
	}
	return
}

// Monday 2025-06-09, 10:00 in the clinic zone.
func testNow() time.Time {
	p := calendar.DefaultPolicy()
	return time.Date(2025, 6, 9, 10, 0, 0, 0, p.Location)
}

func newTestService(repo *mockRepo, opts ...Option) *Service {
	opts = append([]Option{WithClock(testNow)}, opts...)
	return NewService(repo, calendar.DefaultPolicy(), opts...)
}

type stubAvailability struct {
	busy map[uuid.UUID]bool
	err  error
	seen []calendar.Slot
}

func (s *stubAvailability) IsSlotAvailable(_ context.Context, id uuid.UUID, slot calendar.Slot) (bool, error) {
	s.seen = append(s.seen, slot)
	if s.err != nil {
		return false, s.err
	}
	return !s.busy[id], nil
}

// -- Tests --

func TestService_GetDoctor_UsesCache(t *testing.T) {
	repo := newMockRepo()
	cardio, _, _ := seedDoctors(repo)
	svc := newTestService(repo, WithCache(8, time.Minute))

	first, err := svc.GetDoctor(context.Background(), cardio.ID)
	require.NoError(t, err)
	second, err := svc.GetDoctor(context.Background(), cardio.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, repo.gets, "second lookup is served from the cache")
	assert.Equal(t, 1, svc.cache.len())

	second.FirstName = "Mutated"
	third, _ := svc.GetDoctor(context.Background(), cardio.ID)
	assert.Equal(t, "Amine", third.FirstName, "callers cannot corrupt cached entries")
}

func TestService_GetDoctor_NoCache(t *testing.T) {
	repo := newMockRepo()
	cardio, _, _ := seedDoctors(repo)
	svc := newTestService(repo)

	_, _ = svc.GetDoctor(context.Background(), cardio.ID)
	_, _ = svc.GetDoctor(context.Background(), cardio.ID)
	assert.Equal(t, 2, repo.gets)

	_, err := svc.GetDoctor(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_UpdateDoctor_InvalidatesCache(t *testing.T) {
	repo := newMockRepo()
	cardio, _, _ := seedDoctors(repo)
	svc := newTestService(repo, WithCache(8, time.Minute))

	_, err := svc.GetDoctor(context.Background(), cardio.ID)
	require.NoError(t, err)

	phone := "0555 12 34 56"
	city := "Hydra"
	updated, err := svc.UpdateDoctor(context.Background(), cardio.ID, DoctorPatch{Phone: &phone, City: &city})
	require.NoError(t, err)
	assert.Equal(t, "Hydra", updated.City)
	assert.Equal(t, 0, svc.cache.len())

	got, err := svc.GetDoctor(context.Background(), cardio.ID)
	require.NoError(t, err)
	assert.Equal(t, phone, got.Phone)
	assert.Equal(t, "Cardiology", got.Specialty, "untouched fields survive the patch")
}

func TestService_UpdateDoctor_Validation(t *testing.T) {
	repo := newMockRepo()
	cardio, _, _ := seedDoctors(repo)
	svc := newTestService(repo)

	empty := "  "
	_, err := svc.UpdateDoctor(context.Background(), cardio.ID, DoctorPatch{Specialty: &empty})
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "specialty is required")

	_, err = svc.UpdateDoctor(context.Background(), uuid.New(), DoctorPatch{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestService_CreateDoctor(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	d := &Doctor{FirstName: "Lina", LastName: "Haddad", Email: "lina@carelink.dz",
		Wilaya: "Blida", City: "Boufarik", Specialty: "Neurology"}
	require.NoError(t, svc.CreateDoctor(context.Background(), d))
	assert.NotEqual(t, uuid.Nil, d.ID)

	dup := *d
	dup.ID = uuid.Nil
	assert.ErrorIs(t, svc.CreateDoctor(context.Background(), &dup), ErrEmailTaken)

	assert.ErrorIs(t, svc.CreateDoctor(context.Background(), &Doctor{FirstName: "x"}), ErrInvalid)
}

func TestService_ListDoctors_Filter(t *testing.T) {
	repo := newMockRepo()
	seedDoctors(repo)
	svc := newTestService(repo)

	items, total, err := svc.ListDoctors(context.Background(), DoctorFilter{Wilaya: "alger"}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	assert.Len(t, items, 2)

	items, total, err = svc.ListDoctors(context.Background(), DoctorFilter{Wilaya: "Alger", Specialty: "pediatrics"}, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "Djaballah", items[0].LastName)
}

func TestService_Search_ReadsEveryPage(t *testing.T) {
	repo := newMockRepo()
	cardio, derma, pedia := seedDoctors(repo)
	svc := newTestService(repo)
	svc.page = 1

	all, err := svc.Search(context.Background(), SearchBySpecialty, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	for _, want := range []*Doctor{cardio, derma, pedia} {
		found, err := svc.Search(context.Background(), SearchBySpecialty, want.Specialty)
		require.NoError(t, err)
		require.Len(t, found, 1, want.Specialty)
		assert.Equal(t, want.ID, found[0].ID)
	}
}

func TestService_Search(t *testing.T) {
	repo := newMockRepo()
	cardio, derma, pedia := seedDoctors(repo)
	avail := &stubAvailability{busy: map[uuid.UUID]bool{pedia.ID: true}}
	svc := newTestService(repo)
	svc.SetAvailabilityChecker(avail)

	names := func(ds []*Doctor) []string {
		var out []string
		for _, d := range ds {
			out = append(out, d.LastName)
		}
		sort.Strings(out)
		return out
	}

	tests := []struct {
		name     string
		typ      SearchType
		criteria string
		want     []string
	}{
		{"specialty case-insensitive", SearchBySpecialty, "cardiology", []string{cardio.LastName}},
		{"specialty no match", SearchBySpecialty, "Oncology", nil},
		{"location by wilaya", SearchByLocation, "ALGER", []string{cardio.LastName, pedia.LastName}},
		{"location by city", SearchByLocation, "es senia", []string{derma.LastName}},
		{"blank criteria returns all", SearchByLocation, "  ", []string{cardio.LastName, derma.LastName, pedia.LastName}},
		{"time on grid", SearchByAvailability, "09:30", []string{cardio.LastName, derma.LastName, pedia.LastName}},
		{"time off grid", SearchByAvailability, "16:00", nil},
		{"slot skips busy doctor", SearchByAvailability, "2025-06-10T09:00", []string{cardio.LastName, derma.LastName}},
		{"slot on friday", SearchByAvailability, "2025-06-13T09:00", nil},
		{"slot in the past", SearchByAvailability, "2025-06-02T09:00", nil},
		{"type is case-insensitive", SearchType("Specialty"), "Dermatology", []string{derma.LastName}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Search(context.Background(), tt.typ, tt.criteria)
			require.NoError(t, err)
			assert.Equal(t, tt.want, names(got))
		})
	}
	assert.Contains(t, avail.seen, calendar.Slot{Date: "2025-06-10", Time: "09:00"})
}

func TestService_Search_Errors(t *testing.T) {
	repo := newMockRepo()
	seedDoctors(repo)
	svc := newTestService(repo)

	_, err := svc.Search(context.Background(), SearchType("rating"), "5")
	assert.ErrorIs(t, err, ErrUnknownSearchType)

	_, err = svc.Search(context.Background(), SearchByAvailability, "nine")
	assert.ErrorIs(t, err, calendar.ErrInvalidTime)

	_, err = svc.Search(context.Background(), SearchByAvailability, "10/06/2025T09:00")
	assert.ErrorIs(t, err, calendar.ErrInvalidDate)

	boom := errors.New("db down")
	svc.SetAvailabilityChecker(&stubAvailability{err: boom})
	_, err = svc.Search(context.Background(), SearchByAvailability, "2025-06-10T09:00")
	assert.ErrorIs(t, err, boom)
}

func TestService_ReferenceData(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	require.NoError(t, svc.ImportReference(context.Background(),
		[]Specialty{{ID: 1, Name: "Cardiology"}, {ID: 2, Name: "Allergy"}},
		[]City{{"Alger", "Kouba"}, {"Alger", "Hydra"}, {"Oran", "Bir El Djir"}, {"Alger", "Kouba"}},
	))

	wilayas, err := svc.ListWilayas(context.Background())
	require.NoError(t, err)
	require.Len(t, wilayas, 2)
	assert.Equal(t, "Alger", wilayas[0].Name)
	assert.Len(t, wilayas[0].Cities, 2)

	cities, err := svc.ListCities(context.Background(), " oran ")
	require.NoError(t, err)
	assert.Equal(t, []City{{"Oran", "Bir El Djir"}}, cities)

	specs, err := svc.ListSpecialties(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Allergy", specs[0].Name)
}
