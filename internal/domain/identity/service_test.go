package identity

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carelink/carelink/internal/domain/directory"
	"github.com/carelink/carelink/internal/platform/auth"
)

// =========== Mock Repositories ===========

type mockPatients struct {
	items map[uuid.UUID]*Patient
}

func newMockPatients() *mockPatients {
	return &mockPatients{items: make(map[uuid.UUID]*Patient)}
}

func (m *mockPatients) Create(_ context.Context, p *Patient) error {
	for _, existing := range m.items {
		if strings.EqualFold(existing.Email, p.Email) {
			return ErrEmailTaken
		}
	}
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPatients) GetByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	p, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *mockPatients) Update(_ context.Context, p *Patient) error {
	if _, ok := m.items[p.ID]; !ok {
		return ErrNotFound
	}
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

func (m *mockPatients) Upsert(_ context.Context, p *Patient) error {
	cp := *p
	m.items[p.ID] = &cp
	return nil
}

type mockAccounts struct {
	items map[string]*Account
}

func newMockAccounts() *mockAccounts {
	return &mockAccounts{items: make(map[string]*Account)}
}

func (m *mockAccounts) Create(_ context.Context, a *Account) error {
	key := strings.ToLower(a.Email)
	if _, ok := m.items[key]; ok {
		return ErrEmailTaken
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	cp := *a
	m.items[key] = &cp
	return nil
}

func (m *mockAccounts) GetByEmail(_ context.Context, email string) (*Account, error) {
	a, ok := m.items[strings.ToLower(email)]
	if !ok {
		return nil, ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *mockAccounts) Upsert(_ context.Context, a *Account) error {
	for k, existing := range m.items {
		if existing.Role == a.Role && existing.SubjectID == a.SubjectID {
			delete(m.items, k)
		}
	}
	cp := *a
	m.items[strings.ToLower(a.Email)] = &cp
	return nil
}

type mockDirectory struct {
	doctors map[uuid.UUID]*directory.Doctor
}

func newMockDirectory() *mockDirectory {
	return &mockDirectory{doctors: make(map[uuid.UUID]*directory.Doctor)}
}

func (m *mockDirectory) CreateDoctor(_ context.Context, d *directory.Doctor) error {
	for _, existing := range m.doctors {
		if strings.EqualFold(existing.Email, d.Email) {
			return directory.ErrEmailTaken
		}
	}
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

func (m *mockDirectory) GetDoctor(_ context.Context, id uuid.UUID) (*directory.Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, directory.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDirectory) ImportDoctor(_ context.Context, d *directory.Doctor) error {
	cp := *d
	m.doctors[d.ID] = &cp
	return nil
}

// inlineTx runs fn without a database.
type inlineTx struct{ calls int }

func (t *inlineTx) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	t.calls++
	return fn(ctx)
}

type stubCare map[[2]uuid.UUID]bool

func (s stubCare) HasAppointmentWith(_ context.Context, patientID, doctorID uuid.UUID) (bool, error) {
	return s[[2]uuid.UUID{patientID, doctorID}], nil
}

type fixture struct {
	svc      *Service
	patients *mockPatients
	accounts *mockAccounts
	doctors  *mockDirectory
	tx       *inlineTx
}

func newFixture() *fixture {
	f := &fixture{
		patients: newMockPatients(),
		accounts: newMockAccounts(),
		doctors:  newMockDirectory(),
		tx:       &inlineTx{},
	}
	tokens := auth.NewTokenIssuer([]byte("identity-test-key"), "carelink", time.Hour)
	f.svc = NewService(f.patients, f.accounts, f.doctors, f.tx, tokens, zerolog.Nop())
	return f
}

func patientRequest() RegisterRequest {
	return RegisterRequest{
		FirstName: "Sara",
		LastName:  "Haddad",
		Email:     " Sara@Example.dz ",
		Password:  "password1",
		Phone:     "0555 11 22 33",
		Sex:       "F",
		Wilaya:    "Alger",
		City:      "Kouba",
	}
}

func doctorRequest() RegisterRequest {
	req := patientRequest()
	req.FirstName, req.LastName, req.Email = "Amine", "Benali", "amine@carelink.dz"
	req.Specialty = "Cardiology"
	return req
}

// =========== Registration ===========

func TestRegisterPatient(t *testing.T) {
	f := newFixture()
	p, err := f.svc.RegisterPatient(context.Background(), patientRequest())
	require.NoError(t, err)

	assert.Equal(t, "sara@example.dz", p.Email)
	assert.Contains(t, f.patients.items, p.ID)
	acct := f.accounts.items["sara@example.dz"]
	require.NotNil(t, acct)
	assert.Equal(t, auth.RolePatient, acct.Role)
	assert.Equal(t, p.ID, acct.SubjectID)
	assert.NotEqual(t, "password1", acct.PasswordHash)
	assert.Equal(t, 1, f.tx.calls)
}

func TestRegisterPatient_Validation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
	}{
		{"missing first name", func(r *RegisterRequest) { r.FirstName = " " }},
		{"missing city", func(r *RegisterRequest) { r.City = "" }},
		{"bad email", func(r *RegisterRequest) { r.Email = "not-an-email" }},
		{"short password", func(r *RegisterRequest) { r.Password = "short" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			req := patientRequest()
			tt.mutate(&req)
			_, err := f.svc.RegisterPatient(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalid)
			assert.Empty(t, f.patients.items)
		})
	}
}

func TestRegister_EmailUniqueAcrossRoles(t *testing.T) {
	f := newFixture()
	_, err := f.svc.RegisterPatient(context.Background(), patientRequest())
	require.NoError(t, err)

	req := doctorRequest()
	req.Email = "sara@example.dz"
	_, err = f.svc.RegisterDoctor(context.Background(), req)
	assert.ErrorIs(t, err, ErrEmailTaken)
	assert.Empty(t, f.doctors.doctors)
}

func TestRegisterDoctor(t *testing.T) {
	f := newFixture()
	d, err := f.svc.RegisterDoctor(context.Background(), doctorRequest())
	require.NoError(t, err)
	assert.Equal(t, "Cardiology", f.doctors.doctors[d.ID].Specialty)
	assert.Equal(t, auth.RoleDoctor, f.accounts.items["amine@carelink.dz"].Role)

	req := doctorRequest()
	req.Email = "other@carelink.dz"
	req.Specialty = ""
	_, err = f.svc.RegisterDoctor(context.Background(), req)
	assert.ErrorIs(t, err, ErrInvalid)
}

// =========== Login ===========

func TestLogin(t *testing.T) {
	f := newFixture()
	p, err := f.svc.RegisterPatient(context.Background(), patientRequest())
	require.NoError(t, err)

	sess, err := f.svc.Login(context.Background(), auth.RolePatient,
		LoginRequest{Email: "SARA@example.dz", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, p.ID, sess.SubjectID)
	assert.Equal(t, "Sara Haddad", sess.Name)
	assert.True(t, sess.ExpiresAt.After(time.Now()))
}

func TestLogin_Rejections(t *testing.T) {
	f := newFixture()
	_, err := f.svc.RegisterPatient(context.Background(), patientRequest())
	require.NoError(t, err)
	_, err = f.svc.RegisterDoctor(context.Background(), doctorRequest())
	require.NoError(t, err)

	tests := []struct {
		name string
		role auth.Role
		req  LoginRequest
	}{
		{"wrong password", auth.RolePatient, LoginRequest{"sara@example.dz", "password2"}},
		{"unknown email", auth.RolePatient, LoginRequest{"nobody@example.dz", "password1"}},
		{"wrong role", auth.RoleDoctor, LoginRequest{"sara@example.dz", "password1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Login(context.Background(), tt.role, tt.req)
			assert.ErrorIs(t, err, ErrInvalidCredentials)
		})
	}

	sess, err := f.svc.Login(context.Background(), auth.RoleDoctor,
		LoginRequest{"amine@carelink.dz", "password1"})
	require.NoError(t, err)
	assert.Equal(t, "Dr. Amine Benali", sess.Name)
}

// =========== Profiles ===========

func TestGetPatient_Access(t *testing.T) {
	f := newFixture()
	p, err := f.svc.RegisterPatient(context.Background(), patientRequest())
	require.NoError(t, err)
	treating, stranger := uuid.New(), uuid.New()
	f.svc.SetCareRelation(stubCare{{p.ID, treating}: true})

	ctx := context.Background()
	_, err = f.svc.GetPatient(ctx, auth.Actor{ID: p.ID, Role: auth.RolePatient}, p.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetPatient(ctx, auth.Actor{ID: treating, Role: auth.RoleDoctor}, p.ID)
	assert.NoError(t, err)

	_, err = f.svc.GetPatient(ctx, auth.Actor{ID: stranger, Role: auth.RoleDoctor}, p.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.GetPatient(ctx, auth.Actor{ID: uuid.New(), Role: auth.RolePatient}, p.ID)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestUpdatePatient(t *testing.T) {
	f := newFixture()
	p, err := f.svc.RegisterPatient(context.Background(), patientRequest())
	require.NoError(t, err)
	actor := auth.Actor{ID: p.ID, Role: auth.RolePatient}

	city := "Hydra"
	got, err := f.svc.UpdatePatient(context.Background(), actor, PatientPatch{City: &city})
	require.NoError(t, err)
	assert.Equal(t, "Hydra", got.City)
	assert.Equal(t, "Hydra", f.patients.items[p.ID].City)
	assert.Equal(t, "sara@example.dz", f.patients.items[p.ID].Email)

	blank := ""
	_, err = f.svc.UpdatePatient(context.Background(), actor, PatientPatch{LastName: &blank})
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = f.svc.UpdatePatient(context.Background(), auth.Actor{ID: p.ID, Role: auth.RoleDoctor}, PatientPatch{})
	assert.ErrorIs(t, err, ErrForbidden)
}

// =========== Import ===========

func TestReadPatients(t *testing.T) {
	input := "id,firstName,lastName,wilaya,city,email,password,phone,sexe\n" +
		"P001,Sara,Haddad,Alger,Kouba,Sara@Example.dz,password1,0555,F\n" +
		"P002,Yacine,Meziane,Oran,Es Senia,yacine@example.dz,password2,0666\n" +
		"P003,Broken\n"
	recs, err := ReadPatients(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "sara@example.dz", recs[0].Patient.Email)
	assert.Equal(t, "F", recs[0].Patient.Sex)
	assert.Equal(t, "", recs[1].Patient.Sex)
	assert.Equal(t, "password2", recs[1].Password)
}

func TestImportPatients_ThenLogin(t *testing.T) {
	f := newFixture()
	recs, err := ReadPatients(strings.NewReader(
		"id,firstName,lastName,wilaya,city,email,password,phone,sexe\n" +
			"P001,Sara,Haddad,Alger,Kouba,sara@example.dz,password1,0555,F\n"))
	require.NoError(t, err)

	require.NoError(t, f.svc.ImportPatients(context.Background(), recs))
	require.NoError(t, f.svc.ImportPatients(context.Background(), recs))
	assert.Len(t, f.patients.items, 1)
	assert.Len(t, f.accounts.items, 1)

	_, err = f.svc.Login(context.Background(), auth.RolePatient,
		LoginRequest{"sara@example.dz", "password1"})
	assert.NoError(t, err)
}

func TestImportDoctors(t *testing.T) {
	f := newFixture()
	recs := []directory.DoctorRecord{{
		Doctor: directory.Doctor{ID: uuid.New(), FirstName: "Amine", LastName: "Benali",
			Email: "Amine@Carelink.dz", Wilaya: "Alger", City: "Kouba", Specialty: "Cardiology"},
		Password: "secret123",
	}}
	require.NoError(t, f.svc.ImportDoctors(context.Background(), recs))
	assert.Len(t, f.doctors.doctors, 1)
	acct := f.accounts.items["amine@carelink.dz"]
	require.NotNil(t, acct)
	assert.Equal(t, recs[0].Doctor.ID, acct.SubjectID)
}
