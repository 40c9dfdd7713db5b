package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/flossyai/dental-ai-platform/internal/appointments"
	"github.com/flossyai/dental-ai-platform/internal/http/middleware"
	"github.com/flossyai/dental-ai-platform/internal/identity"
	"github.com/flossyai/dental-ai-platform/internal/patients"
)

type fakeUsers struct {
	byEmail map[string]*identity.User
	stored  []string
	tokens  map[uuid.UUID]string
}

func (f *fakeUsers) GetByEmail(_ context.Context, email string) (*identity.User, error) {
	if u, ok := f.byEmail[strings.ToLower(email)]; ok {
		return u, nil
	}
	return nil, identity.ErrUserNotFound
}

func (f *fakeUsers) StoreIfNew(_ context.Context, email, role string) (*identity.User, error) {
	email = strings.ToLower(email)
	f.stored = append(f.stored, email+":"+role)
	if u, ok := f.byEmail[email]; ok {
		if u.Role == nil && identity.ValidRole(role) {
			u.Role = &role
		}
		return u, nil
	}
	u := &identity.User{ID: uuid.New(), Email: email, CreatedAt: time.Now()}
	if identity.ValidRole(role) {
		u.Role = &role
	}
	if f.byEmail == nil {
		f.byEmail = map[string]*identity.User{}
	}
	f.byEmail[email] = u
	return u, nil
}

func (f *fakeUsers) List(context.Context) ([]identity.User, error) {
	var out []identity.User
	for _, u := range f.byEmail {
		out = append(out, *u)
	}
	return out, nil
}

func (f *fakeUsers) RegisterDeviceToken(_ context.Context, userID uuid.UUID, token string) error {
	if f.tokens == nil {
		f.tokens = map[uuid.UUID]string{}
	}
	f.tokens[userID] = token
	return nil
}

type fakePatients struct {
	byUser map[uuid.UUID]*patients.Patient
}

func (f *fakePatients) GetByUserID(_ context.Context, userID uuid.UUID) (*patients.Patient, error) {
	if p, ok := f.byUser[userID]; ok {
		return p, nil
	}
	return nil, patients.ErrPatientNotFound
}

type fakeDaySheets struct {
	doctor     []appointments.DaySheetEntry
	patient    []appointments.DaySheetEntry
	patientIDs []uuid.UUID
}

func (f *fakeDaySheets) DaySheetForDoctor(context.Context, time.Time, time.Time) ([]appointments.DaySheetEntry, error) {
	return f.doctor, nil
}

func (f *fakeDaySheets) DaySheetForPatient(_ context.Context, patientID uuid.UUID, _, _ time.Time) ([]appointments.DaySheetEntry, error) {
	f.patientIDs = append(f.patientIDs, patientID)
	return f.patient, nil
}

type fakePush struct {
	token, title, body string
	err                error
}

func (f *fakePush) SendPush(_ context.Context, token, title, body string) error {
	f.token, f.title, f.body = token, title, body
	return f.err
}

func authedRequest(method, target, body, email string) *http.Request {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	claims := &middleware.ClerkClaims{Email: email}
	return req.WithContext(middleware.NewContextWithClaims(req.Context(), claims))
}

func roleOf(s string) *string { return &s }

func TestAppointmentsTodayDentistSeesWholeSheet(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*identity.User{
		"doc@example.com": {ID: uuid.New(), Email: "doc@example.com", Role: roleOf(identity.RoleDentist)},
	}}
	sheets := &fakeDaySheets{doctor: []appointments.DaySheetEntry{
		{Time: time.Now(), PatientName: "Jordan Lee", Reason: "tooth pain", DoctorName: "Dr. Ava Sharma"},
		{Time: time.Now(), PatientName: "Sam Park", Reason: "N/A", DoctorName: "Dr. Ava Sharma"},
	}}
	h := New(users, &fakePatients{}, sheets, &fakePush{}, nil, nil)

	rec := httptest.NewRecorder()
	h.AppointmentsToday(rec, authedRequest(http.MethodGet, "/appointments/today", "", "doc@example.com"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Appointments []daySheetItem `json:"appointments"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Appointments) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(resp.Appointments))
	}
}

func TestAppointmentsTodayPatientSeesOnlyOwn(t *testing.T) {
	userID := uuid.New()
	patientID := uuid.New()
	users := &fakeUsers{byEmail: map[string]*identity.User{
		"pat@example.com": {ID: userID, Email: "pat@example.com", Role: roleOf(identity.RolePatient)},
	}}
	pats := &fakePatients{byUser: map[uuid.UUID]*patients.Patient{
		userID: {ID: patientID, Name: "Jordan Lee", Phone: "+15550001111"},
	}}
	sheets := &fakeDaySheets{patient: []appointments.DaySheetEntry{
		{Time: time.Now(), PatientName: "Jordan Lee", Reason: "cleaning", DoctorName: "Dr. Ava Sharma"},
	}}
	h := New(users, pats, sheets, &fakePush{}, nil, nil)

	rec := httptest.NewRecorder()
	h.AppointmentsToday(rec, authedRequest(http.MethodGet, "/appointments/today", "", "pat@example.com"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(sheets.patientIDs) != 1 || sheets.patientIDs[0] != patientID {
		t.Fatalf("expected patient-scoped query for %v, got %v", patientID, sheets.patientIDs)
	}
}

func TestAppointmentsTodayUnlinkedPatientGetsEmptyList(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*identity.User{
		"new@example.com": {ID: uuid.New(), Email: "new@example.com", Role: roleOf(identity.RolePatient)},
	}}
	h := New(users, &fakePatients{}, &fakeDaySheets{}, &fakePush{}, nil, nil)

	rec := httptest.NewRecorder()
	h.AppointmentsToday(rec, authedRequest(http.MethodGet, "/appointments/today", "", "new@example.com"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"appointments":[]`) {
		t.Fatalf("expected empty list, got %s", rec.Body.String())
	}
}

func TestAppointmentsTodayProvisionsUnknownUser(t *testing.T) {
	users := &fakeUsers{}
	h := New(users, &fakePatients{}, &fakeDaySheets{}, &fakePush{}, nil, nil)

	rec := httptest.NewRecorder()
	h.AppointmentsToday(rec, authedRequest(http.MethodGet, "/appointments/today", "", "fresh@example.com"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(users.stored) == 0 {
		t.Fatal("expected unknown user to be provisioned")
	}
}

func TestAppointmentsTodayRejectsAnonymous(t *testing.T) {
	h := New(&fakeUsers{}, &fakePatients{}, &fakeDaySheets{}, &fakePush{}, nil, nil)

	rec := httptest.NewRecorder()
	h.AppointmentsToday(rec, httptest.NewRequest(http.MethodGet, "/appointments/today", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestSendNotificationForwardsToPush(t *testing.T) {
	push := &fakePush{}
	h := New(&fakeUsers{}, &fakePatients{}, &fakeDaySheets{}, push, nil, nil)

	body := `{"token":"device-1","title":"Reminder","text":"See you at 10"}`
	rec := httptest.NewRecorder()
	h.SendNotification(rec, httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if push.token != "device-1" || push.title != "Reminder" || push.body != "See you at 10" {
		t.Fatalf("push got %q %q %q", push.token, push.title, push.body)
	}
}

func TestSendNotificationValidatesBody(t *testing.T) {
	h := New(&fakeUsers{}, &fakePatients{}, &fakeDaySheets{}, &fakePush{}, nil, nil)

	rec := httptest.NewRecorder()
	h.SendNotification(rec, httptest.NewRequest(http.MethodPost, "/send", strings.NewReader(`{"title":"x"}`)))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCheckUserRole(t *testing.T) {
	users := &fakeUsers{byEmail: map[string]*identity.User{
		"doc@example.com": {ID: uuid.New(), Email: "doc@example.com", Role: roleOf(identity.RoleDentist)},
	}}
	h := New(users, &fakePatients{}, &fakeDaySheets{}, &fakePush{}, nil, nil)

	rec := httptest.NewRecorder()
	h.CheckUserRole(rec, httptest.NewRequest(http.MethodGet, "/check_user_role?email=Doc@Example.com", nil))
	if !strings.Contains(rec.Body.String(), `"exists":true`) || !strings.Contains(rec.Body.String(), `"dentist"`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	h.CheckUserRole(rec, httptest.NewRequest(http.MethodGet, "/check_user_role?email=ghost@example.com", nil))
	if !strings.Contains(rec.Body.String(), `"exists":false`) {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
}

func TestRedirectUserDemotesUnlistedDentist(t *testing.T) {
	users := &fakeUsers{}
	allow := identity.NewAllowlist([]string{"real.dentist@flossy.ai"})
	h := New(users, &fakePatients{}, &fakeDaySheets{}, &fakePush{}, allow, nil)

	rec := httptest.NewRecorder()
	h.RedirectUser(rec, authedRequest(http.MethodGet, "/redirect_user?role=dentist", "", "impostor@example.com"))

	if rec.Code != http.StatusFound {
		t.Fatalf("expected 302, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/patient" {
		t.Fatalf("expected demotion to /patient, got %q", loc)
	}
}

func TestRedirectUserHonorsAllowlistedDentist(t *testing.T) {
	users := &fakeUsers{}
	allow := identity.NewAllowlist([]string{"real.dentist@flossy.ai"})
	h := New(users, &fakePatients{}, &fakeDaySheets{}, &fakePush{}, allow, nil)

	rec := httptest.NewRecorder()
	h.RedirectUser(rec, authedRequest(http.MethodGet, "/redirect_user?role=dentist", "", "real.dentist@flossy.ai"))

	if loc := rec.Header().Get("Location"); loc != "/dentist" {
		t.Fatalf("expected /dentist, got %q", loc)
	}
}

func TestRedirectUserWithoutRoleGoesToSelection(t *testing.T) {
	h := New(&fakeUsers{}, &fakePatients{}, &fakeDaySheets{}, &fakePush{}, nil, nil)

	rec := httptest.NewRecorder()
	h.RedirectUser(rec, authedRequest(http.MethodGet, "/redirect_user", "", "undecided@example.com"))

	if loc := rec.Header().Get("Location"); loc != "/role_selection" {
		t.Fatalf("expected /role_selection, got %q", loc)
	}
}

func TestRegisterDeviceStoresToken(t *testing.T) {
	users := &fakeUsers{}
	h := New(users, &fakePatients{}, &fakeDaySheets{}, &fakePush{}, nil, nil)

	rec := httptest.NewRecorder()
	h.RegisterDevice(rec, authedRequest(http.MethodPost, "/device_tokens", `{"token":"fcm-token-1"}`, "pat@example.com"))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	found := false
	for _, tok := range users.tokens {
		if tok == "fcm-token-1" {
			found = true
		}
	}
	if !found {
		t.Fatal("expected token to be registered")
	}
}
