package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/flossyai/dental-ai-platform/internal/appointments"
	"github.com/flossyai/dental-ai-platform/internal/http/middleware"
	"github.com/flossyai/dental-ai-platform/internal/identity"
	"github.com/flossyai/dental-ai-platform/internal/notify"
	"github.com/flossyai/dental-ai-platform/internal/patients"
	"github.com/flossyai/dental-ai-platform/pkg/logging"
)

// DaySheetReader is the slice of the appointments repository the dashboard
// endpoints use.
type DaySheetReader interface {
	DaySheetForDoctor(ctx context.Context, from, to time.Time) ([]appointments.DaySheetEntry, error)
	DaySheetForPatient(ctx context.Context, patientID uuid.UUID, from, to time.Time) ([]appointments.DaySheetEntry, error)
}

// PatientLookup resolves the patient record linked to a user account.
type PatientLookup interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (*patients.Patient, error)
}

// UserStore is the slice of the identity repository the handlers use.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (*identity.User, error)
	StoreIfNew(ctx context.Context, email, role string) (*identity.User, error)
	List(ctx context.Context) ([]identity.User, error)
	RegisterDeviceToken(ctx context.Context, userID uuid.UUID, token string) error
}

// Handler serves the dashboard and account endpoints.
type Handler struct {
	users     UserStore
	patients  PatientLookup
	daySheets DaySheetReader
	push      notify.PushSender
	allowlist identity.Allowlist
	logger    *logging.Logger
	now       func() time.Time
}

// New creates the handler set.
func New(users UserStore, patientLookup PatientLookup, daySheets DaySheetReader, push notify.PushSender, allowlist identity.Allowlist, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	if push == nil {
		push = notify.NewStubPushSender(logger)
	}
	return &Handler{
		users:     users,
		patients:  patientLookup,
		daySheets: daySheets,
		push:      push,
		allowlist: allowlist,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

type daySheetItem struct {
	Time        string `json:"time"`
	PatientName string `json:"patient_name"`
	Reason      string `json:"reason"`
	DoctorName  string `json:"doctor_name"`
}

// AppointmentsToday returns the day's scheduled appointments. Dentists see
// the whole day sheet; patients see only their own bookings.
func (h *Handler) AppointmentsToday(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClerkClaimsFromContext(r.Context())
	if !ok || claims.UserEmail() == "" {
		writeError(w, http.StatusUnauthorized, "email missing in token")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), claims.UserEmail())
	if errors.Is(err, identity.ErrUserNotFound) {
		// Valid token for an email we have not seen yet: provision the
		// account before serving the request.
		user, err = h.users.StoreIfNew(r.Context(), claims.UserEmail(), "")
	}
	if err != nil {
		h.logger.Error("user lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "user lookup failed")
		return
	}

	now := h.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, 1)

	var entries []appointments.DaySheetEntry
	if user.HasRole(identity.RoleDentist) {
		entries, err = h.daySheets.DaySheetForDoctor(r.Context(), start, end)
	} else {
		var patient *patients.Patient
		patient, err = h.patients.GetByUserID(r.Context(), user.ID)
		if errors.Is(err, patients.ErrPatientNotFound) {
			// Account exists but has never booked.
			writeJSON(w, http.StatusOK, map[string]any{"appointments": []daySheetItem{}})
			return
		}
		if err == nil {
			entries, err = h.daySheets.DaySheetForPatient(r.Context(), patient.ID, start, end)
		}
	}
	if err != nil {
		h.logger.Error("day sheet load failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load appointments")
		return
	}

	items := make([]daySheetItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, daySheetItem{
			Time:        e.Time.Format(time.RFC3339),
			PatientName: e.PatientName,
			Reason:      e.Reason,
			DoctorName:  e.DoctorName,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"appointments": items})
}

// SendNotification pushes a notification to one device token.
func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
		Title string `json:"title"`
		Text  string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "token and title are required")
		return
	}

	if err := h.push.SendPush(r.Context(), req.Token, req.Title, req.Text); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to send notification")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// RegisterDevice stores the caller's FCM token for appointment reminders.
func (h *Handler) RegisterDevice(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClerkClaimsFromContext(r.Context())
	if !ok || claims.UserEmail() == "" {
		writeError(w, http.StatusUnauthorized, "email missing in token")
		return
	}

	var req struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	user, err := h.users.StoreIfNew(r.Context(), claims.UserEmail(), "")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "user lookup failed")
		return
	}
	if err := h.users.RegisterDeviceToken(r.Context(), user.ID, req.Token); err != nil {
		h.logger.Error("device token registration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to register device")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "registered"})
}

// CheckUserRole reports whether an account exists and what role it holds.
func (h *Handler) CheckUserRole(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		writeError(w, http.StatusBadRequest, "email parameter required")
		return
	}

	user, err := h.users.GetByEmail(r.Context(), email)
	if errors.Is(err, identity.ErrUserNotFound) {
		writeJSON(w, http.StatusOK, map[string]any{"exists": false})
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "user lookup failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"exists": true, "role": user.Role})
}

// RedirectUser provisions the signed-in account and sends the browser to the
// dashboard matching its role. A dentist claim from an email outside the
// allowlist is demoted to patient.
func (h *Handler) RedirectUser(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClerkClaimsFromContext(r.Context())
	if !ok {
		http.Redirect(w, r, "/login?error=missing_token", http.StatusFound)
		return
	}

	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		email = claims.UserEmail()
	}
	if email == "" {
		http.Redirect(w, r, "/login?error=missing_email", http.StatusFound)
		return
	}

	role := h.allowlist.EnforceRole(email, r.URL.Query().Get("role"))

	user, err := h.users.StoreIfNew(r.Context(), email, role)
	if err != nil {
		h.logger.Error("user provisioning failed", "error", err, "email", email)
		http.Redirect(w, r, "/login?error=user_creation_failed", http.StatusFound)
		return
	}

	switch {
	case user.HasRole(identity.RoleDentist):
		http.Redirect(w, r, "/dentist", http.StatusFound)
	case user.HasRole(identity.RolePatient):
		http.Redirect(w, r, "/patient", http.StatusFound)
	default:
		http.Redirect(w, r, "/role_selection", http.StatusFound)
	}
}

// DebugUsers lists every account. Mounted only outside production.
func (h *Handler) DebugUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list users")
		return
	}

	type item struct {
		Email     string  `json:"email"`
		Role      *string `json:"role"`
		CreatedAt string  `json:"created_at"`
	}
	items := make([]item, 0, len(users))
	for _, u := range users {
		items = append(items, item{
			Email:     u.Email,
			Role:      u.Role,
			CreatedAt: u.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": items})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
