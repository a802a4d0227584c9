package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"pharmalens.org/internal/identity"
	"pharmalens.org/internal/knowledge"
	"pharmalens.org/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name       string `json:"name"`
	Email      string `json:"email"`
	Password   string `json:"password"`
	Department string `json:"department"`
	Phone      string `json:"phone,omitempty"`
}

type confirmRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type dataSourceRequest struct {
	Source string `json:"source"`
}

type queryRequest struct {
	Query string `json:"query"`
}

type authResponse struct {
	Token     string        `json:"token"`
	ExpiresAt time.Time     `json:"expires_at"`
	User      identity.User `json:"user"`
	Phase     session.Phase `json:"phase"`
}

func (a *API) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "pharmalens-api",
		"version": a.version,
	})
}

func (a *API) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if err := a.deps.Ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	m := a.newMachine()
	if err := m.Login(r.Context(), req.Email, req.Password); err != nil {
		writeAuthError(w, r, err)
		return
	}
	user, _ := m.CurrentUser()

	token, expiresAt, err := a.deps.Tokens.Issue(user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	a.mu.Lock()
	a.sessions[user.ID] = m
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, authResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
		Phase:     m.Phase(),
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	m := a.newMachine()
	err := m.Register(r.Context(), identity.Profile{
		Name:       req.Name,
		Email:      req.Email,
		Password:   req.Password,
		Department: req.Department,
		Phone:      req.Phone,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	a.mu.Lock()
	a.pending[normalizeEmail(req.Email)] = m
	a.mu.Unlock()

	writeJSON(w, http.StatusAccepted, map[string]any{
		"status": "pending_verification",
		"phase":  m.Phase(),
	})
}

func (a *API) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	key := normalizeEmail(req.Email)
	a.mu.Lock()
	m, ok := a.pending[key]
	a.mu.Unlock()
	if !ok {
		writeError(w, r, http.StatusNotFound, "no verification pending for this email")
		return
	}

	confirmed, err := m.EnterOTPDigits(r.Context(), req.Code)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	if !confirmed {
		writeError(w, r, http.StatusBadRequest, "code must be six digits")
		return
	}

	user, _ := m.CurrentUser()
	token, expiresAt, err := a.deps.Tokens.Issue(user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "token generation failed")
		return
	}

	a.mu.Lock()
	delete(a.pending, key)
	a.sessions[user.ID] = m
	a.mu.Unlock()

	writeJSON(w, http.StatusOK, authResponse{
		Token:     token,
		ExpiresAt: expiresAt,
		User:      user,
		Phase:     m.Phase(),
	})
}

func (a *API) handleResend(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	a.mu.Lock()
	m, ok := a.pending[normalizeEmail(req.Email)]
	a.mu.Unlock()
	if !ok {
		writeError(w, r, http.StatusNotFound, "no verification pending for this email")
		return
	}

	if err := m.ResendOTP(r.Context()); err != nil {
		writeAuthError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "code_sent"})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	user, _ := identity.UserFromContext(r.Context())
	a.mu.Lock()
	m, ok := a.sessions[user.ID]
	a.mu.Unlock()
	if ok {
		m.Logout()
		a.dropMachine(user.ID)
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "signed_out"})
}

func (a *API) handleSessionState(w http.ResponseWriter, r *http.Request) {
	user, _ := identity.UserFromContext(r.Context())
	m := a.machineFor(r.Context(), user)
	source, _ := m.DataSource()
	writeJSON(w, http.StatusOK, map[string]any{
		"phase":       m.Phase(),
		"query_state": m.Query(),
		"data_source": source,
		"user":        user,
	})
}

func (a *API) handleSelectDataSource(w http.ResponseWriter, r *http.Request) {
	var req dataSourceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.Source) == "" {
		writeError(w, r, http.StatusBadRequest, "source is required")
		return
	}

	user, _ := identity.UserFromContext(r.Context())
	m := a.machineFor(r.Context(), user)
	if err := m.SelectDataSource(r.Context(), req.Source); err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phase": m.Phase()})
}

func (a *API) handleClearDataSource(w http.ResponseWriter, r *http.Request) {
	user, _ := identity.UserFromContext(r.Context())
	m := a.machineFor(r.Context(), user)
	if err := m.ClearDataSource(r.Context()); err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"phase": m.Phase()})
}

func (a *API) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user, _ := identity.UserFromContext(r.Context())
	m := a.machineFor(r.Context(), user)

	resp, err := m.SubmitQuery(r.Context(), req.Query)
	if err != nil {
		writeSessionError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	user, _ := identity.UserFromContext(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"role":        user.Role,
		"suggestions": knowledge.SuggestedQueries(user.Role),
	})
}

func (a *API) handleHistory(w http.ResponseWriter, r *http.Request) {
	if a.deps.History == nil {
		writeError(w, r, http.StatusNotFound, "history is not enabled")
		return
	}
	user, _ := identity.UserFromContext(r.Context())
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}
	items, err := a.deps.History.List(r.Context(), user.ID, limit)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "history lookup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handlePurgeHistory(w http.ResponseWriter, r *http.Request) {
	if a.deps.History == nil {
		writeError(w, r, http.StatusNotFound, "history is not enabled")
		return
	}
	user, _ := identity.UserFromContext(r.Context())
	if err := a.deps.History.Purge(r.Context(), user.ID); err != nil {
		writeError(w, r, http.StatusInternalServerError, "history purge failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "purged"})
}

// writeAuthError maps the identity error taxonomy onto status codes.
// Unknown failures surface as 502 so provider text never leaks.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
	case errors.Is(err, identity.ErrAlreadyRegistered):
		writeError(w, r, http.StatusConflict, "this email is already registered")
	case errors.Is(err, identity.ErrExpiredCode):
		writeError(w, r, http.StatusGone, "verification code expired, request a new one")
	case errors.Is(err, identity.ErrInvalidCode):
		writeError(w, r, http.StatusBadRequest, "invalid verification code")
	case errors.Is(err, identity.ErrInvalidEmail),
		errors.Is(err, identity.ErrWeakPassword),
		errors.Is(err, identity.ErrInvalidPhone):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, session.ErrResendCooldown):
		writeError(w, r, http.StatusTooManyRequests, "wait before requesting another code")
	case errors.Is(err, session.ErrInvalidState), errors.Is(err, session.ErrNoPending):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		writeError(w, r, http.StatusBadGateway, "authentication service unavailable")
	}
}

func writeSessionError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrEmptyQuery):
		writeError(w, r, http.StatusBadRequest, "query must not be empty")
	case errors.Is(err, session.ErrNotReady):
		writeError(w, r, http.StatusConflict, "select a data source first")
	case errors.Is(err, session.ErrNotAuthenticated):
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, session.ErrQueryInFlight):
		writeError(w, r, http.StatusConflict, "a query is already in flight")
	case errors.Is(err, session.ErrCanceled):
		writeError(w, r, http.StatusConflict, "query was canceled")
	case errors.Is(err, knowledge.ErrBackendUnavailable):
		writeError(w, r, http.StatusBadGateway, "knowledge backend unavailable")
	default:
		writeError(w, r, http.StatusInternalServerError, "query failed")
	}
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{"error": msg}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
