// Package session implements the explicit lifecycle state machine gating
// access to the query pipeline: unauthenticated through verification to
// query-ready, with query sub-states layered on top. All transitions are
// mutex-guarded; the retrieval call is the only operation that blocks.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"pharmalens.org/internal/history"
	"pharmalens.org/internal/identity"
	"pharmalens.org/internal/knowledge"
	"pharmalens.org/internal/obs"
	"pharmalens.org/internal/prefs"
	"pharmalens.org/internal/respond"
)

// Phase is the authentication lifecycle state.
type Phase string

const (
	PhaseUnauthenticated     Phase = "unauthenticated"
	PhasePendingVerification Phase = "pending_verification"
	PhaseAuthenticated       Phase = "authenticated"
	PhaseReady               Phase = "ready"
)

// QueryState is the query sub-state layered on PhaseReady.
type QueryState string

const (
	QueryIdle     QueryState = "idle"
	QueryInFlight QueryState = "in_flight"
	QueryAnswered QueryState = "answered"
	QueryFailed   QueryState = "failed"
)

var (
	ErrEmptyQuery       = errors.New("session: empty query")
	ErrNotReady         = errors.New("session: no data source selected")
	ErrNotAuthenticated = errors.New("session: not authenticated")
	ErrNoPending        = errors.New("session: no verification pending")
	ErrQueryInFlight    = errors.New("session: a query is already in flight")
	ErrResendCooldown   = errors.New("session: resend is cooling down")
	ErrCanceled         = errors.New("session: query canceled")
	ErrInvalidState     = errors.New("session: operation not allowed in current state")
)

const (
	otpLength      = 6
	resendCooldown = 60 * time.Second
)

// HistoryRecorder receives answered queries, best-effort.
type HistoryRecorder interface {
	Record(ctx context.Context, userID, query, summary, confidence string, at time.Time) (history.Item, error)
}

// Machine is one client's session. It owns the User exclusively and holds
// no state shared with other sessions.
type Machine struct {
	mu sync.Mutex

	phase      Phase
	queryState QueryState
	user       identity.User
	session    identity.Session
	dataSource string

	pendingEmail string
	otpBuffer    string
	lastResend   time.Time

	// epoch invalidates in-flight work on logout: a retrieval resolving
	// under a stale epoch is discarded, never surfaced.
	epoch uint64

	lastResponse *respond.QueryResponse

	adapter   *identity.Adapter
	retriever knowledge.Retriever
	assembler *respond.Assembler
	prefs     prefs.Store
	history   HistoryRecorder
	now       func() time.Time
}

// Option configures a Machine.
type Option func(*Machine)

// WithHistory attaches a history recorder.
func WithHistory(rec HistoryRecorder) Option {
	return func(m *Machine) { m.history = rec }
}

// WithClock overrides the time source, used to test the resend cooldown.
func WithClock(fn func() time.Time) Option {
	return func(m *Machine) {
		if fn != nil {
			m.now = fn
		}
	}
}

// New builds a machine in the unauthenticated phase.
func New(adapter *identity.Adapter, retriever knowledge.Retriever, assembler *respond.Assembler, prefStore prefs.Store, opts ...Option) *Machine {
	m := &Machine{
		phase:      PhaseUnauthenticated,
		queryState: QueryIdle,
		adapter:    adapter,
		retriever:  retriever,
		assembler:  assembler,
		prefs:      prefStore,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Phase returns the current lifecycle phase.
func (m *Machine) Phase() Phase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// Query returns the current query sub-state.
func (m *Machine) Query() QueryState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.queryState
}

// CurrentUser returns the session owner, if authenticated.
func (m *Machine) CurrentUser() (identity.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase == PhaseUnauthenticated || m.phase == PhasePendingVerification {
		return identity.User{}, false
	}
	return m.user, true
}

// DataSource returns the selected data source, if any.
func (m *Machine) DataSource() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dataSource, m.dataSource != ""
}

// OTPBuffer returns the digits entered so far.
func (m *Machine) OTPBuffer() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.otpBuffer
}

// LastResponse returns the most recent answered response.
func (m *Machine) LastResponse() (respond.QueryResponse, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastResponse == nil {
		return respond.QueryResponse{}, false
	}
	return *m.lastResponse, true
}

// Login authenticates and admits the user. Returning users who already
// selected a data source land directly in the ready phase.
func (m *Machine) Login(ctx context.Context, email, password string) error {
	m.mu.Lock()
	if m.phase != PhaseUnauthenticated {
		m.mu.Unlock()
		return ErrInvalidState
	}
	m.mu.Unlock()

	sess, err := m.adapter.Login(ctx, email, password)
	if err != nil {
		return err
	}

	source := ""
	if m.prefs != nil {
		if val, ok, perr := m.prefs.DataSource(ctx, sess.User.ID); perr == nil && ok {
			source = val
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = sess.User
	m.session = sess
	m.dataSource = source
	m.queryState = QueryIdle
	if source != "" {
		m.phase = PhaseReady
	} else {
		m.phase = PhaseAuthenticated
	}
	return nil
}

// Resume installs an already-verified user, used when a valid session
// token re-attaches after a process restart. The phase follows the saved
// data source exactly as a fresh login would.
func (m *Machine) Resume(ctx context.Context, user identity.User) error {
	m.mu.Lock()
	if m.phase != PhaseUnauthenticated {
		m.mu.Unlock()
		return ErrInvalidState
	}
	m.mu.Unlock()

	source := ""
	if m.prefs != nil {
		if val, ok, err := m.prefs.DataSource(ctx, user.ID); err == nil && ok {
			source = val
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = user
	m.dataSource = source
	m.queryState = QueryIdle
	if source != "" {
		m.phase = PhaseReady
	} else {
		m.phase = PhaseAuthenticated
	}
	return nil
}

// Register submits a registration and moves to pending verification. The
// initial code send starts the resend cooldown window.
func (m *Machine) Register(ctx context.Context, profile identity.Profile) error {
	m.mu.Lock()
	if m.phase != PhaseUnauthenticated {
		m.mu.Unlock()
		return ErrInvalidState
	}
	m.mu.Unlock()

	if err := m.adapter.Register(ctx, profile); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = PhasePendingVerification
	m.pendingEmail = strings.ToLower(strings.TrimSpace(profile.Email))
	m.otpBuffer = ""
	m.lastResend = m.now()
	return nil
}

// EnterOTPDigits appends digits to the verification buffer and
// auto-submits exactly once when it reaches six digits. On failure the
// buffer is cleared, the phase is unchanged and the cooldown unaffected.
func (m *Machine) EnterOTPDigits(ctx context.Context, digits string) (bool, error) {
	m.mu.Lock()
	if m.phase != PhasePendingVerification {
		m.mu.Unlock()
		return false, ErrNoPending
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			continue
		}
		if len(m.otpBuffer) < otpLength {
			m.otpBuffer += string(r)
		}
	}
	if len(m.otpBuffer) < otpLength {
		m.mu.Unlock()
		return false, nil
	}
	code := m.otpBuffer
	email := m.pendingEmail
	m.mu.Unlock()

	sess, err := m.adapter.ConfirmOTP(ctx, email, code)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.phase != PhasePendingVerification || m.pendingEmail != email {
		// Logged out (or restarted) while confirming; drop the result.
		return false, ErrCanceled
	}
	m.otpBuffer = ""
	if err != nil {
		return false, err
	}
	m.phase = PhaseAuthenticated
	m.pendingEmail = ""
	m.user = sess.User
	m.session = sess
	return true, nil
}

// ResendOTP requests a fresh code. During the cooldown window the request
// is rejected locally; the provider is not contacted. The window is
// claimed before the provider call, so concurrent resends right after the
// window opens still yield exactly one provider request; a provider
// failure releases the claim so the user can retry.
func (m *Machine) ResendOTP(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != PhasePendingVerification {
		m.mu.Unlock()
		return ErrNoPending
	}
	now := m.now()
	if now.Sub(m.lastResend) < resendCooldown {
		m.mu.Unlock()
		return ErrResendCooldown
	}
	prev := m.lastResend
	m.lastResend = now
	email := m.pendingEmail
	m.mu.Unlock()

	if err := m.adapter.ResendOTP(ctx, email); err != nil {
		m.mu.Lock()
		if m.lastResend.Equal(now) {
			m.lastResend = prev
		}
		m.mu.Unlock()
		return err
	}
	return nil
}

// SelectDataSource records the selection and admits the session to the
// ready phase.
func (m *Machine) SelectDataSource(ctx context.Context, source string) error {
	source = strings.TrimSpace(source)
	if source == "" {
		return ErrInvalidState
	}

	m.mu.Lock()
	if m.phase != PhaseAuthenticated && m.phase != PhaseReady {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	userID := m.user.ID
	m.mu.Unlock()

	if m.prefs != nil {
		if err := m.prefs.SetDataSource(ctx, userID, source); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataSource = source
	m.phase = PhaseReady
	m.queryState = QueryIdle
	return nil
}

// ClearDataSource drops the selection, persisted preference included, and
// returns the session to the authenticated phase so the next login asks
// again. Rejected while a query is in flight.
func (m *Machine) ClearDataSource(ctx context.Context) error {
	m.mu.Lock()
	if m.phase != PhaseAuthenticated && m.phase != PhaseReady {
		m.mu.Unlock()
		return ErrNotAuthenticated
	}
	if m.queryState == QueryInFlight {
		m.mu.Unlock()
		return ErrQueryInFlight
	}
	userID := m.user.ID
	m.mu.Unlock()

	if m.prefs != nil {
		if err := m.prefs.Clear(ctx, userID); err != nil {
			return err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dataSource = ""
	m.phase = PhaseAuthenticated
	m.queryState = QueryIdle
	return nil
}

// SubmitQuery runs one query through retrieval and assembly. Blank
// queries are rejected locally with no transition and no backend call; a
// second submission while one is in flight is rejected; a result arriving
// after logout is discarded.
func (m *Machine) SubmitQuery(ctx context.Context, text string) (respond.QueryResponse, error) {
	trimmed := strings.TrimSpace(text)

	m.mu.Lock()
	if m.phase != PhaseReady {
		m.mu.Unlock()
		if m.phase == PhaseAuthenticated {
			return respond.QueryResponse{}, ErrNotReady
		}
		return respond.QueryResponse{}, ErrNotAuthenticated
	}
	if trimmed == "" {
		m.mu.Unlock()
		return respond.QueryResponse{}, ErrEmptyQuery
	}
	if m.queryState == QueryInFlight {
		m.mu.Unlock()
		return respond.QueryResponse{}, ErrQueryInFlight
	}
	m.queryState = QueryInFlight
	epoch := m.epoch
	user := m.user
	m.mu.Unlock()

	raw, err := m.retriever.Query(ctx, trimmed, user.Role)

	m.mu.Lock()
	if m.epoch != epoch {
		// Logged out while the backend was answering.
		m.mu.Unlock()
		return respond.QueryResponse{}, ErrCanceled
	}
	if err != nil {
		m.queryState = QueryFailed
		m.mu.Unlock()
		obs.Log("session.query_failed", map[string]any{
			"user_id": user.ID, "error": err.Error(),
		})
		return respond.QueryResponse{}, err
	}
	m.mu.Unlock()

	resp := m.assembler.Assemble(ctx, raw, user.Role, user.ID, trimmed)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return respond.QueryResponse{}, ErrCanceled
	}
	m.queryState = QueryAnswered
	m.lastResponse = &resp
	m.mu.Unlock()

	if m.history != nil {
		if _, herr := m.history.Record(ctx, user.ID, trimmed, resp.Summary, string(resp.Confidence), resp.Timestamp); herr != nil {
			obs.Log("session.history_record_failed", map[string]any{"error": herr.Error()})
		}
	}
	return resp, nil
}

// Logout resets to the unauthenticated phase from any state. It is never
// blocked; an in-flight query's eventual result is discarded.
func (m *Machine) Logout() {
	m.mu.Lock()
	email := m.user.Email
	m.epoch++
	m.phase = PhaseUnauthenticated
	m.queryState = QueryIdle
	m.user = identity.User{}
	m.session = identity.Session{}
	m.dataSource = ""
	m.pendingEmail = ""
	m.otpBuffer = ""
	m.lastResponse = nil
	m.mu.Unlock()

	if email != "" {
		m.adapter.Logout(email)
	}
}
