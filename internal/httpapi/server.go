// Package httpapi is the HTTP surface: authentication, session
// management and the query endpoint, with health and metrics alongside.
package httpapi

import (
	"context"
	"database/sql"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"pharmalens.org/internal/history"
	"pharmalens.org/internal/identity"
	"pharmalens.org/internal/knowledge"
	"pharmalens.org/internal/obs"
	"pharmalens.org/internal/prefs"
	"pharmalens.org/internal/respond"
	"pharmalens.org/internal/session"
)

// ReadyProbe checks backing stores for the readiness endpoint.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps are the wired components the API serves.
type Deps struct {
	Adapter   *identity.Adapter
	Tokens    *identity.TokenIssuer
	Retriever knowledge.Retriever
	Assembler *respond.Assembler
	Prefs     prefs.Store
	History   *history.Store
	Ready     ReadyProbe
	Version   string

	RateLimitRPS   float64
	RateLimitBurst int
}

// API owns the router and the per-user session machines.
type API struct {
	router  chi.Router
	deps    Deps
	version string

	mu sync.Mutex
	// sessions holds one machine per authenticated user id; pending holds
	// machines mid-verification, keyed by email.
	sessions map[string]*session.Machine
	pending  map[string]*session.Machine
}

// New builds the API and mounts all routes.
func New(deps Deps) *API {
	a := &API{
		router:   chi.NewRouter(),
		deps:     deps,
		version:  deps.Version,
		sessions: make(map[string]*session.Machine),
		pending:  make(map[string]*session.Machine),
	}

	r := a.router
	r.Use(RequestID)
	r.Use(obs.Instrument)
	r.Use(Logging)
	r.Use(SecurityHeaders)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "http://127.0.0.1:*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           600,
	}))
	if deps.RateLimitRPS > 0 && deps.RateLimitBurst > 0 {
		r.Use(RateLimit(deps.RateLimitRPS, deps.RateLimitBurst))
	}

	r.Get("/healthz", a.handleHealthz)
	r.Get("/readyz", a.handleReadyz)
	r.Handle("/metrics", obs.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/auth/login", a.handleLogin)
		r.Post("/auth/register", a.handleRegister)
		r.Post("/auth/confirm", a.handleConfirm)
		r.Post("/auth/resend", a.handleResend)

		r.Group(func(r chi.Router) {
			r.Use(a.withAuth)
			r.Post("/auth/logout", a.handleLogout)
			r.Post("/session/datasource", a.handleSelectDataSource)
			r.Delete("/session/datasource", a.handleClearDataSource)
			r.Get("/session", a.handleSessionState)
			r.Post("/query", a.handleQuery)
			r.Get("/suggestions", a.handleSuggestions)
			r.Get("/history", a.handleHistory)
			r.Delete("/history", a.handlePurgeHistory)
		})
	})

	return a
}

// Handler returns the root handler.
func (a *API) Handler() http.Handler { return a.router }

func (a *API) newMachine() *session.Machine {
	opts := []session.Option{}
	if a.deps.History != nil {
		opts = append(opts, session.WithHistory(a.deps.History))
	}
	return session.New(a.deps.Adapter, a.deps.Retriever, a.deps.Assembler, a.deps.Prefs, opts...)
}

// machineFor returns the caller's session machine, resuming one from the
// validated token after a restart.
func (a *API) machineFor(ctx context.Context, user identity.User) *session.Machine {
	a.mu.Lock()
	m, ok := a.sessions[user.ID]
	if !ok {
		m = a.newMachine()
		a.sessions[user.ID] = m
	}
	a.mu.Unlock()

	if !ok {
		if err := m.Resume(ctx, user); err != nil {
			obs.Log("httpapi.session_resume_failed", map[string]any{
				"user_id": user.ID, "error": err.Error(),
			})
		}
	}
	return m
}

func (a *API) dropMachine(userID string) {
	a.mu.Lock()
	delete(a.sessions, userID)
	a.mu.Unlock()
}
