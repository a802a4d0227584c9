package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"pharmalens.org/internal/audit"
	"pharmalens.org/internal/history"
	"pharmalens.org/internal/identity"
	"pharmalens.org/internal/knowledge"
	"pharmalens.org/internal/prefs"
	"pharmalens.org/internal/respond"
)

type testServer struct {
	api  *API
	mail *mailbox
}

type mailbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (m *mailbox) deliver(email, code string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[email] = code
}

func (m *mailbox) code(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.codes[email]
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	mail := &mailbox{codes: make(map[string]string)}
	provider := identity.NewMemoryProvider(identity.WithMailLog(mail.deliver))
	if err := provider.Seed("anna.kim@pharmalens.org", "Aurora!2025", "Anna Kim", "Quality Assurance"); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	if err := provider.Seed("sana.park@pharmalens.org", "Harbor!2025", "Sana Park", "Business Development"); err != nil {
		t.Fatalf("Seed: %v", err)
	}

	tokens, err := identity.NewTokenIssuer(strings.Repeat("k", 32), time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}

	hist, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() { _ = hist.Close() })

	api := New(Deps{
		Adapter:   identity.NewAdapter(provider),
		Tokens:    tokens,
		Retriever: knowledge.StaticRetriever{},
		Assembler: respond.New(audit.NewEmitter(nil)),
		Prefs:     prefs.NewMemoryStore(),
		History:   hist,
		Version:   "test",
	})
	return &testServer{api: api, mail: mail}
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	ts.api.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
}

func login(t *testing.T, ts *testServer, email, password string) (string, authResponse) {
	t.Helper()
	rec := ts.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{Email: email, Password: password})
	if rec.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", rec.Code, rec.Body.String())
	}
	var resp authResponse
	decodeBody(t, rec, &resp)
	return resp.Token, resp
}

func TestHealthz(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
}

func TestLoginAndQueryFlow(t *testing.T) {
	ts := newTestServer(t)
	token, auth := login(t, ts, "anna.kim@pharmalens.org", "Aurora!2025")
	if auth.User.Role != "qa" {
		t.Fatalf("role = %q, want qa", auth.User.Role)
	}
	if auth.Phase != "authenticated" {
		t.Fatalf("phase = %q, want authenticated before data source selection", auth.Phase)
	}

	// Query before selecting a data source is rejected.
	rec := ts.do(t, http.MethodPost, "/v1/query", token, queryRequest{Query: "open deviations"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("query before data source = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/v1/session/datasource", token, dataSourceRequest{Source: "qms-docs"})
	if rec.Code != http.StatusOK {
		t.Fatalf("datasource = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/v1/query", token, queryRequest{Query: "HVAC deviations in Building A"})
	if rec.Code != http.StatusOK {
		t.Fatalf("query = %d: %s", rec.Code, rec.Body.String())
	}
	var resp respond.QueryResponse
	decodeBody(t, rec, &resp)
	if resp.Summary == "" || resp.Verdict == "" {
		t.Fatalf("incomplete response: %+v", resp)
	}

	// The answered query shows up in history.
	rec = ts.do(t, http.MethodGet, "/v1/history", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history = %d: %s", rec.Code, rec.Body.String())
	}
	var hist struct {
		Items []history.Item `json:"items"`
	}
	decodeBody(t, rec, &hist)
	if len(hist.Items) != 1 || hist.Items[0].Query != "HVAC deviations in Building A" {
		t.Fatalf("history items = %+v", hist.Items)
	}
}

func TestSalesQueryIsRedacted(t *testing.T) {
	ts := newTestServer(t)
	token, auth := login(t, ts, "sana.park@pharmalens.org", "Harbor!2025")
	if auth.User.Role != "sales" {
		t.Fatalf("role = %q, want sales", auth.User.Role)
	}
	if rec := ts.do(t, http.MethodPost, "/v1/session/datasource", token, dataSourceRequest{Source: "qms-docs"}); rec.Code != http.StatusOK {
		t.Fatalf("datasource = %d", rec.Code)
	}

	rec := ts.do(t, http.MethodPost, "/v1/query", token, queryRequest{Query: "HVAC deviation history"})
	if rec.Code != http.StatusOK {
		t.Fatalf("query = %d: %s", rec.Code, rec.Body.String())
	}
	var resp respond.QueryResponse
	decodeBody(t, rec, &resp)
	if !resp.PartialAccess || resp.AccessJustification == "" {
		t.Fatalf("expected partial access with justification, got %+v", resp)
	}
	for _, src := range resp.Sources {
		if src.Type == knowledge.DocDeviation || src.Type == knowledge.DocCAPA {
			t.Fatalf("restricted source disclosed to sales: %+v", src)
		}
	}
}

func TestInvalidCredentials(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/v1/auth/login", "", loginRequest{Email: "anna.kim@pharmalens.org", Password: "wrong"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestAuthRequired(t *testing.T) {
	ts := newTestServer(t)
	if rec := ts.do(t, http.MethodPost, "/v1/query", "", queryRequest{Query: "q"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token = %d", rec.Code)
	}
	if rec := ts.do(t, http.MethodPost, "/v1/query", "not-a-token", queryRequest{Query: "q"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad token = %d", rec.Code)
	}
}

func TestBlankQueryRejected(t *testing.T) {
	ts := newTestServer(t)
	token, _ := login(t, ts, "anna.kim@pharmalens.org", "Aurora!2025")
	if rec := ts.do(t, http.MethodPost, "/v1/session/datasource", token, dataSourceRequest{Source: "qms-docs"}); rec.Code != http.StatusOK {
		t.Fatalf("datasource failed")
	}
	rec := ts.do(t, http.MethodPost, "/v1/query", token, queryRequest{Query: "   "})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("blank query = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestRegisterConfirmFlow(t *testing.T) {
	ts := newTestServer(t)
	email := "bora.lee@pharmalens.org"

	rec := ts.do(t, http.MethodPost, "/v1/auth/register", "", registerRequest{
		Name:       "Bora Lee",
		Email:      email,
		Password:   "Winter!2025",
		Department: "Regulatory Affairs",
	})
	if rec.Code != http.StatusAccepted {
		t.Fatalf("register = %d: %s", rec.Code, rec.Body.String())
	}

	// A wrong code is rejected and the flow stays open.
	wrong := "000000"
	if wrong == ts.mail.code(email) {
		wrong = "000001"
	}
	rec = ts.do(t, http.MethodPost, "/v1/auth/confirm", "", confirmRequest{Email: email, Code: wrong})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong code = %d: %s", rec.Code, rec.Body.String())
	}

	rec = ts.do(t, http.MethodPost, "/v1/auth/confirm", "", confirmRequest{Email: email, Code: ts.mail.code(email)})
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm = %d: %s", rec.Code, rec.Body.String())
	}
	var resp authResponse
	decodeBody(t, rec, &resp)
	if resp.Token == "" || resp.User.Role != "regulatory" {
		t.Fatalf("confirm response = %+v", resp)
	}
}

func TestConfirmWithoutRegistration(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, http.MethodPost, "/v1/auth/confirm", "", confirmRequest{Email: "nobody@pharmalens.org", Code: "123456"})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("confirm without registration = %d", rec.Code)
	}
}

func TestSuggestionsFollowRole(t *testing.T) {
	ts := newTestServer(t)
	token, _ := login(t, ts, "sana.park@pharmalens.org", "Harbor!2025")
	rec := ts.do(t, http.MethodGet, "/v1/suggestions", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("suggestions = %d", rec.Code)
	}
	var resp struct {
		Role        string   `json:"role"`
		Suggestions []string `json:"suggestions"`
	}
	decodeBody(t, rec, &resp)
	if resp.Role != "sales" || len(resp.Suggestions) == 0 {
		t.Fatalf("suggestions response = %+v", resp)
	}
}

func TestClearDataSourceRequiresReselection(t *testing.T) {
	ts := newTestServer(t)
	token, _ := login(t, ts, "anna.kim@pharmalens.org", "Aurora!2025")
	if rec := ts.do(t, http.MethodPost, "/v1/session/datasource", token, dataSourceRequest{Source: "qms-docs"}); rec.Code != http.StatusOK {
		t.Fatalf("datasource = %d", rec.Code)
	}

	rec := ts.do(t, http.MethodDelete, "/v1/session/datasource", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("clear datasource = %d: %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Phase string `json:"phase"`
	}
	decodeBody(t, rec, &resp)
	if resp.Phase != "authenticated" {
		t.Fatalf("phase after clear = %q, want authenticated", resp.Phase)
	}

	// Queries are gated again until a source is reselected.
	rec = ts.do(t, http.MethodPost, "/v1/query", token, queryRequest{Query: "open deviations"})
	if rec.Code != http.StatusConflict {
		t.Fatalf("query after clear = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestLogoutDropsSession(t *testing.T) {
	ts := newTestServer(t)
	token, _ := login(t, ts, "anna.kim@pharmalens.org", "Aurora!2025")

	rec := ts.do(t, http.MethodPost, "/v1/auth/logout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout = %d", rec.Code)
	}

	// The token is still cryptographically valid; the server resumes a
	// fresh machine that again requires a data source.
	rec = ts.do(t, http.MethodGet, "/v1/session", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("session = %d", rec.Code)
	}
	var state struct {
		Phase string `json:"phase"`
	}
	decodeBody(t, rec, &state)
	if state.Phase != "authenticated" {
		t.Fatalf("phase after logout resume = %q", state.Phase)
	}
}
