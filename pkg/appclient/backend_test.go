package appclient

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/oceanpad/atlasdata/pkg/storage"
)

// fakeBackend simulates the App Services authentication endpoints and the
// Data API for one app.
type fakeBackend struct {
	t      *testing.T
	server *httptest.Server

	mu           sync.Mutex
	loginCalls   int
	profileCalls int
	refreshCalls int
	logoutCalls  int
	actionCalls  int

	// loginAccess is the access token issued at login; refreshAccess the one
	// issued by a refresh; validAccess the only token the Data API accepts.
	loginAccess   string
	refreshAccess string
	validAccess   string
	refreshToken  string
	// rotatedRefresh, when set, is returned by the refresh endpoint as a new
	// refresh token.
	rotatedRefresh string

	loginStatus   int // non-zero forces the login endpoint to fail
	refreshStatus int // non-zero forces the refresh endpoint to fail
	actionStatus  int // non-zero forces a non-auth action failure
	actionResult  string

	loginDelay time.Duration
	// refreshGate, when set, blocks the refresh handler until closed.
	refreshGate chan struct{}

	lastLoginProvider string
	lastLoginPayload  map[string]any
	lastActionBearer  string
	lastActionBody    []byte
	lastLogoutBearer  string
}

// newFakeBackend starts the fake server. Knobs are applied before the
// server starts; later adjustments must hold b.mu.
func newFakeBackend(t *testing.T, knobs ...func(*fakeBackend)) *fakeBackend {
	b := &fakeBackend{
		t:             t,
		loginAccess:   "access-1",
		refreshAccess: "access-1",
		validAccess:   "access-1",
		refreshToken:  "refresh-1",
		actionResult:  `{"document":{"ok":true}}`,
	}
	for _, knob := range knobs {
		knob(b)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/app/test-app/auth/providers/", requireMethod(http.MethodPost, b.handleLogin))
	mux.HandleFunc("/app/test-app/auth/profile", requireMethod(http.MethodGet, b.handleProfile))
	mux.HandleFunc("/app/test-app/auth/session", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			b.handleRefresh(w, r)
		case http.MethodDelete:
			b.handleLogout(w, r)
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/data/action/", requireMethod(http.MethodPost, b.handleAction))

	b.server = httptest.NewServer(mux)
	t.Cleanup(b.server.Close)
	return b
}

// app builds an App wired to the fake backend. The returned storage is the
// app's session store, shared so tests can inspect or reuse it.
func (b *fakeBackend) app(mutate ...func(*Config)) (*App, *storage.Memory) {
	b.t.Helper()

	store := storage.NewMemory()
	cfg := Config{
		AppID:       "test-app",
		AuthBaseURL: b.server.URL,
		DataBaseURL: b.server.URL + "/data",
		Storage:     store,
	}
	for _, m := range mutate {
		m(&cfg)
	}

	app, err := New(cfg)
	if err != nil {
		b.t.Fatalf("failed to build app: %v", err)
	}
	return app, store
}

// requireMethod rejects requests whose method does not match, mirroring the
// method-specific mux patterns available in newer Go versions.
func requireMethod(method string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != method {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func bearer(r *http.Request) string {
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

func writeJSON(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func (b *fakeBackend) handleLogin(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.loginCalls++
	b.lastLoginProvider = strings.TrimSuffix(
		strings.TrimPrefix(r.URL.Path, "/app/test-app/auth/providers/"), "/login")
	_ = json.NewDecoder(r.Body).Decode(&b.lastLoginPayload)
	delay, status := b.loginDelay, b.loginStatus
	b.mu.Unlock()

	if delay > 0 {
		time.Sleep(delay)
	}
	if status != 0 {
		writeJSON(w, status, `{"error":"invalid username/password","error_code":"AuthError"}`)
		return
	}

	b.mu.Lock()
	resp := map[string]any{
		"access_token":  b.loginAccess,
		"refresh_token": b.refreshToken,
		"user_id":       "user-1",
		"device_id":     "device-1",
	}
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (b *fakeBackend) handleProfile(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.profileCalls++
	access := b.loginAccess
	b.mu.Unlock()

	if bearer(r) != access {
		writeJSON(w, http.StatusUnauthorized, `{"error":"invalid session","error_code":"InvalidSession"}`)
		return
	}
	writeJSON(w, http.StatusOK, `{
		"user_id": "user-1",
		"identities": [{"id": "ident-1", "provider_type": "local-userpass"}],
		"data": {"email": "a@b.com"}
	}`)
}

func (b *fakeBackend) handleRefresh(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.refreshCalls++
	gate := b.refreshGate
	status := b.refreshStatus
	refreshToken := b.refreshToken
	b.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if bearer(r) != refreshToken {
		writeJSON(w, http.StatusUnauthorized, `{"error":"invalid session","error_code":"InvalidSession"}`)
		return
	}
	if status != 0 {
		if status == http.StatusUnauthorized {
			writeJSON(w, status, `{"error":"invalid session","error_code":"InvalidSession"}`)
		} else {
			writeJSON(w, status, `{"error":"service unavailable"}`)
		}
		return
	}

	b.mu.Lock()
	resp := map[string]any{"access_token": b.refreshAccess}
	if b.rotatedRefresh != "" {
		resp["refresh_token"] = b.rotatedRefresh
	}
	b.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func (b *fakeBackend) handleLogout(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.logoutCalls++
	b.lastLogoutBearer = bearer(r)
	b.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

func (b *fakeBackend) handleAction(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	b.mu.Lock()
	b.actionCalls++
	b.lastActionBearer = bearer(r)
	b.lastActionBody = body
	valid := b.validAccess
	status := b.actionStatus
	result := b.actionResult
	b.mu.Unlock()

	if bearer(r) != valid {
		writeJSON(w, http.StatusUnauthorized, `{"error":"invalid session","error_code":"InvalidSession"}`)
		return
	}
	if status != 0 {
		writeJSON(w, status, `{"error":"no rule exists for that collection","error_code":"NoMatchingRule"}`)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (b *fakeBackend) counts() (logins, refreshes, actions int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loginCalls, b.refreshCalls, b.actionCalls
}

// inspect runs f under the backend lock, for reading the last-request fields
// and adjusting knobs mid-test.
func (b *fakeBackend) inspect(f func(b *fakeBackend)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	f(b)
}

func (b *fakeBackend) requestTotal() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.loginCalls + b.profileCalls + b.refreshCalls + b.logoutCalls + b.actionCalls
}
