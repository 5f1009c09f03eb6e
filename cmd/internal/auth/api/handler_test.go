package authapi

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	paseto "aidanwoods.dev/go-paseto"

	"beacon/cmd/internal/auth/session"
)

const testUserAgent = "test-agent"

type fakeVerifier struct {
	username string
	password string
	userID   string
}

func (f fakeVerifier) VerifyIdentity(_ context.Context, username, password string) (string, error) {
	if username == f.username && password == f.password {
		return f.userID, nil
	}
	return "", ErrInvalidCredentials
}

type countingMetrics struct {
	mu       sync.Mutex
	outcomes map[string]int
}

func (m *countingMetrics) IncRotation(outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.outcomes == nil {
		m.outcomes = make(map[string]int)
	}
	m.outcomes[outcome]++
}

func (m *countingMetrics) count(outcome string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[outcome]
}

func newTestHandler(t *testing.T, opts ...HandlerOption) (*Handler, *session.Service, *session.MemoryStore) {
	t.Helper()

	sessCfg := session.DefaultConfig()
	sessCfg.PasetoV4SecretKeyHex = paseto.NewV4AsymmetricSecretKey().ExportHex()

	codec, err := session.NewPasetoV4Codec(sessCfg)
	if err != nil {
		t.Fatalf("NewPasetoV4Codec: %v", err)
	}
	st := session.NewMemoryStore()
	svc := session.NewService(sessCfg, codec, st)

	h, err := NewHandler(testLogger(), LoadConfigFromEnv(), svc, opts...)
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return h, svc, st
}

// issueForTest mints a pair whose fingerprint matches httptest's default
// remote addr (192.0.2.1) and the test user agent.
func issueForTest(t *testing.T, svc *session.Service, userID string) session.Issued {
	t.Helper()

	issued, err := svc.IssueSession(context.Background(), time.Now().UTC(), userID, session.Fingerprint{
		IP:        net.ParseIP("192.0.2.1"),
		UserAgent: testUserAgent,
	})
	if err != nil {
		t.Fatalf("IssueSession: %v", err)
	}
	return issued
}

func postRequest(target string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, target, nil)
	r.Header.Set("User-Agent", testUserAgent)
	return r
}

func responseCookie(t *testing.T, rec *httptest.ResponseRecorder, name string) *http.Cookie {
	t.Helper()

	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func decodeStatus(t *testing.T, rec *httptest.ResponseRecorder) statusResponse {
	t.Helper()

	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return resp
}

func TestRefreshWithoutCookie(t *testing.T) {
	h, _, _ := newTestHandler(t)

	rec := httptest.NewRecorder()
	h.handleRefresh(rec, postRequest("/refresh"))

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	resp := decodeStatus(t, rec)
	if resp.Success || resp.Message != "No refresh token" {
		t.Fatalf("body = %+v, want failure %q", resp, "No refresh token")
	}
}

func TestRefreshRotatesAndInvalidatesOldValue(t *testing.T) {
	metrics := &countingMetrics{}
	h, svc, _ := newTestHandler(t, WithMetrics(metrics))

	issued := issueForTest(t, svc, "u1")

	req := postRequest("/refresh")
	req.AddCookie(&http.Cookie{Name: h.cfg.RefreshCookieName, Value: issued.RefreshToken})
	rec := httptest.NewRecorder()
	h.handleRefresh(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if resp := decodeStatus(t, rec); !resp.Success {
		t.Fatalf("body = %+v, want success", resp)
	}

	access := responseCookie(t, rec, h.cfg.AccessCookieName)
	refresh := responseCookie(t, rec, h.cfg.RefreshCookieName)
	if access == nil || refresh == nil {
		t.Fatal("rotation did not set both cookies")
	}
	if !access.HttpOnly || !refresh.HttpOnly {
		t.Fatal("auth cookies must be HttpOnly")
	}
	if refresh.Value == issued.RefreshToken {
		t.Fatal("rotation returned the same renewable value")
	}
	if metrics.count("success") != 1 {
		t.Fatalf("success outcome count = %d, want 1", metrics.count("success"))
	}

	// Replaying the consumed value must fail with the generic message.
	replay := postRequest("/refresh")
	replay.AddCookie(&http.Cookie{Name: h.cfg.RefreshCookieName, Value: issued.RefreshToken})
	rec2 := httptest.NewRecorder()
	h.handleRefresh(rec2, replay)

	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("replay status = %d, want 401", rec2.Code)
	}
	if resp := decodeStatus(t, rec2); resp.Message != "Invalid or expired refresh token" {
		t.Fatalf("replay message = %q", resp.Message)
	}
	if c := responseCookie(t, rec2, h.cfg.RefreshCookieName); c == nil || c.MaxAge != -1 {
		t.Fatal("replay did not clear the refresh cookie")
	}
	if metrics.count("invalid") != 1 {
		t.Fatalf("invalid outcome count = %d, want 1", metrics.count("invalid"))
	}
}

func TestRefreshFingerprintMismatch(t *testing.T) {
	metrics := &countingMetrics{}
	h, svc, st := newTestHandler(t, WithMetrics(metrics))

	issued := issueForTest(t, svc, "u1")
	issueForTest(t, svc, "u1") // second device

	req := postRequest("/refresh")
	req.Header.Set("User-Agent", "someone-elses-browser")
	req.AddCookie(&http.Cookie{Name: h.cfg.RefreshCookieName, Value: issued.RefreshToken})
	rec := httptest.NewRecorder()
	h.handleRefresh(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if resp := decodeStatus(t, rec); resp.Message != "Suspicious login detected. Please login again." {
		t.Fatalf("message = %q", resp.Message)
	}

	// Every session for the user is gone.
	if n, _ := st.CountForUser(context.Background(), "u1"); n != 0 {
		t.Fatalf("CountForUser = %d, want 0", n)
	}
	if metrics.count("suspicious") != 1 {
		t.Fatalf("suspicious outcome count = %d, want 1", metrics.count("suspicious"))
	}
}

func TestLogoutAlwaysSucceeds(t *testing.T) {
	h, svc, st := newTestHandler(t)

	issued := issueForTest(t, svc, "u1")

	req := postRequest("/user/logout")
	req.AddCookie(&http.Cookie{Name: h.cfg.RefreshCookieName, Value: issued.RefreshToken})
	rec := httptest.NewRecorder()
	h.handleLogout(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	resp := decodeStatus(t, rec)
	if !resp.Success || resp.Message != "Logged out" {
		t.Fatalf("body = %+v", resp)
	}
	if n, _ := st.CountForUser(context.Background(), "u1"); n != 0 {
		t.Fatalf("CountForUser = %d, want 0", n)
	}
	if c := responseCookie(t, rec, h.cfg.RefreshCookieName); c == nil || c.MaxAge != -1 {
		t.Fatal("logout did not clear the refresh cookie")
	}

	// No cookie at all is still a clean logout.
	rec2 := httptest.NewRecorder()
	h.handleLogout(rec2, postRequest("/user/logout"))
	if rec2.Code != http.StatusOK {
		t.Fatalf("cookieless status = %d, want 200", rec2.Code)
	}
}

func TestLogoutAll(t *testing.T) {
	h, svc, st := newTestHandler(t)

	issued := issueForTest(t, svc, "u1")
	issueForTest(t, svc, "u1")
	issueForTest(t, svc, "u2")

	req := postRequest("/user/logout_all")
	req.Header.Set("Authorization", "Bearer "+issued.AccessToken)
	rec := httptest.NewRecorder()
	h.handleLogoutAll(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	if n, _ := st.CountForUser(context.Background(), "u1"); n != 0 {
		t.Fatalf("u1 count = %d, want 0", n)
	}
	if n, _ := st.CountForUser(context.Background(), "u2"); n != 1 {
		t.Fatalf("u2 count = %d, want 1", n)
	}

	// Without credentials: 401.
	rec2 := httptest.NewRecorder()
	h.handleLogoutAll(rec2, postRequest("/user/logout_all"))
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec2.Code)
	}
}

func TestLogin(t *testing.T) {
	h, _, st := newTestHandler(t, WithIdentityVerifier(fakeVerifier{
		username: "zoe",
		password: "correct horse",
		userID:   "u1",
	}))

	body := strings.NewReader(`{"username":"zoe","password":"correct horse"}`)
	req := httptest.NewRequest(http.MethodPost, "/auth/login", body)
	req.Header.Set("User-Agent", testUserAgent)
	rec := httptest.NewRecorder()
	h.handleLogin(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rec.Code, rec.Body.String())
	}
	var resp loginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.UserID != "u1" {
		t.Fatalf("body = %+v", resp)
	}
	if responseCookie(t, rec, h.cfg.AccessCookieName) == nil {
		t.Fatal("login did not set the access cookie")
	}
	if n, _ := st.CountForUser(context.Background(), "u1"); n != 1 {
		t.Fatalf("CountForUser = %d, want 1", n)
	}

	// Wrong password.
	bad := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"zoe","password":"nope"}`))
	rec2 := httptest.NewRecorder()
	h.handleLogin(rec2, bad)
	if rec2.Code != http.StatusUnauthorized {
		t.Fatalf("bad password status = %d, want 401", rec2.Code)
	}
}

func TestLoginWithoutVerifier(t *testing.T) {
	h, _, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"zoe","password":"x"}`))
	rec := httptest.NewRecorder()
	h.handleLogin(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	h, _, _ := newTestHandler(t)

	mux := http.NewServeMux()
	h.Register(mux)

	for _, target := range []string{"/refresh", "/user/logout", "/user/logout_all", "/auth/login"} {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
		if rec.Code != http.StatusMethodNotAllowed {
			t.Fatalf("GET %s status = %d, want 405", target, rec.Code)
		}
	}
}

func TestClientIPProxyHandling(t *testing.T) {
	t.Parallel()

	r := httptest.NewRequest(http.MethodPost, "/refresh", nil)
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")

	if ip := clientIP(r, false); !ip.Equal(net.ParseIP("192.0.2.1")) {
		t.Fatalf("untrusted proxy ip = %v, want 192.0.2.1", ip)
	}
	if ip := clientIP(r, true); !ip.Equal(net.ParseIP("203.0.113.9")) {
		t.Fatalf("trusted proxy ip = %v, want 203.0.113.9", ip)
	}
}
