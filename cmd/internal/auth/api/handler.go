// Package authapi exposes the session subsystem over HTTP: rotation, logout,
// and a thin login surface. All error-to-status translation happens here; the
// session package never sees HTTP.
package authapi

import (
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"beacon/cmd/internal/auth/session"
)

// Client-facing failure messages. Wire-stable; clients match on them.
const (
	msgNoRefreshToken   = "No refresh token"
	msgInvalidOrExpired = "Invalid or expired refresh token"
	msgSuspicious       = "Suspicious login detected. Please login again."
	msgLoggedOut        = "Logged out"
	msgInvalidLogin     = "Invalid username or password"
)

// Metrics counts rotation outcomes. Implemented by app's prometheus registry;
// NoopMetrics is used in tests.
type Metrics interface {
	IncRotation(outcome string)
}

// NoopMetrics discards all observations.
type NoopMetrics struct{}

func (NoopMetrics) IncRotation(string) {}

// Handler wires HTTP auth endpoints to the session service.
type Handler struct {
	log      *slog.Logger
	cfg      Config
	sessions *session.Service
	verifier IdentityVerifier
	metrics  Metrics
}

// HandlerOption configures optional auth handler dependencies.
type HandlerOption func(*Handler)

// WithIdentityVerifier enables the login endpoint. Without a verifier,
// /auth/login returns 503.
func WithIdentityVerifier(v IdentityVerifier) HandlerOption {
	return func(h *Handler) {
		if h == nil || v == nil {
			return
		}
		h.verifier = v
	}
}

// WithMetrics overrides the default no-op metrics sink.
func WithMetrics(m Metrics) HandlerOption {
	return func(h *Handler) {
		if h == nil || m == nil {
			return
		}
		h.metrics = m
	}
}

// NewHandler constructs an auth Handler.
func NewHandler(log *slog.Logger, cfg Config, sessions *session.Service, opts ...HandlerOption) (*Handler, error) {
	if log == nil {
		log = slog.Default()
	}
	if sessions == nil {
		return nil, errors.New("authapi: nil session service")
	}

	h := &Handler{
		log:      log,
		cfg:      cfg,
		sessions: sessions,
		metrics:  NoopMetrics{},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(h)
	}
	return h, nil
}

// Register wires auth routes onto the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if h == nil || mux == nil {
		return
	}
	mux.HandleFunc("/refresh", h.handleRefresh)
	mux.HandleFunc("/user/logout", h.handleLogout)
	mux.HandleFunc("/user/logout_all", h.handleLogoutAll)
	mux.HandleFunc("/auth/login", h.handleLogin)
}

// ---- handlers ----

func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	presented, ok := h.refreshTokenFromCookie(r)
	if !ok {
		writeFailure(w, http.StatusUnauthorized, msgNoRefreshToken)
		return
	}

	ctx := r.Context()
	now := time.Now().UTC()
	fp := session.Fingerprint{
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: strings.TrimSpace(r.UserAgent()),
	}

	issued, err := h.sessions.Rotate(ctx, now, presented, fp)
	if err != nil {
		h.clearSessionCookies(w)
		switch {
		case errors.Is(err, session.ErrSuspiciousActivity):
			h.metrics.IncRotation("suspicious")
			h.log.Warn("auth.refresh.suspicious", "ip", fp.IP, "user_agent", fp.UserAgent)
			writeFailure(w, http.StatusUnauthorized, msgSuspicious)
		case errors.Is(err, session.ErrInvalidOrExpired):
			h.metrics.IncRotation("invalid")
			writeFailure(w, http.StatusUnauthorized, msgInvalidOrExpired)
		default:
			// Store failure. The client sees the generic 401 and re-logins.
			h.metrics.IncRotation("error")
			h.log.Error("auth.refresh.fail", "err", err)
			writeFailure(w, http.StatusUnauthorized, msgInvalidOrExpired)
		}
		return
	}

	h.metrics.IncRotation("success")
	h.setSessionCookies(w, issued)
	writeJSON(w, http.StatusOK, statusResponse{Success: true})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Failure-silent: an absent or junk cookie still yields a clean logout.
	if presented, ok := h.refreshTokenFromCookie(r); ok {
		if err := h.sessions.Logout(r.Context(), presented); err != nil {
			h.log.Error("auth.logout.fail", "err", err)
		}
	}

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: msgLoggedOut})
}

func (h *Handler) handleLogoutAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	value, ok := h.accessTokenFromRequest(r)
	if !ok {
		writeFailure(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	userID, err := h.sessions.VerifyAccess(value, time.Now().UTC())
	if err != nil {
		writeFailure(w, http.StatusUnauthorized, "Not authenticated")
		return
	}

	if err := h.sessions.RevokeAll(r.Context(), userID); err != nil {
		h.log.Error("auth.logout_all.fail", "err", err)
		writeFailure(w, http.StatusInternalServerError, "Could not log out")
		return
	}

	h.clearSessionCookies(w)
	writeJSON(w, http.StatusOK, statusResponse{Success: true, Message: msgLoggedOut})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if h.verifier == nil {
		writeFailure(w, http.StatusServiceUnavailable, "Login not configured")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, h.cfg.MaxBodyBytes, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		writeFailure(w, http.StatusBadRequest, "Username and password are required")
		return
	}

	ctx := r.Context()
	userID, err := h.verifier.VerifyIdentity(ctx, username, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			writeFailure(w, http.StatusUnauthorized, msgInvalidLogin)
			return
		}
		h.log.Error("auth.login.verify.fail", "err", err)
		writeFailure(w, http.StatusServiceUnavailable, "Please retry later")
		return
	}

	now := time.Now().UTC()
	fp := session.Fingerprint{
		IP:        clientIP(r, h.cfg.TrustProxy),
		UserAgent: strings.TrimSpace(r.UserAgent()),
	}

	issued, err := h.sessions.IssueSession(ctx, now, userID, fp)
	if err != nil {
		h.log.Error("auth.login.issue.fail", "err", err)
		writeFailure(w, http.StatusInternalServerError, "Internal error")
		return
	}

	h.log.Info("auth.login.success", "user_id", userID)
	h.setSessionCookies(w, issued)
	writeJSON(w, http.StatusOK, loginResponse{
		Success:         true,
		UserID:          userID,
		AccessExpiresAt: issued.AccessExp,
	})
}

// ---- client IP ----

func clientIP(r *http.Request, trustProxy bool) net.IP {
	if trustProxy {
		if ip := parseForwardedIP(r.Header.Get("X-Forwarded-For")); ip != nil {
			return ip
		}
		if ip := net.ParseIP(strings.TrimSpace(r.Header.Get("X-Real-IP"))); ip != nil {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		if ip := net.ParseIP(host); ip != nil {
			return ip
		}
	}
	return nil
}

func parseForwardedIP(raw string) net.IP {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	for _, p := range parts {
		if ip := net.ParseIP(strings.TrimSpace(p)); ip != nil {
			return ip
		}
	}
	return nil
}
