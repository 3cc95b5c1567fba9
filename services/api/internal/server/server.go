package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"gobarber/internal/ratelimit"
	"gobarber/internal/util"
	"gobarber/pkg/domain"
	"gobarber/services/api/internal/app"
	"gobarber/services/api/internal/security"
)

const maxJSONBody = 1 << 20

// Config wires required dependencies for the HTTP server.
type Config struct {
	App                      *app.App
	RedisAddr                string
	RedisPassword            string
	SignupRateLimitPerMinute int
	LoginRateLimitPerMinute  int
	MaxUploadBytes           int64
	AllowedOrigins           []string
	TrustedProxyCIDRs        []string
}

// Server exposes the booking API over HTTP.
type Server struct {
	app            *app.App
	mux            *http.ServeMux
	maxUploadBytes int64
	allowedOrigins []string
	trustedProxies *util.TrustedProxies
	signupLimiter  *ratelimit.FixedWindowLimiter
	loginLimiter   *ratelimit.FixedWindowLimiter
	alerter        *security.AuditAlerter
}

// New constructs the server with routes configured.
func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("app required")
	}
	signupLimit := cfg.SignupRateLimitPerMinute
	if signupLimit <= 0 {
		signupLimit = 5
	}
	loginLimit := cfg.LoginRateLimitPerMinute
	if loginLimit <= 0 {
		loginLimit = 10
	}
	newLimiter := func(name string, limit int) (*ratelimit.FixedWindowLimiter, error) {
		prefix := "gobarber:api:ratelimit:" + name
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(cfg.RedisAddr, cfg.RedisPassword, prefix, limit, time.Minute)
		if err != nil {
			return nil, fmt.Errorf("init %s limiter: %w", name, err)
		}
		return limiter, nil
	}
	signupLimiter, err := newLimiter("signup", signupLimit)
	if err != nil {
		return nil, err
	}
	loginLimiter, err := newLimiter("login", loginLimit)
	if err != nil {
		return nil, err
	}
	trusted, err := util.NewTrustedProxies(cfg.TrustedProxyCIDRs)
	if err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}
	s := &Server{
		app:            cfg.App,
		mux:            http.NewServeMux(),
		maxUploadBytes: normalizeMaxBytes(cfg.MaxUploadBytes),
		allowedOrigins: cfg.AllowedOrigins,
		trustedProxies: trusted,
		signupLimiter:  signupLimiter,
		loginLimiter:   loginLimiter,
		alerter:        security.NewAuditAlerter(cfg.RedisAddr, cfg.RedisPassword, "gobarber:api:alerts"),
	}
	s.routes()
	return s, nil
}

// Router returns the configured handler.
func (s *Server) Router() http.Handler {
	return util.WithRequestID(
		util.WithRequestLog("api",
			util.WithSecurityHeaders(
				util.WithCORS(s.allowedOrigins, s.mux))))
}

// Close releases the Redis connections.
func (s *Server) Close() error {
	return errors.Join(s.signupLimiter.Close(), s.loginLimiter.Close(), s.alerter.Close())
}

type route struct {
	pattern string
	handler http.Handler
}

func (s *Server) routeTable() []route {
	return []route{
		{"GET /healthz", http.HandlerFunc(s.handleHealth)},

		{"POST /users", http.HandlerFunc(s.handleRegister)},
		{"POST /sessions", http.HandlerFunc(s.handleLogin)},
		{"PUT /users", s.authenticated(s.handleUpdateProfile)},
		{"POST /files", s.authenticated(s.handleUploadFile)},
		{"GET /providers", s.authenticated(s.handleListProviders)},

		{"POST /appointments", s.authenticated(s.handleCreateAppointment)},
		{"GET /appointments", s.authenticated(s.handleListAppointments)},
		{"DELETE /appointments/{id}", s.authenticated(s.handleCancelAppointment)},

		{"GET /notifications", s.authenticated(s.handleListNotifications)},
		{"PUT /notifications/{id}", s.authenticated(s.handleMarkNotificationRead)},
	}
}

func (s *Server) routes() {
	for _, rt := range s.routeTable() {
		s.mux.Handle(rt.pattern, rt.handler)
	}
}

// Patterns lists every "METHOD /path" the API serves.
func Patterns() []string {
	var s Server
	table := s.routeTable()
	out := make([]string, 0, len(table))
	for _, rt := range table {
		out = append(out, rt.pattern)
	}
	return out
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, domain.User)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			s.audit(r, "api.authorize", "fail", "reason", "missing_token")
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "Token not provided.")
			return
		}
		user, ok, err := s.app.VerifyToken(r.Context(), token)
		if err != nil {
			util.LoggerFromContext(r.Context()).Error("verify token failed", "err", err)
			writeError(w, r, http.StatusInternalServerError, codeInternal, "internal error")
			return
		}
		if !ok {
			s.audit(r, "api.authorize", "fail", "reason", "invalid_token")
			writeError(w, r, http.StatusUnauthorized, codeUnauthorized, "Token invalid.")
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", user.ID))
		next(w, r.WithContext(ctx), user)
	})
}

// users & sessions
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.signupLimiter, "Too many signup attempts.") {
		s.audit(r, "api.signup", "rate_limited")
		return
	}
	var req app.RegisterInput
	if !decodeJSON(w, r, &req) {
		return
	}
	user, err := s.app.Register(r.Context(), req)
	if err != nil {
		s.audit(r, "api.signup", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "api.signup", "success", "user_id", user.ID)
	writeJSON(w, http.StatusOK, user)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.loginLimiter, "Too many login attempts.") {
		s.audit(r, "api.login", "rate_limited")
		return
	}
	var req app.LoginInput
	if !decodeJSON(w, r, &req) {
		return
	}
	session, err := s.app.Login(r.Context(), req)
	if err != nil {
		s.audit(r, "api.login", "fail", "reason", err.Error())
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "api.login", "success", "user_id", session.User.ID)
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.UpdateProfileInput
	if !decodeJSON(w, r, &req) {
		return
	}
	updated, err := s.app.UpdateProfile(r.Context(), user.ID, req)
	if err != nil {
		if errors.Is(err, app.ErrWrongPassword) {
			s.audit(r, "api.password.change", "fail", "user_id", user.ID)
		}
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleUploadFile(w http.ResponseWriter, r *http.Request, _ domain.User) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "invalid form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, "file is required (field: file)")
		return
	}
	defer file.Close()
	stored, err := s.app.UploadFile(r.Context(), header.Filename, file, header.Size)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleListProviders(w http.ResponseWriter, r *http.Request, _ domain.User) {
	providers, err := s.app.ListProviders(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, providers)
}

// appointments
func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request, user domain.User) {
	var req app.CreateAppointmentInput
	if !decodeJSON(w, r, &req) {
		return
	}
	appt, err := s.app.CreateAppointment(r.Context(), user.ID, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request, user domain.User) {
	page := 1
	if raw := strings.TrimSpace(r.URL.Query().Get("page")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeAppError(w, r, app.ErrValidationFails)
			return
		}
		page = n
	}
	items, err := s.app.ListAppointments(r.Context(), user.ID, page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleCancelAppointment(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := pathID(r)
	if !ok {
		writeAppError(w, r, app.ErrAppointmentNotFound)
		return
	}
	appt, err := s.app.CancelAppointment(r.Context(), id, user.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

// notifications
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request, user domain.User) {
	items, err := s.app.ListNotifications(r.Context(), user.ID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleMarkNotificationRead(w http.ResponseWriter, r *http.Request, user domain.User) {
	id, ok := pathID(r)
	if !ok {
		writeAppError(w, r, app.ErrNotificationNotFound)
		return
	}
	n, err := s.app.MarkNotificationRead(r.Context(), user.ID, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst); err != nil {
		writeError(w, r, http.StatusBadRequest, codeValidation, app.ErrValidationFails.Message)
		return false
	}
	return true
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if token == "" {
		return "", false
	}
	return token, true
}

func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trustedProxies)
	logAttrs := []any{
		"event", event,
		"outcome", outcome,
		"path", r.URL.Path,
		"method", r.Method,
		"ip", ip,
	}
	logAttrs = append(logAttrs, attrs...)
	logger := util.LoggerFromContext(r.Context())
	if outcome == "success" {
		logger.Info("security_event", logAttrs...)
		return
	}
	logger.Warn("security_event", logAttrs...)

	result, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alert counter failed", "event", event, "err", err)
		return
	}
	if result.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", result.Count,
			"window", result.Window.String(),
		)
	}
}

func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, msg string) bool {
	key := r.URL.Path + "|" + util.ClientIP(r, s.trustedProxies)
	decision := limiter.Allow(r.Context(), key)
	if decision.Allowed {
		return true
	}
	retry := int(math.Ceil(decision.RetryAfter.Seconds()))
	if retry < 1 {
		retry = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(retry))
	writeError(w, r, http.StatusTooManyRequests, codeRateLimited, msg)
	return false
}

func normalizeMaxBytes(value int64) int64 {
	if value <= 0 {
		return 5 * 1024 * 1024
	}
	return value
}
