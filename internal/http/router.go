// Package httpx maps the authentication service onto HTTP endpoints.
package httpx

import (
	"context"
	"errors"
	"mime/multipart"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mkarklins/voicegate/internal/service/auth"
)

// AuthService is the surface of the auth orchestrator the router depends on.
type AuthService interface {
	Signup(ctx context.Context, in auth.SignupInput) (*auth.SignupResult, error)
	Login(ctx context.Context, in auth.LoginInput) (*auth.LoginResult, error)
}

const (
	rateWindowDefault  = time.Minute
	rateLimitSignup    = 5
	rateLimitLogin     = 12
	healthCheckTimeout = 2 * time.Second
)

// Router wires HTTP endpoints to the auth service.
type Router struct {
	mux             *http.ServeMux
	logger          *slog.Logger
	auth            AuthService
	limiter         RateLimiter
	maxUploadBytes  int64
	corsAllowOrigin string
	dbHealth        func(context.Context) error

	metricsOnce        sync.Once
	metricsInitialized bool
	requestTotal       *prometheus.CounterVec
	requestLatency     *prometheus.HistogramVec
	rateLimitHits      *prometheus.CounterVec
}

// NewRouter assembles routes with dependencies. dbHealth may be nil when no
// database check is wanted (tests).
func NewRouter(logger *slog.Logger, authSvc AuthService, limiter RateLimiter, maxUploadBytes int64, corsAllowOrigin string, dbHealth func(context.Context) error) *Router {
	r := &Router{
		mux:             http.NewServeMux(),
		logger:          logger,
		auth:            authSvc,
		limiter:         limiter,
		maxUploadBytes:  maxUploadBytes,
		corsAllowOrigin: corsAllowOrigin,
		dbHealth:        dbHealth,
	}
	if r.limiter == nil {
		r.limiter = NewMemoryRateLimiter()
	}
	if r.maxUploadBytes <= 0 {
		r.maxUploadBytes = 16 << 20
	}
	r.initMetrics()
	r.register()
	return r
}

// ServeHTTP applies CORS headers and delegates to the underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.corsAllowOrigin != "" {
		headers := w.Header()
		headers.Set("Access-Control-Allow-Origin", r.corsAllowOrigin)
		headers.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		headers.Set("Access-Control-Allow-Headers", "Content-Type")
		if req.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
	}
	r.mux.ServeHTTP(w, req)
}

// Close releases background resources.
func (r *Router) Close() {
	if r.limiter != nil {
		r.limiter.Close()
	}
}

func (r *Router) register() {
	r.mux.HandleFunc("/signup", r.audit(r.withRateLimit("/signup", rateLimitSignup, rateWindowDefault, rateLimitKeyIP, r.handleSignup)))
	r.mux.HandleFunc("/login", r.audit(r.withRateLimit("/login", rateLimitLogin, rateWindowDefault, rateLimitKeyIP, r.handleLogin)))
	r.mux.HandleFunc("/health", r.audit(r.handleHealth))
	r.mux.HandleFunc("/metrics", promhttp.Handler().ServeHTTP)
}

// audioPart pulls the uploaded capture out of the multipart form. A missing
// file field is not an error here; the service reports it as MissingAudio.
func audioPart(req *http.Request) (multipart.File, string, error) {
	file, header, err := req.FormFile("audio")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, "", nil
		}
		return nil, "", err
	}
	return file, header.Filename, nil
}

func (r *Router) parseUpload(w http.ResponseWriter, req *http.Request) bool {
	req.Body = http.MaxBytesReader(w, req.Body, r.maxUploadBytes)
	if err := req.ParseMultipartForm(r.maxUploadBytes); err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return false
	}
	return true
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if !r.parseUpload(w, req) {
		return
	}
	file, filename, err := audioPart(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid audio upload")
		return
	}
	in := auth.SignupInput{
		Name:      req.FormValue("name"),
		Email:     req.FormValue("email"),
		Password:  req.FormValue("password"),
		AudioName: filename,
	}
	if file != nil {
		defer file.Close()
		in.Audio = file
	}
	res, err := r.auth.Signup(req.Context(), in)
	if err != nil {
		if errors.Is(err, auth.ErrMissingField) {
			writeError(w, http.StatusBadRequest, "Name, email and password are required")
			return
		}
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success":       true,
		"message":       "User registered successfully",
		"transcription": res.Transcription,
	})
}

func (r *Router) handleLogin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	if !r.parseUpload(w, req) {
		return
	}
	file, filename, err := audioPart(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid audio upload")
		return
	}
	in := auth.LoginInput{
		Email:     req.FormValue("email"),
		Password:  req.FormValue("password"),
		AudioName: filename,
	}
	if file != nil {
		defer file.Close()
		in.Audio = file
	}
	res, err := r.auth.Login(req.Context(), in)
	if err != nil {
		if errors.Is(err, auth.ErrMissingField) {
			writeError(w, http.StatusBadRequest, "Email and password are required")
			return
		}
		r.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    "Login successful",
		"user":       res.User,
		"similarity": res.Similarity,
	})
}

// writeServiceError maps service outcomes onto the error envelope. Unknown
// errors surface as a generic 500.
func (r *Router) writeServiceError(w http.ResponseWriter, err error) {
	var mismatch *auth.VoiceMismatchError
	switch {
	case errors.Is(err, auth.ErrMissingAudio):
		writeError(w, http.StatusBadRequest, "Audio file is required")
	case errors.Is(err, auth.ErrDuplicateEmail):
		writeError(w, http.StatusBadRequest, "User with this email already exists")
	case errors.Is(err, auth.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "User not found")
	case errors.Is(err, auth.ErrInvalidPassword):
		writeError(w, http.StatusUnauthorized, "Invalid password")
	case errors.Is(err, auth.ErrTranscriptionFailed):
		writeError(w, http.StatusInternalServerError, "Failed to transcribe audio")
	case errors.As(err, &mismatch):
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"success":    false,
			"error":      "Voice authentication failed",
			"similarity": mismatch.Similarity,
		})
	default:
		r.logger.Error("unexpected service error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "degraded",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (r *Router) audit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		start := time.Now()
		next(recorder, req)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		duration := time.Since(start)
		r.recordRequestMetrics(req.Method, req.URL.Path, status, duration)

		fields := []any{
			"method", req.Method,
			"path", req.URL.Path,
			"status", status,
			"bytes", recorder.bytes,
			"duration_ms", duration.Milliseconds(),
		}
		if ip := clientIP(req); ip != "" {
			fields = append(fields, "ip", ip)
		}
		if reqID := strings.TrimSpace(req.Header.Get("X-Request-ID")); reqID != "" {
			fields = append(fields, "request_id", reqID)
		}

		switch {
		case status >= http.StatusInternalServerError:
			r.logger.Error("http_request", fields...)
		case status >= http.StatusBadRequest:
			r.logger.Warn("http_request", fields...)
		default:
			r.logger.Info("http_request", fields...)
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += n
	return n, err
}

func clientIP(req *http.Request) string {
	if forwarded := strings.TrimSpace(req.Header.Get("X-Forwarded-For")); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			ip := strings.TrimSpace(parts[0])
			if ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(req.RemoteAddr))
	if err != nil {
		return strings.TrimSpace(req.RemoteAddr)
	}
	return host
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
