// Package api exposes the reader, auth and admin HTTP interface.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/JakeFAU/rayin-translation/internal/admin"
	"github.com/JakeFAU/rayin-translation/internal/auth"
	"github.com/JakeFAU/rayin-translation/internal/home"
	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/logging"
	"github.com/JakeFAU/rayin-translation/internal/metrics"
	"github.com/JakeFAU/rayin-translation/internal/novelcache"
	"github.com/JakeFAU/rayin-translation/internal/policy/ratelimit"
	"github.com/JakeFAU/rayin-translation/internal/presets"
	"github.com/JakeFAU/rayin-translation/internal/source"
	"github.com/JakeFAU/rayin-translation/internal/telemetry"
	"github.com/JakeFAU/rayin-translation/internal/translate"
)

// Deps groups the components behind the routes. Nil components disable
// their routes' backing and yield 503.
type Deps struct {
	Novels     *novelcache.Cache
	Home       *home.Store
	Auth       *auth.Store
	Presets    *presets.Service
	Admin      *admin.Service
	Translator *translate.Translator
	Importer   *source.Importer
	Limiter    *ratelimit.Limiter
	// Ready reports whether downstream dependencies are reachable.
	Ready func(ctx context.Context) error
	// Frontend serves every path not claimed by the API.
	Frontend http.Handler
	Logger   *zap.Logger
}

// Options tunes the HTTP layer.
type Options struct {
	AllowedOrigins []string
	RequestTimeout time.Duration
	AuthTimeout    time.Duration
}

// Server wires HTTP handlers to the reader caches, auth store and admin tools.
type Server struct {
	router     chi.Router
	novels     *novelcache.Cache
	home       *home.Store
	auth       *auth.Store
	presets    *presets.Service
	admin      *admin.Service
	translator *translate.Translator
	importer   *source.Importer
	limiter    *ratelimit.Limiter
	ready      func(ctx context.Context) error
	opts       Options
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(d Deps, opts Options) *Server {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 60 * time.Second
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 5 * time.Second
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	logger := d.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		novels:     d.Novels,
		home:       d.Home,
		auth:       d.Auth,
		presets:    d.Presets,
		admin:      d.Admin,
		translator: d.Translator,
		importer:   d.Importer,
		limiter:    d.Limiter,
		ready:      d.Ready,
		opts:       opts,
		logger:     logging.For(logger, logging.CategorySystem).Named("http"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(opts.RequestTimeout))
			r.Get("/home", s.getHome)
			r.Route("/novels/{slug}", func(r chi.Router) {
				r.Get("/", s.getNovel)
				r.Post("/prefetch", s.prefetchNovel)
				r.Get("/chapters/{number}", s.getChapter)
				r.Post("/chapters/{number}/prefetch", s.prefetchChapter)
			})
			r.Route("/auth", func(r chi.Router) {
				r.Post("/signin", s.signIn)
				r.Post("/signup", s.signUp)
				r.Post("/refresh", s.refresh)
				r.Post("/signout", s.signOut)
				r.With(requireUser).Get("/me", s.me)
			})
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(requireSuperAdmin)
			// Streams outlive the request timeout.
			r.Post("/translate", s.translate)

			r.Group(func(r chi.Router) {
				r.Use(timeoutMiddleware(opts.RequestTimeout))
				r.Get("/novels", s.adminNovels)
				r.Get("/novels/{slug}", s.adminNovel)
				r.Put("/novels/{slug}/cover", s.uploadCover)
				r.Post("/chapters", s.createChapter)
				r.Get("/chapters/{id}", s.adminChapter)
				r.Put("/chapters/{id}", s.updateChapter)
				r.Delete("/chapters/{id}", s.deleteChapter)
				r.Get("/presets", s.listPresets)
				r.Post("/presets", s.savePreset)
				r.Post("/presets/reset", s.resetPreset)
				r.Delete("/presets/{id}", s.deletePreset)
				r.Post("/source", s.importSource)
			})
		})
	})

	if d.Frontend != nil {
		r.Handle("/*", d.Frontend)
	}

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.ready(ctx); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		fields := []zap.Field{
			zap.String("request_id", requestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		if traceID := telemetry.TraceID(r.Context()); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
		s.logger.Info("request completed", fields...)
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered",
					zap.Any("error", rec),
					zap.String("request_id", requestID(r.Context())),
					zap.Stack("stack"),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

// authMiddleware resolves the bearer token into an auth.State on the request
// context. Lookup failures leave the caller signed out.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" || s.auth == nil {
			next.ServeHTTP(w, r)
			return
		}
		state, err := auth.WithTimeout(r.Context(), s.opts.AuthTimeout, "Auth check",
			func(ctx context.Context) (auth.State, error) {
				return s.auth.CheckUser(ctx, token)
			})
		if err != nil {
			s.logger.Warn("auth check failed", zap.Error(err), zap.String("request_id", requestID(r.Context())))
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithState(r.Context(), state)))
	})
}

func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !auth.FromContext(r.Context()).SignedIn() {
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requireSuperAdmin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		state := auth.FromContext(r.Context())
		if !state.SignedIn() {
			writeError(w, http.StatusUnauthorized, "sign in required")
			return
		}
		if !state.IsSuperAdmin {
			writeError(w, http.StatusForbidden, "superadmin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "bearer "
	if len(h) <= len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

type requestIDKey struct{}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return library.Invalid("invalid JSON")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeErr maps domain errors to status codes. Unexpected errors are logged
// and reported without detail.
func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error, action string) {
	var (
		verr *library.ValidationError
		aerr *auth.APIError
	)
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Msg)
	case errors.Is(err, library.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, auth.ErrTimeout):
		writeError(w, http.StatusGatewayTimeout, err.Error())
	case errors.As(err, &aerr) && (errors.Is(err, library.ErrUnauthorized) || errors.Is(err, library.ErrValidation)):
		status := http.StatusUnauthorized
		if errors.Is(err, library.ErrValidation) {
			status = http.StatusBadRequest
		}
		writeError(w, status, aerr.Message)
	case errors.Is(err, library.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, library.ErrForbidden):
		writeError(w, http.StatusForbidden, "forbidden")
	case errors.Is(err, library.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, action+" timed out")
	default:
		s.logger.Error(action+" failed", zap.Error(err), zap.String("request_id", requestID(r.Context())))
		writeError(w, http.StatusInternalServerError, action+" failed")
	}
}

func unavailable(w http.ResponseWriter, what string) {
	writeError(w, http.StatusServiceUnavailable, what+" is not configured")
}
