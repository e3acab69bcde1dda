package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/JakeFAU/task-priority-api/internal/config"
	"github.com/JakeFAU/task-priority-api/internal/logging"
	"github.com/JakeFAU/task-priority-api/internal/metrics"
	"github.com/JakeFAU/task-priority-api/internal/policy/ratelimit"
	"github.com/JakeFAU/task-priority-api/internal/priority"
	"github.com/JakeFAU/task-priority-api/internal/telemetry"
)

// LivenessMessage is the body of GET /.
const LivenessMessage = "Priority Prediction API is running"

// Fixed client-facing error messages.
const (
	msgInvalidJSON      = "invalid JSON"
	msgPredictionFailed = "Prediction failed"
	msgModelNotLoaded   = "model not loaded"
)

// Predictor is the inference dependency behind POST /predict.
type Predictor interface {
	Predict(ctx context.Context, req priority.Request) (priority.Prediction, error)
	Info() priority.ModelInfo
}

// Server wires HTTP handlers to the predictor.
type Server struct {
	router    chi.Router
	predictor Predictor
	cfg       config.Config
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes. predictor may be
// nil when the model failed to load; liveness keeps answering and
// predictions fail with 500.
func NewServer(predictor Predictor, limiter *ratelimit.Limiter, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		predictor: predictor,
		cfg:       cfg,
		logger:    logger,
	}
	r := chi.NewRouter()
	if cfg.Telemetry.TracingEnabled {
		r.Use(telemetry.Middleware)
	}
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	if cfg.CORS.Enabled {
		r.Use(corsMiddleware(cfg.CORS))
	}
	r.Use(ratelimit.Middleware(limiter, logger))
	if cfg.Server.RequestTimeout > 0 {
		r.Use(timeoutMiddleware(cfg.Server.RequestTimeout))
	}

	r.Get("/", s.index)
	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/predict", s.predict)
		r.Get("/v1/model", s.modelInfo)
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) index(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(LivenessMessage))
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.predictor == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": msgModelNotLoaded})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) modelInfo(w http.ResponseWriter, _ *http.Request) {
	if s.predictor == nil {
		writeError(w, http.StatusServiceUnavailable, msgModelNotLoaded)
		return
	}
	writeJSON(w, http.StatusOK, s.predictor.Info())
}

func (s *Server) predict(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), s.logger)

	body := r.Body
	if s.cfg.Server.MaxBodyBytes > 0 {
		body = http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)
	}
	var req priority.Request
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, msgInvalidJSON)
		return
	}

	if s.predictor == nil {
		metrics.ObservePredictionFailure("model")
		logger.Error("prediction requested but model is not loaded")
		writeError(w, http.StatusInternalServerError, msgPredictionFailed)
		return
	}

	prediction, err := s.predictor.Predict(r.Context(), req)
	if err != nil {
		var inputErr *priority.InputError
		switch {
		case errors.As(err, &inputErr):
			writeError(w, http.StatusBadRequest, inputErr.Message)
		case errors.Is(err, priority.ErrInvalidInput):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			logger.Error("prediction failed", zap.Error(err))
			writeError(w, http.StatusInternalServerError, msgPredictionFailed)
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"priority": prediction.Priority})
}

var validRequestID = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// requestIDMiddleware reuses a well-formed incoming X-Request-ID, otherwise
// mints a UUID, and stores it on the context.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if !validRequestID.MatchString(reqID) {
			reqID = uuid.NewString()
		}
		ctx := logging.WithRequestID(r.Context(), reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			logger := base.With(zap.String("request_id", logging.RequestID(r.Context())))
			if traceID := telemetry.TraceID(r.Context()); traceID != "" {
				logger = logger.With(zap.String("trace_id", traceID))
			}
			ctx := logging.WithContext(r.Context(), logger)
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r.WithContext(ctx))
			logger.Info("request completed",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}

func recoverMiddleware(base *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logging.FromContext(r.Context(), base).Error("panic recovered", zap.Any("error", rec))
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

const msgTimedOut = `{"error":"request timed out"}`

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		h := http.TimeoutHandler(next, d, msgTimedOut)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h.ServeHTTP(&jsonDefaultWriter{ResponseWriter: w}, r)
		})
	}
}

// jsonDefaultWriter labels an untyped 503 as JSON. http.TimeoutHandler writes
// its timeout body straight to the writer without a Content-Type; on the
// normal path the handler's own headers are copied in first.
type jsonDefaultWriter struct {
	http.ResponseWriter
}

func (w *jsonDefaultWriter) WriteHeader(code int) {
	if code == http.StatusServiceUnavailable && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "application/json")
	}
	w.ResponseWriter.WriteHeader(code)
}

func corsMiddleware(cfg config.CORSConfig) func(http.Handler) http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   cfg.AllowedMethods,
		AllowedHeaders:   cfg.AllowedHeaders,
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: cfg.AllowCredentials,
		MaxAge:           cfg.MaxAge,
	})
	return c.Handler
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if subtle.ConstantTimeCompare([]byte(key), []byte(expected)) != 1 {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
