package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"salonbook/internal/config"
	"salonbook/internal/domain"
	"salonbook/internal/logging"
	"salonbook/internal/metrics"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const requestIDHeader = "X-Request-ID"

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Bookings domain.BookingService
	Catalog  domain.CatalogService
	// Webhook receives chat updates; the route is not registered when nil.
	Webhook      http.Handler
	HealthChecks map[string]HealthCheck
}

// HTTPServer serves the booking mini-app, the chat webhook and admin exports.
type HTTPServer struct {
	cfg     config.APIConfig
	deps    Deps
	auth    *HTTPAuth
	handler http.Handler
	server  *http.Server
	logger  *zerolog.Logger
}

func NewHTTPServer(cfg config.APIConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	srv := &HTTPServer{cfg: cfg, deps: deps, logger: logger}
	srv.auth = NewHTTPAuth(cfg)

	router := httprouter.New()
	router.PanicHandler = srv.handlePanic
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowed = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	srv.route(router, http.MethodGet, "/", srv.handleIndex)
	srv.route(router, http.MethodGet, "/healthz", srv.handleHealth)
	srv.route(router, http.MethodGet, "/api/availability", srv.handleAvailability)
	srv.route(router, http.MethodPost, "/api/booking", srv.handleBooking)
	srv.route(router, http.MethodGet, "/api/technicians", srv.handleTechnicians)
	srv.route(router, http.MethodGet, "/api/services", srv.handleServices)
	srv.route(router, http.MethodGet, "/api/bookings/export", srv.auth.Require(permExportBookings, srv.handleExport))
	if deps.Webhook != nil {
		srv.route(router, http.MethodPost, "/webhook/telegram", deps.Webhook.ServeHTTP)
	}

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.CORS.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", srv.auth.Header(), requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         600,
	})

	srv.handler = srv.requestContext(corsHandler.Handler(srv.auth.Limit(router)))
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}
	return srv
}

// Handler exposes the full middleware chain, mostly for tests.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Serve runs on an existing listener.
func (s *HTTPServer) Serve(lis net.Listener) error {
	if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// route registers h under path and counts responses by path.
func (s *HTTPServer) route(router *httprouter.Router, method, path string, h http.HandlerFunc) {
	router.Handler(method, path, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(recorder, r)
		metrics.IncHTTP(path, recorder.status)
	}))
}

// requestContext tags each request with an id and a request-scoped logger.
func (s *HTTPServer) requestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		ctx := logging.WithRequestID(r.Context(), s.logger, requestID)
		r = r.WithContext(ctx)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		logging.FromContext(ctx, s.logger).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

func (s *HTTPServer) handlePanic(w http.ResponseWriter, r *http.Request, rec interface{}) {
	logging.FromContext(r.Context(), s.logger).Error().Interface("panic", rec).Str("path", r.URL.Path).Msg("Recovered from panic in http handler")
	writeError(w, http.StatusInternalServerError, "Internal Server Error")
}

type apiResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	BookingID string `json:"bookingId,omitempty"`
	Notified  *bool  `json:"notified,omitempty"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, apiResponse{Success: false, Message: message})
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrSlotConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func messageForError(err error) string {
	switch statusForError(err) {
	case http.StatusBadRequest:
		return err.Error()
	case http.StatusConflict:
		return "The selected time slot is already booked."
	default:
		return "Internal Server Error"
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(status int) {
	if !r.wroteHeader {
		r.status = status
		r.wroteHeader = true
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	r.wroteHeader = true
	return r.ResponseWriter.Write(b)
}
