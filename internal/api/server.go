// Package api exposes the session and token endpoints consumed by other
// services: login, refresh, logout and stateless token validation. Failures
// surface a stable {errorCode, message} body; internal causes stay in logs,
// correlated by trace id.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/haventools/premises-manage/core/internal/autherr"
	"github.com/haventools/premises-manage/core/internal/credential"
	"github.com/haventools/premises-manage/core/internal/obs"
	"github.com/haventools/premises-manage/core/internal/principal"
	"github.com/haventools/premises-manage/core/internal/session"
)

// Credentials is the login input.
type Credentials struct {
	Email      string `json:"email"`
	Secret     string `json:"secret"`
	PremisesID string `json:"premisesId,omitempty"`
}

// Authenticator verifies credentials against the identity service and
// returns the resolved principal. Account administration is out of scope
// here; this port is the only coupling.
type Authenticator interface {
	Authenticate(ctx context.Context, creds Credentials) (principal.Principal, error)
}

// EventPublisher publishes session lifecycle events across the message
// boundary with identity headers attached.
type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Server wires the HTTP surface.
type Server struct {
	sessions *session.Manager
	accounts Authenticator
	machines *credential.MachineService
	events   EventPublisher
	logger   *slog.Logger
}

// NewServer creates a Server.
func NewServer(sessions *session.Manager, accounts Authenticator, logger *slog.Logger) *Server {
	return &Server{sessions: sessions, accounts: accounts, logger: logger}
}

// WithEvents enables session lifecycle event publishing.
func (s *Server) WithEvents(events EventPublisher) *Server {
	s.events = events
	return s
}

// WithMachines enables service-to-service sessions backed by locally held
// machine credentials.
func (s *Server) WithMachines(machines *credential.MachineService) *Server {
	s.machines = machines
	return s
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID)
	r.Use(RequestLogger(s.logger))

	r.Get("/tokens/validate", s.handleValidateToken)
	r.Post("/sessions", s.handleCreateSession)
	r.Post("/sessions/service", s.handleCreateServiceSession)
	r.Post("/sessions/refresh", s.handleRefreshSession)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(s.sessions))
		r.Delete("/sessions/{id}", s.handleRevokeSession)
		r.Post("/machines", s.handleRegisterMachine)
		r.Put("/machines/{id}", s.handleRotateMachine)
	})

	r.Handle("/metrics", obs.Handler())
	return r
}

type errorBody struct {
	ErrorCode string `json:"errorCode"`
	Message   string `json:"message"`
}

// writeError maps taxonomy codes onto HTTP statuses. Unknown errors become
// an opaque 500; their cause is logged, never serialized.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var e *autherr.Error
	if !errors.As(err, &e) {
		traceID, _ := principal.TraceIDFromContext(r.Context())
		s.logger.Error("internal error", "trace_id", traceID, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorBody{ErrorCode: "Internal", Message: "internal error"})
		return
	}

	status := http.StatusInternalServerError
	switch e.Code {
	case autherr.CodeBadRequest:
		status = http.StatusBadRequest
	case autherr.CodeUnAuthorized:
		status = http.StatusUnauthorized
	case autherr.CodeAccessDenied, autherr.CodePolicyUnavailable, autherr.CodeInvalidState:
		status = http.StatusForbidden
	case autherr.CodeNotFound:
		status = http.StatusNotFound
	case autherr.CodeConflict, autherr.CodeDuplicateData:
		status = http.StatusConflict
	}

	traceID, _ := principal.TraceIDFromContext(r.Context())
	s.logger.Info("request failed", "trace_id", traceID, "error_code", e.Code, "error", err)
	writeJSON(w, status, errorBody{ErrorCode: string(e.Code), Message: e.Message})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
