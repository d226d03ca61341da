package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haventools/premises-manage/core/internal/autherr"
	"github.com/haventools/premises-manage/core/internal/obs"
	"github.com/haventools/premises-manage/core/internal/principal"
)

type sessionResponse struct {
	SessionID    string    `json:"sessionId"`
	AccessToken  string    `json:"accessToken"`
	RefreshToken string    `json:"refreshToken"`
	ExpiresAt    time.Time `json:"expiresAt"`
	Version      int32     `json:"version"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var creds Credentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		s.writeError(w, r, autherr.Wrap(autherr.CodeBadRequest, "malformed login body", err))
		return
	}
	if creds.Email == "" || creds.Secret == "" {
		s.writeError(w, r, autherr.New(autherr.CodeBadRequest, "email and secret are required"))
		return
	}

	p, err := s.accounts.Authenticate(r.Context(), creds)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	created, err := s.sessions.Create(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publishEvent(principal.WithPrincipal(r.Context(), p), "premises/core/sessions/created", map[string]string{
		"sessionId": created.Session.ID,
		"subject":   p.Subject(),
	})

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:    created.Session.ID,
		AccessToken:  created.Session.AccessToken,
		RefreshToken: created.RefreshToken,
		ExpiresAt:    created.Session.ExpiresAt,
		Version:      created.Session.Version,
	})
}

// publishEvent is fire-and-forget: a broker outage must not fail the
// request. The principal and trace id travel in the message headers.
func (s *Server) publishEvent(ctx context.Context, topic string, body map[string]string) {
	if s.events == nil {
		return
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return
	}
	if err := s.events.Publish(ctx, topic, payload); err != nil {
		traceID, _ := principal.TraceIDFromContext(ctx)
		s.logger.Warn("publish session event failed", "topic", topic, "trace_id", traceID, "error", err)
	}
}

type refreshRequest struct {
	SessionID    string `json:"sessionId"`
	RefreshToken string `json:"refreshToken"`
}

func (s *Server) handleRefreshSession(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, autherr.Wrap(autherr.CodeBadRequest, "malformed refresh body", err))
		return
	}
	if req.SessionID == "" || req.RefreshToken == "" {
		s.writeError(w, r, autherr.New(autherr.CodeBadRequest, "sessionId and refreshToken are required"))
		return
	}

	created, err := s.sessions.Refresh(r.Context(), req.SessionID, req.RefreshToken)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionResponse{
		SessionID:    created.Session.ID,
		AccessToken:  created.Session.AccessToken,
		RefreshToken: created.RefreshToken,
		ExpiresAt:    created.Session.ExpiresAt,
		Version:      created.Session.Version,
	})
}

func (s *Server) handleRevokeSession(w http.ResponseWriter, r *http.Request) {
	caller, ok := principal.FromContext(r.Context())
	if !ok {
		s.writeError(w, r, autherr.New(autherr.CodeUnAuthorized, "missing authentication credentials"))
		return
	}

	id := chi.URLParam(r, "id")
	if err := s.sessions.Revoke(r.Context(), id, caller); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publishEvent(r.Context(), "premises/core/sessions/revoked", map[string]string{"sessionId": id})
	w.WriteHeader(http.StatusNoContent)
}

type machineCredentials struct {
	ServiceID string `json:"serviceId"`
	Secret    string `json:"secret"`
}

func (s *Server) handleCreateServiceSession(w http.ResponseWriter, r *http.Request) {
	if s.machines == nil {
		s.writeError(w, r, autherr.New(autherr.CodeNotFound, "service sessions are not enabled"))
		return
	}

	var creds machineCredentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		s.writeError(w, r, autherr.Wrap(autherr.CodeBadRequest, "malformed service login body", err))
		return
	}
	if creds.ServiceID == "" || creds.Secret == "" {
		s.writeError(w, r, autherr.New(autherr.CodeBadRequest, "serviceId and secret are required"))
		return
	}

	if err := s.machines.Verify(r.Context(), creds.ServiceID, creds.Secret); err != nil {
		s.writeError(w, r, err)
		return
	}

	p := principal.NewInternal(creds.ServiceID)
	created, err := s.sessions.Create(r.Context(), p)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	s.publishEvent(principal.WithPrincipal(r.Context(), p), "premises/core/sessions/created", map[string]string{
		"sessionId": created.Session.ID,
		"subject":   p.Subject(),
	})

	writeJSON(w, http.StatusCreated, sessionResponse{
		SessionID:    created.Session.ID,
		AccessToken:  created.Session.AccessToken,
		RefreshToken: created.RefreshToken,
		ExpiresAt:    created.Session.ExpiresAt,
		Version:      created.Session.Version,
	})
}

// requireInternal gates machine-credential administration to trusted service
// callers.
func (s *Server) requireInternal(w http.ResponseWriter, r *http.Request) bool {
	p, ok := principal.FromContext(r.Context())
	if !ok || p.Kind != principal.KindInternal {
		s.writeError(w, r, autherr.New(autherr.CodeAccessDenied, "machine credentials are managed by internal services only"))
		return false
	}
	return true
}

func (s *Server) handleRegisterMachine(w http.ResponseWriter, r *http.Request) {
	if s.machines == nil {
		s.writeError(w, r, autherr.New(autherr.CodeNotFound, "service sessions are not enabled"))
		return
	}
	if !s.requireInternal(w, r) {
		return
	}

	var creds machineCredentials
	if err := json.NewDecoder(r.Body).Decode(&creds); err != nil {
		s.writeError(w, r, autherr.Wrap(autherr.CodeBadRequest, "malformed machine credential body", err))
		return
	}

	if err := s.machines.Register(r.Context(), creds.ServiceID, creds.Secret); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) handleRotateMachine(w http.ResponseWriter, r *http.Request) {
	if s.machines == nil {
		s.writeError(w, r, autherr.New(autherr.CodeNotFound, "service sessions are not enabled"))
		return
	}
	if !s.requireInternal(w, r) {
		return
	}

	var body struct {
		Secret string `json:"secret"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.writeError(w, r, autherr.Wrap(autherr.CodeBadRequest, "malformed machine credential body", err))
		return
	}

	if err := s.machines.Rotate(r.Context(), chi.URLParam(r, "id"), body.Secret); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validateResponse struct {
	IsValid       bool                `json:"isValid"`
	Principal     principal.Principal `json:"principal"`
	PrincipalType principal.Kind      `json:"principalType"`
	ExpiresIn     int64               `json:"expiresIn"`
}

func (s *Server) handleValidateToken(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		obs.TokenValidation("invalid")
		s.writeError(w, r, autherr.New(autherr.CodeUnAuthorized, "missing authentication credentials"))
		return
	}

	p, expiresIn, err := s.sessions.Validate(token)
	if err != nil {
		obs.TokenValidation("invalid")
		s.writeError(w, r, err)
		return
	}

	obs.TokenValidation("valid")
	writeJSON(w, http.StatusOK, validateResponse{
		IsValid:       true,
		Principal:     p,
		PrincipalType: p.Kind,
		ExpiresIn:     int64(expiresIn.Seconds()),
	})
}
