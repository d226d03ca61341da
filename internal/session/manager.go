package session

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/haventools/premises-manage/core/internal/autherr"
	"github.com/haventools/premises-manage/core/internal/credential"
	"github.com/haventools/premises-manage/core/internal/principal"
	"github.com/haventools/premises-manage/core/internal/token"
)

const defaultSessionTTL = 30 * 24 * time.Hour

// Manager orchestrates session creation, refresh rotation and revocation.
type Manager struct {
	store  Store
	tokens *token.Generator
	status StatusChecker
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewManager creates a Manager. ttl bounds the refresh window; zero applies
// the default.
func NewManager(store Store, tokens *token.Generator, status StatusChecker, ttl time.Duration, logger *slog.Logger) *Manager {
	if ttl == 0 {
		ttl = defaultSessionTTL
	}
	return &Manager{
		store:  store,
		tokens: tokens,
		status: status,
		ttl:    ttl,
		logger: logger,
		now:    time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (m *Manager) WithClock(now func() time.Time) *Manager {
	m.now = now
	return m
}

// Created is the result of Create and Refresh: the stored session plus the
// plaintext refresh token, which is returned to the client exactly once.
type Created struct {
	Session      Session
	RefreshToken string
}

// Create opens a session for p after successful authentication. For actor
// principals it first asserts the underlying account is active. The refresh
// token is minted here; only its hash is stored.
func (m *Manager) Create(ctx context.Context, p principal.Principal) (Created, error) {
	if err := p.Validate(); err != nil {
		return Created{}, autherr.Wrap(autherr.CodeBadRequest, "invalid principal", err)
	}

	if p.Kind == principal.KindActor {
		active, err := m.status.AccountActive(ctx, p.AccountID)
		if err != nil {
			return Created{}, fmt.Errorf("check account state: %w", err)
		}
		if !active {
			return Created{}, autherr.New(autherr.CodeInvalidState, "account is not active")
		}
	}

	accessToken, _, err := m.tokens.GenerateAccess(p)
	if err != nil {
		return Created{}, fmt.Errorf("create session: %w", err)
	}

	refreshToken, err := token.NewRefreshToken()
	if err != nil {
		return Created{}, fmt.Errorf("create session: %w", err)
	}

	now := m.now()
	s := Session{
		ID:               ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		Principal:        p,
		AccessToken:      accessToken,
		RefreshTokenHash: credential.HashToken(refreshToken),
		IssuedAt:         now,
		ExpiresAt:        now.Add(m.ttl),
		Version:          1,
		State:            StateActive,
	}

	if err := m.store.Create(ctx, s); err != nil {
		return Created{}, fmt.Errorf("persist session: %w", err)
	}

	return Created{Session: s, RefreshToken: refreshToken}, nil
}

// Refresh rotates both tokens of an active session. The presented refresh
// token must match the stored hash; a mismatch is UnAuthorized and a
// security signal. Repeated mismatches warrant full revocation by the
// caller, not retry. Rotation is guarded by a version compare-and-swap: the
// loser of a concurrent refresh gets Conflict and the session keeps its
// pre-rotation state.
func (m *Manager) Refresh(ctx context.Context, sessionID, presentedRefresh string) (Created, error) {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return Created{}, err
	}

	now := m.now()
	if s.State != StateActive {
		return Created{}, autherr.New(autherr.CodeUnAuthorized, "session revoked")
	}
	if s.Expired(now) {
		return Created{}, autherr.New(autherr.CodeUnAuthorized, "session expired")
	}

	if !credential.VerifyTokenHash(presentedRefresh, s.RefreshTokenHash) {
		m.logger.Warn("refresh token mismatch, possible replay",
			"session_id", s.ID, "subject", s.Principal.Subject())
		return Created{}, autherr.New(autherr.CodeUnAuthorized, "refresh token mismatch")
	}

	accessToken, _, err := m.tokens.GenerateAccess(s.Principal)
	if err != nil {
		return Created{}, fmt.Errorf("refresh session: %w", err)
	}
	refreshToken, err := token.NewRefreshToken()
	if err != nil {
		return Created{}, fmt.Errorf("refresh session: %w", err)
	}

	rotated := s
	rotated.AccessToken = accessToken
	rotated.RefreshTokenHash = credential.HashToken(refreshToken)
	rotated.IssuedAt = now
	rotated.ExpiresAt = now.Add(m.ttl)
	rotated.Version = s.Version + 1

	if err := m.store.Swap(ctx, rotated, s.Version); err != nil {
		return Created{}, err
	}

	return Created{Session: rotated, RefreshToken: refreshToken}, nil
}

// Revoke terminates a session. Internal principals may revoke any session;
// every other caller only their own. Terminal: a revoked session never
// refreshes again.
func (m *Manager) Revoke(ctx context.Context, sessionID string, caller principal.Principal) error {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if caller.Kind != principal.KindInternal &&
		(caller.Kind != s.Principal.Kind || caller.Subject() != s.Principal.Subject()) {
		return autherr.New(autherr.CodeAccessDenied, "session belongs to a different principal")
	}
	return m.store.Revoke(ctx, sessionID)
}

// Validate checks an access token statelessly and returns the principal and
// remaining lifetime. The store is never consulted.
func (m *Manager) Validate(accessToken string) (principal.Principal, time.Duration, error) {
	p, expiresAt, err := m.tokens.ValidateAccess(accessToken)
	if err != nil {
		return principal.Principal{}, 0, autherr.Wrap(autherr.CodeUnAuthorized, "invalid or expired token", err)
	}
	return p, expiresAt.Sub(m.now()), nil
}

// SweepExpired deletes sessions past their expiry.
func (m *Manager) SweepExpired(ctx context.Context) (int64, error) {
	return m.store.DeleteExpired(ctx, m.now())
}
