// Package session owns the session aggregate and its lifecycle: creation on
// successful authentication, refresh-token rotation, explicit revocation and
// passive expiry. The session is the only long-lived mutable shared state in
// the core; every mutation goes through a compare-and-swap on Version.
package session

import (
	"context"
	"time"

	"github.com/haventools/premises-manage/core/internal/principal"
)

// State of a session. Refresh is not a state transition: a refreshed session
// stays Active with rotated tokens and a bumped version.
type State string

const (
	StateActive  State = "ACTIVE"
	StateRevoked State = "REVOKED"
)

// Session is the persisted session aggregate. RefreshTokenHash is the only
// stored form of the refresh token; the plaintext value exists solely in
// transit to the client.
type Session struct {
	ID               string
	Principal        principal.Principal
	AccessToken      string
	RefreshTokenHash string
	IssuedAt         time.Time
	ExpiresAt        time.Time
	Version          int32
	State            State
}

// Expired reports passive expiry at the given instant.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// Store persists sessions. Swap is a compare-and-swap: it writes the updated
// session only when the stored version still equals expectedVersion and
// returns Conflict otherwise, so two concurrent rotations can never both
// succeed. The access token and refresh-token hash always travel in the same
// write; a rotation either commits both or neither.
type Store interface {
	Create(ctx context.Context, s Session) error
	Get(ctx context.Context, id string) (Session, error)
	Swap(ctx context.Context, s Session, expectedVersion int32) error
	Revoke(ctx context.Context, id string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// StatusChecker reports whether the account behind an actor principal is in
// an active state. Account administration itself lives in the identity
// service.
type StatusChecker interface {
	AccountActive(ctx context.Context, accountID string) (bool, error)
}
