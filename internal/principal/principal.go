// Package principal models the authenticated identity behind a request.
//
// A Principal is one of three variants: an account not yet scoped to a
// premises, an actor operating inside one premises under one role, or a
// trusted internal service. Exactly one variant is active per request, and
// the variant determines which authorization path is legal: only actors own
// premises-scoped entitlements.
package principal

import (
	"encoding/json"
	"fmt"
)

// Kind discriminates the principal variants.
type Kind string

const (
	KindAccount  Kind = "account"
	KindActor    Kind = "actor"
	KindInternal Kind = "internal"
)

// AccountType distinguishes human accounts from machine accounts.
type AccountType string

const (
	AccountTypeUser    AccountType = "USER"
	AccountTypeMachine AccountType = "MACHINE"
)

// Principal is a tagged union over the three identity variants. Consumers
// must switch on Kind and handle every variant; the zero value is invalid.
type Principal struct {
	Kind Kind `json:"kind"`

	// Account and Actor variants.
	AccountID   string      `json:"accountId,omitempty"`
	AccountType AccountType `json:"accountType,omitempty"`

	// Actor variant only.
	ActorID    string `json:"actorId,omitempty"`
	PremisesID string `json:"premisesId,omitempty"`
	RoleID     string `json:"roleId,omitempty"`

	// Internal variant only.
	ServiceID string `json:"serviceId,omitempty"`
}

// NewAccount builds an account principal.
func NewAccount(accountID string, accountType AccountType) Principal {
	return Principal{Kind: KindAccount, AccountID: accountID, AccountType: accountType}
}

// NewActor builds an actor principal scoped to one premises and role.
func NewActor(actorID, premisesID, roleID, accountID string, accountType AccountType) Principal {
	return Principal{
		Kind:        KindActor,
		ActorID:     actorID,
		PremisesID:  premisesID,
		RoleID:      roleID,
		AccountID:   accountID,
		AccountType: accountType,
	}
}

// NewInternal builds a trusted service-to-service principal.
func NewInternal(serviceID string) Principal {
	return Principal{Kind: KindInternal, ServiceID: serviceID}
}

// IsZero reports whether p is the invalid zero value.
func (p Principal) IsZero() bool { return p.Kind == "" }

// Subject returns the identity string audit logs key on.
func (p Principal) Subject() string {
	switch p.Kind {
	case KindAccount:
		return p.AccountID
	case KindActor:
		return p.ActorID
	case KindInternal:
		return p.ServiceID
	default:
		return ""
	}
}

// Validate checks the variant invariants.
func (p Principal) Validate() error {
	switch p.Kind {
	case KindAccount:
		if p.AccountID == "" {
			return fmt.Errorf("account principal: missing accountId")
		}
	case KindActor:
		if p.ActorID == "" || p.PremisesID == "" || p.RoleID == "" || p.AccountID == "" {
			return fmt.Errorf("actor principal: actorId, premisesId, roleId and accountId are required")
		}
	case KindInternal:
		if p.ServiceID == "" {
			return fmt.Errorf("internal principal: missing serviceId")
		}
	default:
		return fmt.Errorf("unknown principal kind %q", p.Kind)
	}
	return nil
}

// Encode serializes p for token claims and message headers.
func Encode(p Principal) (string, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	b, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode principal: %w", err)
	}
	return string(b), nil
}

// Decode parses a serialized principal and validates its variant.
func Decode(s string) (Principal, error) {
	var p Principal
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return Principal{}, fmt.Errorf("decode principal: %w", err)
	}
	if err := p.Validate(); err != nil {
		return Principal{}, err
	}
	return p, nil
}
