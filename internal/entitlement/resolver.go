package entitlement

import (
	"context"
	"fmt"

	"github.com/haventools/premises-manage/core/internal/autherr"
	"github.com/haventools/premises-manage/core/internal/principal"
)

// Authority fetches entitlement rows from the identity service.
type Authority interface {
	Entitlements(ctx context.Context, premisesID, roleID string, resourceType ResourceType, action ActionType) ([]Entitlement, error)
}

// Resolver turns a principal's entitlement rows into a Resources view.
// It is stateless; independent lookups for different resource types may be
// issued concurrently by callers.
type Resolver struct {
	authority Authority
}

// NewResolver creates a Resolver backed by the given authority.
func NewResolver(authority Authority) *Resolver {
	return &Resolver{authority: authority}
}

// Resolve fetches and partitions the active entitlements for an actor
// principal. Only actor principals own premises-scoped entitlements; any
// other variant is a caller bug, not a denial.
//
// Partitioning rules, deny-overrides-allow:
//   - wildcard allow promotes the selector to ALL
//   - concrete allows accumulate into AllowedIDs
//   - concrete denies accumulate into DeniedIDs and apply under any selector
//   - a wildcard deny permits nothing, regardless of allows
//
// If the authority call fails the resolver fails closed: an error, never an
// empty-but-successful view a caller could mistake for "no restriction".
func (r *Resolver) Resolve(ctx context.Context, p principal.Principal, resourceType ResourceType, action ActionType) (Resources, error) {
	if p.Kind != principal.KindActor {
		return Resources{}, autherr.Wrap(autherr.CodeBadRequest,
			"entitlements can only be resolved for actor principals",
			fmt.Errorf("got principal kind %q", p.Kind))
	}

	rows, err := r.authority.Entitlements(ctx, p.PremisesID, p.RoleID, resourceType, action)
	if err != nil {
		return Resources{}, fmt.Errorf("fetch entitlements for premises %s role %s: %w", p.PremisesID, p.RoleID, err)
	}

	res := Resources{
		PremisesID:   p.PremisesID,
		ResourceType: resourceType,
		Action:       action,
		Selector:     SelectorSpecific,
		AllowedIDs:   make(map[string]struct{}),
		DeniedIDs:    make(map[string]struct{}),
	}

	denyAll := false
	for _, e := range rows {
		if e.Status != StatusActive {
			continue
		}
		if e.ResourceType != resourceType || e.Action != action {
			continue
		}
		switch e.Effect {
		case EffectDeny:
			if e.ResourceID == ResourceAll {
				denyAll = true
				continue
			}
			res.DeniedIDs[e.ResourceID] = struct{}{}
		case EffectAllow:
			if e.ResourceID == ResourceAll {
				res.Selector = SelectorAll
				continue
			}
			res.AllowedIDs[e.ResourceID] = struct{}{}
		}
	}

	if denyAll {
		// Everything denied: an unsatisfiable SPECIFIC view.
		res.Selector = SelectorSpecific
		res.AllowedIDs = make(map[string]struct{})
		res.DeniedIDs = make(map[string]struct{})
	}

	return res, nil
}
