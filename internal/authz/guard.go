package authz

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/haventools/premises-manage/core/internal/autherr"
	"github.com/haventools/premises-manage/core/internal/entitlement"
	"github.com/haventools/premises-manage/core/internal/obs"
	"github.com/haventools/premises-manage/core/internal/policy"
	"github.com/haventools/premises-manage/core/internal/principal"
)

// Guard enforces authorization at the use-case boundary for single-resource
// mutating actions. It runs before the use-case body: on deny the body never
// executes and no side effect happens.
type Guard struct {
	authority entitlement.Authority
	decider   policy.Decider
	logger    *slog.Logger
}

// NewGuard creates a Guard.
func NewGuard(authority entitlement.Authority, decider policy.Decider, logger *slog.Logger) *Guard {
	return &Guard{authority: authority, decider: decider, logger: logger}
}

// Require checks that the ambient principal may perform target. It returns
// nil to allow, UnAuthorized when no principal is attached, and AccessDenied
// otherwise. Policy service outages deny for safety; the distinct cause goes
// to the log, never to the caller.
func (g *Guard) Require(ctx context.Context, target policy.Resource) error {
	p, ok := principal.FromContext(ctx)
	if !ok {
		obs.AuthzDecision("error")
		return autherr.New(autherr.CodeUnAuthorized, "no principal in context")
	}

	switch p.Kind {
	case principal.KindInternal:
		// Trusted service callers bypass entitlement resolution.
		obs.AuthzDecision("allow")
		return nil

	case principal.KindAccount:
		// Accounts are not premises-scoped and own no entitlements.
		obs.AuthzDecision("deny")
		return autherr.New(autherr.CodeAccessDenied, "account is not acting within a premises")

	case principal.KindActor:
		return g.requireActor(ctx, p, target)

	default:
		obs.AuthzDecision("error")
		return autherr.New(autherr.CodeAccessDenied, "unknown principal kind")
	}
}

func (g *Guard) requireActor(ctx context.Context, p principal.Principal, target policy.Resource) error {
	start := time.Now()
	rows, err := g.authority.Entitlements(ctx, p.PremisesID, p.RoleID, target.Type, target.Action)
	obs.ObserveEntitlementFetch(time.Since(start))
	if err != nil {
		// Fail closed: an unreachable authority is a deny, not a pass.
		obs.AuthzDecision("error")
		g.logger.Error("entitlement fetch failed, denying",
			"premises_id", p.PremisesID, "role_id", p.RoleID, "error", err)
		return autherr.Wrap(autherr.CodeAccessDenied, "permission denied", err)
	}

	input := policy.BuildInput(target, p.PremisesID, rows)
	allowed, err := g.decider.Evaluate(ctx, input)
	if err != nil {
		obs.AuthzDecision("error")
		if errors.Is(err, autherr.ErrPolicyUnavailable) {
			obs.PolicyFailure()
			g.logger.Error("policy evaluation unavailable, denying",
				"premises_id", p.PremisesID, "resource_id", target.ID, "error", err)
		} else {
			g.logger.Error("policy evaluation failed, denying",
				"premises_id", p.PremisesID, "resource_id", target.ID, "error", err)
		}
		return autherr.Wrap(autherr.CodeAccessDenied, "permission denied", err)
	}

	if !allowed {
		obs.AuthzDecision("deny")
		return autherr.New(autherr.CodeAccessDenied, "permission denied")
	}

	obs.AuthzDecision("allow")
	return nil
}

// Authorize wraps a use-case function with a Require check. target extracts
// the exact resource from the command. This replaces annotation-driven
// interception: the command and resolved principal travel as ordinary
// parameters, and authorization failures are never retried.
func Authorize[C any](g *Guard, target func(C) policy.Resource, next func(context.Context, C) error) func(context.Context, C) error {
	return func(ctx context.Context, cmd C) error {
		if err := g.Require(ctx, target(cmd)); err != nil {
			return err
		}
		return next(ctx, cmd)
	}
}
