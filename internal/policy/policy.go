// Package policy wraps the external policy decision service used for
// single-resource mutating actions that static entitlement sets cannot
// answer. The core's responsibility is to assemble the input
// deterministically and treat the response as binary; any failure to obtain
// a verdict is a deny.
package policy

import (
	"context"
	"sort"

	"github.com/haventools/premises-manage/core/internal/entitlement"
)

// Resource identifies the exact target of a policy decision.
type Resource struct {
	Type   entitlement.ResourceType `json:"type"`
	ID     string                   `json:"id"`
	Action entitlement.ActionType   `json:"action"`
}

// ResourceEntitlement is the entitlement projection the policy engine sees.
type ResourceEntitlement struct {
	ResourceType entitlement.ResourceType `json:"resource_type"`
	ResourceID   string                   `json:"resource_id"`
	Action       entitlement.ActionType   `json:"action"`
	Effect       entitlement.Effect       `json:"effect"`
}

// Input is the full policy evaluation input.
type Input struct {
	Resource     Resource              `json:"resource"`
	PremisesID   string                `json:"premises_id"`
	Entitlements []ResourceEntitlement `json:"entitlements"`
}

// Decider yields a binary authorization verdict for one resource action.
type Decider interface {
	Evaluate(ctx context.Context, input Input) (bool, error)
}

// BuildInput assembles a deterministic Input from the resolved entitlement
// rows. Rows are projected and sorted so that identical entitlement state
// always produces an identical input document.
func BuildInput(target Resource, premisesID string, rows []entitlement.Entitlement) Input {
	ents := make([]ResourceEntitlement, 0, len(rows))
	for _, e := range rows {
		if e.Status != entitlement.StatusActive {
			continue
		}
		ents = append(ents, ResourceEntitlement{
			ResourceType: e.ResourceType,
			ResourceID:   e.ResourceID,
			Action:       e.Action,
			Effect:       e.Effect,
		})
	}
	sort.Slice(ents, func(i, j int) bool {
		a, b := ents[i], ents[j]
		if a.ResourceType != b.ResourceType {
			return a.ResourceType < b.ResourceType
		}
		if a.ResourceID != b.ResourceID {
			return a.ResourceID < b.ResourceID
		}
		if a.Action != b.Action {
			return a.Action < b.Action
		}
		return a.Effect < b.Effect
	})

	return Input{Resource: target, PremisesID: premisesID, Entitlements: ents}
}
