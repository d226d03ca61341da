// Package entitlement resolves a principal's granted permissions into a
// request-scoped Resources view: an explicit allow-list, deny-list, or
// "all except denied" selector that downstream query builders consume.
package entitlement

// ActionType is the operation an entitlement covers.
type ActionType string

const (
	ActionRead    ActionType = "READ"
	ActionCreate  ActionType = "CREATE"
	ActionUpdate  ActionType = "UPDATE"
	ActionDelete  ActionType = "DELETE"
	ActionControl ActionType = "CONTROL"
)

// ResourceType is the aggregate kind an entitlement covers.
type ResourceType string

const (
	ResourceDevice     ResourceType = "DEVICE"
	ResourceZone       ResourceType = "ZONE"
	ResourceWidget     ResourceType = "WIDGET"
	ResourceAutomation ResourceType = "AUTOMATION"
)

// Status marks whether an entitlement row is in effect.
type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusInactive Status = "INACTIVE"
)

// Effect distinguishes positive grants from explicit negative grants.
type Effect string

const (
	EffectAllow Effect = "ALLOW"
	EffectDeny  Effect = "DENY"
)

// ResourceAll is the wildcard sentinel meaning "all resources of this type".
const ResourceAll = "*"

// Entitlement is one granted (or denied) permission row, owned by the
// identity authority and consumed read-only here.
type Entitlement struct {
	ID           string       `json:"entitlementId"`
	RoleID       string       `json:"roleId"`
	PremisesID   string       `json:"premisesId"`
	Action       ActionType   `json:"action"`
	ResourceType ResourceType `json:"resourceType"`
	ResourceID   string       `json:"resourceId"`
	Effect       Effect       `json:"effect"`
	Status       Status       `json:"status"`
}

// Selector describes how Resources scopes its id sets.
type Selector string

const (
	// SelectorAll means every resource of the type in the premises except
	// DeniedIDs.
	SelectorAll Selector = "ALL"
	// SelectorSpecific means only AllowedIDs, minus DeniedIDs. Empty
	// AllowedIDs under this selector permits nothing.
	SelectorSpecific Selector = "SPECIFIC"
)

// Resources is the resolved, request-scoped authorization view for one
// (premises, resourceType, action) triple. It is constructed fresh per
// request and never cached beyond it: entitlements can change between
// requests.
type Resources struct {
	PremisesID   string
	ResourceType ResourceType
	Action       ActionType
	Selector     Selector
	AllowedIDs   map[string]struct{}
	DeniedIDs    map[string]struct{}
}

// Permits reports whether a single resource id passes this view. Deny always
// wins over allow.
func (r Resources) Permits(id string) bool {
	if _, denied := r.DeniedIDs[id]; denied {
		return false
	}
	if r.Selector == SelectorAll {
		return true
	}
	_, allowed := r.AllowedIDs[id]
	return allowed
}
