// Package authz builds authorized query specifications from resolved
// entitlement views and guards mutating use-cases with policy decisions.
package authz

import (
	"github.com/haventools/premises-manage/core/internal/entitlement"
	"github.com/haventools/premises-manage/core/internal/spec"
)

// Query turns a resolved Resources view into a specification over aggregate
// type A, identified by idOf.
//
//   - ALL      -> IDNotIn(denied)
//   - SPECIFIC -> IDIn(allowed) AND IDNotIn(denied)
//
// Empty allowed ids under SPECIFIC compile to a specification matching
// nothing; denied ids reject a candidate under either selector. Callers
// combine the result with domain filters via spec.And before handing it to a
// translator or evaluating it in memory.
func Query[A any](resources entitlement.Resources, idOf func(A) string) spec.Specification[A] {
	denied := spec.IDNotIn(idOf, resources.DeniedIDs)
	if resources.Selector == entitlement.SelectorAll {
		return denied
	}
	return spec.And(spec.IDIn(idOf, resources.AllowedIDs), denied)
}
