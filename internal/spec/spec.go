// Package spec implements composable boolean specifications over domain
// aggregates. A Specification is an immutable predicate tree; combinators
// return new trees and never mutate operands. The same tree either filters
// in-memory candidates via IsSatisfiedBy or compiles to a storage query via
// a Translator, so list endpoints and loaded collections share one
// authorization filter.
package spec

import (
	"errors"
	"fmt"
)

// Specification is a pure predicate over candidates of type T.
type Specification[T any] interface {
	IsSatisfiedBy(candidate T) bool
}

// ErrUnsupportedSpecification is returned by translators for leaf types they
// do not recognize. Silently ignoring an authorization filter would be a
// security bug, so translation always fails loud.
var ErrUnsupportedSpecification = errors.New("unsupported specification")

// Translator compiles a Specification into a target query representation Q.
// Composite nodes map to the target's boolean operators; unknown leaves must
// return ErrUnsupportedSpecification.
type Translator[T any, Q any] interface {
	Translate(s Specification[T]) (Q, error)
}

// AndSpec is satisfied when every child is satisfied. With zero children it
// is satisfied by everything (the identity element of conjunction).
type AndSpec[T any] struct {
	Children []Specification[T]
}

func (s AndSpec[T]) IsSatisfiedBy(candidate T) bool {
	for _, c := range s.Children {
		if !c.IsSatisfiedBy(candidate) {
			return false
		}
	}
	return true
}

// OrSpec is satisfied when any child is satisfied. With zero children it is
// satisfied by nothing.
type OrSpec[T any] struct {
	Children []Specification[T]
}

func (s OrSpec[T]) IsSatisfiedBy(candidate T) bool {
	for _, c := range s.Children {
		if c.IsSatisfiedBy(candidate) {
			return true
		}
	}
	return false
}

// NotSpec negates its child.
type NotSpec[T any] struct {
	Child Specification[T]
}

func (s NotSpec[T]) IsSatisfiedBy(candidate T) bool {
	return !s.Child.IsSatisfiedBy(candidate)
}

// And combines specifications conjunctively.
func And[T any](children ...Specification[T]) Specification[T] {
	return AndSpec[T]{Children: children}
}

// Or combines specifications disjunctively.
func Or[T any](children ...Specification[T]) Specification[T] {
	return OrSpec[T]{Children: children}
}

// Not negates a specification.
func Not[T any](child Specification[T]) Specification[T] {
	return NotSpec[T]{Child: child}
}

// IDInSpec is satisfied when the candidate's id is in IDs. An empty set is
// unsatisfiable by definition: nothing allowed means nothing matches.
type IDInSpec[T any] struct {
	IDs map[string]struct{}
	Of  func(T) string
}

func (s IDInSpec[T]) IsSatisfiedBy(candidate T) bool {
	_, ok := s.IDs[s.Of(candidate)]
	return ok
}

// IDNotInSpec is satisfied when the candidate's id is not in IDs. An empty
// set is satisfied by everything.
type IDNotInSpec[T any] struct {
	IDs map[string]struct{}
	Of  func(T) string
}

func (s IDNotInSpec[T]) IsSatisfiedBy(candidate T) bool {
	_, ok := s.IDs[s.Of(candidate)]
	return !ok
}

// ByPremisesSpec is satisfied when the candidate belongs to PremisesID.
type ByPremisesSpec[T any] struct {
	PremisesID string
	Of         func(T) string
}

func (s ByPremisesSpec[T]) IsSatisfiedBy(candidate T) bool {
	return s.Of(candidate) == s.PremisesID
}

// IDIn builds a leaf matching candidates whose id is in ids.
func IDIn[T any](of func(T) string, ids map[string]struct{}) Specification[T] {
	return IDInSpec[T]{IDs: ids, Of: of}
}

// IDNotIn builds a leaf matching candidates whose id is not in ids.
func IDNotIn[T any](of func(T) string, ids map[string]struct{}) Specification[T] {
	return IDNotInSpec[T]{IDs: ids, Of: of}
}

// ByPremises builds a leaf matching candidates scoped to premisesID.
func ByPremises[T any](of func(T) string, premisesID string) Specification[T] {
	return ByPremisesSpec[T]{PremisesID: premisesID, Of: of}
}

// IDSet builds the set form used by the id leaves.
func IDSet(ids ...string) map[string]struct{} {
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// Filter evaluates s over candidates and returns the satisfying subset.
func Filter[T any](s Specification[T], candidates []T) []T {
	var out []T
	for _, c := range candidates {
		if s.IsSatisfiedBy(c) {
			out = append(out, c)
		}
	}
	return out
}

// Unsupported wraps ErrUnsupportedSpecification with the concrete node type,
// for translator default cases.
func Unsupported(node any) error {
	return fmt.Errorf("%w: %T", ErrUnsupportedSpecification, node)
}
