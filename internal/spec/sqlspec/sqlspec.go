// Package sqlspec translates specifications into parameterized SQL WHERE
// clauses for the pgx-backed stores. Behavior matches in-memory evaluation
// exactly: a specification that matches nothing compiles to FALSE, never to
// an absent filter.
package sqlspec

import (
	"fmt"
	"sort"
	"strings"

	"github.com/haventools/premises-manage/core/internal/spec"
)

// Clause is a SQL boolean expression with positional arguments, numbered
// $1..$n from Offset+1.
type Clause struct {
	SQL  string
	Args []any
}

// Translator compiles Specification[T] trees into SQL clauses. IDColumn and
// PremisesColumn name the columns the id and premises leaves refer to.
type Translator[T any] struct {
	IDColumn       string
	PremisesColumn string

	// Offset shifts placeholder numbering when the clause is appended to a
	// query that already has arguments.
	Offset int
}

// Translate implements spec.Translator[T, Clause].
func (t Translator[T]) Translate(s spec.Specification[T]) (Clause, error) {
	b := &builder{next: t.Offset + 1}
	sql, err := t.walk(s, b)
	if err != nil {
		return Clause{}, err
	}
	return Clause{SQL: sql, Args: b.args}, nil
}

type builder struct {
	next int
	args []any
}

func (b *builder) bind(v any) string {
	p := fmt.Sprintf("$%d", b.next)
	b.next++
	b.args = append(b.args, v)
	return p
}

func (t Translator[T]) walk(s spec.Specification[T], b *builder) (string, error) {
	switch n := s.(type) {
	case spec.AndSpec[T]:
		if len(n.Children) == 0 {
			return "TRUE", nil
		}
		return t.join(n.Children, " AND ", b)

	case spec.OrSpec[T]:
		if len(n.Children) == 0 {
			return "FALSE", nil
		}
		return t.join(n.Children, " OR ", b)

	case spec.NotSpec[T]:
		inner, err := t.walk(n.Child, b)
		if err != nil {
			return "", err
		}
		return "NOT (" + inner + ")", nil

	case spec.IDInSpec[T]:
		if len(n.IDs) == 0 {
			return "FALSE", nil
		}
		return t.inList(t.IDColumn, n.IDs, false, b), nil

	case spec.IDNotInSpec[T]:
		if len(n.IDs) == 0 {
			return "TRUE", nil
		}
		return t.inList(t.IDColumn, n.IDs, true, b), nil

	case spec.ByPremisesSpec[T]:
		return t.PremisesColumn + " = " + b.bind(n.PremisesID), nil

	default:
		return "", spec.Unsupported(s)
	}
}

func (t Translator[T]) join(children []spec.Specification[T], sep string, b *builder) (string, error) {
	parts := make([]string, 0, len(children))
	for _, c := range children {
		part, err := t.walk(c, b)
		if err != nil {
			return "", err
		}
		parts = append(parts, "("+part+")")
	}
	return strings.Join(parts, sep), nil
}

func (t Translator[T]) inList(column string, ids map[string]struct{}, negate bool, b *builder) string {
	sorted := make([]string, 0, len(ids))
	for id := range ids {
		sorted = append(sorted, id)
	}
	sort.Strings(sorted)

	placeholders := make([]string, len(sorted))
	for i, id := range sorted {
		placeholders[i] = b.bind(id)
	}

	op := "IN"
	if negate {
		op = "NOT IN"
	}
	return fmt.Sprintf("%s %s (%s)", column, op, strings.Join(placeholders, ", "))
}
