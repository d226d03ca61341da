package policy

import (
	"context"
	"fmt"

	"github.com/open-policy-agent/opa/rego"

	"github.com/haventools/premises-manage/core/internal/policy/policies"
)

// EmbeddedDecider evaluates decisions against Rego policies compiled into
// the binary. Used for single-binary deployments where no remote policy
// service exists.
type EmbeddedDecider struct {
	query rego.PreparedEvalQuery
}

// NewEmbeddedDecider compiles the embedded policies.
func NewEmbeddedDecider() (*EmbeddedDecider, error) {
	policyContent, err := policies.FS.ReadFile("authz.rego")
	if err != nil {
		return nil, fmt.Errorf("read policy file: %w", err)
	}

	query, err := rego.New(
		rego.Query("data.premises.authz.allow"),
		rego.Module("authz.rego", string(policyContent)),
	).PrepareForEval(context.Background())
	if err != nil {
		return nil, fmt.Errorf("prepare rego query: %w", err)
	}

	return &EmbeddedDecider{query: query}, nil
}

// Evaluate implements Decider.
func (d *EmbeddedDecider) Evaluate(ctx context.Context, input Input) (bool, error) {
	results, err := d.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, fmt.Errorf("evaluate policy: %w", err)
	}

	if len(results) == 0 {
		return false, nil
	}

	allowed, ok := results[0].Expressions[0].Value.(bool)
	if !ok {
		return false, fmt.Errorf("unexpected policy result type")
	}

	return allowed, nil
}
