// Package messaging carries the resolved principal and trace identity across
// asynchronous message boundaries. Once a message leaves the process there is
// no ambient context, so identity is serialized into message headers at
// publish time and rebuilt into a fresh context before the handler runs.
package messaging

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/haventools/premises-manage/core/internal/principal"
)

// Header names carried on every published event.
const (
	HeaderTraceID  = "x-trace-id"
	HeaderActor    = "Actor"
	HeaderAccount  = "Account"
	HeaderExchange = "exchange"
)

// Inject serializes the ambient trace id and principal into headers. A
// missing trace id is generated rather than dropped: every message must be
// correlatable. Internal principals are not propagated as Actor/Account
// headers; consumers treat internal-origin messages by topic trust.
func Inject(ctx context.Context, headers map[string]string) error {
	traceID, ok := principal.TraceIDFromContext(ctx)
	if !ok {
		traceID = uuid.NewString()
	}
	headers[HeaderTraceID] = traceID

	p, ok := principal.FromContext(ctx)
	if !ok {
		return nil
	}

	encoded, err := principal.Encode(p)
	if err != nil {
		return fmt.Errorf("inject principal header: %w", err)
	}
	switch p.Kind {
	case principal.KindActor:
		headers[HeaderActor] = encoded
	case principal.KindAccount:
		headers[HeaderAccount] = encoded
	case principal.KindInternal:
		// Service identity stays process-local.
	}
	return nil
}

// Extract rebuilds a request-scoped context from message headers. The trace
// id is required on every message; principal headers are optional here and
// enforced per-handler via RequirePrincipal.
func Extract(ctx context.Context, headers map[string]string) (context.Context, error) {
	traceID := headers[HeaderTraceID]
	if traceID == "" {
		return nil, fmt.Errorf("message missing required %s header", HeaderTraceID)
	}
	ctx = principal.WithTraceID(ctx, traceID)

	if encoded := headers[HeaderActor]; encoded != "" {
		p, err := principal.Decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid %s header: %w", HeaderActor, err)
		}
		return principal.WithPrincipal(ctx, p), nil
	}
	if encoded := headers[HeaderAccount]; encoded != "" {
		p, err := principal.Decode(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid %s header: %w", HeaderAccount, err)
		}
		return principal.WithPrincipal(ctx, p), nil
	}
	return ctx, nil
}

// HandlerFunc processes one consumed message under a rebuilt context.
// Returning an error fails the message and defers to the broker's
// redelivery policy.
type HandlerFunc func(ctx context.Context, payload []byte) error

// RequirePrincipal wraps a handler that must run under an authenticated
// principal. A message without one fails rather than executing with a
// synthesized placeholder identity.
func RequirePrincipal(h HandlerFunc) HandlerFunc {
	return func(ctx context.Context, payload []byte) error {
		if _, ok := principal.FromContext(ctx); !ok {
			return fmt.Errorf("message missing required principal header")
		}
		return h(ctx, payload)
	}
}
