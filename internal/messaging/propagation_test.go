package messaging

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haventools/premises-manage/core/internal/principal"
)

func TestInjectExtract_ActorRoundTrip(t *testing.T) {
	actor := principal.NewActor("act-1", "prem-1", "role-1", "acc-1", principal.AccountTypeUser)
	ctx := principal.WithPrincipal(context.Background(), actor)
	ctx = principal.WithTraceID(ctx, "trace-123")

	headers := map[string]string{}
	require.NoError(t, Inject(ctx, headers))

	assert.Equal(t, "trace-123", headers[HeaderTraceID])
	assert.NotEmpty(t, headers[HeaderActor])
	assert.Empty(t, headers[HeaderAccount])

	got, err := Extract(context.Background(), headers)
	require.NoError(t, err)

	p, ok := principal.FromContext(got)
	require.True(t, ok)
	assert.Equal(t, actor, p)

	traceID, ok := principal.TraceIDFromContext(got)
	require.True(t, ok)
	assert.Equal(t, "trace-123", traceID)
}

func TestInjectExtract_AccountRoundTrip(t *testing.T) {
	account := principal.NewAccount("acc-1", principal.AccountTypeUser)
	ctx := principal.WithPrincipal(context.Background(), account)

	headers := map[string]string{}
	require.NoError(t, Inject(ctx, headers))

	assert.NotEmpty(t, headers[HeaderAccount])
	assert.Empty(t, headers[HeaderActor])

	got, err := Extract(context.Background(), headers)
	require.NoError(t, err)

	p, ok := principal.FromContext(got)
	require.True(t, ok)
	assert.Equal(t, account, p)
}

func TestInject_GeneratesMissingTraceID(t *testing.T) {
	headers := map[string]string{}
	require.NoError(t, Inject(context.Background(), headers))
	assert.NotEmpty(t, headers[HeaderTraceID], "every message must be correlatable")
}

func TestInject_InternalPrincipalStaysLocal(t *testing.T) {
	ctx := principal.WithPrincipal(context.Background(), principal.NewInternal("svc-1"))

	headers := map[string]string{}
	require.NoError(t, Inject(ctx, headers))

	assert.Empty(t, headers[HeaderActor])
	assert.Empty(t, headers[HeaderAccount])
}

func TestExtract_RequiresTraceID(t *testing.T) {
	_, err := Extract(context.Background(), map[string]string{})
	assert.Error(t, err)
}

func TestExtract_RejectsMalformedPrincipal(t *testing.T) {
	headers := map[string]string{
		HeaderTraceID: "trace-123",
		HeaderActor:   "not-base64-json",
	}
	_, err := Extract(context.Background(), headers)
	assert.Error(t, err)
}

func TestRequirePrincipal(t *testing.T) {
	var ran bool
	h := RequirePrincipal(func(ctx context.Context, payload []byte) error {
		ran = true
		return nil
	})

	err := h(context.Background(), []byte("{}"))
	assert.Error(t, err, "message without a principal must fail, not run anonymously")
	assert.False(t, ran)

	ctx := principal.WithPrincipal(context.Background(),
		principal.NewActor("act-1", "prem-1", "role-1", "acc-1", principal.AccountTypeUser))
	require.NoError(t, h(ctx, []byte("{}")))
	assert.True(t, ran)
}

func TestRequirePrincipal_PropagatesHandlerError(t *testing.T) {
	sentinel := errors.New("handler failed")
	h := RequirePrincipal(func(context.Context, []byte) error { return sentinel })

	ctx := principal.WithPrincipal(context.Background(), principal.NewInternal("svc-1"))
	assert.ErrorIs(t, h(ctx, nil), sentinel)
}
