package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haventools/premises-manage/core/internal/autherr"
	"github.com/haventools/premises-manage/core/internal/credential"
	"github.com/haventools/premises-manage/core/internal/principal"
	"github.com/haventools/premises-manage/core/internal/session"
	"github.com/haventools/premises-manage/core/internal/token"
)

type fakeAuthenticator struct {
	principal principal.Principal
	err       error
}

func (f *fakeAuthenticator) Authenticate(context.Context, Credentials) (principal.Principal, error) {
	return f.principal, f.err
}

type activeStatus struct{}

func (activeStatus) AccountActive(context.Context, string) (bool, error) { return true, nil }

type capturedEvent struct {
	topic   string
	payload []byte
	subject string
	traceID string
}

// fakePublisher records published events along with the identity attached to
// the publishing context.
type fakePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (f *fakePublisher) Publish(ctx context.Context, topic string, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var subject string
	if p, ok := principal.FromContext(ctx); ok {
		subject = p.Subject()
	}
	traceID, _ := principal.TraceIDFromContext(ctx)
	f.events = append(f.events, capturedEvent{topic: topic, payload: payload, subject: subject, traceID: traceID})
	return nil
}

func (f *fakePublisher) captured() []capturedEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]capturedEvent(nil), f.events...)
}

func testActor() principal.Principal {
	return principal.NewActor("act-1", "prem-1", "role-1", "acc-1", principal.AccountTypeUser)
}

func newTestServer(t *testing.T, auth Authenticator, events EventPublisher) (*httptest.Server, *session.Manager) {
	t.Helper()
	gen := token.NewGenerator(token.Config{
		Secret:    []byte("api-test-secret"),
		AccessTTL: 15 * time.Minute,
		Issuer:    "test",
	})
	manager := session.NewManager(session.NewMemoryStore(), gen, activeStatus{}, time.Hour, slog.New(slog.DiscardHandler))

	machines := credential.NewMachineService(credential.NewMemoryMachineStore())
	require.NoError(t, machines.Register(context.Background(), "svc-1", "svc-secret"))

	srv := NewServer(manager, auth, slog.New(slog.DiscardHandler)).WithMachines(machines)
	if events != nil {
		srv = srv.WithEvents(events)
	}
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, manager
}

func serviceLogin(t *testing.T, ts *httptest.Server, serviceID, secret string) *http.Response {
	t.Helper()
	return postJSON(t, ts.URL+"/sessions/service", machineCredentials{ServiceID: serviceID, Secret: secret})
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func decodeSession(t *testing.T, resp *http.Response) sessionResponse {
	t.Helper()
	defer resp.Body.Close()
	var out sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func decodeError(t *testing.T, resp *http.Response) errorBody {
	t.Helper()
	defer resp.Body.Close()
	var out errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func login(t *testing.T, ts *httptest.Server) sessionResponse {
	t.Helper()
	resp := postJSON(t, ts.URL+"/sessions", Credentials{Email: "a@example.com", Secret: "pw", PremisesID: "prem-1"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decodeSession(t, resp)
}

func TestCreateSession(t *testing.T) {
	events := &fakePublisher{}
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, events)

	created := login(t, ts)
	assert.NotEmpty(t, created.SessionID)
	assert.NotEmpty(t, created.AccessToken)
	assert.NotEmpty(t, created.RefreshToken)
	assert.Equal(t, int32(1), created.Version)

	got := events.captured()
	require.Len(t, got, 1)
	assert.Equal(t, "premises/core/sessions/created", got[0].topic)
	assert.Equal(t, testActor().Subject(), got[0].subject, "publishing context carries the principal")
	assert.NotEmpty(t, got[0].traceID)
}

func TestCreateSession_BadCredentials(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAuthenticator{err: autherr.New(autherr.CodeUnAuthorized, "invalid credentials")}, nil)

	resp := postJSON(t, ts.URL+"/sessions", Credentials{Email: "a@example.com", Secret: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	body := decodeError(t, resp)
	assert.Equal(t, "UnAuthorized", body.ErrorCode)
	assert.Equal(t, "invalid credentials", body.Message)
}

func TestCreateSession_MissingFields(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, nil)

	resp := postJSON(t, ts.URL+"/sessions", Credentials{Email: "a@example.com"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "BadRequest", decodeError(t, resp).ErrorCode)
}

func TestRefreshSession(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, nil)
	created := login(t, ts)

	resp := postJSON(t, ts.URL+"/sessions/refresh", refreshRequest{
		SessionID: created.SessionID, RefreshToken: created.RefreshToken})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	refreshed := decodeSession(t, resp)
	assert.Equal(t, created.SessionID, refreshed.SessionID)
	assert.NotEqual(t, created.AccessToken, refreshed.AccessToken)
	assert.NotEqual(t, created.RefreshToken, refreshed.RefreshToken)
	assert.Equal(t, created.Version+1, refreshed.Version)

	// The pre-rotation refresh token is spent.
	resp = postJSON(t, ts.URL+"/sessions/refresh", refreshRequest{
		SessionID: created.SessionID, RefreshToken: created.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UnAuthorized", decodeError(t, resp).ErrorCode)
}

func TestRefreshSession_UnknownSession(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, nil)

	resp := postJSON(t, ts.URL+"/sessions/refresh", refreshRequest{SessionID: "missing", RefreshToken: "tok"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NotFound", decodeError(t, resp).ErrorCode)
}

func TestRevokeSession(t *testing.T) {
	events := &fakePublisher{}
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, events)
	created := login(t, ts)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+created.SessionID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+created.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	// The revoked session can no longer refresh.
	refreshResp := postJSON(t, ts.URL+"/sessions/refresh", refreshRequest{
		SessionID: created.SessionID, RefreshToken: created.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, refreshResp.StatusCode)
	refreshResp.Body.Close()

	got := events.captured()
	require.Len(t, got, 2)
	assert.Equal(t, "premises/core/sessions/revoked", got[1].topic)
}

func TestRevokeSession_RequiresAuth(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, nil)
	created := login(t, ts)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+created.SessionID, nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UnAuthorized", decodeError(t, resp).ErrorCode)

	req.Header.Set("Authorization", "Bearer garbage")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestValidateToken(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, nil)
	created := login(t, ts)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/tokens/validate", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+created.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out validateResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.True(t, out.IsValid)
	assert.Equal(t, testActor(), out.Principal)
	assert.Equal(t, principal.KindActor, out.PrincipalType)
	assert.Greater(t, out.ExpiresIn, int64(0))
}

func TestValidateToken_Invalid(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, nil)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/tokens/validate", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req.Header.Set("Authorization", "Bearer not-a-token")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UnAuthorized", decodeError(t, resp).ErrorCode)
}

func TestCreateServiceSession(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, nil)

	resp := serviceLogin(t, ts, "svc-1", "svc-secret")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	created := decodeSession(t, resp)
	assert.NotEmpty(t, created.AccessToken)
	assert.NotEmpty(t, created.RefreshToken)

	// The minted session carries the internal service principal.
	req, err := http.NewRequest(http.MethodGet, ts.URL+"/tokens/validate", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+created.AccessToken)
	validated, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer validated.Body.Close()

	var out validateResponse
	require.NoError(t, json.NewDecoder(validated.Body).Decode(&out))
	assert.Equal(t, principal.KindInternal, out.PrincipalType)
	assert.Equal(t, "svc-1", out.Principal.ServiceID)
}

func TestCreateServiceSession_BadSecret(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, nil)

	resp := serviceLogin(t, ts, "svc-1", "wrong-secret")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UnAuthorized", decodeError(t, resp).ErrorCode)

	// Unknown ids are indistinguishable from wrong secrets.
	resp = serviceLogin(t, ts, "never-registered", "whatever")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestMachineAdmin_InternalOnly(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, nil)

	// An actor session cannot register machine credentials.
	actorSession := login(t, ts)
	body, err := json.Marshal(machineCredentials{ServiceID: "svc-2", Secret: "new-secret"})
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, ts.URL+"/machines", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+actorSession.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "AccessDenied", decodeError(t, resp).ErrorCode)

	// A service session can, and the new credential logs in.
	svcResp := serviceLogin(t, ts, "svc-1", "svc-secret")
	require.Equal(t, http.StatusCreated, svcResp.StatusCode)
	svcSession := decodeSession(t, svcResp)

	req, err = http.NewRequest(http.MethodPost, ts.URL+"/machines", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+svcSession.AccessToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = serviceLogin(t, ts, "svc-2", "new-secret")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestMachineRotate(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, nil)

	svcResp := serviceLogin(t, ts, "svc-1", "svc-secret")
	require.Equal(t, http.StatusCreated, svcResp.StatusCode)
	svcSession := decodeSession(t, svcResp)

	body := []byte(`{"secret":"rotated-secret"}`)
	req, err := http.NewRequest(http.MethodPut, ts.URL+"/machines/svc-1", bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+svcSession.AccessToken)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = serviceLogin(t, ts, "svc-1", "svc-secret")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = serviceLogin(t, ts, "svc-1", "rotated-secret")
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
}

func TestRevokeSession_OtherPrincipalForbidden(t *testing.T) {
	ts, manager := newTestServer(t, &fakeAuthenticator{principal: testActor()}, nil)
	actorSession := login(t, ts)

	victim, err := manager.Create(context.Background(),
		principal.NewActor("act-2", "prem-1", "role-1", "acc-2", principal.AccountTypeUser))
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+victim.Session.ID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+actorSession.AccessToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "AccessDenied", decodeError(t, resp).ErrorCode)

	// The victim session is untouched and still refreshes.
	refreshResp := postJSON(t, ts.URL+"/sessions/refresh", refreshRequest{
		SessionID: victim.Session.ID, RefreshToken: victim.RefreshToken})
	assert.Equal(t, http.StatusOK, refreshResp.StatusCode)
	refreshResp.Body.Close()

	// An internal service session may revoke it.
	svcResp := serviceLogin(t, ts, "svc-1", "svc-secret")
	require.Equal(t, http.StatusCreated, svcResp.StatusCode)
	svcSession := decodeSession(t, svcResp)

	req, err = http.NewRequest(http.MethodDelete, ts.URL+"/sessions/"+victim.Session.ID, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+svcSession.AccessToken)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestTraceIDEchoed(t *testing.T) {
	ts, _ := newTestServer(t, &fakeAuthenticator{principal: testActor()}, nil)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/tokens/validate", nil)
	require.NoError(t, err)
	req.Header.Set("X-Trace-Id", "trace-abc")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "trace-abc", resp.Header.Get("X-Trace-Id"))

	// A missing inbound trace id is minted, not left blank.
	req.Header.Del("X-Trace-Id")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))
}
