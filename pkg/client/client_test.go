package client_test

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmerrifield20/menderapi/pkg/client"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_LoginWithPassword(t *testing.T) {
	s := newStubServer(t)

	c, err := client.New(context.Background(), s.URL, stubUser,
		client.WithCredentials(client.StaticPassword(stubPassword)),
	)
	require.NoError(t, err)

	token, origin := c.Token()
	assert.Equal(t, stubToken, token, "login body should be trimmed")
	assert.Equal(t, client.TokenFromLogin, origin)
	assert.EqualValues(t, 1, s.logins.Load())
	assert.EqualValues(t, 1, c.Calls())
	assert.True(t, s.basicSeen, "login must use HTTP Basic credentials")
}

func TestNew_LoginFailureIsAuthError(t *testing.T) {
	s := newStubServer(t)

	_, err := client.New(context.Background(), s.URL, stubUser,
		client.WithCredentials(client.StaticPassword("wrong")),
	)
	require.Error(t, err)

	var authErr *client.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.Equal(t, stubUser, authErr.Username)
	assert.EqualValues(t, 1, authErr.Calls, "the failed login still counts as a call")

	var statusErr *client.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnauthorized, statusErr.StatusCode)
}

func TestNew_LoginRequiresUsername(t *testing.T) {
	s := newStubServer(t)

	_, err := client.New(context.Background(), s.URL, "",
		client.WithCredentials(client.StaticPassword(stubPassword)),
	)
	var authErr *client.AuthError
	require.True(t, errors.As(err, &authErr))
	assert.EqualValues(t, 0, s.logins.Load())
}

func TestNew_TokenWinsOverPassword(t *testing.T) {
	s := newStubServer(t, device("a"))
	core, logs := observer.New(zap.WarnLevel)

	c, err := client.New(context.Background(), s.URL, stubUser,
		client.WithCredentials(client.StaticToken(stubToken, stubPassword)),
		client.WithLogger(zap.New(core)),
	)
	require.NoError(t, err)

	_, err = c.Devices(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 0, s.logins.Load(), "a supplied token must not trigger a login")
	assert.False(t, s.basicSeen, "the password must never be transmitted")
	assert.Equal(t, "Bearer "+stubToken, s.authHeader())
	assert.Equal(t, 1, logs.FilterMessageSnippet("ignoring the password").Len())

	_, origin := c.Token()
	assert.Equal(t, client.TokenSupplied, origin)
}

func TestNew_PromptRequiresTerminal(t *testing.T) {
	s := newStubServer(t)
	notATerminal, err := os.Create(filepath.Join(t.TempDir(), "stdin"))
	require.NoError(t, err)
	defer notATerminal.Close()

	_, err = client.New(context.Background(), s.URL, stubUser,
		client.WithCredentials(client.Prompt{In: notATerminal}),
	)
	require.ErrorIs(t, err, client.ErrNoTerminal)
	assert.EqualValues(t, 0, s.logins.Load())
}

func TestNew_ExpiredTokenWarns(t *testing.T) {
	s := newStubServer(t)
	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("test-key"))
	require.NoError(t, err)

	core, logs := observer.New(zap.WarnLevel)
	_, err = client.New(context.Background(), s.URL, stubUser,
		client.WithCredentials(client.StaticToken(expired, "")),
		client.WithLogger(zap.New(core)),
	)
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessageSnippet("expired").Len())
}

func TestCall_CounterCountsEveryAttempt(t *testing.T) {
	s := newStubServer(t, device("a"))
	c := newTokenClient(t, s)
	ctx := context.Background()

	_, err := c.Get(ctx, "management/v1/inventory/devices", nil, "")
	require.NoError(t, err)

	_, err = c.Get(ctx, "management/v1/does/not/exist", nil, "")
	var statusErr *client.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusNotFound, statusErr.StatusCode)

	_, err = c.Post(ctx, "management/v1/inventory/devices", nil, "")
	require.NoError(t, err, "stub accepts any method on the inventory path")

	assert.EqualValues(t, 3, c.Calls())

	// A server that is gone yields a transport error, still counted.
	dead := newStubServer(t)
	deadClient := newTokenClient(t, dead)
	dead.Close()

	_, err = deadClient.Get(ctx, "management/v1/inventory/devices", nil, "")
	var transportErr *client.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.EqualValues(t, 1, deadClient.Calls())
}

func TestCall_ServerErrorIsHTTPStatusError(t *testing.T) {
	s := newStubServer(t)
	s.failDevices = http.StatusInternalServerError
	c := newTokenClient(t, s)

	_, err := c.Devices(context.Background())
	var statusErr *client.HTTPStatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusInternalServerError, statusErr.StatusCode)
	assert.Contains(t, statusErr.Body, "boom")
}

func TestCall_Headers(t *testing.T) {
	s := newStubServer(t)
	c := newTokenClient(t, s)

	_, err := c.Get(context.Background(), "/management/v1/inventory/devices", nil, "text/plain")
	require.NoError(t, err)

	s.mu.Lock()
	defer s.mu.Unlock()
	assert.Equal(t, "text/plain", s.lastAccept)
	assert.Equal(t, "Bearer "+stubToken, s.lastAuth)
	_, err = uuid.Parse(s.lastReqID)
	assert.NoError(t, err, "request ID should be a UUID")
}

func TestCall_RateLimitHonoursContext(t *testing.T) {
	s := newStubServer(t)
	c := newTokenClient(t, s, client.WithRateLimit(0.001, 1))

	_, err := c.Get(context.Background(), "management/v1/inventory/devices", nil, "")
	require.NoError(t, err, "first call uses the burst")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.Get(ctx, "management/v1/inventory/devices", nil, "")
	var transportErr *client.TransportError
	require.True(t, errors.As(err, &transportErr))
	assert.ErrorIs(t, err, context.Canceled)
	assert.EqualValues(t, 2, c.Calls())
	assert.EqualValues(t, 1, s.inventories.Load())
}

func TestWithRateLimit_RejectsNonPositive(t *testing.T) {
	s := newStubServer(t)
	_, err := client.New(context.Background(), s.URL, stubUser,
		client.WithCredentials(client.StaticToken(stubToken, "")),
		client.WithRateLimit(0, 1),
	)
	assert.Error(t, err)
}

func TestStats_PerEndpoint(t *testing.T) {
	s := newStubServer(t)
	c, err := client.New(context.Background(), s.URL, stubUser,
		client.WithCredentials(client.StaticPassword(stubPassword)),
	)
	require.NoError(t, err)
	_, err = c.Devices(context.Background())
	require.NoError(t, err)

	stats, err := c.Stats()
	require.NoError(t, err)
	assert.Equal(t, []client.EndpointStat{
		{Method: http.MethodGet, Path: "management/v1/inventory/devices", Status: "200", Calls: 1},
		{Method: http.MethodPost, Path: "management/v1/useradm/auth/login", Status: "200", Calls: 1},
	}, stats)
}

func TestGatherer_ExposesCallMetrics(t *testing.T) {
	s := newStubServer(t)
	c := newTokenClient(t, s)
	_, err := c.Devices(context.Background())
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(c.Gatherer(), "mender_client_api_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
