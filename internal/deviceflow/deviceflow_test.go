package deviceflow

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/logging"
)

// fakeClock advances instantly on Sleep and records every interval.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
	// cancel, when set, is invoked during the first Sleep to simulate an
	// operator interrupt mid-wait.
	cancel context.CancelFunc
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	cancel := c.cancel
	c.cancel = nil
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// tokenScript serves a fixed sequence of token-endpoint responses.
type tokenScript struct {
	mu        sync.Mutex
	responses []string
	calls     int
}

func (s *tokenScript) next() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if len(s.responses) == 0 {
		return `{"error":"authorization_pending"}`
	}
	resp := s.responses[0]
	if len(s.responses) > 1 {
		s.responses = s.responses[1:]
	}
	return resp
}

func (s *tokenScript) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func testClient(t *testing.T, script *tokenScript, clock Clock) *Client {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/login/device/code", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "test-client", r.Form.Get("client_id"))
		fmt.Fprint(w, `{"device_code":"dev-123","user_code":"ABCD-1234","verification_uri":"https://example.com/activate","expires_in":900,"interval":5}`)
	})
	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "dev-123", r.Form.Get("device_code"))
		assert.Equal(t, grantType, r.Form.Get("grant_type"))
		fmt.Fprint(w, script.next())
	})
	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token tok-1", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"login":"octocat"}`)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return New(Config{
		ClientID:   "test-client",
		DeviceURL:  server.URL + "/login/device/code",
		TokenURL:   server.URL + "/login/oauth/access_token",
		UserURL:    server.URL + "/user",
		HTTPClient: server.Client(),
		Clock:      clock,
	}, logging.NewWithWriter(os.Stderr, false, true))
}

func TestStartParsesAuthorization(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	c := testClient(t, &tokenScript{}, clock)

	auth, err := c.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "dev-123", auth.DeviceCode)
	assert.Equal(t, "ABCD-1234", auth.UserCode)
	assert.Equal(t, "https://example.com/activate", auth.VerificationURI)
	assert.Equal(t, 5*time.Second, auth.Interval)
	assert.Equal(t, time.Unix(1900, 0), auth.ExpiresAt)
}

func TestWaitPendingThenApproved(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	script := &tokenScript{responses: []string{
		`{"error":"authorization_pending"}`,
		`{"error":"authorization_pending"}`,
		`{"access_token":"tok-1"}`,
	}}
	c := testClient(t, script, clock)

	token, err := c.Wait(context.Background(), &Authorization{
		DeviceCode: "dev-123",
		Interval:   5 * time.Second,
		ExpiresAt:  time.Unix(2000, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
	assert.Equal(t, 3, script.callCount(), "no token emitted while pending, exactly one on approval")
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, clock.sleeps,
		"sleeps exactly the poll interval between attempts")
}

func TestWaitSlowDownIncreasesInterval(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	script := &tokenScript{responses: []string{
		`{"error":"slow_down"}`,
		`{"error":"authorization_pending"}`,
		`{"access_token":"tok-1"}`,
	}}
	c := testClient(t, script, clock)

	_, err := c.Wait(context.Background(), &Authorization{
		DeviceCode: "dev-123",
		Interval:   5 * time.Second,
		ExpiresAt:  time.Unix(2000, 0),
	})
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{5 * time.Second, 10 * time.Second, 10 * time.Second}, clock.sleeps)
}

func TestWaitDenied(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	script := &tokenScript{responses: []string{`{"error":"access_denied"}`}}
	c := testClient(t, script, clock)

	_, err := c.Wait(context.Background(), &Authorization{
		DeviceCode: "dev-123",
		Interval:   5 * time.Second,
		ExpiresAt:  time.Unix(2000, 0),
	})

	var authErr gserrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, gserrors.AuthDenied, authErr.Reason)
}

func TestWaitExpiredToken(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	script := &tokenScript{responses: []string{`{"error":"expired_token"}`}}
	c := testClient(t, script, clock)

	_, err := c.Wait(context.Background(), &Authorization{
		DeviceCode: "dev-123",
		Interval:   5 * time.Second,
		ExpiresAt:  time.Unix(2000, 0),
	})

	var authErr gserrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, gserrors.AuthExpired, authErr.Reason)
	assert.Equal(t, 1, script.callCount(), "no polling after the terminal state")
}

func TestWaitDeadlineStopsPollingWithoutRequest(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(1000, 0)}
	script := &tokenScript{}
	c := testClient(t, script, clock)

	_, err := c.Wait(context.Background(), &Authorization{
		DeviceCode: "dev-123",
		Interval:   5 * time.Second,
		ExpiresAt:  time.Unix(999, 0), // already past
	})

	var authErr gserrors.AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, gserrors.AuthExpired, authErr.Reason)
	assert.Zero(t, script.callCount())
}

func TestWaitCancellation(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	clock := &fakeClock{now: time.Unix(1000, 0), cancel: cancel}
	script := &tokenScript{}
	c := testClient(t, script, clock)

	_, err := c.Wait(ctx, &Authorization{
		DeviceCode: "dev-123",
		Interval:   5 * time.Second,
		ExpiresAt:  time.Unix(2000, 0),
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, script.callCount(), "cancellation during the sleep never reaches the endpoint")
}

func TestUsername(t *testing.T) {
	t.Parallel()

	c := testClient(t, &tokenScript{}, &fakeClock{now: time.Unix(1000, 0)})
	login, err := c.Username(context.Background(), "tok-1")
	require.NoError(t, err)
	assert.Equal(t, "octocat", login)
}
