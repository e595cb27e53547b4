// Package deviceflow implements the OAuth2 Device Authorization Grant
// against GitHub. No local web server: the user enters a short code in a
// browser while this process polls the token endpoint.
package deviceflow

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	gserrors "github.com/systmms/gitshift/internal/errors"
	"github.com/systmms/gitshift/internal/logging"
)

const (
	defaultDeviceURL = "https://github.com/login/device/code"
	defaultTokenURL  = "https://github.com/login/oauth/access_token"
	defaultUserURL   = "https://api.github.com/user"

	// DefaultClientID is the registered OAuth app for this tool.
	DefaultClientID = "Ov23li6WaAMnOZW2RXsa"

	defaultScope = "repo read:user"
	grantType    = "urn:ietf:params:oauth:grant-type:device_code"

	// slowDownStep is added to the poll interval when the provider asks
	// us to back off.
	slowDownStep = 5 * time.Second
)

// Clock abstracts time so the polling loop can be driven by tests without
// real delays. Sleep returns early with the context error on cancellation.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Config customizes the client. Zero values select the GitHub endpoints,
// the default OAuth app and the real clock.
type Config struct {
	ClientID   string
	Scope      string
	DeviceURL  string
	TokenURL   string
	UserURL    string
	HTTPClient *http.Client
	Clock      Clock
}

// Client drives the device authorization state machine:
//
//	Start → AwaitingAuthorization → Approved | Denied | Expired
//
// Start issues the device/user code pair; Wait owns the polling loop and
// ends in exactly one terminal state per invocation.
type Client struct {
	cfg    Config
	logger *logging.Logger
}

// New creates a device flow client.
func New(cfg Config, logger *logging.Logger) *Client {
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.Scope == "" {
		cfg.Scope = defaultScope
	}
	if cfg.DeviceURL == "" {
		cfg.DeviceURL = defaultDeviceURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = defaultTokenURL
	}
	if cfg.UserURL == "" {
		cfg.UserURL = defaultUserURL
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Clock == nil {
		cfg.Clock = systemClock{}
	}
	return &Client{cfg: cfg, logger: logger}
}

// Authorization is the transient state handed from Start to Wait. It is
// never persisted.
type Authorization struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	Interval        time.Duration
	ExpiresAt       time.Time
}

// Start requests a device/user code pair from the authorization endpoint.
func (c *Client) Start(ctx context.Context) (*Authorization, error) {
	form := url.Values{
		"client_id": {c.cfg.ClientID},
		"scope":     {c.cfg.Scope},
	}

	var resp struct {
		DeviceCode      string `json:"device_code"`
		UserCode        string `json:"user_code"`
		VerificationURI string `json:"verification_uri"`
		ExpiresIn       int    `json:"expires_in"`
		Interval        int    `json:"interval"`
	}
	if err := c.postForm(ctx, c.cfg.DeviceURL, form, &resp); err != nil {
		return nil, err
	}
	if resp.DeviceCode == "" || resp.UserCode == "" {
		return nil, gserrors.UserError{
			Message:    "Device authorization endpoint returned an incomplete response",
			Suggestion: "Check the OAuth client ID configuration",
		}
	}

	interval := time.Duration(resp.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}

	return &Authorization{
		DeviceCode:      resp.DeviceCode,
		UserCode:        resp.UserCode,
		VerificationURI: resp.VerificationURI,
		Interval:        interval,
		ExpiresAt:       c.cfg.Clock.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}

// Wait polls the token endpoint until a terminal state is reached and
// returns the access token on approval. Cancelling ctx stops the loop
// within one poll interval and leaves nothing behind.
func (c *Client) Wait(ctx context.Context, auth *Authorization) (string, error) {
	interval := auth.Interval

	for {
		if c.cfg.Clock.Now().After(auth.ExpiresAt) {
			return "", gserrors.AuthError{Reason: gserrors.AuthExpired, Detail: "device code expired"}
		}
		if err := c.cfg.Clock.Sleep(ctx, interval); err != nil {
			return "", err
		}

		form := url.Values{
			"client_id":   {c.cfg.ClientID},
			"device_code": {auth.DeviceCode},
			"grant_type":  {grantType},
		}
		var resp struct {
			AccessToken string `json:"access_token"`
			Error       string `json:"error"`
		}
		if err := c.postForm(ctx, c.cfg.TokenURL, form, &resp); err != nil {
			return "", err
		}

		switch {
		case resp.AccessToken != "":
			return resp.AccessToken, nil
		case resp.Error == "authorization_pending":
			c.logger.Debug("authorization pending, next poll in %s", interval)
		case resp.Error == "slow_down":
			interval += slowDownStep
			c.logger.Debug("provider asked to slow down, polling every %s now", interval)
		case resp.Error == "access_denied":
			return "", gserrors.AuthError{Reason: gserrors.AuthDenied}
		case resp.Error == "expired_token":
			return "", gserrors.AuthError{Reason: gserrors.AuthExpired, Detail: "device code expired"}
		default:
			return "", gserrors.UserError{
				Message: "Authorization failed",
				Details: resp.Error,
			}
		}
	}
}

// Username resolves the login name behind a token.
func (c *Client) Username(ctx context.Context, token string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.UserURL, nil)
	if err != nil {
		return "", fmt.Errorf("building user request: %w", err)
	}
	req.Header.Set("User-Agent", "gitshift")
	req.Header.Set("Authorization", "token "+token)

	httpResp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", gserrors.UserError{
			Message:    "Failed to look up the account username",
			Details:    err.Error(),
			Suggestion: "Check your network connection",
			Err:        err,
		}
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return "", gserrors.UserError{
			Message: fmt.Sprintf("User lookup failed with HTTP %d", httpResp.StatusCode),
			Details: strings.TrimSpace(string(body)),
		}
	}

	var user struct {
		Login string `json:"login"`
	}
	if err := json.NewDecoder(httpResp.Body).Decode(&user); err != nil {
		return "", fmt.Errorf("decoding user response: %w", err)
	}
	return user.Login, nil
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return gserrors.UserError{
			Message:    "Failed to reach the authorization server",
			Details:    err.Error(),
			Suggestion: "Check your network connection",
			Err:        err,
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return gserrors.UserError{
			Message: fmt.Sprintf("Authorization server returned HTTP %d", resp.StatusCode),
			Details: strings.TrimSpace(string(body)),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
