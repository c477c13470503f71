// Package backend is the client of the REST backend the callback flow talks
// to: the token exchange endpoint and the current user profile endpoint.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"
)

const (
	tokenPath   = "/api/auth/token/"
	profilePath = "/api/user/profile/"

	maxResponseSize = 1 << 20
)

// StatusError is returned when the backend answers with an unexpected status.
type StatusError struct {
	Endpoint   string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Endpoint, e.StatusCode)
}

// IsUnauthorized reports whether err is a 401 answer of the backend.
func IsUnauthorized(err error) bool {
	var statusErr *StatusError
	return errors.As(err, &statusErr) && statusErr.StatusCode == http.StatusUnauthorized
}

// TokenRequest is the body of the token exchange request.
type TokenRequest struct {
	Code         string `json:"code"`
	State        string `json:"state"`
	Provider     string `json:"provider"`
	FromCallback bool   `json:"from_callback"`
	RedirectURI  string `json:"redirect_uri"`
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Profile is the raw payload of the profile endpoint.
type Profile map[string]any

// Token returns the access/refresh pair embedded in the profile, if any.
func (p Profile) Token() *oauth2.Token {
	access, _ := p["access_token"].(string)
	if access == "" {
		return nil
	}

	refresh, _ := p["refresh_token"].(string)

	return NewToken(access, refresh)
}

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing backend base URL: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("backend base URL %q must be absolute", baseURL)
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    u,
		httpClient: httpClient,
	}, nil
}

// BaseURL returns the configured backend base URL.
func (c *Client) BaseURL() *url.URL {
	u := *c.baseURL
	return &u
}

// ExchangeToken trades the authorization code for a token pair.
func (c *Client) ExchangeToken(ctx context.Context, tokenReq TokenRequest, cookies []*http.Cookie) (*oauth2.Token, error) {
	body, err := json.Marshal(tokenReq)
	if err != nil {
		return nil, fmt.Errorf("encoding token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(tokenPath), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	addCookies(req, cookies)

	var tokens tokenResponse
	if err := c.do(ctx, req, &tokens); err != nil {
		return nil, err
	}

	if tokens.AccessToken == "" {
		return nil, errors.New("token response carries no access token")
	}

	return NewToken(tokens.AccessToken, tokens.RefreshToken), nil
}

// FetchProfile loads the current user profile. The bearer header is only
// attached when a token is given; otherwise the forwarded cookies carry the
// session.
func (c *Client) FetchProfile(ctx context.Context, token *oauth2.Token, cookies []*http.Cookie) (Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(profilePath), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if token != nil && token.AccessToken != "" {
		token.SetAuthHeader(req)
	}
	addCookies(req, cookies)

	var profile Profile
	if err := c.do(ctx, req, &profile); err != nil {
		return nil, err
	}

	return profile, nil
}

func (c *Client) do(ctx context.Context, req *http.Request, decodeInto any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		slogctx.Debug(ctx, "Backend answered with an error", "path", req.URL.Path, "status", resp.StatusCode)
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

		return &StatusError{Endpoint: req.URL.Path, StatusCode: resp.StatusCode}
	}

	// Numbers are kept as json.Number so profile ids survive unchanged.
	decoder := json.NewDecoder(io.LimitReader(resp.Body, maxResponseSize))
	decoder.UseNumber()

	if err := decoder.Decode(decodeInto); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.JoinPath(path).String()
}

func addCookies(req *http.Request, cookies []*http.Cookie) {
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
}
