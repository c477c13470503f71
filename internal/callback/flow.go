// Package callback completes an OAuth sign-in after the identity provider
// redirected the browser back to the application.
//
// A callback runs Clear, Classify, Exchange, Confirm and Finalize in order
// and ends in exactly one Outcome, which is then delivered either to the
// opener of a popup or by navigating the page.
package callback

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/oauth2"

	slogctx "github.com/veqryn/slog-context"

	"github.com/finledger/auth-callback/internal/backend"
	"github.com/finledger/auth-callback/internal/serviceerr"
	"github.com/finledger/auth-callback/internal/storage"
)

const markerPrefix = "django_session_"

// Backend is the part of the REST backend the flow talks to.
type Backend interface {
	ExchangeToken(ctx context.Context, req backend.TokenRequest, cookies []*http.Cookie) (*oauth2.Token, error)
	FetchProfile(ctx context.Context, token *oauth2.Token, cookies []*http.Cookie) (backend.Profile, error)
}

// StateValidator checks an anti-replay state issued for a client.
type StateValidator interface {
	ValidState(state, clientID string) bool
}

// MarkerSource supplies the random part of a session marker.
type MarkerSource interface {
	MarkerSuffix() string
}

type Config struct {
	Provider    string
	RedirectURI string

	MaxRetries      int
	RetryDelay      time.Duration
	InitialDelay    time.Duration
	PopupCloseDelay time.Duration

	LoginRoute     string
	SignupRoute    string
	DashboardRoute string
}

type Flow struct {
	cfg     Config
	backend Backend
	markers MarkerSource
	states  StateValidator
	now     func() time.Time
}

type Option func(*Flow)

// WithStateValidator enables the comparison of the redirect state with the
// state stashed by a retry. A mismatch is logged only.
func WithStateValidator(v StateValidator) Option {
	return func(f *Flow) {
		f.states = v
	}
}

func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}

func NewFlow(cfg Config, b Backend, markers MarkerSource, opts ...Option) (*Flow, error) {
	if b == nil {
		return nil, errors.New("backend must not be nil")
	}

	if markers == nil {
		return nil, errors.New("marker source must not be nil")
	}

	if cfg.MaxRetries < 1 {
		return nil, fmt.Errorf("max retries must be positive, got %d", cfg.MaxRetries)
	}

	if cfg.LoginRoute == "" || cfg.SignupRoute == "" || cfg.DashboardRoute == "" {
		return nil, errors.New("login, signup and dashboard routes must be set")
	}

	f := &Flow{
		cfg:     cfg,
		backend: b,
		markers: markers,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}

	return f, nil
}

// Handle runs the callback and delivers its outcome to w. It never fails:
// unexpected errors become a callback_error Failure.
func (f *Flow) Handle(ctx context.Context, req Request, st storage.Storage, w Window) Outcome {
	ctx = slogctx.With(ctx, "clientId", req.ClientID, "popup", w.HasOpener())

	outcome, err := f.run(ctx, req, st)
	if err != nil {
		slogctx.Error(ctx, "Callback failed", "error", err)

		outcome = Failure{
			Code:    serviceerr.CodeCallbackError,
			Message: serviceerr.ErrCallbackError.Description,
		}
	}

	f.Deliver(ctx, outcome, w)

	return outcome
}

func (f *Flow) run(ctx context.Context, req Request, st storage.Storage) (Outcome, error) {
	f.checkState(ctx, req, st)

	if err := st.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clearing auth state: %w", err)
	}

	if outcome := classify(req.Params); outcome != nil {
		slogctx.Info(ctx, "Callback ended before exchange", "outcome", fmt.Sprintf("%T", outcome))
		return outcome, nil
	}

	if err := sleep(ctx, f.cfg.InitialDelay); err != nil {
		return nil, fmt.Errorf("waiting before confirmation: %w", err)
	}

	token, profile, err := f.confirm(ctx, req)
	switch {
	case backend.IsUnauthorized(err):
		slogctx.Info(ctx, "No account for the authenticated user")
		return SignupRequired{Code: req.Params.Code, State: req.Params.State}, nil
	case err != nil:
		return nil, fmt.Errorf("confirming authentication: %w", err)
	}

	user, err := userFromProfile(profile)
	if err != nil {
		return nil, err
	}

	if !user.identified() {
		slogctx.Warn(ctx, "Profile carries no identity")

		return Failure{
			Code:    serviceerr.CodeAuthenticationFailed,
			Message: serviceerr.ErrAuthenticationFailed.Description,
		}, nil
	}

	if embedded := profile.Token(); embedded != nil {
		token = embedded
	}

	return f.finalize(ctx, st, token, user)
}

// classify returns nil when the redirect carries an authorization code.
func classify(p Params) Outcome {
	switch {
	case p.Error == string(serviceerr.CodeExpiredCode):
		return Expired{Message: p.Message, NewAuthURL: p.NewAuthURL}
	case p.Error != "":
		return ProviderError{Code: p.Error, Message: p.Message}
	case p.Code != "" && p.State != "":
		return nil
	default:
		return MissingParams{}
	}
}

// confirm asks the backend for the profile until it answers or the attempts
// are exhausted. The code exchange is tried once, before the first attempt;
// its failure is not fatal because the backend may already hold a session.
func (f *Flow) confirm(ctx context.Context, req Request) (*oauth2.Token, backend.Profile, error) {
	var (
		token     *oauth2.Token
		profile   backend.Profile
		exchanged bool
	)

	err := retry.Do(
		func() error {
			if !exchanged {
				exchanged = true
				token = f.exchange(ctx, req)
			}

			p, err := f.backend.FetchProfile(ctx, token, req.Cookies)
			if err != nil {
				return err
			}

			profile = p

			return nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(f.cfg.MaxRetries)),
		retry.Delay(f.cfg.RetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			slogctx.Debug(ctx, "Profile not confirmed yet", "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, nil, err
	}

	return token, profile, nil
}

func (f *Flow) exchange(ctx context.Context, req Request) *oauth2.Token {
	token, err := f.backend.ExchangeToken(ctx, backend.TokenRequest{
		Code:         req.Params.Code,
		State:        req.Params.State,
		Provider:     f.cfg.Provider,
		FromCallback: true,
		RedirectURI:  f.cfg.RedirectURI,
	}, req.Cookies)
	if err != nil {
		slogctx.Warn(ctx, "Token exchange failed, relying on session", "error", err)
		return nil
	}

	return token
}

func (f *Flow) finalize(ctx context.Context, st storage.Storage, token *oauth2.Token, user SessionUser) (Outcome, error) {
	if err := st.Clear(ctx); err != nil {
		return nil, fmt.Errorf("clearing auth state: %w", err)
	}

	success := Success{User: user}
	if token != nil && token.AccessToken != "" {
		success.Token = token.AccessToken
		success.RefreshToken = token.RefreshToken
		success.HasJWT = true
	} else {
		success.Token = fmt.Sprintf("%s%d_%s", markerPrefix, f.now().UnixMilli(), f.markers.MarkerSuffix())
	}

	userJSON, err := json.Marshal(user)
	if err != nil {
		return nil, fmt.Errorf("encoding user: %w", err)
	}

	values := []struct{ key, value string }{
		{storage.KeyAuthToken, success.Token},
		{storage.KeyRefreshToken, success.RefreshToken},
		{storage.KeyUser, string(userJSON)},
	}
	for _, v := range values {
		if v.value == "" {
			continue
		}

		if err := st.Set(ctx, v.key, v.value); err != nil {
			return nil, fmt.Errorf("storing %s: %w", v.key, err)
		}
	}

	slogctx.Info(ctx, "Sign-in completed", "hasJWT", success.HasJWT)

	return success, nil
}

func (f *Flow) checkState(ctx context.Context, req Request, st storage.Storage) {
	if f.states == nil || req.Params.State == "" {
		return
	}

	stashed, err := st.Get(ctx, storage.KeyOAuthState)
	switch {
	case errors.Is(err, serviceerr.ErrStorageNotFound):
		return
	case err != nil:
		slogctx.Warn(ctx, "Could not read stashed state", "error", err)
		return
	}

	if stashed != req.Params.State || !f.states.ValidState(req.Params.State, req.ClientID) {
		slogctx.Warn(ctx, "Callback state does not match the issued state")
	}
}

// Deliver hands the outcome to the window: a popup notifies its opener and
// closes, any other page navigates.
func (f *Flow) Deliver(ctx context.Context, outcome Outcome, w Window) {
	popup := w.HasOpener()

	switch o := outcome.(type) {
	case Success:
		if popup {
			hasJWT := o.HasJWT
			f.notify(ctx, w, Message{Type: MessageSuccess, Token: o.Token, User: &o.User, HasJWT: &hasJWT})
			return
		}

		w.Navigate(ctx, f.cfg.DashboardRoute, false)
	case Expired:
		switch {
		case o.NewAuthURL == "":
			w.Navigate(ctx, f.loginTarget(string(serviceerr.CodeExpiredCode), o.Message), false)
		case popup:
			f.notify(ctx, w, Message{Type: MessageExpired, Message: o.Message, NewAuthURL: o.NewAuthURL, AutoRetry: true})
		default:
			w.Navigate(ctx, o.NewAuthURL, true)
		}
	case SignupRequired:
		if popup {
			f.notify(ctx, w, Message{
				Type:  MessageError,
				Error: string(serviceerr.CodeSignupRequired),
				Code:  o.Code,
				State: o.State,
			})

			return
		}

		w.Navigate(ctx, withQuery(f.cfg.SignupRoute, url.Values{"code": {o.Code}, "state": {o.State}}), false)
	default:
		code, message := errorOf(outcome)
		if popup {
			f.notify(ctx, w, Message{Type: MessageError, Error: code, Message: message})
			return
		}

		w.Navigate(ctx, f.loginTarget(code, message), false)
	}
}

func (f *Flow) notify(ctx context.Context, w Window, msg Message) {
	if err := w.NotifyOpener(ctx, msg); err != nil {
		slogctx.Warn(ctx, "Could not notify opener", "type", msg.Type, "error", err)
	}

	w.CloseAfter(ctx, f.cfg.PopupCloseDelay)
}

func (f *Flow) loginTarget(code, message string) string {
	q := url.Values{"error": {code}}
	if message != "" {
		q.Set("message", message)
	}

	return withQuery(f.cfg.LoginRoute, q)
}

func errorOf(outcome Outcome) (string, string) {
	switch o := outcome.(type) {
	case ProviderError:
		return o.Code, o.Message
	case MissingParams:
		return string(serviceerr.CodeMissingParams), serviceerr.ErrMissingParams.Description
	case Failure:
		return string(o.Code), o.Message
	default:
		return string(serviceerr.CodeCallbackError), serviceerr.ErrCallbackError.Description
	}
}

// withQuery adds q to the query route may already carry.
func withQuery(route string, q url.Values) string {
	u, err := url.Parse(route)
	if err != nil {
		return route + "?" + q.Encode()
	}

	merged := u.Query()
	for key, values := range q {
		merged[key] = values
	}
	u.RawQuery = merged.Encode()

	return u.String()
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
