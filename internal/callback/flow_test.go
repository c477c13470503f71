package callback_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/finledger/auth-callback/internal/backend"
	"github.com/finledger/auth-callback/internal/callback"
	"github.com/finledger/auth-callback/internal/serviceerr"
	"github.com/finledger/auth-callback/internal/storage"
)

type navigation struct {
	target string
	full   bool
}

type fakeWindow struct {
	opener      bool
	notifyErr   error
	messages    []callback.Message
	closeDelays []time.Duration
	navigations []navigation
}

func (w *fakeWindow) HasOpener() bool { return w.opener }

func (w *fakeWindow) NotifyOpener(_ context.Context, msg callback.Message) error {
	w.messages = append(w.messages, msg)
	return w.notifyErr
}

func (w *fakeWindow) CloseAfter(_ context.Context, delay time.Duration) {
	w.closeDelays = append(w.closeDelays, delay)
}

func (w *fakeWindow) Navigate(_ context.Context, target string, full bool) {
	w.navigations = append(w.navigations, navigation{target: target, full: full})
}

type fakeStorage struct {
	mu   sync.Mutex
	data map[string]string
	// sizeAtFirstSet is the number of keys held when the first value was
	// written, -1 while nothing was written.
	sizeAtFirstSet int
	clearErr       error
	setErr         error
}

func newFakeStorage(initial map[string]string) *fakeStorage {
	data := map[string]string{}
	for k, v := range initial {
		data[k] = v
	}

	return &fakeStorage{data: data, sizeAtFirstSet: -1}
}

func (s *fakeStorage) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.data[key]
	if !ok {
		return "", serviceerr.ErrStorageNotFound
	}

	return v, nil
}

func (s *fakeStorage) Set(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.setErr != nil {
		return s.setErr
	}

	if s.sizeAtFirstSet < 0 {
		s.sizeAtFirstSet = len(s.data)
	}

	s.data[key] = value

	return nil
}

func (s *fakeStorage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.clearErr != nil {
		return s.clearErr
	}

	s.data = map[string]string{}

	return nil
}

type profileAnswer struct {
	profile backend.Profile
	err     error
}

type fakeBackend struct {
	token       *oauth2.Token
	exchangeErr error
	// answers are returned in order, the last one repeats.
	answers []profileAnswer

	exchangeCalls int
	profileCalls  int
	exchangeReqs  []backend.TokenRequest
	profileTokens []*oauth2.Token
}

func (b *fakeBackend) ExchangeToken(_ context.Context, req backend.TokenRequest, _ []*http.Cookie) (*oauth2.Token, error) {
	b.exchangeCalls++
	b.exchangeReqs = append(b.exchangeReqs, req)

	return b.token, b.exchangeErr
}

func (b *fakeBackend) FetchProfile(_ context.Context, token *oauth2.Token, _ []*http.Cookie) (backend.Profile, error) {
	i := min(b.profileCalls, len(b.answers)-1)
	b.profileCalls++
	b.profileTokens = append(b.profileTokens, token)

	return b.answers[i].profile, b.answers[i].err
}

type fixedMarker string

func (m fixedMarker) MarkerSuffix() string { return string(m) }

func testConfig() callback.Config {
	return callback.Config{
		Provider:        "google",
		RedirectURI:     "https://app.example.com/auth/callback",
		MaxRetries:      3,
		RetryDelay:      time.Millisecond,
		PopupCloseDelay: 500 * time.Millisecond,
		LoginRoute:      "/login",
		SignupRoute:     "/signup",
		DashboardRoute:  "/dashboard",
	}
}

func newFlow(t *testing.T, b callback.Backend, opts ...callback.Option) *callback.Flow {
	t.Helper()

	flow, err := callback.NewFlow(testConfig(), b, fixedMarker("abc123xyz"), opts...)
	require.NoError(t, err)

	return flow
}

func codeRequest() callback.Request {
	return callback.Request{
		ClientID: "client-1",
		Params:   callback.Params{Code: "abc123", State: "xyz"},
	}
}

var (
	unauthorized = &backend.StatusError{Endpoint: "/api/user/profile/", StatusCode: http.StatusUnauthorized}
	serverError  = &backend.StatusError{Endpoint: "/api/user/profile/", StatusCode: http.StatusInternalServerError}
	someProfile  = backend.Profile{"email": "a@b.com", "id": 7, "is_verified": true}
)

func TestFlow_ExampleScenario(t *testing.T) {
	var exchanges int

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/token/":
			exchanges++
			_, _ = w.Write([]byte(`{"access_token":"T1"}`))
		case "/api/user/profile/":
			assert.Equal(t, "Bearer T1", r.Header.Get("Authorization"))
			_, _ = w.Write([]byte(`{"email":"a@b.com","id":7,"is_verified":true}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	client, err := backend.NewClient(server.URL, server.Client())
	require.NoError(t, err)

	st := newFakeStorage(nil)
	w := &fakeWindow{}

	outcome := newFlow(t, client).Handle(t.Context(), codeRequest(), st, w)

	require.IsType(t, callback.Success{}, outcome)
	assert.Equal(t, 1, exchanges)
	assert.Equal(t, "T1", st.data[storage.KeyAuthToken])
	assert.JSONEq(t, `{"email":"a@b.com","id":7,"is_verified":true,"name":""}`, st.data[storage.KeyUser])
	assert.NotContains(t, st.data, storage.KeyRefreshToken)
	assert.Equal(t, []navigation{{target: "/dashboard"}}, w.navigations)
	assert.Empty(t, w.messages)
}

func TestFlow_Expired(t *testing.T) {
	const newAuthURL = "https://accounts.example.com/o/oauth2/auth?client_id=1&state=s"

	tests := []struct {
		name            string
		opener          bool
		params          callback.Params
		wantMessages    []callback.Message
		wantNavigations []navigation
	}{
		{
			name:   "Popup with new auth URL",
			opener: true,
			params: callback.Params{Error: "expired_code", Message: "Code expired", NewAuthURL: newAuthURL},
			wantMessages: []callback.Message{{
				Type:       callback.MessageExpired,
				Message:    "Code expired",
				NewAuthURL: newAuthURL,
				AutoRetry:  true,
			}},
		},
		{
			name:            "Top level with new auth URL",
			params:          callback.Params{Error: "expired_code", NewAuthURL: newAuthURL},
			wantNavigations: []navigation{{target: newAuthURL, full: true}},
		},
		{
			name:            "Popup without new auth URL",
			opener:          true,
			params:          callback.Params{Error: "expired_code", Message: "Code expired"},
			wantNavigations: []navigation{{target: "/login?error=expired_code&message=Code+expired"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{}
			w := &fakeWindow{opener: tt.opener}

			outcome := newFlow(t, b).Handle(t.Context(), callback.Request{Params: tt.params}, newFakeStorage(nil), w)

			assert.Equal(t, callback.Expired{Message: tt.params.Message, NewAuthURL: tt.params.NewAuthURL}, outcome)
			if diff := cmp.Diff(tt.wantMessages, w.messages); diff != "" {
				t.Errorf("opener messages mismatch (-want +got):\n%s", diff)
			}

			if diff := cmp.Diff(tt.wantNavigations, w.navigations, cmp.AllowUnexported(navigation{})); diff != "" {
				t.Errorf("navigations mismatch (-want +got):\n%s", diff)
			}
			assert.Zero(t, b.exchangeCalls)
			assert.Zero(t, b.profileCalls)
		})
	}
}

func TestFlow_ErrorRedirects(t *testing.T) {
	tests := []struct {
		name        string
		params      callback.Params
		wantOutcome callback.Outcome
		wantTarget  string
		wantMessage callback.Message
	}{
		{
			name:        "Provider error",
			params:      callback.Params{Error: "access_denied", Message: "User denied access"},
			wantOutcome: callback.ProviderError{Code: "access_denied", Message: "User denied access"},
			wantTarget:  "/login?error=access_denied&message=User+denied+access",
			wantMessage: callback.Message{Type: callback.MessageError, Error: "access_denied", Message: "User denied access"},
		},
		{
			name:        "Missing state",
			params:      callback.Params{Code: "abc123"},
			wantOutcome: callback.MissingParams{},
			wantTarget:  "/login?error=missing_params&message=missing+authorization+code+or+state",
			wantMessage: callback.Message{Type: callback.MessageError, Error: "missing_params", Message: "missing authorization code or state"},
		},
		{
			name:        "Nothing at all",
			wantOutcome: callback.MissingParams{},
			wantTarget:  "/login?error=missing_params&message=missing+authorization+code+or+state",
			wantMessage: callback.Message{Type: callback.MessageError, Error: "missing_params", Message: "missing authorization code or state"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := callback.Request{Params: tt.params}

			w := &fakeWindow{}
			outcome := newFlow(t, &fakeBackend{}).Handle(t.Context(), req, newFakeStorage(nil), w)
			assert.Equal(t, tt.wantOutcome, outcome)
			assert.Equal(t, []navigation{{target: tt.wantTarget}}, w.navigations)

			popup := &fakeWindow{opener: true}
			newFlow(t, &fakeBackend{}).Handle(t.Context(), req, newFakeStorage(nil), popup)
			assert.Equal(t, []callback.Message{tt.wantMessage}, popup.messages)
			assert.Equal(t, []time.Duration{500 * time.Millisecond}, popup.closeDelays)
			assert.Empty(t, popup.navigations)
		})
	}
}

func TestFlow_RoutesWithQuery(t *testing.T) {
	tests := []struct {
		name       string
		req        callback.Request
		backend    *fakeBackend
		wantTarget string
	}{
		{
			name:       "Provider error",
			req:        callback.Request{Params: callback.Params{Error: "access_denied", Message: "User denied access"}},
			backend:    &fakeBackend{},
			wantTarget: "https://app.example.com/login?error=access_denied&lang=en&message=User+denied+access",
		},
		{
			name:       "Expired without replacement URL",
			req:        callback.Request{Params: callback.Params{Error: "expired_code"}},
			backend:    &fakeBackend{},
			wantTarget: "https://app.example.com/login?error=expired_code&lang=en",
		},
		{
			name:       "Signup required",
			req:        codeRequest(),
			backend:    &fakeBackend{answers: []profileAnswer{{err: unauthorized}}},
			wantTarget: "/signup?code=abc123&plan=free&state=xyz",
		},
		{
			name:       "Parameter overrides the route",
			req:        callback.Request{Params: callback.Params{Error: "server_error"}},
			backend:    &fakeBackend{},
			wantTarget: "https://app.example.com/login?error=server_error&lang=en",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.LoginRoute = "https://app.example.com/login?lang=en&error=stale"
			cfg.SignupRoute = "/signup?plan=free"

			flow, err := callback.NewFlow(cfg, tt.backend, fixedMarker("x"))
			require.NoError(t, err)

			w := &fakeWindow{}
			flow.Handle(t.Context(), tt.req, newFakeStorage(nil), w)

			assert.Equal(t, []navigation{{target: tt.wantTarget}}, w.navigations)
		})
	}
}

func TestFlow_ExchangesOnce(t *testing.T) {
	tests := []struct {
		name        string
		answers     []profileAnswer
		wantProfile int
	}{
		{name: "Confirmed on first attempt", answers: []profileAnswer{{profile: someProfile}}, wantProfile: 1},
		{name: "Confirmed on third attempt", answers: []profileAnswer{{err: serverError}, {err: unauthorized}, {profile: someProfile}}, wantProfile: 3},
		{name: "Never confirmed", answers: []profileAnswer{{err: serverError}}, wantProfile: 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := &fakeBackend{token: backend.NewToken("T1", ""), answers: tt.answers}

			newFlow(t, b).Handle(t.Context(), codeRequest(), newFakeStorage(nil), &fakeWindow{})

			assert.Equal(t, 1, b.exchangeCalls)
			assert.Equal(t, tt.wantProfile, b.profileCalls)
			assert.Equal(t, backend.TokenRequest{
				Code:         "abc123",
				State:        "xyz",
				Provider:     "google",
				FromCallback: true,
				RedirectURI:  "https://app.example.com/auth/callback",
			}, b.exchangeReqs[0])
		})
	}
}

func TestFlow_SignupRequired(t *testing.T) {
	b := &fakeBackend{answers: []profileAnswer{{err: unauthorized}}}
	w := &fakeWindow{}

	outcome := newFlow(t, b).Handle(t.Context(), codeRequest(), newFakeStorage(nil), w)

	assert.Equal(t, callback.SignupRequired{Code: "abc123", State: "xyz"}, outcome)
	assert.Equal(t, 3, b.profileCalls)
	assert.Equal(t, []navigation{{target: "/signup?code=abc123&state=xyz"}}, w.navigations)

	popup := &fakeWindow{opener: true}
	newFlow(t, &fakeBackend{answers: []profileAnswer{{err: unauthorized}}}).
		Handle(t.Context(), codeRequest(), newFakeStorage(nil), popup)

	want := []callback.Message{{
		Type:  callback.MessageError,
		Error: "SIGNUP_REQUIRED",
		Code:  "abc123",
		State: "xyz",
	}}
	if diff := cmp.Diff(want, popup.messages); diff != "" {
		t.Errorf("opener messages mismatch (-want +got):\n%s", diff)
	}
	assert.Empty(t, popup.navigations)
}

func TestFlow_SignupOnlyWhenLastAttemptUnauthorized(t *testing.T) {
	b := &fakeBackend{answers: []profileAnswer{{err: unauthorized}, {err: unauthorized}, {err: serverError}}}

	outcome := newFlow(t, b).Handle(t.Context(), codeRequest(), newFakeStorage(nil), &fakeWindow{})

	assert.Equal(t, callback.Failure{
		Code:    serviceerr.CodeCallbackError,
		Message: serviceerr.ErrCallbackError.Description,
	}, outcome)
}

func TestFlow_Failures(t *testing.T) {
	tests := []struct {
		name     string
		backend  *fakeBackend
		storage  *fakeStorage
		wantCode serviceerr.Code
	}{
		{
			name:     "Backend keeps failing",
			backend:  &fakeBackend{answers: []profileAnswer{{err: errors.New("connection refused")}}},
			storage:  newFakeStorage(nil),
			wantCode: serviceerr.CodeCallbackError,
		},
		{
			name:     "Profile without identity",
			backend:  &fakeBackend{answers: []profileAnswer{{profile: backend.Profile{"is_verified": false}}}},
			storage:  newFakeStorage(nil),
			wantCode: serviceerr.CodeAuthenticationFailed,
		},
		{
			name:     "Storage cannot be cleared",
			backend:  &fakeBackend{answers: []profileAnswer{{profile: someProfile}}},
			storage:  &fakeStorage{data: map[string]string{}, sizeAtFirstSet: -1, clearErr: errors.New("valkey down")},
			wantCode: serviceerr.CodeCallbackError,
		},
		{
			name:     "Storage cannot be written",
			backend:  &fakeBackend{answers: []profileAnswer{{profile: someProfile}}},
			storage:  &fakeStorage{data: map[string]string{}, sizeAtFirstSet: -1, setErr: errors.New("valkey down")},
			wantCode: serviceerr.CodeCallbackError,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &fakeWindow{opener: true}

			outcome := newFlow(t, tt.backend).Handle(t.Context(), codeRequest(), tt.storage, w)

			failure, ok := outcome.(callback.Failure)
			require.True(t, ok, "outcome %T", outcome)
			assert.Equal(t, tt.wantCode, failure.Code)
			require.Len(t, w.messages, 1)
			assert.Equal(t, callback.MessageError, w.messages[0].Type)
			assert.Equal(t, string(tt.wantCode), w.messages[0].Error)
		})
	}
}

func TestFlow_ClearsBeforeWriting(t *testing.T) {
	st := newFakeStorage(map[string]string{
		storage.KeyAuthToken:    "stale",
		storage.KeyRefreshToken: "stale-refresh",
		storage.KeyOAuthState:   "xyz",
	})
	b := &fakeBackend{token: backend.NewToken("T1", ""), answers: []profileAnswer{{profile: someProfile}}}

	outcome := newFlow(t, b).Handle(t.Context(), codeRequest(), st, &fakeWindow{})

	require.IsType(t, callback.Success{}, outcome)
	assert.Equal(t, 0, st.sizeAtFirstSet)
	assert.Equal(t, "T1", st.data[storage.KeyAuthToken])
	assert.NotContains(t, st.data, storage.KeyRefreshToken)
	assert.NotContains(t, st.data, storage.KeyOAuthState)
}

func TestFlow_ClearsOnEveryPath(t *testing.T) {
	for _, params := range []callback.Params{
		{Error: "expired_code"},
		{Error: "access_denied"},
		{},
	} {
		st := newFakeStorage(map[string]string{storage.KeyAuthToken: "stale"})

		newFlow(t, &fakeBackend{}).Handle(t.Context(), callback.Request{Params: params}, st, &fakeWindow{})

		assert.Empty(t, st.data, "params %+v", params)
	}
}

func TestFlow_ProfileTokenTakesPrecedence(t *testing.T) {
	b := &fakeBackend{
		token: backend.NewToken("T1", "R1"),
		answers: []profileAnswer{{profile: backend.Profile{
			"email":         "a@b.com",
			"id":            7,
			"access_token":  "P1",
			"refresh_token": "PR1",
		}}},
	}
	st := newFakeStorage(nil)
	w := &fakeWindow{opener: true}

	outcome := newFlow(t, b).Handle(t.Context(), codeRequest(), st, w)

	success, ok := outcome.(callback.Success)
	require.True(t, ok)
	assert.Equal(t, "P1", success.Token)
	assert.True(t, success.HasJWT)
	assert.Equal(t, "P1", st.data[storage.KeyAuthToken])
	assert.Equal(t, "PR1", st.data[storage.KeyRefreshToken])

	require.Len(t, w.messages, 1)
	msg := w.messages[0]
	assert.Equal(t, callback.MessageSuccess, msg.Type)
	assert.Equal(t, "P1", msg.Token)
	require.NotNil(t, msg.HasJWT)
	assert.True(t, *msg.HasJWT)
	assert.Equal(t, "a@b.com", msg.User.Email)
	assert.Equal(t, []time.Duration{500 * time.Millisecond}, w.closeDelays)
	assert.Empty(t, w.navigations)
}

func TestFlow_SessionMarker(t *testing.T) {
	b := &fakeBackend{
		exchangeErr: &backend.StatusError{Endpoint: "/api/auth/token/", StatusCode: http.StatusBadRequest},
		answers:     []profileAnswer{{profile: someProfile}},
	}
	st := newFakeStorage(nil)
	now := time.UnixMilli(1700000000123)

	outcome := newFlow(t, b, callback.WithClock(func() time.Time { return now })).
		Handle(t.Context(), codeRequest(), st, &fakeWindow{})

	success, ok := outcome.(callback.Success)
	require.True(t, ok)
	assert.False(t, success.HasJWT)
	assert.Equal(t, "django_session_1700000000123_abc123xyz", success.Token)
	assert.Regexp(t, regexp.MustCompile(`^django_session_\d+_[0-9a-z]+$`), st.data[storage.KeyAuthToken])
	assert.NotContains(t, st.data, storage.KeyRefreshToken)
	assert.Nil(t, b.profileTokens[0])
}

func TestFlow_NotifyFailureStillCloses(t *testing.T) {
	w := &fakeWindow{opener: true, notifyErr: errors.New("opener gone")}

	newFlow(t, &fakeBackend{}).Handle(t.Context(), callback.Request{Params: callback.Params{Error: "access_denied"}}, newFakeStorage(nil), w)

	assert.Len(t, w.messages, 1)
	assert.Len(t, w.closeDelays, 1)
	assert.Empty(t, w.navigations)
}

type stateValidator bool

func (v stateValidator) ValidState(string, string) bool { return bool(v) }

func TestFlow_StateMismatchIsNotFatal(t *testing.T) {
	st := newFakeStorage(map[string]string{storage.KeyOAuthState: "other"})
	b := &fakeBackend{token: backend.NewToken("T1", ""), answers: []profileAnswer{{profile: someProfile}}}

	outcome := newFlow(t, b, callback.WithStateValidator(stateValidator(false))).
		Handle(t.Context(), codeRequest(), st, &fakeWindow{})

	assert.IsType(t, callback.Success{}, outcome)
}

func TestFlow_CancelledDuringInitialDelay(t *testing.T) {
	cfg := testConfig()
	cfg.InitialDelay = time.Hour

	b := &fakeBackend{answers: []profileAnswer{{profile: someProfile}}}
	flow, err := callback.NewFlow(cfg, b, fixedMarker("abc123xyz"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	outcome := flow.Handle(ctx, codeRequest(), newFakeStorage(nil), &fakeWindow{})

	failure, ok := outcome.(callback.Failure)
	require.True(t, ok)
	assert.Equal(t, serviceerr.CodeCallbackError, failure.Code)
	assert.Zero(t, b.exchangeCalls)
}

func TestFlow_UserName(t *testing.T) {
	b := &fakeBackend{answers: []profileAnswer{{profile: backend.Profile{
		"id":              "u-1",
		"email":           "ada@example.com",
		"first_name":      "Ada",
		"last_name":       "Lovelace",
		"is_verified":     "true",
		"google_id":       "1234",
		"profile_picture": "https://example.com/a.png",
	}}}}
	st := newFakeStorage(nil)

	outcome := newFlow(t, b).Handle(t.Context(), codeRequest(), st, &fakeWindow{})

	success, ok := outcome.(callback.Success)
	require.True(t, ok)
	assert.Equal(t, callback.SessionUser{
		ID:         "u-1",
		Email:      "ada@example.com",
		Name:       "Ada Lovelace",
		IsVerified: true,
		GoogleID:   "1234",
		Avatar:     "https://example.com/a.png",
	}, success.User)
	assert.True(t, strings.Contains(st.data[storage.KeyUser], `"name":"Ada Lovelace"`))
}

func TestNewFlow(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*callback.Config)
		backend   callback.Backend
		assertErr assert.ErrorAssertionFunc
	}{
		{name: "Valid", mutate: func(*callback.Config) {}, backend: &fakeBackend{}, assertErr: assert.NoError},
		{name: "No backend", mutate: func(*callback.Config) {}, assertErr: assert.Error},
		{name: "Zero retries", mutate: func(c *callback.Config) { c.MaxRetries = 0 }, backend: &fakeBackend{}, assertErr: assert.Error},
		{name: "No login route", mutate: func(c *callback.Config) { c.LoginRoute = "" }, backend: &fakeBackend{}, assertErr: assert.Error},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(&cfg)

			_, err := callback.NewFlow(cfg, tt.backend, fixedMarker("x"))
			tt.assertErr(t, err)
		})
	}
}

func TestParams_Normalize(t *testing.T) {
	assert.Equal(t, callback.Params{
		Code:       "abc123",
		State:      "xyz",
		Message:    " Hello there ",
		NewAuthURL: "https://example.com/auth?a=1",
	}, callback.Params{
		Code:       " abc123\n",
		State:      "\txyz",
		Error:      "  ",
		Message:    " Hello there ",
		NewAuthURL: " https://example.com/auth?a=1 ",
	}.Normalize())
}
