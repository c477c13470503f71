package oautherr

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/openkcm/common-sdk/pkg/csrf"

	slogctx "github.com/veqryn/slog-context"

	"github.com/finledger/auth-callback/internal/serviceerr"
	"github.com/finledger/auth-callback/internal/storage"
)

// ReducedScope is requested when the provider rejected the default scopes.
const ReducedScope = "email profile"

// SigninOptions are the fixed parameters of a fresh sign-in request.
type SigninOptions struct {
	BackendBaseURL string
	Path           string
	LoginContext   string
	ReturnTo       string
	ErrorCallback  string
	AppVersion     string
	Locale         string
	AccessType     string
	Prompt         string
}

// Retrier builds the URL a retry navigates to.
type Retrier struct {
	signinURL *url.URL
	opts      SigninOptions
	secret    []byte
	now       func() time.Time
}

func NewRetrier(opts SigninOptions, stateSecret []byte) (*Retrier, error) {
	base, err := url.Parse(opts.BackendBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing backend base URL: %w", err)
	}

	if len(stateSecret) == 0 {
		return nil, errors.New("state secret must not be empty")
	}

	return &Retrier{
		signinURL: base.JoinPath(opts.Path),
		opts:      opts,
		secret:    stateSecret,
		now:       time.Now,
	}, nil
}

// RetryURL returns the replacement URL supplied by the backend or, without
// one, a fresh sign-in request carrying a new state token. The issued state,
// its timestamp and the incremented retry counter are stashed in st.
func (r *Retrier) RetryURL(ctx context.Context, cl Classification, clientID, deviceID string, st storage.Storage) (string, error) {
	if cl.NewAuthURL != "" {
		u, err := url.Parse(cl.NewAuthURL)
		if err != nil || (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
			return "", &serviceerr.Error{Err: serviceerr.CodeInvalidRequest, Description: "invalid replacement auth URL"}
		}

		return u.String(), nil
	}

	state := csrf.NewToken(clientID, r.secret)

	retries, err := r.nextRetryCount(ctx, st)
	if err != nil {
		return "", err
	}

	for key, value := range map[string]string{
		storage.KeyOAuthState:          state,
		storage.KeyOAuthStateTimestamp: strconv.FormatInt(r.now().UnixMilli(), 10),
		storage.KeyOAuthRetryCount:     strconv.Itoa(retries),
	} {
		if err := st.Set(ctx, key, value); err != nil {
			return "", fmt.Errorf("stashing %s: %w", key, err)
		}
	}

	slogctx.Info(ctx, "Issuing a fresh sign-in request", "error_code", cl.Code, "retry_count", retries)

	return r.signinRequest(cl.Code, state, deviceID), nil
}

// ValidState reports whether state was issued by this retrier for clientID.
func (r *Retrier) ValidState(state, clientID string) bool {
	return csrf.Validate(state, clientID, r.secret)
}

func (r *Retrier) nextRetryCount(ctx context.Context, st storage.Storage) (int, error) {
	val, err := st.Get(ctx, storage.KeyOAuthRetryCount)
	if errors.Is(err, serviceerr.ErrStorageNotFound) {
		return 1, nil
	}

	if err != nil {
		return 0, fmt.Errorf("loading retry count: %w", err)
	}

	n, err := strconv.Atoi(val)
	if err != nil {
		return 1, nil //nolint:nilerr
	}

	return n + 1, nil
}

func (r *Retrier) signinRequest(code, state, deviceID string) string {
	u := *r.signinURL

	q := url.Values{}
	q.Set("login_context", r.opts.LoginContext)
	q.Set("return_to", r.opts.ReturnTo)
	q.Set("error_callback", r.opts.ErrorCallback)
	q.Set("app_version", r.opts.AppVersion)
	q.Set("locale", r.opts.Locale)
	q.Set("device_id", deviceID)
	q.Set("access_type", r.opts.AccessType)
	q.Set("prompt", r.opts.Prompt)
	q.Set("state", state)

	if code == CodeInvalidScope {
		q.Set("scope", ReducedScope)
	}

	u.RawQuery = q.Encode()

	return u.String()
}
