package callback

import (
	"context"
	"time"

	"github.com/finledger/auth-callback/internal/serviceerr"
)

// Outcome is the terminal result of a callback. It is one of Success,
// Expired, ProviderError, MissingParams, SignupRequired or Failure.
type Outcome interface {
	outcome()
}

type Success struct {
	Token        string
	RefreshToken string
	User         SessionUser
	// HasJWT is false when Token is a synthesized session marker.
	HasJWT bool
}

// Expired is the recoverable expired_code case.
type Expired struct {
	Message    string
	NewAuthURL string
}

// ProviderError is an error reported by the identity provider, passed
// through verbatim.
type ProviderError struct {
	Code    string
	Message string
}

type MissingParams struct{}

// SignupRequired is not a failure: the user authenticated with the provider
// but has no account yet. Code and State are handed on for reuse.
type SignupRequired struct {
	Code  string
	State string
}

// Failure is a terminal failure: authentication_failed or callback_error.
type Failure struct {
	Code    serviceerr.Code
	Message string
}

func (Success) outcome()        {}
func (Expired) outcome()        {}
func (ProviderError) outcome()  {}
func (MissingParams) outcome()  {}
func (SignupRequired) outcome() {}
func (Failure) outcome()        {}

// MessageType discriminates the messages posted to the opener window.
type MessageType string

const (
	MessageSuccess MessageType = "GOOGLE_AUTH_SUCCESS"
	MessageError   MessageType = "GOOGLE_AUTH_ERROR"
	MessageExpired MessageType = "GOOGLE_AUTH_EXPIRED"
)

// Message is posted to the opener window of a popup flow.
type Message struct {
	Type       MessageType  `json:"type"`
	Token      string       `json:"token,omitempty"`
	User       *SessionUser `json:"user,omitempty"`
	HasJWT     *bool        `json:"hasJWT,omitempty"`
	Error      string       `json:"error,omitempty"`
	Message    string       `json:"message,omitempty"`
	NewAuthURL string       `json:"newAuthUrl,omitempty"`
	AutoRetry  bool         `json:"autoRetry,omitempty"`
	Code       string       `json:"code,omitempty"`
	State      string       `json:"state,omitempty"`
}

// Window is where the outcome is delivered: the opener of a popup or the
// page itself. NotifyOpener is fire and forget; there is no acknowledgement.
type Window interface {
	HasOpener() bool
	NotifyOpener(ctx context.Context, msg Message) error
	CloseAfter(ctx context.Context, delay time.Duration)
	// Navigate moves the page to target. full is set for targets outside
	// the application, which need a full page load.
	Navigate(ctx context.Context, target string, full bool)
}
