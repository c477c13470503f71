package callback

import (
	"net/http"
	"strings"
)

// Params are the query parameters the identity provider redirect carries.
// Either Code and State or Error is expected to be set.
type Params struct {
	Code       string
	State      string
	Error      string
	Message    string
	NewAuthURL string
}

// Normalize trims the surrounding whitespace of every parameter but the
// free text message.
func (p Params) Normalize() Params {
	p.Code = strings.TrimSpace(p.Code)
	p.State = strings.TrimSpace(p.State)
	p.Error = strings.TrimSpace(p.Error)
	p.NewAuthURL = strings.TrimSpace(p.NewAuthURL)

	return p
}

// Request is a single callback invocation.
type Request struct {
	Params Params

	// ClientID identifies the browser the storage namespace belongs to.
	ClientID string

	// Cookies are forwarded to the backend so a cookie based session can
	// stand in for a missing bearer token.
	Cookies []*http.Cookie
}
