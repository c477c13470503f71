// Package client provides utilities to identify the browser a request comes
// from and to inject and retrieve that identifier in and from the context.
package client

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/finledger/auth-callback/internal/config"
)

// Using an unexported type prevents key collisions from other packages.
type contextKey string

// ClientIDKey is the context key used to store the client identifier.
const ClientIDKey contextKey = "client-id"

// IDSource issues new client identifiers. They must be uuids to be accepted
// back from the cookie.
type IDSource interface {
	ClientID() string
}

// Middleware is an http.Handler middleware that reads the client identifier
// from its cookie, issuing a new one when the browser has none, and injects
// it into the context for later handlers to access.
func Middleware(cookies config.Cookies, ids IDSource) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := clientIDFromRequest(r, cookies.ClientName())
			if id == "" {
				id = ids.ClientID()
				http.SetCookie(w, cookies.ClientCookie(id))
			}

			ctx := context.WithValue(r.Context(), ClientIDKey, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IDFromContext is a helper function that retrieves the client identifier
// from the context.
func IDFromContext(ctx context.Context) (string, error) {
	id, ok := ctx.Value(ClientIDKey).(string)
	if !ok {
		return "", errors.New("client id not found in context")
	}
	return id, nil
}

// clientIDFromRequest only accepts identifiers this service could have
// issued, so a forged cookie cannot address arbitrary storage keys.
func clientIDFromRequest(r *http.Request, name string) string {
	cookie, err := r.Cookie(name)
	if err != nil {
		return ""
	}

	id, err := uuid.Parse(cookie.Value)
	if err != nil {
		return ""
	}

	return id.String()
}
