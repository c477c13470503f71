// Package storage defines the per-client key-value storage that holds the
// persisted auth state of a browser: the issued anti-replay state, the
// tokens and the session user.
package storage

import "context"

// Keys written by the callback flow and the retry handler.
const (
	KeyAuthToken           = "auth_token"
	KeyRefreshToken        = "refresh_token"
	KeyUser                = "user"
	KeyOAuthState          = "oauth_state"
	KeyOAuthStateTimestamp = "oauth_state_timestamp"
	KeyOAuthRetryCount     = "oauth_retry_count"

	// KeyOAuthCountdownDeadline holds the unix milliseconds at which a
	// running retry countdown reaches zero.
	KeyOAuthCountdownDeadline = "oauth_countdown_deadline"
)

// Storage is the key-value namespace of a single client. Get returns
// serviceerr.ErrStorageNotFound for a missing key. Clear removes every key of
// the namespace and is idempotent.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Clear(ctx context.Context) error
}

// Provider hands out the namespace of a client.
type Provider interface {
	Scope(clientID string) Storage
}
