// Package storagevalkey keeps the client namespaces in Valkey. Every key of a
// namespace lives under "<prefix>:client:<clientID>:" and expires after the
// configured TTL.
package storagevalkey

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/finledger/auth-callback/internal/serviceerr"
	"github.com/finledger/auth-callback/internal/storage"
)

const scanCount = 100

type Provider struct {
	valkey valkey.Client
	prefix string
	ttl    time.Duration
}

var _ storage.Provider = (*Provider)(nil)

func NewProvider(valkeyClient valkey.Client, prefix string, ttl time.Duration) *Provider {
	return &Provider{
		valkey: valkeyClient,
		prefix: strings.TrimSuffix(prefix, ":"),
		ttl:    ttl,
	}
}

func (p *Provider) Scope(clientID string) storage.Storage {
	return &namespace{
		valkey: p.valkey,
		prefix: fmt.Sprintf("%s:client:%s:", p.prefix, clientID),
		ttl:    p.ttl,
	}
}

type namespace struct {
	valkey valkey.Client
	prefix string
	ttl    time.Duration
}

func (n *namespace) Get(ctx context.Context, key string) (string, error) {
	val, err := n.valkey.Do(ctx, n.valkey.B().Get().Key(n.prefix+key).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return "", serviceerr.ErrStorageNotFound
		}

		return "", fmt.Errorf("executing get command: %w", err)
	}

	return val, nil
}

func (n *namespace) Set(ctx context.Context, key, value string) error {
	seconds := max(int64(n.ttl/time.Second), 1)

	cmd := n.valkey.B().Set().Key(n.prefix + key).Value(value).ExSeconds(seconds).Build()
	if err := n.valkey.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("executing set command: %w", err)
	}

	return nil
}

func (n *namespace) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		scan, err := n.valkey.Do(ctx, n.valkey.B().Scan().Cursor(cursor).Match(n.prefix+"*").Count(scanCount).Build()).AsScanEntry()
		if err != nil {
			return fmt.Errorf("executing scan command: %w", err)
		}

		if len(scan.Elements) > 0 {
			if err := n.valkey.Do(ctx, n.valkey.B().Del().Key(scan.Elements...).Build()).Error(); err != nil {
				return fmt.Errorf("executing del command: %w", err)
			}
		}

		cursor = scan.Cursor
		if cursor == 0 {
			return nil
		}
	}
}
