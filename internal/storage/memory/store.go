// Package storagememory keeps the client namespaces in process memory. It is
// meant for local development and tests; entries expire after the configured
// TTL.
package storagememory

import (
	"context"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/finledger/auth-callback/internal/serviceerr"
	"github.com/finledger/auth-callback/internal/storage"
)

const cleanupInterval = 10 * time.Minute

type Provider struct {
	cache *cache.Cache
}

var _ storage.Provider = (*Provider)(nil)

func NewProvider(ttl time.Duration) *Provider {
	return &Provider{
		cache: cache.New(ttl, cleanupInterval),
	}
}

func (p *Provider) Scope(clientID string) storage.Storage {
	return &namespace{
		cache:  p.cache,
		prefix: "client:" + clientID + ":",
	}
}

type namespace struct {
	cache  *cache.Cache
	prefix string
}

func (n *namespace) Get(_ context.Context, key string) (string, error) {
	val, ok := n.cache.Get(n.prefix + key)
	if !ok {
		return "", serviceerr.ErrStorageNotFound
	}

	//nolint:forcetypeassert
	return val.(string), nil
}

func (n *namespace) Set(_ context.Context, key, value string) error {
	n.cache.SetDefault(n.prefix+key, value)
	return nil
}

func (n *namespace) Clear(_ context.Context) error {
	for key := range n.cache.Items() {
		if strings.HasPrefix(key, n.prefix) {
			n.cache.Delete(key)
		}
	}

	return nil
}
