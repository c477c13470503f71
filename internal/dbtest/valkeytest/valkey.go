// Package valkeytest runs a disposable Valkey container for storage tests.
package valkeytest

import (
	"context"
	"net"

	"github.com/docker/go-connections/nat"
	"github.com/valkey-io/valkey-go"

	valkeycontainer "github.com/testcontainers/testcontainers-go/modules/valkey"
	slogctx "github.com/veqryn/slog-context"
)

const (
	image = "valkey/valkey:8-alpine"
	port  = nat.Port("6379/tcp")
)

// Start runs a Valkey container and returns a connected client, the mapped
// address and a function terminating both. It panics when the container
// cannot be started since no storage test can run without it.
func Start(ctx context.Context) (valkey.Client, string, func(ctx context.Context)) {
	container, err := valkeycontainer.Run(ctx, image)
	if err != nil {
		slogctx.Error(ctx, "Failed to start Valkey container", "error", err)
		panic(err)
	}

	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		slogctx.Error(ctx, "Failed to map the Valkey port", "error", err)
		panic(err)
	}

	addr := net.JoinHostPort("localhost", mapped.Port())

	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{addr},
	})
	if err != nil {
		slogctx.Error(ctx, "Failed to create a Valkey client", "address", addr, "error", err)
		panic(err)
	}

	terminate := func(ctx context.Context) {
		client.Close()

		if err := container.Terminate(ctx); err != nil {
			slogctx.Error(ctx, "Failed to terminate Valkey container", "error", err)
		}
	}

	return client, addr, terminate
}
