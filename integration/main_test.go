//go:build integration

package integration_test

import (
	"context"
	"os"
	"testing"

	"github.com/finledger/auth-callback/internal/dbtest/valkeytest"
)

var valkeyAddr string

func TestMain(m *testing.M) {
	ctx := context.Background()

	_, addr, terminate := valkeytest.Start(ctx)
	valkeyAddr = addr

	code := m.Run()
	terminate(ctx)

	os.Exit(code)
}
