package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/openkcm/common-sdk/pkg/fingerprint"
	"github.com/samber/oops"

	slogctx "github.com/veqryn/slog-context"

	"github.com/finledger/auth-callback/internal/callback"
	"github.com/finledger/auth-callback/internal/config"
	"github.com/finledger/auth-callback/internal/middleware/client"
	"github.com/finledger/auth-callback/internal/oautherr"
	"github.com/finledger/auth-callback/internal/openapi"
	"github.com/finledger/auth-callback/internal/random"
	"github.com/finledger/auth-callback/internal/storage"
)

// Services are the business components served over HTTP.
type Services struct {
	Flow    *callback.Flow
	Storage storage.Provider
	Catalog oautherr.Catalog
	Retrier *oautherr.Retrier
}

// createHTTPServer creates an API http server using the given config
func createHTTPServer(_ context.Context, cfg *config.Config, svc Services) (*http.Server, error) {
	if svc.Flow == nil || svc.Storage == nil || svc.Retrier == nil || svc.Catalog == nil {
		return nil, errors.New("all services must be set")
	}

	handler := fingerprint.FingerprintCtxMiddleware(newRouter(cfg, svc))
	handler = client.Middleware(cfg.Cookies, random.Source{})(handler)

	return &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: handler,
	}, nil
}

func newRouter(cfg *config.Config, svc Services) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(newTraceMiddleware(cfg))
	r.SetHTMLTemplate(popupTemplate)

	r.GET("/ping", pingHandlerFunc())

	openapi.RegisterHandlersWithOptions(r, newOpenAPIServer(cfg, svc), openapi.GinServerOptions{
		ErrorHandler: invalidParamsHandler,
	})

	return r
}

// StartHTTPServer starts the HTTP server using the given config.
func StartHTTPServer(ctx context.Context, cfg *config.Config, svc Services) error {
	if err := initMeters(ctx, cfg); err != nil {
		return err
	}

	server, err := createHTTPServer(ctx, cfg, svc)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create the server")
	}

	slogctx.Info(ctx, "Starting a listener", "address", server.Addr)

	// Parse network if the address if provided in the format of network://address.
	// Otherwise use tcp network by default. Binding to a unix socket spares
	// integration tests the lookup of a free port.
	network := "tcp"
	if idx := strings.IndexRune(server.Addr, ':'); idx != -1 && len(server.Addr) > idx+3 && server.Addr[idx:idx+3] == "://" {
		network = server.Addr[:idx]
		server.Addr = server.Addr[idx+3:]
	}

	listener, err := new(net.ListenConfig).Listen(ctx, network, server.Addr)
	if err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed to create a listener")
	}

	slogctx.Info(ctx, "A listener started", "address", listener.Addr().String())

	go func() {
		slogctx.Info(ctx, "Serving an HTTP server", "address", listener.Addr().String())
		err := server.Serve(listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slogctx.Error(ctx, "Failed to serve an HTTP server", "error", err)
		}

		slogctx.Info(ctx, "Stopped an HTTP server")
	}()

	<-ctx.Done()

	shutdownCtx, shutdownRelease := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer shutdownRelease()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return oops.In("HTTP Server").
			WithContext(ctx).
			Wrapf(err, "Failed shutting down HTTP server")
	}

	slogctx.Info(ctx, "Completed graceful shutdown of HTTP server")

	return nil
}
