package business

import (
	"context"
	"fmt"
	"net/http"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/valkey-io/valkey-go"

	slogctx "github.com/veqryn/slog-context"

	"github.com/finledger/auth-callback/internal/backend"
	"github.com/finledger/auth-callback/internal/business/server"
	"github.com/finledger/auth-callback/internal/callback"
	"github.com/finledger/auth-callback/internal/config"
	"github.com/finledger/auth-callback/internal/oautherr"
	"github.com/finledger/auth-callback/internal/random"
	"github.com/finledger/auth-callback/internal/storage"
	storagememory "github.com/finledger/auth-callback/internal/storage/memory"
	storagevalkey "github.com/finledger/auth-callback/internal/storage/valkey"
)

// Main starts the HTTP server completing sign-ins.
func Main(ctx context.Context, cfg *config.Config) error {
	svc, closeFn, err := initServices(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialising the services: %w", err)
	}

	defer closeFn()

	return server.StartHTTPServer(ctx, cfg, svc)
}

func initServices(ctx context.Context, cfg *config.Config) (_ server.Services, closeFn func(), _ error) {
	backendClient, err := backend.NewClient(cfg.Backend.BaseURL, &http.Client{Timeout: cfg.Backend.Timeout})
	if err != nil {
		return server.Services{}, nil, fmt.Errorf("creating backend client: %w", err)
	}

	stateSecret, err := commoncfg.LoadValueFromSourceRef(cfg.StateSecret)
	if err != nil {
		return server.Services{}, nil, fmt.Errorf("loading state secret: %w", err)
	}

	retrier, err := oautherr.NewRetrier(oautherr.SigninOptions{
		BackendBaseURL: backendClient.BaseURL().String(),
		Path:           cfg.Signin.Path,
		LoginContext:   cfg.Signin.LoginContext,
		ReturnTo:       cfg.Signin.ReturnTo,
		ErrorCallback:  cfg.Signin.ErrorCallback,
		AppVersion:     cfg.Signin.AppVersion,
		Locale:         cfg.Signin.Locale,
		AccessType:     cfg.Signin.AccessType,
		Prompt:         cfg.Signin.Prompt,
	}, stateSecret)
	if err != nil {
		return server.Services{}, nil, fmt.Errorf("creating retrier: %w", err)
	}

	flow, err := callback.NewFlow(callback.Config{
		Provider:        cfg.Callback.Provider,
		RedirectURI:     cfg.Callback.RedirectURI,
		MaxRetries:      cfg.Callback.MaxRetries,
		RetryDelay:      cfg.Callback.RetryDelay,
		InitialDelay:    cfg.Callback.InitialDelay,
		PopupCloseDelay: cfg.Callback.PopupCloseDelay,
		LoginRoute:      cfg.Routes.Login,
		SignupRoute:     cfg.Routes.Signup,
		DashboardRoute:  cfg.Routes.Dashboard,
	}, backendClient, random.Source{}, callback.WithStateValidator(retrier))
	if err != nil {
		return server.Services{}, nil, fmt.Errorf("creating callback flow: %w", err)
	}

	provider, closeFn, err := initStorage(ctx, cfg)
	if err != nil {
		return server.Services{}, nil, fmt.Errorf("initialising storage: %w", err)
	}

	return server.Services{
		Flow:    flow,
		Storage: provider,
		Catalog: oautherr.DefaultCatalog(),
		Retrier: retrier,
	}, closeFn, nil
}

func initStorage(ctx context.Context, cfg *config.Config) (_ storage.Provider, closeFn func(), _ error) {
	switch cfg.Storage.Backend {
	case config.StorageBackendMemory:
		slogctx.Warn(ctx, "Using in-memory storage, auth state is lost on restart")
		return storagememory.NewProvider(cfg.Storage.TTL), func() {}, nil
	case config.StorageBackendValKey, "":
		valkeyClient, err := valkeyClientFromConfig(cfg)
		if err != nil {
			return nil, nil, err
		}

		return storagevalkey.NewProvider(valkeyClient, cfg.ValKey.Prefix, cfg.Storage.TTL), valkeyClient.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func valkeyClientFromConfig(cfg *config.Config) (valkey.Client, error) {
	valkeyHost, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Host)
	if err != nil {
		return nil, fmt.Errorf("loading valkey host: %w", err)
	}

	valkeyUsername, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.User)
	if err != nil {
		return nil, fmt.Errorf("loading valkey username: %w", err)
	}

	valkeyPassword, err := commoncfg.LoadValueFromSourceRef(cfg.ValKey.Password)
	if err != nil {
		return nil, fmt.Errorf("loading valkey password: %w", err)
	}

	valkeyOpts := valkey.ClientOption{
		InitAddress: []string{string(valkeyHost)},
		Username:    string(valkeyUsername),
		Password:    string(valkeyPassword),
	}

	if cfg.ValKey.SecretRef.Type == commoncfg.MTLSSecretType {
		tlsConfig, err := commoncfg.LoadMTLSConfig(&cfg.ValKey.SecretRef.MTLS)
		if err != nil {
			return nil, fmt.Errorf("loading valkey mTLS config from secret ref: %w", err)
		}

		valkeyOpts.TLSConfig = tlsConfig
	}

	valkeyClient, err := valkey.NewClient(valkeyOpts)
	if err != nil {
		return nil, fmt.Errorf("creating a new valkey client: %w", err)
	}

	return valkeyClient, nil
}
