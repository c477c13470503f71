package cmdutils

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"syscall"
	"time"

	"github.com/openkcm/common-sdk/pkg/commoncfg"
	"github.com/openkcm/common-sdk/pkg/health"
	"github.com/openkcm/common-sdk/pkg/logger"
	"github.com/openkcm/common-sdk/pkg/otlp"
	"github.com/openkcm/common-sdk/pkg/status"
	"github.com/samber/oops"
	"github.com/spf13/cobra"

	slogctx "github.com/veqryn/slog-context"

	"github.com/finledger/auth-callback/internal/config"
)

const (
	healthStatusTimeout = 5 * time.Second
)

// configPaths are searched in order for config.yaml.
var configPaths = []string{
	"/etc/auth-callback",
	"$HOME/.auth-callback",
	".",
}

// PrependConfigPaths makes dirs take precedence over the default search paths.
func PrependConfigPaths(dirs ...string) {
	configPaths = append(slices.Clone(dirs), configPaths...)
}

func CobraCommand(
	use, short, long, buildInfo string,
	wrapperFunc func(context.Context, func(context.Context, *config.Config) error, *config.Config) error,
	businesFunc func(context.Context, *config.Config) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Long:  long,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(buildInfo, configPaths...)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}

			err = wrapperFunc(cmd.Context(), businesFunc, cfg)
			if err != nil {
				return fmt.Errorf("running %s: %w", use, err)
			}

			return nil
		},
	}
}

// RunAsService initialises logging, telemetry and the status server before
// handing over to fn.
func RunAsService(ctx context.Context, fn func(context.Context, *config.Config) error, cfg *config.Config) error {
	// LoggerConfig
	err := logger.InitAsDefault(cfg.Logger, cfg.Application)
	if err != nil {
		return oops.In("main").
			Wrapf(err, "Failed to initialise the logger")
	}
	slogctx.Debug(ctx, "Starting the application", slog.Any("config", cfg))

	// OpenTelemetry
	err = otlp.Init(ctx, &cfg.Application, &cfg.Telemetry, &cfg.Logger)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to load the telemetry")
	}

	// Status Server
	go func() {
		err := startStatusServer(ctx, cfg)
		if err != nil {
			slogctx.Error(ctx, "Failure on the status server", "error", err)
			_ = syscall.Kill(syscall.Getpid(), syscall.SIGTERM)
		}
	}()

	// Business Logic
	err = fn(ctx, cfg)
	if err != nil {
		return oops.In("main").Wrapf(err, "Failed to start the main business application")
	}

	return nil
}

func loadConfig(buildInfo string, paths ...string) (*config.Config, error) {
	cfg := &config.Config{}

	err := commoncfg.LoadConfig(cfg, map[string]any{}, paths...)
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	if err := validateStorage(cfg); err != nil {
		return nil, err
	}

	// Update Version
	err = commoncfg.UpdateConfigVersion(
		&cfg.BaseConfig,
		buildInfo,
	)
	if err != nil {
		return nil, fmt.Errorf("updating the version configuration: %w", err)
	}

	return cfg, nil
}

// validateStorage rejects a storage configuration the service could not
// start with, before any component is initialised.
func validateStorage(cfg *config.Config) error {
	switch cfg.Storage.Backend {
	case config.StorageBackendMemory:
		return nil
	case config.StorageBackendValKey:
		host := cfg.ValKey.Host
		if host.Source == commoncfg.EmbeddedSourceValue && host.Value == "" {
			return errors.New("valkey storage requires valkey.host")
		}

		return nil
	default:
		return fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}

func startStatusServer(ctx context.Context, cfg *config.Config) error {
	liveness := status.WithLiveness(
		health.NewHandler(
			health.NewChecker(health.WithDisabledAutostart()),
		),
	)

	healthOptions := []health.Option{
		health.WithDisabledAutostart(),
		health.WithTimeout(healthStatusTimeout),
		health.WithStatusListener(statusListener),
	}

	readiness := status.WithReadiness(
		health.NewHandler(
			health.NewChecker(healthOptions...),
		),
	)

	err := status.Start(ctx, &cfg.BaseConfig, liveness, readiness)
	if err != nil {
		return fmt.Errorf("starting status server: %w", err)
	}

	return nil
}

func statusListener(ctx context.Context, state health.State) {
	failed := make([]string, 0, len(state.CheckState))
	for name, check := range state.CheckState {
		if check.Result != nil {
			failed = append(failed, name)
		}
	}

	slogctx.Info(ctx, "readiness status changed", "status", state.Status, "failedChecks", failed)
}
