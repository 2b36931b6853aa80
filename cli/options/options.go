/*
Package options contains a set of common CLI options and helper functions
to use them.
*/
package options

import (
	"fmt"

	"github.com/attestvm/attestvm/pkg/config"
	"github.com/attestvm/attestvm/pkg/enclave"
	"github.com/attestvm/attestvm/pkg/host"
	"github.com/attestvm/attestvm/pkg/storage"
	"github.com/attestvm/attestvm/pkg/verifier"
	"github.com/urfave/cli"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config is a set of flags common to commands that need the verifier
// configuration.
var Config = []cli.Flag{
	cli.StringFlag{
		Name:  "config-file",
		Usage: "path to the configuration file (built-in defaults when omitted)",
	},
	cli.BoolFlag{
		Name:  "debug, d",
		Usage: "enable debug logging (precedence over config)",
	},
}

// GetConfigFromContext reads the configuration per the config-file flag,
// falling back to built-in defaults.
func GetConfigFromContext(ctx *cli.Context) (config.Config, error) {
	if path := ctx.String("config-file"); path != "" {
		return config.Load(path)
	}
	return config.Default(), nil
}

// HandleLoggingParams builds a zap logger per the application
// configuration and the debug flag.
func HandleLoggingParams(ctx *cli.Context, cfg config.ApplicationConfiguration) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if len(cfg.LogLevel) > 0 {
		var err error
		level, err = zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("log setting: %w", err)
		}
	}
	if ctx.Bool("debug") {
		level = zapcore.DebugLevel
	}

	cc := zap.NewProductionConfig()
	cc.DisableCaller = true
	cc.DisableStacktrace = true
	cc.EncoderConfig.EncodeDuration = zapcore.StringDurationEncoder
	cc.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cc.Encoding = "console"
	cc.Level = zap.NewAtomicLevelAt(level)
	cc.Sampling = nil

	return cc.Build()
}

// GetVerifierFromContext assembles the storage, host, platform and
// verifier per the effective configuration. The returned cleanup function
// tears the verifier down and closes the storage.
func GetVerifierFromContext(ctx *cli.Context) (*verifier.Verifier, func(), error) {
	cfg, err := GetConfigFromContext(ctx)
	if err != nil {
		return nil, nil, cli.NewExitError(err, 1)
	}
	log, err := HandleLoggingParams(ctx, cfg.ApplicationConfiguration)
	if err != nil {
		return nil, nil, cli.NewExitError(err, 1)
	}

	store, err := storage.NewStore(cfg.ApplicationConfiguration.DBConfiguration)
	if err != nil {
		return nil, nil, cli.NewExitError(fmt.Errorf("storage: %w", err), 1)
	}

	platform, err := enclave.NewLocalPlatform(
		cfg.EnclaveConfiguration.Identity,
		[]byte(cfg.EnclaveConfiguration.PlatformSecret),
	)
	if err != nil {
		closeErr := store.Close()
		if closeErr != nil {
			log.Error("failed to close storage", zap.Error(closeErr))
		}
		return nil, nil, cli.NewExitError(fmt.Errorf("platform: %w", err), 1)
	}

	v, err := verifier.New(verifier.Config{
		Log:              log,
		Platform:         platform,
		Host:             host.NewLocalHost(log, store),
		KeystoreKey:      cfg.EnclaveConfiguration.KeystoreKey,
		RequireSealedKey: cfg.EnclaveConfiguration.RequireSealedKey,
		ProgramCacheSize: cfg.EnclaveConfiguration.ProgramCacheSize,
	})
	if err != nil {
		closeErr := store.Close()
		if closeErr != nil {
			log.Error("failed to close storage", zap.Error(closeErr))
		}
		return nil, nil, cli.NewExitError(fmt.Errorf("verifier init: %w", err), 1)
	}

	cleanup := func() {
		if err := v.Close(); err != nil {
			log.Error("failed to close verifier", zap.Error(err))
		}
		if err := store.Close(); err != nil {
			log.Error("failed to close storage", zap.Error(err))
		}
	}
	return v, cleanup, nil
}

// GetGasFromContext returns the gas limit flag value or the configured
// default.
func GetGasFromContext(ctx *cli.Context) (uint64, error) {
	if ctx.IsSet("gas") {
		return ctx.Uint64("gas"), nil
	}
	cfg, err := GetConfigFromContext(ctx)
	if err != nil {
		return 0, err
	}
	return cfg.EnclaveConfiguration.DefaultGasLimit, nil
}
