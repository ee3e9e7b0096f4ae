// kvconsole serves the Redis admin console API: session lifecycle, the key
// browser, the restricted shell and the audit history stream.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"kvconsole/internal/audit"
	"kvconsole/internal/config"
	"kvconsole/internal/console"
	"kvconsole/internal/constants"
	"kvconsole/internal/dashboard"
	"kvconsole/internal/lifecycle"
	"kvconsole/internal/logger"
	"kvconsole/internal/registry"
	"kvconsole/internal/server"
	"kvconsole/internal/vault"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var (
		envFile   string
		listen    string
		logLevel  string
		logFormat string
		version   bool
	)

	flagSet := pflag.NewFlagSet(constants.AppName, pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&envFile, "env-file", ".env", "env file to load before reading the environment")
	flagSet.StringVar(&listen, "listen", "", "listen address (overrides PORT and KVCONSOLE_LISTEN_ADDR)")
	flagSet.StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	flagSet.StringVar(&logFormat, "log-format", "", "log format: json or console")
	flagSet.BoolVar(&version, "version", false, "print the version and exit")

	if err := flagSet.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if version {
		fmt.Fprintf(stdout, "%s v%s\n", constants.AppName, constants.Version)
		return nil
	}
	if rest := flagSet.Args(); len(rest) > 0 {
		return fmt.Errorf("unexpected argument: %s", rest[0])
	}

	if err := config.LoadEnvFile(envFile); err != nil {
		return err
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if listen != "" {
		cfg.ListenAddr = listen
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
	}
	if logFormat != "" {
		cfg.LogFormat = logFormat
	}

	log, logCloser, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat, File: cfg.LogFile}, stdout)
	if err != nil {
		return err
	}
	defer logCloser.Close()

	secrets, err := vault.NewStore(cfg.Vault, log)
	if err != nil {
		return fmt.Errorf("failed to initialize credential vault: %w", err)
	}

	history, err := audit.New(cfg.Audit, log)
	if err != nil {
		return fmt.Errorf("failed to initialize audit log: %w", err)
	}

	reg := registry.New(secrets, log)
	proto := lifecycle.New(cfg.Lifecycle, reg, log)
	svc := console.New(proto, reg, history, cfg.OperationTimeout, log)
	monitor := registry.NewMonitor(reg, cfg.HealthInterval, constants.HealthPingTimeout, svc.SessionLost, log)

	srv := server.New(cfg, server.Deps{
		Service:   svc,
		Registry:  reg,
		History:   history,
		Dashboard: dashboard.New(history, log),
		Vault:     secrets,
		Monitor:   monitor,
	}, log)

	log.Info().Str("version", constants.Version).Msg("🚀 kvconsole starting")
	return srv.Run(ctx)
}
