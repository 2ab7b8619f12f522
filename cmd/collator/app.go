package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/romtool/collator/pkg/config"
	"github.com/romtool/collator/pkg/otelzerolog"
)

// Version is set with ldflags at build time.
//
//nolint:gochecknoglobals
var Version = "dev"

// New builds the collator CLI command: ambient flags (otel, logging, the
// config file itself) plus the domain flags from pkg/config.Flags.
func New() *cli.Command {
	var otelShutdown func(context.Context) error

	var configPath string

	flagSources := config.NewFlagSources(&configPath)

	cmd := &cli.Command{
		Name:    "collator",
		Usage:   "scan, match and arrange ROM collections against DAT catalogs",
		Version: Version,
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			ctx, err := bootstrapLogger(ctx, cmd)
			if err != nil {
				return ctx, err
			}

			autoMaxProcs(ctx)

			res, err := newResource(ctx, cmd)
			if err != nil {
				return ctx, err
			}

			otelShutdown, err = setupOTelSDK(ctx, cmd, res)
			if err != nil {
				return ctx, err
			}

			return ctx, nil
		},
		After: func(ctx context.Context, _ *cli.Command) error {
			if otelShutdown != nil {
				return otelShutdown(ctx)
			}

			return nil
		},
		Flags: append([]cli.Flag{
			&cli.BoolFlag{
				Name:    "otel-enabled",
				Usage:   "Enable Open-Telemetry logs, metrics and tracing.",
				Sources: flagSources("opentelemetry.enabled", "COLLATOR_OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Set the log level",
				Sources: flagSources("log.level", "COLLATOR_LOG_LEVEL"),
				Value:   "info",
				Validator: func(lvl string) error {
					_, err := zerolog.ParseLevel(lvl)

					return err
				},
			},
			&cli.StringFlag{
				Name: "otel-grpc-url",
				Usage: "Configure OpenTelemetry gRPC URL; missing or https " +
					"scheme enables secure gRPC, insecure otherwise. Omit to emit telemetry to stdout.",
				Sources: flagSources("opentelemetry.grpc-url", "COLLATOR_OTEL_GRPC_URL"),
				Validator: func(colURL string) error {
					if colURL == "" {
						return nil
					}

					_, err := url.Parse(colURL)

					return err
				},
			},
			&cli.StringFlag{
				Name:        "config",
				Usage:       "Path to the configuration file (toml, yaml, json)",
				Sources:     cli.EnvVars("COLLATOR_CONFIG_FILE"),
				Value:       defaultConfigPath(),
				Destination: &configPath,
			},
		}, config.Flags(flagSources)...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			cfg, err := config.FromCommand(cmd)
			if err != nil {
				return err
			}

			return Run(ctx, cfg)
		},
	}

	return cmd
}

func defaultConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		panic(fmt.Sprintf("unable to determine user config directory: %v", err))
	}

	return filepath.Join(configDir, "collator", "config.yaml")
}

func bootstrapLogger(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	logLvl := cmd.String("log-level")

	lvl, err := zerolog.ParseLevel(logLvl)
	if err != nil {
		return ctx, fmt.Errorf("error parsing the log-level %q: %w", logLvl, err)
	}

	var output io.Writer = os.Stdout

	colURL := cmd.String("otel-grpc-url")
	if colURL != "" && cmd.Bool("otel-enabled") {
		otelWriter, err := otelzerolog.NewOtelWriter(ctx, colURL, cmd.Root().Name)
		if err != nil {
			return ctx, err
		}

		output = zerolog.MultiLevelWriter(os.Stdout, otelWriter)
	}

	if term.IsTerminal(int(os.Stdout.Fd())) {
		output = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	ctx = zerolog.New(output).
		Level(lvl).
		With().
		Timestamp().
		Logger().
		WithContext(ctx)

	zerolog.Ctx(ctx).Info().
		Str("otel_grpc_url", colURL).
		Str("log_level", lvl.String()).
		Msg("logger created")

	return ctx, nil
}
