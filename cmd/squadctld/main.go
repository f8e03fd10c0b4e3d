package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"go.fieldops.dev/squadctl/internal/facade"
	"go.fieldops.dev/squadctl/internal/logsource"
	"go.fieldops.dev/squadctl/internal/rcon"
	"go.fieldops.dev/squadctl/internal/shared/config"
	"go.fieldops.dev/squadctl/internal/shared/logger"
	"go.fieldops.dev/squadctl/internal/store/valkeysnapshot"
	"go.fieldops.dev/squadctl/internal/valkey"
)

const shutdownDrain = 10 * time.Second

func run(ctx context.Context, c *cli.Command) error {
	logLevel := c.String("log-level")
	if logLevel == "" {
		logLevel = config.Config.Log.Level
	}
	pretty := c.Bool("log-pretty")
	if !c.IsSet("log-pretty") {
		pretty = config.Config.Debug.Pretty
	}

	if err := logger.SetupGlobalLogger(ctx, logLevel, pretty, config.Config.Debug.NoColor, config.Config.Log.File, true); err != nil {
		return fmt.Errorf("set up logger: %w", err)
	}

	sourceType := c.String("log-source-type")
	if sourceType == "" {
		sourceType = config.Config.LogSource.Type
	}

	srv, err := facade.New(facade.Config{
		Rcon: rcon.Config{
			Host:           c.String("rcon-host"),
			Port:           int(c.Int("rcon-port")),
			Password:       c.String("rcon-password"),
			CommandTimeout: time.Duration(config.Config.Rcon.CommandTimeout) * time.Second,
			QueueBound:     config.Config.Rcon.QueueBound,
			KeepAliveIdle:  time.Duration(config.Config.Rcon.KeepAliveIdle) * time.Second,
		},
		LogSource: logsource.Config{
			Type:          logsource.Type(sourceType),
			FilePath:      config.Config.LogSource.FilePath,
			Host:          config.Config.LogSource.Host,
			Port:          config.Config.LogSource.Port,
			Username:      config.Config.LogSource.Username,
			Password:      config.Config.LogSource.Password,
			PollFrequency: time.Duration(config.Config.LogSource.PollFrequency) * time.Second,
			ReadFromStart: config.Config.LogSource.ReadFromStart,
		},
		BusQueue: config.Config.EventBus.QueueSize,
	})
	if err != nil {
		return fmt.Errorf("build server: %w", err)
	}

	waitingGroup := errgroup.Group{}

	if config.Config.Valkey.Enabled {
		client, err := valkey.NewClient(valkey.Config{
			Host:     config.Config.Valkey.Host,
			Port:     config.Config.Valkey.Port,
			Password: config.Config.Valkey.Password,
			Database: config.Config.Valkey.Database,
		})
		if err != nil {
			return fmt.Errorf("connect to valkey: %w", err)
		}
		defer client.Close()

		snapshot := valkeysnapshot.New(client, srv.Store(), 0)
		if err := snapshot.Restore(ctx); err != nil {
			log.Warn().Err(err).Msg("squadctld: failed to restore player snapshot, starting empty")
		}

		waitingGroup.Go(func() error {
			log.Info().Msg("starting valkey snapshot persistence")
			if err := snapshot.Run(ctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
	}

	log.Info().Str("server_id", srv.ID.String()).Msg("starting squadctld")
	srv.Start(ctx)

	waitingGroup.Go(func() error {
		<-ctx.Done()
		log.Info().Msg("shutting down squadctld")
		srv.Stop(shutdownDrain)
		return nil
	})

	return waitingGroup.Wait()
}

// withSigtermContext returns a context cancelled on SIGINT/SIGTERM, logging
// once before the cancellation propagates to the running server.
func withSigtermContext(parent context.Context) context.Context {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ctx.Done()
		stop()
		log.Info().Msg("received shutdown signal")
	}()
	return ctx
}

func main() {
	ctx := withSigtermContext(context.Background())

	app := &cli.Command{
		Name:  "squadctld",
		Usage: "RCON and log correlation daemon for a Squad game server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Sources: cli.EnvVars("RCON_HOST"),
				Name:    "rcon-host",
				Usage:   "Squad server RCON host",
				Value:   config.Config.Rcon.Host,
			},
			&cli.IntFlag{
				Sources: cli.EnvVars("RCON_PORT"),
				Name:    "rcon-port",
				Usage:   "Squad server RCON port",
				Value:   int64(config.Config.Rcon.Port),
			},
			&cli.StringFlag{
				Sources:  cli.EnvVars("RCON_PASSWORD"),
				Name:     "rcon-password",
				Usage:    "Squad server RCON password",
				Value:    config.Config.Rcon.Password,
				Required: config.Config.Rcon.Password == "",
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("LOG_SOURCE_TYPE"),
				Name:    "log-source-type",
				Usage:   "Log source type: local, sftp, or ftp",
				Value:   config.Config.LogSource.Type,
			},
			&cli.StringFlag{
				Sources: cli.EnvVars("LOG_LEVEL"),
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error, fatal, panic)",
				Value:   config.Config.Log.Level,
			},
			&cli.BoolFlag{
				Sources: cli.EnvVars("DEBUG_PRETTY"),
				Name:    "log-pretty",
				Usage:   "Enable pretty console logging instead of JSON",
				Value:   config.Config.Debug.Pretty,
			},
		},
		Action: run,
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal().Err(err).Msg("squadctld exited with error")
	}
}
