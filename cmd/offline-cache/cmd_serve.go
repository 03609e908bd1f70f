package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	offlinecache "github.com/goldshop/offline-cache"
	"github.com/goldshop/offline-cache/pkg/metrics"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "Install the manifest, activate the generation and serve traffic",
	Long: `
The "serve" command runs the caching gateway. On startup it installs the
asset manifest into the configured cache generation, activates (sweeping
stale generations), and then serves client traffic on the listen address
and the control API on the control address.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

// ServeOptions bundles all options for the serve command.
type ServeOptions struct {
	overrideFlags
	Listen        string
	ControlListen string
	NoInstall     bool
	NoActivate    bool
}

var serveOptions ServeOptions

func init() {
	cmdRoot.AddCommand(cmdServe)

	f := cmdServe.Flags()
	f.StringVar(&serveOptions.Listen, "listen", "", "address to serve client traffic on (overrides config)")
	f.StringVar(&serveOptions.ControlListen, "control-listen", "", "address to serve the control API on (overrides config)")
	f.StringVar(&serveOptions.Generation, "generation", "", "cache generation identifier (overrides config)")
	f.StringVar(&serveOptions.Origin, "origin", "", "origin URL to front (overrides config)")
	f.StringVar(&serveOptions.DB, "db", "", "cache db file (use 'memory' for an in-memory db)")
	f.BoolVar(&serveOptions.NoInstall, "no-install", false, "skip the manifest install on startup")
	f.BoolVar(&serveOptions.NoActivate, "no-activate", false, "do not sweep stale generations on startup")
}

func runServe(ctx context.Context) error {
	config, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	serveOptions.apply(&config)
	if serveOptions.Listen != "" {
		config.Listen = serveOptions.Listen
	}
	if serveOptions.ControlListen != "" {
		config.ControlListen = serveOptions.ControlListen
	}
	if err := config.validate(); err != nil {
		return err
	}

	store, err := openStore(config.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	sw := offlinecache.NewSwitch()
	gateway, err := offlinecache.New(offlinecache.Config{
		Generation:        config.Generation,
		Manifest:          config.Manifest,
		OfflinePath:       config.OfflinePath,
		ExcludeSubstrings: config.Exclude,
		OriginURL:         config.Origin,
		OriginHost:        config.OriginHost,
		Store:             store,
		Claimer:           sw,
		Metrics:           metrics.NewTracker(0.01),
		WriteQueue:        config.WriteQueue,
	})
	if err != nil {
		return err
	}
	defer gateway.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if !serveOptions.NoInstall {
		report, err := gateway.Install(ctx)
		if err != nil {
			return err
		}
		log.Info().
			Int("installed", len(report.Installed)).
			Int("failed", len(report.Failed)).
			Msg("manifest installed")
	}
	if !serveOptions.NoActivate {
		if _, err := gateway.Activate(ctx); err != nil {
			return err
		}
	} else if err := sw.Claim(ctx, gateway); err != nil {
		return err
	}

	if config.statsEvery > 0 {
		go gateway.LogStatsEvery(ctx, config.statsEvery)
	}

	server := &http.Server{Addr: config.Listen, Handler: sw}
	control := &http.Server{Addr: config.ControlListen, Handler: gateway.ControlHandler()}
	errs := make(chan error, 2)
	go func() {
		log.Info().Str("addr", config.Listen).Str("origin", config.Origin).Msg("serving client traffic")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			errs <- err
		}
	}()
	go func() {
		log.Info().Str("addr", config.ControlListen).Msg("serving control api")
		if err := control.ListenAndServe(); err != http.ErrServerClosed {
			errs <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
	case err := <-errs:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}
	if err := control.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("control shutdown")
	}
	return nil
}
