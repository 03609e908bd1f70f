package main

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// persistent CLI flags
	configFlag  string
	traceFlag   bool
	logFileFlag string

	// this is set by goreleaser
	version string
)

// cmdRoot is the base command when no other command has been specified.
var cmdRoot = &cobra.Command{
	Use:   "offline-cache",
	Short: "Offline-first caching gateway",
	Long: `
offline-cache fronts a single origin with a generation-versioned response
cache. It pre-populates the cache from an asset manifest, answers requests
cache-first with network fallback, and serves a cached offline page to HTML
navigations when the origin cannot answer.
`,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(0)
	},
}

func init() {
	pf := cmdRoot.PersistentFlags()
	pf.StringVarP(&configFlag, "config", "c", "", "config file to load")
	pf.BoolVar(&traceFlag, "trace", false, "verbosity: trace logging")
	pf.StringVar(&logFileFlag, "log-file", "", "log file to use (in addition to stdout)")

	if version == "" {
		version = "DEV"
	}
}

func setupLogging() error {
	logLevel := zerolog.DebugLevel
	if traceFlag {
		logLevel = zerolog.TraceLevel
	}

	// log to stdout, and also to a logfile if specified
	logOutputs := make([]io.Writer, 0)
	logOutputs = append(logOutputs, zerolog.ConsoleWriter{Out: os.Stdout})
	if logFileFlag != "" {
		logFileOutput, err := os.OpenFile(logFileFlag, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0644)
		if err != nil {
			return fmt.Errorf("cannot open log file: %w", err)
		}
		logOutputs = append(logOutputs, logFileOutput)
	}
	multiWriter := zerolog.MultiLevelWriter(logOutputs...)
	log.Logger = log.Level(logLevel).Output(multiWriter).
		With().Str("version", version).Logger()
	return nil
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
