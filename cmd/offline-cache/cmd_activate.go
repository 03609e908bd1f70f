package main

import (
	"context"
	"encoding/json"
	"os"

	offlinecache "github.com/goldshop/offline-cache"

	"github.com/spf13/cobra"
)

var cmdActivate = &cobra.Command{
	Use:   "activate",
	Short: "Sweep cache generations other than the current one",
	Long: `
The "activate" command deletes every cache instance whose name differs
from the configured generation and prints a report. Run it after a deploy
once the new generation is installed.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runActivate(cmd.Context())
	},
}

var activateOptions overrideFlags

func init() {
	cmdRoot.AddCommand(cmdActivate)

	f := cmdActivate.Flags()
	f.StringVar(&activateOptions.Generation, "generation", "", "cache generation identifier (overrides config)")
	f.StringVar(&activateOptions.Origin, "origin", "", "origin URL (overrides config)")
	f.StringVar(&activateOptions.DB, "db", "", "cache db file (use 'memory' for an in-memory db)")
}

func runActivate(ctx context.Context) error {
	config, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	activateOptions.apply(&config)
	if err := config.validate(); err != nil {
		return err
	}

	store, err := openStore(config.Store)
	if err != nil {
		return err
	}
	defer store.Close()

	gateway, err := offlinecache.New(offlinecache.Config{
		Generation: config.Generation,
		OriginURL:  config.Origin,
		Store:      store,
	})
	if err != nil {
		return err
	}
	defer gateway.Close()

	report, err := gateway.Activate(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
