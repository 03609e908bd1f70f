package main

import (
	"context"
	"encoding/json"
	"os"

	offlinecache "github.com/goldshop/offline-cache"

	"github.com/spf13/cobra"
)

var cmdInstall = &cobra.Command{
	Use:   "install",
	Short: "Pre-populate the cache generation from the asset manifest",
	Long: `
The "install" command fetches every manifest path from the origin and
stores the responses in the configured cache generation, then prints a
per-asset report. Paths that cannot be fetched are reported but do not
fail the install.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInstall(cmd.Context())
	},
}

var installOptions overrideFlags

func init() {
	cmdRoot.AddCommand(cmdInstall)

	f := cmdInstall.Flags()
	f.StringVar(&installOptions.Generation, "generation", "", "cache generation identifier (overrides config)")
	f.StringVar(&installOptions.Origin, "origin", "", "origin URL to fetch from (overrides config)")
	f.StringVar(&installOptions.DB, "db", "", "cache db file (use 'memory' for an in-memory db)")
}

func runInstall(ctx context.Context) error {
	config, err := loadConfig(configFlag)
	if err != nil {
		return err
	}
	installOptions.apply(&config)
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
		Manifest:   config.Manifest,
		OriginURL:  config.Origin,
		OriginHost: config.OriginHost,
		Store:      store,
	})
	if err != nil {
		return err
	}
	defer gateway.Close()

	report, err := gateway.Install(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
