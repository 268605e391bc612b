package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sambigeara/sadb/pkg/config"
	"github.com/sambigeara/sadb/pkg/lifecycle"
	"github.com/sambigeara/sadb/pkg/observability/logging"
	"github.com/sambigeara/sadb/pkg/router"
	"github.com/sambigeara/sadb/pkg/store"
	"github.com/sambigeara/sadb/pkg/workspace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sadb",
		Short:         "Manage SDLS security associations",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("dir", "", "Directory where SAs are persisted (default $SADB_DIR or ~/.sadb)")
	rootCmd.PersistentFlags().String("config", "", "Config file (default <dir>/config.yaml)")

	rootCmd.AddCommand(
		newListCmd(),
		newGetCmd(),
		newExportCmd(),
		newCreateCmd(),
		newUpdateCmd(),
		newRekeyCmd(),
		newStartCmd(),
		newStopCmd(),
		newExpireCmd(),
		newDeleteCmd(),
		newBulkCmd(),
		newServeCmd(),
		newConfigCmd(),
	)
	return rootCmd
}

// env is what every command needs once the data dir and config are loaded.
type env struct {
	cfg    *config.Config
	set    *store.Set
	router *router.Router
	dir    string
}

func openEnv(cmd *cobra.Command) (*env, error) {
	dirFlag, _ := cmd.Flags().GetString("dir")
	cfgFlag, _ := cmd.Flags().GetString("config")

	dir, err := workspace.EnsureDir(dirFlag)
	if err != nil {
		return nil, err
	}

	var cfg *config.Config
	if cfgFlag != "" {
		cfg, err = config.LoadFile(cfgFlag)
	} else {
		cfg, err = config.Load(dir)
	}
	if err != nil {
		return nil, err
	}

	if err := logging.Init(cfg.Log); err != nil {
		return nil, fmt.Errorf("init logging: %w", err)
	}

	backend, err := cfg.Backend()
	if err != nil {
		return nil, err
	}
	defaults, err := cfg.SADefaults()
	if err != nil {
		return nil, err
	}

	set, err := store.Open(backend, dir)
	if err != nil {
		return nil, err
	}
	r, err := router.New(set, lifecycle.WithDefaults(defaults))
	if err != nil {
		_ = set.Close()
		return nil, err
	}

	zap.S().Debugw("opened store", "dir", dir, "backend", backend)
	return &env{cfg: cfg, set: set, router: r, dir: dir}, nil
}

func (e *env) Close() error {
	_ = zap.S().Sync()
	return e.set.Close()
}
