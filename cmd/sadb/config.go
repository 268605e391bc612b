package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sambigeara/sadb/pkg/config"
	"github.com/sambigeara/sadb/pkg/workspace"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the data directory config",
	}

	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write config.yaml into the data directory",
		Args:  cobra.NoArgs,
		RunE:  runConfigInit,
	}
	initCmd.Flags().String("backend", "", "Store backend (badger|file|memory)")
	initCmd.Flags().String("listen", "", "Listen address for serve")
	initCmd.Flags().String("log-level", "", "Log level (debug|info|warn|error)")
	initCmd.Flags().Int("arsnw", -1, "Default anti-replay window for new SAs")
	initCmd.Flags().Bool("force", false, "Overwrite an existing config.yaml")

	cmd.AddCommand(initCmd)
	return cmd
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	dirFlag, _ := cmd.Flags().GetString("dir")
	backend, _ := cmd.Flags().GetString("backend")
	listen, _ := cmd.Flags().GetString("listen")
	level, _ := cmd.Flags().GetString("log-level")
	arsnw, _ := cmd.Flags().GetInt("arsnw")
	force, _ := cmd.Flags().GetBool("force")

	dir, err := workspace.EnsureDir(dirFlag)
	if err != nil {
		return err
	}

	path := config.Path(dir)
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	} else if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat config: %w", err)
	}

	cfg := &config.Config{}
	cfg.Store.Backend = backend
	cfg.Server.Listen = listen
	cfg.Log.Level = level
	if cmd.Flags().Changed("arsnw") {
		cfg.Defaults.ARSNW = &arsnw
	}

	if err := config.Save(dir, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
	return nil
}
