package cli

import (
	"fmt"

	"github.com/binhbb2204/mangashelf/cli/config"
	"github.com/spf13/cobra"
)

var (
	initServerURL string
	initForce     bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the CLI configuration",
	Long:  `Create ~/.mangashelf/config.yaml (or $MANGASHELF_HOME/config.yaml).`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Init(initServerURL, initForce)
		if err != nil {
			return err
		}
		path, _ := config.GetConfigPath()
		printSuccess(cmd.OutOrStdout(), "Configuration written to "+path)
		printInfo(cmd.OutOrStdout(), "Server: "+cfg.Server.URL)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `View and modify MangaShelf CLI configuration.`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError(cmd.ErrOrStderr(), "Configuration not initialized")
			fmt.Fprintln(cmd.ErrOrStderr(), "Run: mangashelf init")
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Current Configuration:")
		fmt.Fprintln(out, "----------------------")
		for _, kv := range config.Entries(cfg) {
			fmt.Fprintf(out, "  %s: %s\n", kv[0], kv[1])
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a configuration value",
	Long:  `Set a configuration value. Key should be in format 'section.key' (e.g., server.url).`,
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			printError(cmd.ErrOrStderr(), "Configuration not initialized")
			return err
		}
		if err := config.Set(cfg, args[0], args[1]); err != nil {
			return err
		}
		if err := config.Save(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}
		printSuccess(cmd.OutOrStdout(), fmt.Sprintf("Updated %s to %s", args[0], args[1]))
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initServerURL, "server", config.DefaultServerURL, "MangaShelf server URL")
	initCmd.Flags().BoolVar(&initForce, "force", false, "overwrite an existing configuration")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
