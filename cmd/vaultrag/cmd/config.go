package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/vaultrag/vaultrag/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage vaultrag configuration",
	}

	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

// newConfigInitCmd writes a default configuration file.
func newConfigInitCmd() *cobra.Command {
	var userScope bool
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default configuration file",
		Long: `Write the default configuration to .vaultrag.yaml in the current
directory, or to the per-user config with --user. Existing files are
left alone unless --force is given.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := ".vaultrag.yaml"
			if userScope {
				path = config.UserConfigPath()
				if path == "" {
					return fmt.Errorf("cannot resolve the user config path")
				}
			}

			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}

			if err := config.NewConfig().WriteYAML(path); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&userScope, "user", false, "Write the per-user config instead of the project config")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing config file")

	return cmd
}

// newConfigShowCmd prints the effective configuration after layering.
func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			shown := *cfg
			if shown.Embeddings.APIKey != "" {
				shown.Embeddings.APIKey = "[redacted]"
			}

			data, err := yaml.Marshal(&shown)
			if err != nil {
				return fmt.Errorf("marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}
