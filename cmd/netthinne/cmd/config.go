package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MeKo-Tech/netthinne/internal/config"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create configuration files",
	}

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration as YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := config.MarshalYAML(*a.cfg)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if used := a.loader.GetConfigFileUsed(); used != "" {
				_, _ = fmt.Fprintf(out, "# config file: %s\n", used)
			}
			_, err = out.Write(data)
			return err
		},
	}

	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write the default configuration to a file",
		Long: `Write the default configuration to a YAML file.

The file defaults to ./netthinne.yaml. Existing files are kept unless --force is given.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigFileName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}
			force, _ := cmd.Flags().GetBool("force")
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("config file %s already exists (use --force to overwrite)", path)
			}
			if err := config.GenerateDefaultConfigFile(path); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return err
		},
	}
	initCmd.Flags().Bool("force", false, "overwrite an existing file")

	cmd.AddCommand(show, initCmd)
	return cmd
}
