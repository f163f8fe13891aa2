package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"repostate/internal/config"
	"repostate/internal/credentials"
)

var noApp = map[string]string{annotationNoApp: "true"}

func newConfigCommand(flags *rootFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect or create the configuration file",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:         "init",
		Short:       "Write the default configuration as YAML",
		Args:        cobra.NoArgs,
		Annotations: noApp,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPathFor(flags)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := config.WriteSettings(path, config.DefaultSettings()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", path)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")

	showCmd := &cobra.Command{
		Use:         "show",
		Short:       "Print the effective configuration (file + environment)",
		Args:        cobra.NoArgs,
		Annotations: noApp,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := config.LoadSettings(configPathFor(flags))
			if err != nil {
				return err
			}
			payload, err := config.MarshalYAML(settings)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(payload)
			return err
		},
	}

	cmd.AddCommand(initCmd, showCmd)
	return cmd
}

func configPathFor(flags *rootFlags) string {
	if path := strings.TrimSpace(flags.configPath); path != "" {
		return path
	}
	return config.ConfigPath()
}

func newCredentialsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Manage HTTPS tokens used for fetch, pull and push",
	}

	setCmd := &cobra.Command{
		Use:         "set <host>",
		Short:       "Store a token for host (read from stdin)",
		Args:        cobra.ExactArgs(1),
		Annotations: noApp,
		RunE: func(cmd *cobra.Command, args []string) error {
			reader := bufio.NewReader(cmd.InOrStdin())
			token, err := reader.ReadString('\n')
			if err != nil && strings.TrimSpace(token) == "" {
				return fmt.Errorf("no token read from stdin")
			}
			if err := credentials.NewKeyringProvider().Set(args[0], token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token stored for %s\n", args[0])
			return nil
		},
	}

	deleteCmd := &cobra.Command{
		Use:         "delete <host>",
		Short:       "Remove the token stored for host",
		Args:        cobra.ExactArgs(1),
		Annotations: noApp,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := credentials.NewKeyringProvider().Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "token removed for %s\n", args[0])
			return nil
		},
	}

	cmd.AddCommand(setCmd, deleteCmd)
	return cmd
}
