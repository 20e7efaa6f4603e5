// Package config implements the smbc config commands.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbc/cmd/smbc/cmdutil"
	"github.com/marmos91/smbc/internal/cli/output"
	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/config"
)

// Cmd is the parent command for configuration management.
var Cmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the configuration file",
}

var initForce bool

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Write a default configuration file.

Examples:
  # Create $XDG_CONFIG_HOME/smbc/config.yaml
  smbc config init

  # Create a file elsewhere, replacing any existing one
  smbc config init --config ./smbc.yaml --force`,
	RunE: runConfigInit,
}

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long: `Print the configuration after defaults and SMBC_* environment
overrides are applied. Passwords are masked.`,
	RunE: runConfigShow,
}

func init() {
	initCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file")

	Cmd.AddCommand(initCmd)
	Cmd.AddCommand(showCmd)
	Cmd.AddCommand(validateCmd)
	Cmd.AddCommand(editCmd)
	Cmd.AddCommand(schemaCmd)
}

// configPath returns the file named by --config or the default location.
func configPath() string {
	if cmdutil.Flags.ConfigFile != "" {
		return cmdutil.Flags.ConfigFile
	}
	return config.GetDefaultConfigPath()
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	path := configPath()
	if err := config.InitConfigToPath(path, initForce); err != nil {
		return err
	}
	cmdutil.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Configuration written to %s", path))
	return nil
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmdutil.Flags.ConfigFile)
	if err != nil {
		return err
	}
	masked := maskPasswords(cfg)

	format, err := cmdutil.GetOutputFormatParsed()
	if err != nil {
		return err
	}
	if format == output.FormatJSON {
		return output.PrintJSON(cmd.OutOrStdout(), masked)
	}
	return output.PrintYAML(cmd.OutOrStdout(), masked)
}

const mask = "********"

// maskPasswords returns a copy of cfg with every set password replaced.
func maskPasswords(cfg *config.Config) *config.Config {
	c := *cfg
	if c.Client.Password != "" {
		c.Client.Password = mask
	}

	c.Memory.Shares = append([]config.MemoryShareConfig(nil), cfg.Memory.Shares...)
	for i := range c.Memory.Shares {
		if c.Memory.Shares[i].Password != "" {
			c.Memory.Shares[i].Password = mask
		}
	}

	c.Credentials = append([]config.CredentialConfig(nil), cfg.Credentials...)
	for i := range c.Credentials {
		if c.Credentials[i].Password != nil {
			c.Credentials[i].Password = auth.String(mask)
		}
	}
	return &c
}
