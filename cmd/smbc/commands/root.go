// Package commands implements the smbc command-line client.
package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbc/cmd/smbc/cmdutil"
	configcmd "github.com/marmos91/smbc/cmd/smbc/commands/config"
	credscmd "github.com/marmos91/smbc/cmd/smbc/commands/creds"

	// Import prometheus metrics to register init() functions
	_ "github.com/marmos91/smbc/pkg/metrics/prometheus"
)

var (
	// Version information injected at build time.
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "smbc",
	Short: "SMB file share client",
	Long: `smbc browses and transfers files on SMB servers addressed by smb:// URLs.

  smb://                           workgroups
  smb://WORKGROUP                  servers of a workgroup
  smb://[domain;user:pass@]server  shares of a server
  smb://server/share/path          files and directories

Credentials are looked up in the configuration credential table, most
specific entry first, and completed from the client defaults. Credentials
embedded in a URL always win.

Use "smbc [command] --help" for more information about a command.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Sync flags to cmdutil.Flags for subcommands
		cmdutil.Flags.ConfigFile, _ = cmd.Flags().GetString("config")
		cmdutil.Flags.Output, _ = cmd.Flags().GetString("output")
		cmdutil.Flags.NoColor, _ = cmd.Flags().GetBool("no-color")
		cmdutil.Flags.Verbose, _ = cmd.Flags().GetBool("verbose")
		cmdutil.Flags.Backend, _ = cmd.Flags().GetString("backend")
		cmdutil.Flags.User, _ = cmd.Flags().GetString("user")
		cmdutil.Flags.AskPassword, _ = cmd.Flags().GetBool("ask-password")
		cmdutil.Flags.Async, _ = cmd.Flags().GetBool("async")
	},
}

// Execute runs the root command until it finishes or the process is
// interrupted.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

// GetRootCmd returns the root command for testing purposes.
func GetRootCmd() *cobra.Command {
	return rootCmd
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default: $XDG_CONFIG_HOME/smbc/config.yaml)")
	rootCmd.PersistentFlags().StringP("output", "o", "table", "Output format (table|json|yaml)")
	rootCmd.PersistentFlags().Bool("no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("backend", "", "Connection backend (smb2|memory), overrides the config")
	rootCmd.PersistentFlags().StringP("user", "U", "", `Identity for every server: [WORKGROUP\]user[%password]`)
	rootCmd.PersistentFlags().Bool("ask-password", false, "Prompt for missing passwords")
	rootCmd.PersistentFlags().Bool("async", false, "Run operations through the async worker")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(lsCmd)
	rootCmd.AddCommand(catCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(putCmd)
	rootCmd.AddCommand(cpCmd)
	rootCmd.AddCommand(mkdirCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(rmdirCmd)
	rootCmd.AddCommand(mvCmd)
	rootCmd.AddCommand(statCmd)
	rootCmd.AddCommand(dfCmd)
	rootCmd.AddCommand(chmodCmd)
	rootCmd.AddCommand(touchCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(credscmd.Cmd)
	rootCmd.AddCommand(configcmd.Cmd)
	rootCmd.AddCommand(completionCmd)

	// Hide the default completion command (we provide our own)
	rootCmd.CompletionOptions.DisableDefaultCmd = true
}
