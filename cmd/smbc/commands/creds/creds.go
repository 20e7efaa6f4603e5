// Package creds implements the smbc creds commands, which edit the
// credential table of the configuration file.
package creds

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbc/cmd/smbc/cmdutil"
	"github.com/marmos91/smbc/internal/cli/output"
	"github.com/marmos91/smbc/internal/cli/prompt"
	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/config"
)

// Cmd is the parent command for credential management.
var Cmd = &cobra.Command{
	Use:   "creds",
	Short: "Manage stored credentials",
	Long: `Manage the credential table of the configuration file.

Entries are keyed by server and share; "*" matches any. At connect time the
most specific entry wins: (server, share), then (server, *), then (*, *).
Fields an entry leaves unset are taken from the client defaults.`,
}

// Prompts are swapped by tests.
var (
	passwordPrompt = prompt.PasswordWithConfirmation
	selectPrompt   = prompt.Select
)

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(setCmd)
	Cmd.AddCommand(deleteCmd)
}

// configPath returns the file named by --config or the default location.
func configPath() string {
	if cmdutil.Flags.ConfigFile != "" {
		return cmdutil.Flags.ConfigFile
	}
	return config.GetDefaultConfigPath()
}

// loadFile loads the configuration file; a missing file yields defaults so
// the first set creates it.
func loadFile() (*config.Config, string, error) {
	path := configPath()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// find returns the index of the entry for (server, share), or -1.
func find(cfg *config.Config, server, share string) int {
	key := normalize(server, share)
	for i, c := range cfg.Credentials {
		if normalize(c.Server, c.Share) == key {
			return i
		}
	}
	return -1
}

func normalize(server, share string) string {
	server = strings.ToLower(strings.TrimSpace(server))
	share = strings.ToLower(strings.TrimSpace(share))
	if share == "" {
		share = auth.Wildcard
	}
	return server + "/" + share
}

// Entry is one row of creds list output.
type Entry struct {
	Server    string `json:"server" yaml:"server"`
	Share     string `json:"share" yaml:"share"`
	Workgroup string `json:"workgroup,omitempty" yaml:"workgroup,omitempty"`
	Username  string `json:"username,omitempty" yaml:"username,omitempty"`
	Password  bool   `json:"password_set" yaml:"password_set"`
}

// EntryList renders creds list output as a table.
type EntryList []Entry

// Headers implements TableRenderer.
func (l EntryList) Headers() []string {
	return []string{"SERVER", "SHARE", "WORKGROUP", "USERNAME", "PASSWORD"}
}

// Rows implements TableRenderer.
func (l EntryList) Rows() [][]string {
	rows := make([][]string, 0, len(l))
	for _, e := range l {
		rows = append(rows, []string{
			e.Server,
			e.Share,
			cmdutil.EmptyOr(e.Workgroup, "-"),
			cmdutil.EmptyOr(e.Username, "-"),
			cmdutil.BoolToYesNo(e.Password),
		})
	}
	return rows
}

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List credential entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadFile()
		if err != nil {
			return err
		}

		list := make(EntryList, 0, len(cfg.Credentials))
		for _, c := range cfg.Credentials {
			e := Entry{Server: c.Server, Share: cmdutil.EmptyOr(c.Share, auth.Wildcard), Password: c.Password != nil}
			if c.Workgroup != nil {
				e.Workgroup = *c.Workgroup
			}
			if c.Username != nil {
				e.Username = *c.Username
			}
			list = append(list, e)
		}

		return cmdutil.PrintOutput(cmd.OutOrStdout(), list, len(list) == 0, "No credentials configured.", list)
	},
}

var (
	setWorkgroup  string
	setUsername   string
	setPassword   string
	setNoPassword bool
)

var setCmd = &cobra.Command{
	Use:   "set <server|*> [share|*]",
	Short: "Add or replace a credential entry",
	Long: `Add or replace the credential entry for a server and share.

Without --password the password is prompted for; --no-password stores an
entry without one so the client default applies.

Examples:
  # Every share of fileserver
  smbc creds set fileserver --workgroup CORP --username alice

  # One share, password given inline
  smbc creds set fileserver finance --username bob --password s3cret

  # Fallback for every server
  smbc creds set '*' --username guest --no-password`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runSet,
}

func init() {
	setCmd.Flags().StringVarP(&setWorkgroup, "workgroup", "w", "", "Workgroup or domain")
	setCmd.Flags().StringVarP(&setUsername, "username", "u", "", "User name")
	setCmd.Flags().StringVarP(&setPassword, "password", "p", "", "Password (prompted when omitted)")
	setCmd.Flags().BoolVar(&setNoPassword, "no-password", false, "Store the entry without a password")
	setCmd.MarkFlagsMutuallyExclusive("password", "no-password")
}

func runSet(cmd *cobra.Command, args []string) error {
	entry := config.CredentialConfig{Server: args[0]}
	if len(args) == 2 {
		entry.Share = args[1]
	}
	if cmd.Flags().Changed("workgroup") {
		entry.Workgroup = auth.String(setWorkgroup)
	}
	if cmd.Flags().Changed("username") {
		entry.Username = auth.String(setUsername)
	}

	switch {
	case cmd.Flags().Changed("password"):
		entry.Password = auth.String(setPassword)
	case !setNoPassword:
		pw, err := passwordPrompt("Password", "Confirm password")
		if err != nil {
			return cmdutil.HandleAbort(cmd.OutOrStdout(), err)
		}
		entry.Password = &pw
	}

	// Reject bad input before touching the file.
	e := entry.Entry()
	if err := auth.NewTable().Set(e.Server, e.Share, e.Override); err != nil {
		return err
	}

	cfg, path, err := loadFile()
	if err != nil {
		return err
	}

	verb := "Added"
	if i := find(cfg, entry.Server, entry.Share); i >= 0 {
		cfg.Credentials[i] = entry
		verb = "Updated"
	} else {
		cfg.Credentials = append(cfg.Credentials, entry)
	}

	if err := config.SaveConfig(cfg, path); err != nil {
		return err
	}
	cmdutil.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("%s credentials for %s", verb, normalize(entry.Server, entry.Share)))
	return nil
}

var deleteForce bool

var deleteCmd = &cobra.Command{
	Use:     "delete [server] [share]",
	Aliases: []string{"rm"},
	Short:   "Delete a credential entry",
	Long: `Delete the credential entry for a server and share. Without
arguments the entry is chosen interactively.`,
	Args: cobra.MaximumNArgs(2),
	RunE: runDelete,
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteForce, "force", "f", false, "Skip confirmation")
}

func runDelete(cmd *cobra.Command, args []string) error {
	cfg, path, err := loadFile()
	if err != nil {
		return err
	}

	var server, share string
	switch len(args) {
	case 0:
		if len(cfg.Credentials) == 0 {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No credentials configured.")
			return nil
		}
		options := make([]prompt.SelectOption, len(cfg.Credentials))
		for i, c := range cfg.Credentials {
			key := normalize(c.Server, c.Share)
			options[i] = prompt.SelectOption{Label: key, Value: key}
		}
		choice, err := selectPrompt("Credential entry to delete", options)
		if err != nil {
			return cmdutil.HandleAbort(cmd.OutOrStdout(), err)
		}
		server, share, _ = strings.Cut(choice, "/")
	case 1:
		server = args[0]
	default:
		server, share = args[0], args[1]
	}

	i := find(cfg, server, share)
	if i < 0 {
		return fmt.Errorf("no credentials for %s", normalize(server, share))
	}

	ok, err := cmdutil.Confirm(cmd.OutOrStdout(), fmt.Sprintf("Delete credentials for %s", normalize(server, share)), deleteForce || len(args) == 0)
	if err != nil || !ok {
		return err
	}

	cfg.Credentials = append(cfg.Credentials[:i], cfg.Credentials[i+1:]...)
	if err := config.SaveConfig(cfg, path); err != nil {
		return err
	}
	cmdutil.PrintSuccess(cmd.OutOrStdout(), fmt.Sprintf("Deleted credentials for %s", normalize(server, share)))
	return nil
}
