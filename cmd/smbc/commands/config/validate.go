package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbc/cmd/smbc/cmdutil"
	"github.com/marmos91/smbc/pkg/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the smbc configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  smbc config validate

  # Validate specific config file
  smbc config validate --config /etc/smbc/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	path := configPath()

	cfg, err := config.MustLoad(path)
	if err != nil {
		return err
	}

	var warnings []string
	if cfg.Client.Backend == config.BackendMemory && len(cfg.Memory.Shares) == 0 {
		warnings = append(warnings, "memory backend selected but no shares configured")
	}
	if cfg.Client.Password != "" || hasCredentialPasswords(cfg) {
		warnings = append(warnings, "passwords are stored in clear text; keep the file private")
	}
	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		warnings = append(warnings, "telemetry enabled without an endpoint")
	}

	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "Configuration file: %s\n", path)
	_, _ = fmt.Fprintln(w, "Validation: OK")

	if len(warnings) > 0 {
		_, _ = fmt.Fprintln(w, "\nWarnings:")
		for _, msg := range warnings {
			_, _ = fmt.Fprintf(w, "  - %s\n", msg)
		}
	}

	_, _ = fmt.Fprintf(w, "\nConfiguration summary:\n")
	_, _ = fmt.Fprintf(w, "  Backend:         %s\n", cfg.Client.Backend)
	_, _ = fmt.Fprintf(w, "  Default user:    %s\n", cmdutil.EmptyOr(cfg.Client.Username, "-"))
	_, _ = fmt.Fprintf(w, "  Credentials:     %d\n", len(cfg.Credentials))
	_, _ = fmt.Fprintf(w, "  Async worker:    %s\n", cmdutil.BoolToYesNo(cfg.Async.Enabled))
	_, _ = fmt.Fprintf(w, "  Log level:       %s\n", cfg.Logging.Level)

	return nil
}

func hasCredentialPasswords(cfg *config.Config) bool {
	for _, c := range cfg.Credentials {
		if c.Password != nil && *c.Password != "" {
			return true
		}
	}
	return false
}
