// Package cmdutil provides shared utilities for smbc commands.
package cmdutil

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/marmos91/smbc/internal/cli/output"
	"github.com/marmos91/smbc/internal/cli/prompt"
	"github.com/marmos91/smbc/internal/logger"
	"github.com/marmos91/smbc/internal/telemetry"
	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/config"
	"github.com/marmos91/smbc/pkg/metrics"
	"github.com/marmos91/smbc/pkg/smbc"
)

// Flags stores global flag values accessible by subcommands.
var Flags = &GlobalFlags{}

// GlobalFlags holds the global flag values.
type GlobalFlags struct {
	ConfigFile  string
	Output      string
	NoColor     bool
	Verbose     bool
	Backend     string
	User        string
	AskPassword bool
	Async       bool
}

// passwordPrompt is swapped by tests.
var passwordPrompt = prompt.Password

// LoadConfig loads the configuration named by --config (or the default
// location) and applies the global flag overrides.
func LoadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if Flags.ConfigFile != "" {
		cfg, err = config.MustLoad(Flags.ConfigFile)
	} else {
		cfg, err = config.Load("")
	}
	if err != nil {
		return nil, err
	}

	if Flags.Backend != "" {
		cfg.Client.Backend = strings.ToLower(Flags.Backend)
	}
	if Flags.Verbose {
		cfg.Logging.Level = "DEBUG"
	}
	if Flags.Async {
		cfg.Async.Enabled = true
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// InitLogger initializes the structured logger from configuration.
func InitLogger(cfg *config.Config) error {
	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	return nil
}

// InitObservability sets up logging, tracing, profiling and metrics for one
// command. The returned function stops the profiler and flushes the trace
// exporter.
func InitObservability(ctx context.Context, cfg *config.Config, version string) (func(), error) {
	if err := InitLogger(cfg); err != nil {
		return nil, err
	}

	shutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "smbc",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	stopProfiling, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "smbc",
		ServiceVersion: version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		_ = shutdown(ctx)
		return nil, fmt.Errorf("failed to initialize profiling: %w", err)
	}

	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
	}

	return func() {
		if err := stopProfiling(); err != nil {
			logger.Warn("profiler stop error", logger.Err(err))
		}
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("telemetry shutdown error", logger.Err(err))
		}
	}, nil
}

// NewClient creates the Context for cfg and installs the identity given by
// --user and --ask-password.
func NewClient(ctx context.Context, cfg *config.Config) (*smbc.Context, error) {
	c, err := smbc.NewFromConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}

	fn, err := userAuthFunc(Flags.User, Flags.AskPassword)
	if err != nil {
		_ = c.Close()
		return nil, err
	}
	if fn != nil {
		c.SetAuthFunc(fn)
	}
	return c, nil
}

// userAuthFunc builds the resolver for the identity flags, or nil when
// neither is set. A fixed --user applies to every server; a missing
// password is asked once. --ask-password alone asks per server and share.
func userAuthFunc(user string, ask bool) (smbc.AuthFunc, error) {
	if user == "" && !ask {
		return nil, nil
	}

	if user != "" {
		o, err := ParseUser(user)
		if err != nil {
			return nil, err
		}
		password := sync.OnceValues(func() (string, error) {
			return passwordPrompt(fmt.Sprintf("Password for %s", *o.Username))
		})
		return func(server, share string) (auth.Override, error) {
			out := o
			if out.Password == nil && ask {
				pw, err := password()
				if err != nil {
					return auth.Override{}, err
				}
				out.Password = &pw
			}
			return out, nil
		}, nil
	}

	var mu sync.Mutex
	asked := map[string]string{}
	return func(server, share string) (auth.Override, error) {
		mu.Lock()
		defer mu.Unlock()
		key := server + "/" + share
		if pw, ok := asked[key]; ok {
			return auth.Override{Password: &pw}, nil
		}
		pw, err := passwordPrompt(fmt.Sprintf("Password for %s", strings.TrimSuffix(key, "/")))
		if err != nil {
			return auth.Override{}, err
		}
		asked[key] = pw
		return auth.Override{Password: &pw}, nil
	}, nil
}

// ParseUser parses an identity of the form [WORKGROUP\]user[%password].
// A forward slash or a semicolon also separates the workgroup.
func ParseUser(s string) (auth.Override, error) {
	var o auth.Override
	rest := s
	if i := strings.IndexAny(rest, `\/;`); i >= 0 {
		wg := rest[:i]
		o.Workgroup = &wg
		rest = rest[i+1:]
	}
	if user, pw, ok := strings.Cut(rest, "%"); ok {
		o.Password = &pw
		rest = user
	}
	if rest == "" {
		return auth.Override{}, fmt.Errorf("invalid user %q: missing username", redactUser(s))
	}
	o.Username = &rest
	if err := o.Validate(); err != nil {
		return auth.Override{}, err
	}
	return o, nil
}

func redactUser(s string) string {
	if user, _, ok := strings.Cut(s, "%"); ok {
		return user + "%***"
	}
	return s
}

// GetOutputFormatParsed returns the parsed output format.
func GetOutputFormatParsed() (output.Format, error) {
	return output.ParseFormat(Flags.Output)
}

// IsColorDisabled returns whether color output is disabled.
func IsColorDisabled() bool {
	return Flags.NoColor
}

// PrintOutput prints data in the specified format (JSON, YAML, or table).
// For table format, it displays emptyMsg if data is empty, otherwise uses the tableRenderer.
func PrintOutput(w io.Writer, data any, isEmpty bool, emptyMsg string, tableRenderer output.TableRenderer) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		if isEmpty {
			_, _ = fmt.Fprintln(w, emptyMsg)
			return nil
		}
		return output.PrintTable(w, tableRenderer)
	}
}

// PrintKeyValues prints data as JSON/YAML, or pairs as a key/value table.
func PrintKeyValues(w io.Writer, data any, pairs [][2]string) error {
	format, err := GetOutputFormatParsed()
	if err != nil {
		return err
	}

	switch format {
	case output.FormatJSON:
		return output.PrintJSON(w, data)
	case output.FormatYAML:
		return output.PrintYAML(w, data)
	default:
		return output.SimpleTable(w, pairs)
	}
}

// PrintSuccess prints a success message if the output format is table.
func PrintSuccess(w io.Writer, msg string) {
	format, err := GetOutputFormatParsed()
	if err != nil || format != output.FormatTable {
		return
	}
	output.NewPrinter(w, format, !IsColorDisabled()).Success(msg)
}

// Confirm asks label unless force is set. It returns false when the user
// declines or aborts.
func Confirm(w io.Writer, label string, force bool) (bool, error) {
	confirmed, err := prompt.ConfirmWithForce(label, force)
	if err != nil {
		if prompt.IsAborted(err) {
			_, _ = fmt.Fprintln(w, "\nAborted.")
			return false, nil
		}
		return false, err
	}
	if !confirmed {
		_, _ = fmt.Fprintln(w, "Aborted.")
	}
	return confirmed, nil
}

// BoolToYesNo converts a boolean to "yes" or "no" string.
func BoolToYesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

// EmptyOr returns the value if not empty, otherwise returns the fallback.
func EmptyOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// HandleAbort checks if error is an abort (Ctrl+C) and prints a message.
// Returns nil for abort (user cancelled), otherwise returns the original error.
func HandleAbort(w io.Writer, err error) error {
	if prompt.IsAborted(err) {
		_, _ = fmt.Fprintln(w, "\nAborted.")
		return nil
	}
	return err
}
