package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/smbc/pkg/auth"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the rules tags cannot express.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return errors.New("telemetry: endpoint is required when telemetry is enabled")
	}

	if err := cfg.Client.Defaults().Validate(); err != nil {
		return fmt.Errorf("client: %w", err)
	}

	if err := validateMemory(&cfg.Memory); err != nil {
		return err
	}

	return validateCredentials(cfg.Credentials)
}

func validateMemory(cfg *MemoryConfig) error {
	seen := make(map[string]bool, len(cfg.Shares))
	for i, s := range cfg.Shares {
		key := strings.ToLower(s.Server) + "/" + strings.ToLower(s.Name)
		if seen[key] {
			return fmt.Errorf("memory.shares[%d]: duplicate share %s/%s", i, s.Server, s.Name)
		}
		seen[key] = true
		if s.Username == "" && (s.Workgroup != "" || s.Password != "") {
			return fmt.Errorf("memory.shares[%d]: username is required when workgroup or password is set", i)
		}
	}
	return nil
}

// validateCredentials loads the entries into a scratch table, which applies
// the same key and field rules as the runtime table.
func validateCredentials(creds []CredentialConfig) error {
	t := auth.NewTable()
	for i, c := range creds {
		e := c.Entry()
		if err := t.Set(e.Server, e.Share, e.Override); err != nil {
			return fmt.Errorf("credentials[%d]: %w", i, err)
		}
	}
	return nil
}

// formatValidationErrors joins validator errors into one message naming the
// field path and the failed tag. Values are left out; some are passwords.
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := strings.TrimPrefix(fe.Namespace(), "Config.")
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s=%s'", field, fe.Tag(), fe.Param()))
		} else {
			msgs = append(msgs, fmt.Sprintf("%s: failed '%s'", field, fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}
