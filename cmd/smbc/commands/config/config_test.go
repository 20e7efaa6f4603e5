package config

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/smbc/cmd/smbc/cmdutil"
	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/config"
)

func run(t *testing.T, path, format string, args ...string) (string, error) {
	t.Helper()

	oldFlags := *cmdutil.Flags
	cmdutil.Flags.ConfigFile = path
	cmdutil.Flags.Output = format
	cmdutil.Flags.NoColor = true
	t.Cleanup(func() { *cmdutil.Flags = oldFlags })

	for _, c := range Cmd.Commands() {
		c.Flags().VisitAll(func(f *pflag.Flag) {
			_ = f.Value.Set(f.DefValue)
			f.Changed = false
		})
	}

	var out bytes.Buffer
	Cmd.SetOut(&out)
	Cmd.SetErr(&out)
	Cmd.SetArgs(args)
	err := Cmd.Execute()
	return out.String(), err
}


func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "smbc", "config.yaml")

	out, err := run(t, path, "table", "init")
	require.NoError(t, err)
	assert.Contains(t, out, path)

	cfg, err := config.MustLoad(path)
	require.NoError(t, err)
	assert.Equal(t, config.BackendSMB2, cfg.Client.Backend)

	_, err = run(t, path, "table", "init")
	require.Error(t, err, "existing file must not be overwritten")

	_, err = run(t, path, "table", "init", "--force")
	require.NoError(t, err)
}

func TestShowMasksPasswords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.GetDefaultConfig()
	cfg.Client.Password = "default-secret"
	cfg.Credentials = []config.CredentialConfig{
		{Server: "srv", Username: auth.String("alice"), Password: auth.String("entry-secret")},
		{Server: "*", Username: auth.String("guest")},
	}
	require.NoError(t, config.SaveConfig(cfg, path))

	out, err := run(t, path, "yaml", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, "default-secret")
	assert.NotContains(t, out, "entry-secret")
	assert.Contains(t, out, mask)
	assert.Contains(t, out, "alice")

	out, err = run(t, path, "json", "show")
	require.NoError(t, err)
	assert.Contains(t, out, `"Client"`)
	assert.NotContains(t, out, "entry-secret")

	// The loaded configuration itself is untouched.
	assert.Equal(t, "entry-secret", *cfg.Credentials[0].Password)
}

func TestMaskPasswordsLeavesUnsetFields(t *testing.T) {
	cfg := config.GetDefaultConfig()
	cfg.Credentials = []config.CredentialConfig{{Server: "srv"}}
	cfg.Memory.Shares = []config.MemoryShareConfig{{Server: "srv", Name: "a", Password: "pw"}}

	masked := maskPasswords(cfg)
	assert.Empty(t, masked.Client.Password)
	assert.Nil(t, masked.Credentials[0].Password)
	assert.Equal(t, mask, masked.Memory.Shares[0].Password)
	assert.Equal(t, "pw", cfg.Memory.Shares[0].Password)
}

func TestValidate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := config.GetDefaultConfig()
	cfg.Client.Backend = config.BackendMemory
	cfg.Memory.Shares = nil
	require.NoError(t, config.SaveConfig(cfg, path))

	out, err := run(t, path, "table", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "Validation: OK")
	assert.Contains(t, out, "no shares configured")
	assert.Contains(t, out, "memory")

	_, err = run(t, filepath.Join(t.TempDir(), "missing.yaml"), "table", "validate")
	require.Error(t, err)
}

func TestSchema(t *testing.T) {
	out, err := run(t, "", "table", "schema")
	require.NoError(t, err)
	assert.Contains(t, out, `"credentials"`)
	assert.Contains(t, out, "smbc Configuration")

	file := filepath.Join(t.TempDir(), "schema.json")
	out, err = run(t, "", "table", "schema", "--file", file)
	require.NoError(t, err)
	assert.Contains(t, out, file)
	assert.FileExists(t, file)
}
