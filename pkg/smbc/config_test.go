package smbc

import (
	"context"
	"os"
	"path/filepath"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/smbc/internal/bytesize"
	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/config"
)

func memoryConfig() *config.Config {
	cfg := config.GetDefaultConfig()
	cfg.Client.Backend = config.BackendMemory
	cfg.Memory.Shares = []config.MemoryShareConfig{
		{Server: "fs", Name: "public"},
		{Server: "fs", Name: "secure", Workgroup: "CORP", Username: "alice", Password: "pw"},
		{Server: "fs", Name: "small", Capacity: 64 * bytesize.KiB, ReadOnly: true},
	}
	return cfg
}

func TestNewFromConfigMemory(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Client.ReadChunk = 8 * bytesize.KiB
	cfg.Async.Enabled = true
	cfg.Async.QueueSize = 8
	cfg.Credentials = []config.CredentialConfig{
		{Server: "fs", Share: "secure", Workgroup: auth.String("CORP"), Username: auth.String("alice"), Password: auth.String("pw")},
	}

	c, err := NewFromConfig(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	assert.Equal(t, config.BackendMemory, c.Backend())
	assert.True(t, c.AsyncEnabled())
	assert.Equal(t, 8*1024, c.readChunk)
	assert.Equal(t, 8, c.queueSize)
	assert.Len(t, c.Credentials(), 1)

	_, err = c.Stat(ctx, "smb://fs/secure")
	require.NoError(t, err)

	vfs, err := c.Statvfs(ctx, "smb://fs/small")
	require.NoError(t, err)
	assert.True(t, vfs.ReadOnly)
	assert.Equal(t, uint64(16), vfs.Blocks)
}

func TestNewFromConfigWorkgroup(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	cfg.Memory.Workgroup = "LAB"

	c, err := NewFromConfig(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	entries, err := c.List(ctx, "smb://")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "LAB", entries[0].Name)
}

func TestNewFromConfigLocalShare(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	cfg := memoryConfig()
	cfg.Memory.Shares = append(cfg.Memory.Shares, config.MemoryShareConfig{Server: "fs", Name: "disk", Path: dir})

	c, err := NewFromConfig(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	require.NoError(t, c.WriteFile(ctx, "smb://fs/disk/hello.txt", []byte("hi"), 0o644))
	data, err := os.ReadFile(filepath.Join(dir, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestNewFromConfigBadLocalShare(t *testing.T) {
	cfg := memoryConfig()
	cfg.Memory.Shares = []config.MemoryShareConfig{{Server: "fs", Name: "disk", Path: filepath.Join(t.TempDir(), "missing")}}

	_, err := NewFromConfig(context.Background(), cfg)
	require.Error(t, err)
}

func TestNewFromConfigInvalidCredentials(t *testing.T) {
	cfg := memoryConfig()
	cfg.Credentials = []config.CredentialConfig{{Server: "*", Share: "secure", Username: auth.String("x")}}

	_, err := NewFromConfig(context.Background(), cfg)
	require.Error(t, err)
}

func TestFactorySelection(t *testing.T) {
	cfg := config.GetDefaultConfig()
	f, err := Factory(cfg)
	require.NoError(t, err)
	assert.NotNil(t, f)

	cfg.Client.Backend = "nfs"
	_, err = Factory(cfg)
	require.Error(t, err)
}

func TestReload(t *testing.T) {
	ctx := context.Background()
	cfg := memoryConfig()
	c, err := NewFromConfig(ctx, cfg)
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	_, err = c.Stat(ctx, "smb://fs/secure")
	assert.Equal(t, syscall.EACCES, errnoOf(t, err))

	next := memoryConfig()
	next.Client.Workgroup = "CORP"
	next.Client.Username = "alice"
	next.Client.Password = "pw"
	require.NoError(t, c.Reload(next))
	assert.Equal(t, "alice", c.Defaults().Username)

	_, err = c.Stat(ctx, "smb://fs/secure")
	require.NoError(t, err)
}
