package smbc

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/go-git/go-billy/v5/osfs"

	"github.com/marmos91/smbc/internal/logger"
	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/config"
	"github.com/marmos91/smbc/pkg/invoker"
	"github.com/marmos91/smbc/pkg/invoker/memory"
	"github.com/marmos91/smbc/pkg/invoker/smb2"
	"github.com/marmos91/smbc/pkg/metrics"
)

// NewFromConfig creates a Context for cfg: it selects the backend, installs
// the default and table credentials, attaches metrics when enabled and
// starts the async worker when cfg.Async.Enabled is set. opts are applied
// after the options derived from cfg.
func NewFromConfig(ctx context.Context, cfg *config.Config, opts ...Option) (*Context, error) {
	if cfg == nil {
		return nil, errors.New("nil config")
	}

	factory, err := Factory(cfg)
	if err != nil {
		return nil, err
	}

	base := []Option{
		WithBackendName(cfg.Client.Backend),
		WithDefaults(cfg.Client.Defaults()),
		WithQueueSize(cfg.Async.QueueSize),
		WithReadChunk(cfg.Client.ReadChunk.Int()),
		WithStopTimeout(cfg.Async.StopTimeout),
		WithMetrics(metrics.NewClientMetrics(), metrics.NewBridgeMetrics()),
	}

	c, err := New(factory, append(base, opts...)...)
	if err != nil {
		return nil, err
	}

	if err := c.LoadCredentials(cfg.CredentialEntries()); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}

	if cfg.Async.Enabled {
		if err := c.EnableAsync(ctx); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("failed to enable async calls: %w", err)
		}
	}

	return c, nil
}

// Factory returns the invoker factory for cfg.Client.Backend.
func Factory(cfg *config.Config) (invoker.Factory, error) {
	switch cfg.Client.Backend {
	case config.BackendSMB2, "":
		return smb2.Factory(smb2.Options{
			Port:           cfg.Client.Port,
			Timeout:        cfg.Client.Timeout,
			Workstation:    cfg.Client.NetbiosName,
			RequireSigning: cfg.Client.RequireSigning,
		}), nil
	case config.BackendMemory:
		farm, err := NewFarm(&cfg.Memory)
		if err != nil {
			return nil, err
		}
		return memory.Factory(farm), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Client.Backend)
	}
}

// NewFarm builds the memory backend servers described by cfg. Shares with a
// Path serve that local directory.
func NewFarm(cfg *config.MemoryConfig) (*memory.Farm, error) {
	farm := memory.NewFarm()
	if cfg.Workgroup != "" {
		farm.SetWorkgroup(cfg.Workgroup)
	}

	for _, s := range cfg.Shares {
		opts := []memory.ShareOption{memory.WithComment(s.Comment)}
		if s.Capacity > 0 {
			opts = append(opts, memory.WithCapacity(int64(s.Capacity)))
		}
		if s.ReadOnly {
			opts = append(opts, memory.ReadOnly())
		}
		if s.Username != "" {
			opts = append(opts, memory.WithCredentials(auth.Credentials{
				Workgroup: s.Workgroup,
				Username:  s.Username,
				Password:  s.Password,
			}))
		}
		if s.Path != "" {
			fi, err := os.Stat(s.Path)
			if err != nil {
				return nil, fmt.Errorf("share %s/%s: %w", s.Server, s.Name, err)
			}
			if !fi.IsDir() {
				return nil, fmt.Errorf("share %s/%s: %s is not a directory", s.Server, s.Name, s.Path)
			}
			opts = append(opts, memory.WithFilesystem(osfs.New(s.Path)))
		}
		farm.AddShare(s.Server, s.Name, opts...)
	}

	return farm, nil
}

// Reload applies the credential settings of cfg to c. The backend, queue
// and metrics settings only take effect for new Contexts.
func (c *Context) Reload(cfg *config.Config) error {
	d := cfg.Client.Defaults()
	if err := c.SetCredentialsWithFallback(d.Workgroup, d.Username, d.Password); err != nil {
		return err
	}
	if err := c.LoadCredentials(cfg.CredentialEntries()); err != nil {
		return err
	}
	logger.Info("credentials reloaded", logger.SessionID(c.id), logger.Entries(len(cfg.Credentials)))
	return nil
}
