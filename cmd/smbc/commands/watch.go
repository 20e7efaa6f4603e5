package commands

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/marmos91/smbc/cmd/smbc/cmdutil"
	"github.com/marmos91/smbc/internal/cli/timeutil"
	"github.com/marmos91/smbc/internal/logger"
	"github.com/marmos91/smbc/pkg/api"
	"github.com/marmos91/smbc/pkg/config"
	"github.com/marmos91/smbc/pkg/invoker"
	"github.com/marmos91/smbc/pkg/smburl"
)

var (
	watchInterval time.Duration
	watchCount    int
)

var watchCmd = &cobra.Command{
	Use:   "watch <url>",
	Short: "Poll a remote directory and report changes",
	Long: `Poll a remote directory and print one line per added, removed or
modified entry. Listings run on the async worker, which is enabled for the
duration of the command.

While watching, the configuration file is reloaded on change: credentials
and the log level take effect without a restart. With metrics enabled the
health, status and metrics endpoints are served on the metrics port.

Examples:
  # Poll every 10 seconds until interrupted
  smbc watch --interval 10s smb://fileserver/inbox

  # Take three snapshots and exit
  smbc watch --count 3 smb://fileserver/inbox`,
	Args: cobra.ExactArgs(1),
	RunE: withSession(runWatch),
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", 5*time.Second, "Time between listings")
	watchCmd.Flags().IntVarP(&watchCount, "count", "n", 0, "Stop after this many listings (0 = until interrupted)")
}

// snapshot is the state of one directory entry between polls.
type snapshot struct {
	typ   invoker.DirentType
	size  int64
	mtime time.Time
}

// Change is one difference between two listings.
type Change struct {
	Kind string `json:"kind" yaml:"kind"`
	Name string `json:"name" yaml:"name"`
}

func runWatch(cmd *cobra.Command, s *session, args []string) error {
	if watchInterval <= 0 {
		return fmt.Errorf("--interval must be positive")
	}
	base, err := smburl.Parse(args[0])
	if err != nil {
		return err
	}
	if !s.client.AsyncEnabled() {
		if err := s.client.EnableAsync(s.ctx); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)

	if s.cfg.Metrics.Enabled && s.cfg.Metrics.Port > 0 {
		srv := api.NewServer(api.Config{Port: s.cfg.Metrics.Port}, s.client)
		g.Go(func() error { return srv.Start(ctx) })
	}

	if path := cmdutil.Flags.ConfigFile; path != "" || config.DefaultConfigExists() {
		g.Go(func() error {
			return config.Watch(ctx, path, func(cfg *config.Config) { applyReload(ctx, s, cfg) }, func(err error) {
				logger.WarnCtx(ctx, "configuration reload failed", logger.Err(err))
			})
		})
	}

	g.Go(func() error {
		defer cancel()
		return poll(ctx, s, base, cmd.OutOrStdout())
	})

	return g.Wait()
}

// applyReload installs the reloaded configuration. Credentials given on the
// command line keep precedence over the file.
func applyReload(ctx context.Context, s *session, cfg *config.Config) {
	logger.SetLevel(cfg.Logging.Level)
	if cmdutil.Flags.User != "" || cmdutil.Flags.AskPassword {
		logger.InfoCtx(ctx, "configuration reloaded; command line identity kept")
		return
	}
	if err := s.client.Reload(cfg); err != nil {
		logger.WarnCtx(ctx, "configuration reload failed", logger.Err(err))
	}
}

func poll(ctx context.Context, s *session, base *smburl.URL, w io.Writer) error {
	start := time.Now()
	ticker := time.NewTicker(watchInterval)
	defer ticker.Stop()

	var prev map[string]snapshot
	for n := 1; ; n++ {
		cur, err := listSnapshot(ctx, s, base)
		if err != nil {
			return err
		}
		if prev == nil {
			_, _ = fmt.Fprintf(w, "watching %s (%d entries)\n", base.Redacted(), len(cur))
		} else {
			for _, c := range diff(prev, cur) {
				_, _ = fmt.Fprintf(w, "%-8s %s\n", c.Kind, c.Name)
			}
		}
		prev = cur

		if watchCount > 0 && n >= watchCount {
			logger.DebugCtx(ctx, "watch finished", logger.Count(n), "uptime", timeutil.FormatDuration(time.Since(start)))
			return nil
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// listSnapshot lists base on the async worker and stats every file in it.
func listSnapshot(ctx context.Context, s *session, base *smburl.URL) (map[string]snapshot, error) {
	lf, err := s.client.ListAsync(ctx, base.String())
	if err != nil {
		return nil, err
	}
	dirents, err := lf.Await(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]ListEntry, len(dirents))
	if err := fillStats(ctx, s.client, base.String(), dirents, entries); err != nil {
		return nil, err
	}

	snap := make(map[string]snapshot, len(dirents))
	for i, d := range dirents {
		sn := snapshot{typ: d.Type}
		if entries[i].Size != nil && d.Type == invoker.TypeFile {
			sn.size = *entries[i].Size
			sn.mtime = *entries[i].Mtime
		}
		snap[d.Name] = sn
	}
	return snap, nil
}

// diff returns the changes from prev to cur sorted by name.
func diff(prev, cur map[string]snapshot) []Change {
	var changes []Change
	for name, c := range cur {
		p, ok := prev[name]
		switch {
		case !ok:
			changes = append(changes, Change{Kind: "added", Name: name})
		case p.typ != c.typ || p.size != c.size || !p.mtime.Equal(c.mtime):
			changes = append(changes, Change{Kind: "modified", Name: name})
		}
	}
	for name := range prev {
		if _, ok := cur[name]; !ok {
			changes = append(changes, Change{Kind: "removed", Name: name})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].Name < changes[j].Name })
	return changes
}
