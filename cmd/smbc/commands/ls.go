package commands

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbc/internal/cli/output"
	"github.com/marmos91/smbc/internal/cli/timeutil"
	"github.com/marmos91/smbc/pkg/bridge"
	"github.com/marmos91/smbc/pkg/invoker"
	"github.com/marmos91/smbc/pkg/smbc"
	"github.com/marmos91/smbc/pkg/smburl"
)

var (
	lsLong  bool
	lsHuman bool
)

var lsCmd = &cobra.Command{
	Use:   "ls <url>",
	Short: "List workgroups, servers, shares or a directory",
	Long: `List the entries found at an smb:// URL.

Examples:
  # Workgroups visible on the network
  smbc ls smb://

  # Shares of a server
  smbc ls smb://fileserver

  # Directory contents with sizes and dates
  smbc ls -l smb://fileserver/docs/reports`,
	Args: cobra.ExactArgs(1),
	RunE: withSession(runLs),
}

func init() {
	lsCmd.Flags().BoolVarP(&lsLong, "long", "l", false, "Show mode, size and modification time")
	lsCmd.Flags().BoolVarP(&lsHuman, "human-readable", "H", false, "Show sizes in binary units")
}

// ListEntry is one line of ls output.
type ListEntry struct {
	Name    string     `json:"name" yaml:"name"`
	Type    string     `json:"type" yaml:"type"`
	Comment string     `json:"comment,omitempty" yaml:"comment,omitempty"`
	Mode    string     `json:"mode,omitempty" yaml:"mode,omitempty"`
	Size    *int64     `json:"size,omitempty" yaml:"size,omitempty"`
	Mtime   *time.Time `json:"mtime,omitempty" yaml:"mtime,omitempty"`
}

// EntryList renders ls output as a table.
type EntryList struct {
	entries []ListEntry
	long    bool
	human   bool
}

// Headers implements TableRenderer.
func (l EntryList) Headers() []string {
	if l.long {
		return []string{"MODE", "SIZE", "MODIFIED", "NAME"}
	}
	return []string{"NAME", "TYPE", "COMMENT"}
}

// Rows implements TableRenderer.
func (l EntryList) Rows() [][]string {
	now := time.Now()
	rows := make([][]string, 0, len(l.entries))
	for _, e := range l.entries {
		if !l.long {
			rows = append(rows, []string{e.Name, e.Type, e.Comment})
			continue
		}
		size, mtime := "-", "-"
		if e.Size != nil {
			size = output.Size(*e.Size, l.human)
		}
		if e.Mtime != nil {
			mtime = timeutil.FormatListing(*e.Mtime, now)
		}
		mode := e.Mode
		if mode == "" {
			mode = e.Type
		}
		rows = append(rows, []string{mode, size, mtime, e.Name})
	}
	return rows
}

func runLs(cmd *cobra.Command, s *session, args []string) error {
	dirents, err := s.client.List(s.ctx, args[0])
	if err != nil {
		return err
	}

	entries := make([]ListEntry, len(dirents))
	for i, d := range dirents {
		entries[i] = ListEntry{Name: d.Name, Type: d.Type.String(), Comment: d.Comment}
	}

	if lsLong {
		if err := fillStats(s.ctx, s.client, args[0], dirents, entries); err != nil {
			return err
		}
	}

	return printOutput(cmd, entries, len(entries) == 0, "No entries.", EntryList{entries: entries, long: lsLong, human: lsHuman})
}

// fillStats adds mode, size and mtime to the file and directory entries.
// With the async worker enabled all stats are queued before the first
// result is awaited.
func fillStats(ctx context.Context, c *smbc.Context, base string, dirents []invoker.Dirent, entries []ListEntry) error {
	u, err := smburl.Parse(base)
	if err != nil {
		return err
	}

	set := func(i int, st *invoker.Stat) {
		size, mtime := st.Size, st.Mtime
		entries[i].Mode = output.Mode(st.Mode)
		entries[i].Size = &size
		entries[i].Mtime = &mtime
	}

	if !c.AsyncEnabled() {
		for i, d := range dirents {
			if d.Type != invoker.TypeFile && d.Type != invoker.TypeDir {
				continue
			}
			st, err := c.Stat(ctx, u.Join(d.Name).String())
			if err != nil {
				return err
			}
			set(i, st)
		}
		return nil
	}

	futures := make(map[int]*bridge.Future[*invoker.Stat])
	for i, d := range dirents {
		if d.Type != invoker.TypeFile && d.Type != invoker.TypeDir {
			continue
		}
		f, err := c.StatAsync(ctx, u.Join(d.Name).String())
		if err != nil {
			return err
		}
		futures[i] = f
	}
	for i, f := range futures {
		st, err := f.Await(ctx)
		if err != nil {
			return err
		}
		set(i, st)
	}
	return nil
}
