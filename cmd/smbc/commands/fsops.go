package commands

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbc/cmd/smbc/cmdutil"
	"github.com/marmos91/smbc/internal/logger"
	"github.com/marmos91/smbc/pkg/bridge"
	"github.com/marmos91/smbc/pkg/invoker"
	"github.com/marmos91/smbc/pkg/smbc"
	"github.com/marmos91/smbc/pkg/smberr"
	"github.com/marmos91/smbc/pkg/smburl"
)

var (
	mkdirParents bool
	mkdirMode    string

	rmRecursive bool
	rmForce     bool

	touchDate string
)

var mkdirCmd = &cobra.Command{
	Use:   "mkdir <url>...",
	Short: "Create remote directories",
	Long: `Create remote directories. With the async worker enabled all
directories named on the command line are created concurrently with the
command, and every failure is reported.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		perm, err := parseMode(mkdirMode)
		if err != nil {
			return err
		}

		if mkdirParents {
			for _, u := range args {
				if err := mkdirAll(s.ctx, s.client, u, perm); err != nil {
					return err
				}
			}
			printSuccess(cmd, fmt.Sprintf("Created %d director%s", len(args), plural(len(args), "y", "ies")))
			return nil
		}

		if !s.client.AsyncEnabled() {
			for _, u := range args {
				if err := s.client.Mkdir(s.ctx, u, perm); err != nil {
					return err
				}
			}
			printSuccess(cmd, fmt.Sprintf("Created %d director%s", len(args), plural(len(args), "y", "ies")))
			return nil
		}

		futures := make([]*bridge.Future[struct{}], len(args))
		for i, u := range args {
			if futures[i], err = s.client.MkdirAsync(s.ctx, u, perm); err != nil {
				return err
			}
		}
		var failed int
		for i, f := range futures {
			if _, err := f.Await(s.ctx); err != nil {
				failed++
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "mkdir %s: %v\n", smburl.Redact(args[i]), err)
			}
		}
		if failed > 0 {
			return fmt.Errorf("%d of %d directories could not be created", failed, len(args))
		}
		printSuccess(cmd, fmt.Sprintf("Created %d director%s", len(args), plural(len(args), "y", "ies")))
		return nil
	}),
}

// mkdirAll creates raw and any missing parents below the share.
func mkdirAll(ctx context.Context, c *smbc.Context, raw string, perm os.FileMode) error {
	u, err := smburl.Parse(raw)
	if err != nil {
		return err
	}
	if u.Kind() != smburl.KindPath {
		return smberr.Invalid("mkdir: %s is not a path inside a share", u.Redacted())
	}

	var missing []*smburl.URL
	for p := u; p.Kind() == smburl.KindPath; p = p.Parent() {
		st, err := c.Stat(ctx, p.String())
		if err == nil {
			if !st.IsDir() {
				return smberr.New("mkdir", p.Redacted(), syscall.ENOTDIR)
			}
			break
		}
		if !smberr.IsNotExist(err) {
			return err
		}
		missing = append(missing, p)
	}

	for i := len(missing) - 1; i >= 0; i-- {
		if err := c.Mkdir(ctx, missing[i].String(), perm); err != nil && !smberr.IsExist(err) {
			return err
		}
	}
	return nil
}

var rmCmd = &cobra.Command{
	Use:   "rm <url>...",
	Short: "Remove remote files",
	Long: `Remove remote files. With --recursive directories are removed with
their contents after confirmation; --force skips the confirmation and
ignores missing targets.`,
	Args: cobra.MinimumNArgs(1),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		removed := 0
		for _, raw := range args {
			st, err := s.client.Stat(s.ctx, raw)
			if err != nil {
				if rmForce && smberr.IsNotExist(err) {
					continue
				}
				return err
			}

			if !st.IsDir() {
				if err := s.client.Unlink(s.ctx, raw); err != nil {
					return err
				}
				removed++
				continue
			}

			if !rmRecursive {
				return smberr.New("rm", smburl.Redact(raw), syscall.EISDIR)
			}
			ok, err := cmdutil.Confirm(cmd.OutOrStdout(), fmt.Sprintf("Remove %s and everything below it", smburl.Redact(raw)), rmForce)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			n, err := removeAll(s.ctx, s.client, raw)
			removed += n
			if err != nil {
				return err
			}
		}
		printSuccess(cmd, fmt.Sprintf("Removed %d entr%s", removed, plural(removed, "y", "ies")))
		return nil
	}),
}

// removeAll deletes the tree at raw depth first and returns the number of
// entries removed.
func removeAll(ctx context.Context, c *smbc.Context, raw string) (int, error) {
	u, err := smburl.Parse(raw)
	if err != nil {
		return 0, err
	}
	entries, err := c.List(ctx, raw)
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, e := range entries {
		child := u.Join(e.Name).String()
		switch e.Type {
		case invoker.TypeDir:
			n, err := removeAll(ctx, c, child)
			removed += n
			if err != nil {
				return removed, err
			}
		case invoker.TypeFile, invoker.TypeLink:
			if err := c.Unlink(ctx, child); err != nil {
				return removed, err
			}
			removed++
		default:
			logger.DebugCtx(ctx, "skipping entry", logger.Path(e.Name), "type", e.Type.String())
		}
	}

	if err := c.Rmdir(ctx, raw); err != nil {
		return removed, err
	}
	return removed + 1, nil
}

var rmdirCmd = &cobra.Command{
	Use:   "rmdir <url>...",
	Short: "Remove empty remote directories",
	Args:  cobra.MinimumNArgs(1),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		for _, u := range args {
			if err := s.client.Rmdir(s.ctx, u); err != nil {
				return err
			}
		}
		printSuccess(cmd, fmt.Sprintf("Removed %d director%s", len(args), plural(len(args), "y", "ies")))
		return nil
	}),
}

var mvCmd = &cobra.Command{
	Use:   "mv <src-url> <dst-url>",
	Short: "Rename a remote file or directory",
	Long: `Rename a remote file or directory. Both URLs must name the same
share.`,
	Args: cobra.ExactArgs(2),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		if err := s.client.Rename(s.ctx, args[0], args[1]); err != nil {
			return err
		}
		printSuccess(cmd, fmt.Sprintf("Renamed %s to %s", smburl.Redact(args[0]), smburl.Redact(args[1])))
		return nil
	}),
}

var chmodCmd = &cobra.Command{
	Use:   "chmod <mode> <url>...",
	Short: "Change the permission bits of remote files",
	Long: `Change the permission bits of remote files. MODE is octal, e.g. 0644.
SMB servers map the bits onto DOS attributes; most only honor the owner
write bit.`,
	Args: cobra.MinimumNArgs(2),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		perm, err := parseMode(args[0])
		if err != nil {
			return err
		}
		for _, u := range args[1:] {
			if err := s.client.Chmod(s.ctx, u, perm); err != nil {
				return err
			}
		}
		printSuccess(cmd, fmt.Sprintf("Mode set to %04o", uint32(perm)))
		return nil
	}),
}

var touchCmd = &cobra.Command{
	Use:   "touch <url>...",
	Short: "Create remote files or update their times",
	Args:  cobra.MinimumNArgs(1),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		when := time.Now()
		if touchDate != "" {
			t, err := time.Parse(time.RFC3339, touchDate)
			if err != nil {
				return fmt.Errorf("invalid --date %q: expected RFC 3339, e.g. 2024-05-01T12:00:00Z", touchDate)
			}
			when = t
		}

		for _, u := range args {
			_, err := s.client.Stat(s.ctx, u)
			if smberr.IsNotExist(err) {
				f, cerr := s.client.Creat(s.ctx, u, 0o644)
				if cerr != nil {
					return cerr
				}
				if cerr := f.Close(); cerr != nil {
					return cerr
				}
				if touchDate == "" {
					continue
				}
			} else if err != nil {
				return err
			}
			if err := s.client.Utimes(s.ctx, u, when, when); err != nil {
				return err
			}
		}
		return nil
	}),
}

func init() {
	mkdirCmd.Flags().BoolVarP(&mkdirParents, "parents", "p", false, "Create missing parent directories")
	mkdirCmd.Flags().StringVarP(&mkdirMode, "mode", "m", "0755", "Permission bits (octal)")

	rmCmd.Flags().BoolVarP(&rmRecursive, "recursive", "r", false, "Remove directories and their contents")
	rmCmd.Flags().BoolVarP(&rmForce, "force", "f", false, "Skip confirmation and ignore missing targets")

	touchCmd.Flags().StringVarP(&touchDate, "date", "d", "", "Use this time (RFC 3339) instead of now")
}

// parseMode parses an octal permission string.
func parseMode(s string) (os.FileMode, error) {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil || v > 0o7777 {
		return 0, fmt.Errorf("invalid mode %q: expected octal permission bits", s)
	}
	return os.FileMode(v).Perm(), nil
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
