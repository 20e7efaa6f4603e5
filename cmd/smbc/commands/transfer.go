package commands

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbc/cmd/smbc/cmdutil"
	"github.com/marmos91/smbc/internal/logger"
	"github.com/marmos91/smbc/pkg/smburl"
)

var catCmd = &cobra.Command{
	Use:   "cat <url>...",
	Short: "Print remote files to standard output",
	Args:  cobra.MinimumNArgs(1),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		for _, u := range args {
			f, err := s.client.Open(s.ctx, u, os.O_RDONLY, 0)
			if err != nil {
				return err
			}
			_, err = io.Copy(cmd.OutOrStdout(), f)
			_ = f.Close()
			if err != nil {
				return err
			}
		}
		return nil
	}),
}

var getCmd = &cobra.Command{
	Use:   "get <url> [local]",
	Short: "Download a remote file",
	Long: `Download a remote file. The local path defaults to the remote file
name in the current directory; an existing local directory receives a file
of the same name. The modification time is preserved.`,
	Args: cobra.RangeArgs(1, 2),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		u, err := smburl.Parse(args[0])
		if err != nil {
			return err
		}
		local := u.Name()
		if len(args) == 2 {
			local = args[1]
		}
		if fi, err := os.Stat(local); err == nil && fi.IsDir() {
			local = filepath.Join(local, u.Name())
		}

		src, err := s.client.Open(s.ctx, args[0], os.O_RDONLY, 0)
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()

		st, err := src.Stat(s.ctx)
		if err != nil {
			return err
		}

		dst, err := os.OpenFile(local, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, st.Mode.Perm()|0o200)
		if err != nil {
			return err
		}
		n, err := io.Copy(dst, src)
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if err := os.Chtimes(local, st.Atime, st.Mtime); err != nil {
			logger.WarnCtx(s.ctx, "cannot preserve times", logger.Path(local), logger.Err(err))
		}

		printSuccess(cmd, fmt.Sprintf("%s -> %s (%d bytes)", src.Name(), local, n))
		return nil
	}),
}

var putCmd = &cobra.Command{
	Use:   "put <local> <url>",
	Short: "Upload a local file",
	Long: `Upload a local file. A URL ending in "/" or naming a share receives a
file of the same name. The mode and modification time are preserved.`,
	Args: cobra.ExactArgs(2),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		local := args[0]
		target, err := putTarget(args[1], filepath.Base(local))
		if err != nil {
			return err
		}

		src, err := os.Open(local)
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()
		fi, err := src.Stat()
		if err != nil {
			return err
		}
		if fi.IsDir() {
			return fmt.Errorf("%s is a directory", local)
		}

		dst, err := s.client.Open(s.ctx, target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, fi.Mode().Perm())
		if err != nil {
			return err
		}
		n, err := io.Copy(dst, src)
		if cerr := dst.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		if err := s.client.Utimes(s.ctx, target, fi.ModTime(), fi.ModTime()); err != nil {
			logger.WarnCtx(s.ctx, "cannot preserve times", logger.URL(smburl.Redact(target)), logger.Err(err))
		}

		printSuccess(cmd, fmt.Sprintf("%s -> %s (%d bytes)", local, smburl.Redact(target), n))
		return nil
	}),
}

// putTarget appends name to raw when raw designates a directory.
func putTarget(raw, name string) (string, error) {
	u, err := smburl.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Kind() == smburl.KindShare || strings.HasSuffix(raw, "/") {
		return u.Join(name).String(), nil
	}
	return raw, nil
}

var cpCmd = &cobra.Command{
	Use:   "cp <src-url> <dst-url>",
	Short: "Copy a file between two remote locations",
	Long: `Copy a remote file to another remote location without staging it
locally. With --verbose the progress is reported on standard error.`,
	Args: cobra.ExactArgs(2),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		src, err := s.client.Open(s.ctx, args[0], os.O_RDONLY, 0)
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()

		st, err := src.Stat(s.ctx)
		if err != nil {
			return err
		}
		if st.IsDir() {
			return fmt.Errorf("%s is a directory", src.Name())
		}

		target, err := putTarget(args[1], st.Name)
		if err != nil {
			return err
		}
		dst, err := s.client.Open(s.ctx, target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, st.Mode.Perm())
		if err != nil {
			return err
		}
		defer func() { _ = dst.Close() }()

		var progress func(int64) bool
		if cmdutil.Flags.Verbose {
			progress = func(copied int64) bool {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "\r%d/%d bytes", copied, st.Size)
				return true
			}
		}

		n, err := src.Splice(s.ctx, dst, -1, progress)
		if progress != nil {
			_, _ = fmt.Fprintln(cmd.ErrOrStderr())
		}
		if err != nil {
			return err
		}

		printSuccess(cmd, fmt.Sprintf("%s -> %s (%d bytes)", src.Name(), dst.Name(), n))
		return nil
	}),
}
