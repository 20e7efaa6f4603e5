package commands

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbc/cmd/smbc/cmdutil"
	"github.com/marmos91/smbc/internal/cli/output"
)

var dfHuman bool

var dfCmd = &cobra.Command{
	Use:   "df <url>",
	Short: "Show the capacity of a share",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		vfs, err := s.client.Statvfs(s.ctx, args[0])
		if err != nil {
			return err
		}

		usage := ShareUsage{
			BlockSize: vfs.BlockSize,
			Total:     vfs.Blocks * vfs.BlockSize,
			Free:      vfs.BlocksFree * vfs.BlockSize,
			Available: vfs.BlocksAvail * vfs.BlockSize,
			Files:     vfs.Files,
			FilesFree: vfs.FilesFree,
			NameMax:   vfs.NameMax,
			ReadOnly:  vfs.ReadOnly,
		}
		usage.Used = usage.Total - usage.Free

		size := func(n uint64) string { return output.Size(int64(n), dfHuman) }
		return cmdutil.PrintKeyValues(cmd.OutOrStdout(), usage, [][2]string{
			{"Size", size(usage.Total)},
			{"Used", size(usage.Used)},
			{"Available", size(usage.Available)},
			{"Block size", strconv.FormatUint(usage.BlockSize, 10)},
			{"Read-only", cmdutil.BoolToYesNo(usage.ReadOnly)},
			{"Case-insensitive", cmdutil.BoolToYesNo(vfs.CaseInsensitive)},
		})
	}),
}

func init() {
	dfCmd.Flags().BoolVarP(&dfHuman, "human-readable", "H", false, "Show sizes in binary units")
}

// ShareUsage is the printable form of invoker.StatVFS, in bytes.
type ShareUsage struct {
	BlockSize uint64 `json:"block_size" yaml:"block_size"`
	Total     uint64 `json:"total" yaml:"total"`
	Used      uint64 `json:"used" yaml:"used"`
	Free      uint64 `json:"free" yaml:"free"`
	Available uint64 `json:"available" yaml:"available"`
	Files     uint64 `json:"files,omitempty" yaml:"files,omitempty"`
	FilesFree uint64 `json:"files_free,omitempty" yaml:"files_free,omitempty"`
	NameMax   uint64 `json:"name_max,omitempty" yaml:"name_max,omitempty"`
	ReadOnly  bool   `json:"read_only" yaml:"read_only"`
}
