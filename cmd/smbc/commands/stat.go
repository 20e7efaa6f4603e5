package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/smbc/cmd/smbc/cmdutil"
	"github.com/marmos91/smbc/internal/cli/output"
	"github.com/marmos91/smbc/internal/cli/timeutil"
	"github.com/marmos91/smbc/pkg/invoker"
)

var statCmd = &cobra.Command{
	Use:   "stat <url>",
	Short: "Show file or directory metadata",
	Args:  cobra.ExactArgs(1),
	RunE: withSession(func(cmd *cobra.Command, s *session, args []string) error {
		st, err := s.client.Stat(s.ctx, args[0])
		if err != nil {
			return err
		}
		info := newStatInfo(st)
		return cmdutil.PrintKeyValues(cmd.OutOrStdout(), info, info.pairs())
	}),
}

// StatInfo is the printable form of invoker.Stat.
type StatInfo struct {
	Name       string    `json:"name" yaml:"name"`
	Type       string    `json:"type" yaml:"type"`
	Size       int64     `json:"size" yaml:"size"`
	Mode       string    `json:"mode" yaml:"mode"`
	Inode      uint64    `json:"inode" yaml:"inode"`
	Links      uint64    `json:"links" yaml:"links"`
	UID        uint32    `json:"uid" yaml:"uid"`
	GID        uint32    `json:"gid" yaml:"gid"`
	Accessed   time.Time `json:"accessed" yaml:"accessed"`
	Modified   time.Time `json:"modified" yaml:"modified"`
	Changed    time.Time `json:"changed" yaml:"changed"`
	Created    time.Time `json:"created,omitzero" yaml:"created,omitempty"`
	Attributes uint32    `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

func newStatInfo(st *invoker.Stat) StatInfo {
	typ := "file"
	if st.IsDir() {
		typ = "directory"
	}
	return StatInfo{
		Name:       st.Name,
		Type:       typ,
		Size:       st.Size,
		Mode:       fmt.Sprintf("%04o (%s)", st.Mode.Perm(), output.Mode(st.Mode)),
		Inode:      st.Ino,
		Links:      st.Nlink,
		UID:        st.UID,
		GID:        st.GID,
		Accessed:   st.Atime,
		Modified:   st.Mtime,
		Changed:    st.Ctime,
		Created:    st.Btime,
		Attributes: st.Attributes,
	}
}

func (i StatInfo) pairs() [][2]string {
	return [][2]string{
		{"Name", i.Name},
		{"Type", i.Type},
		{"Size", strconv.FormatInt(i.Size, 10)},
		{"Mode", i.Mode},
		{"Inode", strconv.FormatUint(i.Inode, 10)},
		{"Links", strconv.FormatUint(i.Links, 10)},
		{"Uid/Gid", fmt.Sprintf("%d/%d", i.UID, i.GID)},
		{"Access", timeutil.FormatTime(i.Accessed)},
		{"Modify", timeutil.FormatTime(i.Modified)},
		{"Change", timeutil.FormatTime(i.Changed)},
		{"Birth", timeutil.FormatTime(i.Created)},
	}
}
