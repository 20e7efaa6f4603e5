package smburl

import (
	"testing"

	"github.com/marmos91/smbc/pkg/smberr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want URL
		kind Kind
	}{
		{"Workgroups", "smb://", URL{}, KindWorkgroups},
		{"Server", "smb://fileserver", URL{Server: "fileserver"}, KindShares},
		{"ServerTrailingSlash", "smb://fileserver/", URL{Server: "fileserver"}, KindShares},
		{"Share", "smb://fs/public", URL{Server: "fs", Share: "public"}, KindShare},
		{"File", "smb://fs/public/dir/file.txt", URL{Server: "fs", Share: "public", Path: "dir/file.txt"}, KindPath},
		{"CollapsesSlashes", "smb://fs//public///dir/", URL{Server: "fs", Share: "public", Path: "dir"}, KindPath},
		{"Port", "smb://fs:1445/s", URL{Server: "fs", Port: 1445, Share: "s"}, KindShare},
		{"IPv6", "smb://[::1]:445/s", URL{Server: "::1", Port: 445, Share: "s"}, KindShare},
		{
			"FullUserinfo", "smb://CORP;alice:s3cret@fs/s/f",
			URL{Domain: "CORP", User: "alice", Password: "s3cret", HasUser: true, HasPass: true, Server: "fs", Share: "s", Path: "f"},
			KindPath,
		},
		{
			"UserOnly", "smb://alice@fs/s",
			URL{User: "alice", HasUser: true, Server: "fs", Share: "s"},
			KindShare,
		},
		{
			"EmptyPassword", "smb://alice:@fs",
			URL{User: "alice", HasUser: true, HasPass: true, Server: "fs"},
			KindShares,
		},
		{
			"PercentEncoded", "smb://us%40er:p%3Aw@fs/my%20share/a%2Fb",
			URL{User: "us@er", Password: "p:w", HasUser: true, HasPass: true, Server: "fs", Share: "my share", Path: "a/b"},
			KindPath,
		},
		{"UppercaseScheme", "SMB://fs/s", URL{Server: "fs", Share: "s"}, KindShare},
		{"Backslash", `smb://fs/s/a\b`, URL{Server: "fs", Share: "s", Path: `a\b`}, KindPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, err := Parse(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, *u)
			assert.Equal(t, tt.kind, u.Kind())
		})
	}
}

func TestParseErrors(t *testing.T) {
	for _, raw := range []string{
		"",
		"fs/share",
		"cifs://fs/share",
		"smb://fs:0/s",
		"smb://fs:notaport/s",
		"smb://[::1/s",
		"smb://user@/s",
		"smb://fs/%zz",
	} {
		t.Run(raw, func(t *testing.T) {
			_, err := Parse(raw)
			require.Error(t, err)
			assert.True(t, smberr.IsValidation(err))
		})
	}
}

func TestParseErrorHidesPassword(t *testing.T) {
	_, err := Parse("smb://alice:hunter2@fs:bad/s")
	require.Error(t, err)
	assert.NotContains(t, err.Error(), "hunter2")
}

func TestStringRoundTrip(t *testing.T) {
	for _, raw := range []string{
		"smb://",
		"smb://fs",
		"smb://fs/s",
		"smb://fs:1445/s/dir/file.txt",
		"smb://CORP;alice:pw@fs/s",
		"smb://alice@fs",
		"smb://us%40er:p%3Aw@fs/my%20share/x",
		"smb://[::1]:445/s",
	} {
		t.Run(raw, func(t *testing.T) {
			u, err := Parse(raw)
			require.NoError(t, err)
			assert.Equal(t, raw, u.String())

			again, err := Parse(u.String())
			require.NoError(t, err)
			assert.Equal(t, u, again)
		})
	}
}

func TestCredentials(t *testing.T) {
	o := MustParse("smb://CORP;alice:pw@fs/s").Credentials()
	require.NotNil(t, o.Workgroup)
	require.NotNil(t, o.Username)
	require.NotNil(t, o.Password)
	assert.Equal(t, "CORP", *o.Workgroup)
	assert.Equal(t, "alice", *o.Username)
	assert.Equal(t, "pw", *o.Password)

	o = MustParse("smb://alice@fs/s").Credentials()
	assert.Nil(t, o.Workgroup)
	assert.Nil(t, o.Password)
	assert.Equal(t, "alice", *o.Username)

	assert.True(t, MustParse("smb://fs/s").Credentials().IsEmpty())
}

func TestAddr(t *testing.T) {
	assert.Equal(t, "fs:445", MustParse("smb://fs/s").Addr())
	assert.Equal(t, "fs:1445", MustParse("smb://fs:1445").Addr())
	assert.Equal(t, "[::1]:445", MustParse("smb://[::1]/s").Addr())
}

func TestNavigation(t *testing.T) {
	u := MustParse("smb://alice:pw@fs/s/a/b.txt")
	assert.Equal(t, "b.txt", u.Name())
	assert.Equal(t, "smb://alice:pw@fs/s/a", u.Parent().String())
	assert.Equal(t, "smb://alice:pw@fs/s", u.Parent().Parent().String())
	assert.Equal(t, "smb://alice:pw@fs", u.Parent().Parent().Parent().String())
	assert.Equal(t, "smb://", u.Parent().Parent().Parent().Parent().String())

	share := MustParse("smb://fs/s")
	assert.Equal(t, "s", share.Name())
	assert.Equal(t, "smb://fs/s/x/y", share.Join("x", "/y/").String())
	assert.Equal(t, "smb://fs/new", MustParse("smb://fs").Join("new").String())
	assert.Equal(t, "smb://fs/s", share.String(), "Join must not mutate the receiver")
}

func TestRedaction(t *testing.T) {
	u := MustParse("smb://CORP;alice:hunter2@fs/s")
	assert.Equal(t, "smb://CORP;alice:xxxxx@fs/s", u.Redacted())
	assert.Equal(t, "smb://fs/s", u.WithoutCredentials().String())
	assert.Equal(t, "smb://alice@fs/s", MustParse("smb://alice@fs/s").Redacted())

	assert.Equal(t, "smb://alice:xxxxx@fs/s/f", Redact("smb://alice:hunter2@fs/s/f"))
	assert.Equal(t, "smb://fs/s", Redact("smb://fs/s"))
	assert.Equal(t, "nonsense", Redact("nonsense"))
}
