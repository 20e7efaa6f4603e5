package smbc

import (
	"context"
	"errors"
	"strings"
	"sync"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/smberr"
)

const secureURL = "smb://fs/secure"

func TestSecureShareNeedsCredentials(t *testing.T) {
	c, _ := newTestContext(t)
	_, err := c.Stat(context.Background(), secureURL)
	assert.Equal(t, syscall.EACCES, errnoOf(t, err))
}

func TestTableExactBeatsServerAndDefault(t *testing.T) {
	c, _ := newTestContext(t)

	ctx := context.Background()
	require.NoError(t, c.SetDefaultCredentials(auth.Full("X", "nobody", "nope")))
	require.NoError(t, c.SetServerCredentials("fs", auth.Full("CORP", "alice", "wrong")))
	require.NoError(t, c.SetCredentials("fs", "secure", auth.Full("CORP", "alice", "pw")))
	assert.Len(t, c.Credentials(), 3)
	assert.Equal(t, ResolverTable, c.ResolverKind())

	_, err := c.Stat(ctx, secureURL)
	require.NoError(t, err)

	// Drop the cached session so the next call resolves again.
	require.True(t, c.DeleteCredentials("fs", "secure"))
	_, err = c.PurgeUnused(ctx)
	require.NoError(t, err)

	_, err = c.Stat(ctx, secureURL)
	assert.Equal(t, syscall.EACCES, errnoOf(t, err), "(fs, *) now applies")
}

func TestTableServerEntry(t *testing.T) {
	c, _ := newTestContext(t)
	require.NoError(t, c.SetServerCredentials("FS", auth.Full("corp", "alice", "pw")))

	_, err := c.Stat(context.Background(), secureURL)
	require.NoError(t, err, "server names match case-insensitively")
}

func TestDefaultsFillMissingFields(t *testing.T) {
	c, _ := newTestContext(t, WithDefaults(auth.Credentials{Workgroup: "CORP", Username: "alice"}))
	require.NoError(t, c.SetCredentials("fs", "secure", auth.Override{Password: auth.String("pw")}))

	_, err := c.Stat(context.Background(), secureURL)
	require.NoError(t, err)
}

func TestSetCredentialsWithFallback(t *testing.T) {
	c, _ := newTestContext(t)
	require.NoError(t, c.SetCredentialsWithFallback("CORP", "alice", "pw"))
	assert.Equal(t, auth.Credentials{Workgroup: "CORP", Username: "alice", Password: "pw"}, c.Defaults())

	_, err := c.Stat(context.Background(), secureURL)
	require.NoError(t, err)

	err = c.SetCredentialsWithFallback("CORP", strings.Repeat("u", 256), "")
	require.Error(t, err)
	assert.True(t, smberr.IsValidation(err))
	assert.Equal(t, "alice", c.Defaults().Username, "rejected defaults leave the old ones")
}

func TestURLCredentialsWin(t *testing.T) {
	c, _ := newTestContext(t)
	require.NoError(t, c.SetCredentials("fs", "secure", auth.Full("CORP", "alice", "wrong")))

	_, err := c.Stat(context.Background(), "smb://alice:pw@fs/secure")
	require.NoError(t, err)

	_, err = c.Stat(context.Background(), secureURL)
	assert.Equal(t, syscall.EACCES, errnoOf(t, err))
}

func TestCredentialValidation(t *testing.T) {
	c, _ := newTestContext(t)

	err := c.SetCredentials("fs", "secure", auth.Override{Username: auth.String("a\x00b")})
	require.Error(t, err)
	assert.True(t, smberr.IsValidation(err))

	err = c.SetCredentials("fs", "secure", auth.Override{Password: auth.String(strings.Repeat("p", 256))})
	require.Error(t, err)
	assert.True(t, smberr.IsValidation(err))

	err = c.SetCredentials(auth.Wildcard, "secure", auth.Full("", "u", ""))
	require.Error(t, err)

	assert.Empty(t, c.Credentials())
}

func TestDeleteAndLoadCredentials(t *testing.T) {
	c, _ := newTestContext(t)

	require.NoError(t, c.LoadCredentials([]auth.Entry{
		{Server: "fs", Share: "secure", Override: auth.Full("CORP", "alice", "pw")},
		{Server: auth.Wildcard, Share: auth.Wildcard, Override: auth.Full("", "guest", "")},
	}))
	_, err := c.Stat(context.Background(), secureURL)
	require.NoError(t, err)

	assert.True(t, c.DeleteCredentials("fs", "secure"))
	assert.False(t, c.DeleteCredentials("fs", "secure"))
	assert.Len(t, c.Credentials(), 1)

	require.NoError(t, c.LoadCredentials(nil))
	assert.Empty(t, c.Credentials())
}

func TestAuthFunc(t *testing.T) {
	c, _ := newTestContext(t)

	var mu sync.Mutex
	var calls []string
	c.SetAuthFunc(func(server, share string) (auth.Override, error) {
		mu.Lock()
		calls = append(calls, server+"/"+share)
		mu.Unlock()
		if share == "secure" {
			return auth.Full("CORP", "alice", "pw"), nil
		}
		return auth.Override{}, nil
	})
	assert.Equal(t, ResolverFunc, c.ResolverKind())

	_, err := c.Stat(context.Background(), secureURL)
	require.NoError(t, err)
	assert.Equal(t, []string{"fs/secure"}, calls)

	c.SetAuthFunc(nil)
	assert.Equal(t, ResolverTable, c.ResolverKind())
}

func TestAuthFuncError(t *testing.T) {
	c, _ := newTestContext(t)
	boom := errors.New("vault unavailable")
	c.SetAuthFunc(func(string, string) (auth.Override, error) { return auth.Override{}, boom })

	_, err := c.Stat(context.Background(), secureURL)
	assert.ErrorIs(t, err, boom)
}

func TestAuthFuncInvalidOverride(t *testing.T) {
	c, _ := newTestContext(t)
	c.SetAuthFunc(func(string, string) (auth.Override, error) {
		return auth.Override{Username: auth.String(strings.Repeat("u", 300))}, nil
	})

	_, err := c.Stat(context.Background(), secureURL)
	require.Error(t, err)
	assert.True(t, smberr.IsValidation(err), "overlong callback values are rejected, not truncated")
}

func TestAuthFuncWithContext(t *testing.T) {
	c, _ := newTestContext(t)

	var got *Context
	c.SetAuthFuncWithContext(func(cc *Context, server, share string) (auth.Override, error) {
		got = cc
		return auth.Full("CORP", "alice", "pw"), nil
	})
	assert.Equal(t, ResolverFuncCtx, c.ResolverKind())

	_, err := c.Stat(context.Background(), secureURL)
	require.NoError(t, err)
	assert.Same(t, c, got)
}

type staticResolver auth.Override

func (r staticResolver) Resolve(string, string) (auth.Override, error) {
	return auth.Override(r), nil
}

func TestSetResolver(t *testing.T) {
	c, _ := newTestContext(t)
	c.SetResolver(staticResolver(auth.Full("CORP", "alice", "pw")))
	assert.Equal(t, ResolverCustom, c.ResolverKind())

	_, err := c.Stat(context.Background(), secureURL)
	require.NoError(t, err)

	c.SetResolver(nil)
	assert.Equal(t, ResolverTable, c.ResolverKind())
}

func TestAuthRunsOnWorkerForAsync(t *testing.T) {
	ctx := context.Background()
	c, _ := newAsyncContext(t)

	var calls int
	c.SetAuthFunc(func(string, string) (auth.Override, error) {
		calls++
		return auth.Full("CORP", "alice", "pw"), nil
	})

	f, err := c.StatAsync(ctx, secureURL)
	require.NoError(t, err)
	_, err = await(t, f)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
