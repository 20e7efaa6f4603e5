//go:build integration

package smb2_test

import (
	"context"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/marmos91/smbc/pkg/auth"
	"github.com/marmos91/smbc/pkg/invoker"
	"github.com/marmos91/smbc/pkg/invoker/smb2"
	"github.com/marmos91/smbc/pkg/smbc"
	"github.com/marmos91/smbc/pkg/smberr"
)

// sambaServer is a Samba container exporting the share "data" to alice.
type sambaServer struct {
	host string
	port int
}

func newSambaServer(t *testing.T) *sambaServer {
	t.Helper()
	ctx := context.Background()

	// SMB_TEST_HOST (and optionally SMB_TEST_PORT) select an existing
	// server with the same share and user instead of a container.
	if host := os.Getenv("SMB_TEST_HOST"); host != "" {
		port, _ := strconv.Atoi(os.Getenv("SMB_TEST_PORT"))
		return &sambaServer{host: host, port: port}
	}

	req := testcontainers.ContainerRequest{
		Image:        "dperson/samba:latest",
		ExposedPorts: []string{"445/tcp"},
		Cmd: []string{
			"-u", "alice;secret",
			"-s", "data;/share;yes;no;no;alice",
			"-p",
		},
		WaitingFor: wait.ForListeningPort("445/tcp").WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("failed to start samba container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "445")
	if err != nil {
		t.Fatalf("failed to get container port: %v", err)
	}

	return &sambaServer{host: host, port: port.Int()}
}

func (s *sambaServer) client(t *testing.T, password string) *smbc.Context {
	t.Helper()
	c, err := smbc.New(
		smb2.Factory(smb2.Options{Port: s.port, Timeout: 10 * time.Second}),
		smbc.WithBackendName("smb2"),
		smbc.WithDefaults(auth.Credentials{Workgroup: "WORKGROUP", Username: "alice", Password: password}),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func (s *sambaServer) url(path string) string {
	u := "smb://" + s.host + "/data"
	if path != "" {
		u += "/" + path
	}
	return u
}

func TestSambaFileLifecycle(t *testing.T) {
	srv := newSambaServer(t)
	c := srv.client(t, "secret")
	ctx := context.Background()

	require.NoError(t, c.Mkdir(ctx, srv.url("dir"), 0o755))
	require.NoError(t, c.WriteFile(ctx, srv.url("dir/hello.txt"), []byte("hello samba"), 0o644))

	data, err := c.ReadFile(ctx, srv.url("dir/hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello samba", string(data))

	entries, err := c.List(ctx, srv.url("dir"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello.txt", entries[0].Name)
	assert.Equal(t, invoker.TypeFile, entries[0].Type)

	st, err := c.Stat(ctx, srv.url("dir/hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, int64(11), st.Size)

	require.NoError(t, c.Rename(ctx, srv.url("dir/hello.txt"), srv.url("dir/renamed.txt")))
	_, err = c.Stat(ctx, srv.url("dir/hello.txt"))
	assert.True(t, smberr.IsNotExist(err))

	err = c.Rmdir(ctx, srv.url("dir"))
	assert.Error(t, err, "directory is not empty")

	require.NoError(t, c.Unlink(ctx, srv.url("dir/renamed.txt")))
	require.NoError(t, c.Rmdir(ctx, srv.url("dir")))

	vfs, err := c.Statvfs(ctx, srv.url(""))
	require.NoError(t, err)
	assert.NotZero(t, vfs.Blocks)
}

func TestSambaAsync(t *testing.T) {
	srv := newSambaServer(t)
	c := srv.client(t, "secret")
	ctx := context.Background()
	require.NoError(t, c.EnableAsync(ctx))

	wf, err := c.WriteFileAsync(ctx, srv.url("async.txt"), []byte("queued"), 0o644)
	require.NoError(t, err)
	rf, err := c.ReadFileAsync(ctx, srv.url("async.txt"))
	require.NoError(t, err)

	_, err = wf.Await(ctx)
	require.NoError(t, err)
	data, err := rf.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "queued", string(data))
}

func TestSambaShareListing(t *testing.T) {
	srv := newSambaServer(t)
	c := srv.client(t, "secret")

	entries, err := c.List(context.Background(), "smb://"+srv.host)
	require.NoError(t, err)

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
	}
	assert.Contains(t, names, "data")
}

func TestSambaBadPassword(t *testing.T) {
	srv := newSambaServer(t)
	c := srv.client(t, "wrong")

	_, err := c.List(context.Background(), srv.url(""))
	require.Error(t, err)
	assert.True(t, smberr.IsPermission(err))
}
