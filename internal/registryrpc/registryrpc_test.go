package registryrpc

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/georgeannie/mlops-framework/internal/components"
	"github.com/georgeannie/mlops-framework/internal/tracking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

func startServer(t *testing.T) *Client {
	t.Helper()
	db, err := tracking.OpenDB(filepath.Join(t.TempDir(), "registry.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	reg, err := components.NewSQLRegistry(db)
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	RegisterComponentRegistryServer(srv, NewServer(reg))
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	client, err := NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestCacheOverGRPC(t *testing.T) {
	ctx := context.Background()
	client := startServer(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "train_job.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: train\ncode: src\ntags:\n  team: ml\n"), 0o644))

	cache := components.NewCache(client, "")
	first, err := cache.RegisterIfNeeded(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, "azureml:train:1", first.String())

	again, err := cache.RegisterIfNeeded(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, first, again)

	versions, err := client.ListVersions(ctx, "train")
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, versions)

	tags, err := client.GetTags(ctx, "train", "1")
	require.NoError(t, err)
	assert.Equal(t, "ml", tags["team"])
	assert.Len(t, tags["hash"], 64)
}

func TestListUnknownComponentIsEmpty(t *testing.T) {
	versions, err := startServer(t).ListVersions(context.Background(), "nothing")
	require.NoError(t, err)
	assert.Empty(t, versions)
}

func TestServerValidatesRequests(t *testing.T) {
	client := startServer(t)
	_, err := client.ListVersions(context.Background(), "")
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = client.Publish(context.Background(), "train", []byte("tags: [unclosed"))
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}
