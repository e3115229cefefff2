package remote

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/fortiblox/intcode/internal/types"
	"github.com/fortiblox/intcode/pkg/imagestore"
	"github.com/fortiblox/intcode/pkg/intcode"
	"github.com/fortiblox/intcode/pkg/runcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
)

var echoImage = []int64{3, 0, 4, 0, 99}

func openStore(t *testing.T) *imagestore.Store {
	t.Helper()
	cfg := imagestore.DefaultConfig(filepath.Join(t.TempDir(), "images.db"))
	cfg.NoSync = true
	store, err := imagestore.Open(cfg)
	require.NoError(t, err)
	return store
}

// verifyNoLeaks fails t if goroutines outlive the test. glog, pulled in
// through badger, starts a flush daemon at init that never exits.
func verifyNoLeaks(t *testing.T) {
	t.Helper()
	goleak.VerifyNone(t, goleak.IgnoreTopFunction("github.com/golang/glog.(*fileSink).flushDaemon"))
}

func bufDialer(lis *bufconn.Listener) grpc.DialOption {
	return grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	})
}

// startServer serves the Executor over an in-memory listener and returns a
// connected client. The returned stop func tears everything down.
func startServer(t *testing.T, store ImageStore, cache RunCache) (*Client, func()) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	gs := grpc.NewServer()
	NewServer(DefaultConfig(), store, cache, zaptest.NewLogger(t)).Register(gs)
	go gs.Serve(lis)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, "bufnet", bufDialer(lis))
	require.NoError(t, err)

	return client, func() {
		client.Close()
		gs.Stop()
	}
}

func TestExecuteInline(t *testing.T) {
	defer verifyNoLeaks(t)

	store := openStore(t)
	defer store.Close()
	client, stop := startServer(t, store, nil)
	defer stop()

	ctx := context.Background()
	resp, err := client.Execute(ctx, &ExecuteRequest{Image: echoImage, Inputs: []int64{17}})
	require.NoError(t, err)
	assert.Equal(t, []int64{17}, resp.Outputs)
	assert.Equal(t, intcode.StatusTerminated, resp.Status)
	assert.Equal(t, uint64(3), resp.Steps)
	assert.False(t, resp.Cached)

	resp, err = client.Execute(ctx, &ExecuteRequest{Image: echoImage})
	require.NoError(t, err)
	assert.Equal(t, intcode.StatusSuspended, resp.Status)
	assert.Empty(t, resp.Outputs)
}

func TestImportAndExecuteByHash(t *testing.T) {
	defer verifyNoLeaks(t)

	store := openStore(t)
	defer store.Close()
	client, stop := startServer(t, store, nil)
	defer stop()

	ctx := context.Background()
	hash, err := client.Import(ctx, "echo", echoImage)
	require.NoError(t, err)
	assert.Equal(t, types.HashImage(echoImage).String(), hash)

	resp, err := client.Execute(ctx, &ExecuteRequest{ImageHash: hash, Inputs: []int64{-5}})
	require.NoError(t, err)
	assert.Equal(t, []int64{-5}, resp.Outputs)

	rec, err := store.GetByName("echo")
	require.NoError(t, err)
	assert.Equal(t, echoImage, rec.Image)
}

func TestErrorCodes(t *testing.T) {
	defer verifyNoLeaks(t)

	store := openStore(t)
	defer store.Close()
	client, stop := startServer(t, store, nil)
	defer stop()

	ctx := context.Background()
	tests := []struct {
		name string
		req  *ExecuteRequest
		code codes.Code
	}{
		{"empty", &ExecuteRequest{}, codes.InvalidArgument},
		{"both", &ExecuteRequest{ImageHash: "x", Image: echoImage}, codes.InvalidArgument},
		{"bad hash", &ExecuteRequest{ImageHash: "0OIl"}, codes.InvalidArgument},
		{"unknown", &ExecuteRequest{ImageHash: types.HashImage([]int64{99}).String()}, codes.NotFound},
		{"fault", &ExecuteRequest{Image: []int64{42}}, codes.FailedPrecondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Execute(ctx, tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.code, status.Code(err))
		})
	}

	_, err := client.Import(ctx, "", echoImage)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	_, err = client.Import(ctx, "none", nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServeStopsOnCancel(t *testing.T) {
	defer verifyNoLeaks(t)

	store := openStore(t)
	defer store.Close()

	lis := bufconn.Listen(1 << 20)
	srv := NewServer(DefaultConfig(), store, nil, zaptest.NewLogger(t))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- srv.Serve(ctx, lis) }()

	client, err := Dial(context.Background(), "bufnet", bufDialer(lis))
	require.NoError(t, err)
	_, err = client.Execute(context.Background(), &ExecuteRequest{Image: []int64{104, 1, 99}})
	require.NoError(t, err)
	require.NoError(t, client.Close())

	cancel()
	select {
	case err := <-errc:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestExecuteCached(t *testing.T) {
	store := openStore(t)
	defer store.Close()

	cfg := runcache.DefaultConfig("")
	cfg.InMemory = true
	cache, err := runcache.Open(cfg)
	require.NoError(t, err)
	defer cache.Close()

	client, stop := startServer(t, store, cache)
	defer stop()

	ctx := context.Background()
	req := &ExecuteRequest{Image: echoImage, Inputs: []int64{8}}
	resp, err := client.Execute(ctx, req)
	require.NoError(t, err)
	assert.False(t, resp.Cached)

	resp, err = client.Execute(ctx, req)
	require.NoError(t, err)
	assert.True(t, resp.Cached)
	assert.Equal(t, []int64{8}, resp.Outputs)
}
