package rpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"lumenkv/pkg/dberrors"
	"lumenkv/pkg/engine"
	"lumenkv/pkg/metrics"
)

const bufSize = 1024 * 1024

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func startServer(t *testing.T, store Store, opts Options) *Client {
	t.Helper()
	opts.Logger = quietLogger()

	lis := bufconn.Listen(bufSize)
	srv := NewServer(store, "bufnet", opts)
	srv.Serve(lis)
	t.Cleanup(func() { _ = srv.Stop() })

	c, err := Dial("bufnet", grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) {
		return lis.Dial()
	}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func openEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.Open(t.TempDir(), engine.WithLogger(quietLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestKeyValueStore_PutGetDelete(t *testing.T) {
	e := openEngine(t)
	c := startServer(t, e, Options{})
	ctx := testContext(t)

	require.NoError(t, c.Put(ctx, []byte("a"), []byte{0x00, 0xff}))

	v, found, err := c.Get(ctx, []byte("a"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte{0x00, 0xff}, v)

	existed, err := c.Delete(ctx, []byte("a"))
	require.NoError(t, err)
	assert.True(t, existed)

	_, found, err = c.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.False(t, found)

	existed, err = c.Delete(ctx, []byte("a"))
	require.NoError(t, err)
	assert.False(t, existed)

	assert.Equal(t, 0, e.Len())
}

func TestKeyValueStore_EmptyKeyIsInvalidArgument(t *testing.T) {
	c := startServer(t, openEngine(t), Options{})
	ctx := testContext(t)

	err := c.Put(ctx, nil, []byte("v"))
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Unwrap(err)))

	_, _, err = c.Get(ctx, []byte{})
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Unwrap(err)))

	_, err = c.Delete(ctx, nil)
	assert.Equal(t, codes.InvalidArgument, status.Code(errors.Unwrap(err)))
}

func TestKeyValueStore_EmptyValueIsFound(t *testing.T) {
	c := startServer(t, openEngine(t), Options{})
	ctx := testContext(t)

	require.NoError(t, c.Put(ctx, []byte("k"), nil))
	v, found, err := c.Get(ctx, []byte("k"))
	require.NoError(t, err)
	assert.True(t, found)
	assert.Empty(t, v)
}

type failingStore struct {
	err error
}

func (f failingStore) Put([]byte, []byte) error    { return f.err }
func (f failingStore) Get([]byte) ([]byte, bool)   { return nil, false }
func (f failingStore) Delete([]byte) (bool, error) { return false, f.err }

func TestToStatus(t *testing.T) {
	tests := []struct {
		kind dberrors.Kind
		want codes.Code
	}{
		{dberrors.KindInvalidArgument, codes.InvalidArgument},
		{dberrors.KindClosed, codes.Unavailable},
		{dberrors.KindCorruption, codes.DataLoss},
		{dberrors.KindIO, codes.Internal},
		{dberrors.KindInternal, codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			err := toStatus(dberrors.New(tt.kind, "put", errors.New("boom")))
			assert.Equal(t, tt.want, status.Code(err))
		})
	}
	assert.NoError(t, toStatus(nil))
}

func TestKeyValueStore_MissingKeyIsNotAnError(t *testing.T) {
	c := startServer(t, failingStore{err: errors.New("unused")}, Options{})

	v, found, err := c.Get(testContext(t), []byte("missing"))
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, v)
}

// rawCodec sends pre-encoded protobuf bytes, the way any protobuf client
// would put them on the wire.
type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) { return *v.(*[]byte), nil }
func (rawCodec) Name() string                          { return "proto" }

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	*v.(*[]byte) = append([]byte(nil), data...)
	return nil
}

func TestKeyValueStore_SpeaksProtobufWireFormat(t *testing.T) {
	lis := bufconn.Listen(bufSize)
	srv := NewServer(openEngine(t), "bufnet", Options{Logger: quietLogger()})
	srv.Serve(lis)
	t.Cleanup(func() { _ = srv.Stop() })

	conn, err := grpc.Dial("bufnet",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	ctx := testContext(t)

	invoke := func(method string, req []byte) []byte {
		var out []byte
		require.NoError(t, conn.Invoke(ctx, method, &req, &out))
		return out
	}

	assert.Equal(t, []byte{0x08, 0x01}, invoke("/kv.KeyValueStore/Put", []byte{0x0a, 0x01, 'k', 0x12, 0x01, 'v'}))
	assert.Equal(t, []byte{0x0a, 0x01, 'v', 0x10, 0x01}, invoke("/kv.KeyValueStore/Get", []byte{0x0a, 0x01, 'k'}))
	assert.Equal(t, []byte{0x08, 0x01}, invoke("/kv.KeyValueStore/Delete", []byte{0x0a, 0x01, 'k'}))
	assert.Empty(t, invoke("/kv.KeyValueStore/Get", []byte{0x0a, 0x01, 'k'}))
}

func TestKeyValueStore_EngineErrorsReachClient(t *testing.T) {
	c := startServer(t, failingStore{err: dberrors.New(dberrors.KindIO, "put", errors.New("disk full"))}, Options{})
	ctx := testContext(t)

	err := c.Put(ctx, []byte("k"), []byte("v"))
	st, ok := status.FromError(errors.Unwrap(err))
	require.True(t, ok)
	assert.Equal(t, codes.Internal, st.Code())
	assert.Contains(t, st.Message(), "disk full")
}

func TestKeyValueStore_ClosedEngineIsUnavailable(t *testing.T) {
	e := openEngine(t)
	c := startServer(t, e, Options{})
	require.NoError(t, e.Close())

	err := c.Put(testContext(t), []byte("k"), []byte("v"))
	assert.Equal(t, codes.Unavailable, status.Code(errors.Unwrap(err)))
}

type panickingStore struct{ failingStore }

func (panickingStore) Put([]byte, []byte) error { panic("boom") }

func TestInterceptor_RecoversPanics(t *testing.T) {
	c := startServer(t, panickingStore{}, Options{})

	err := c.Put(testContext(t), []byte("k"), []byte("v"))
	assert.Equal(t, codes.Internal, status.Code(errors.Unwrap(err)))
}

func TestInterceptor_RequestID(t *testing.T) {
	c := startServer(t, openEngine(t), Options{})

	var header metadata.MD
	err := c.conn.Invoke(testContext(t), methodGet, &GetRequest{Key: []byte("k")}, new(GetResponse), grpc.Header(&header))
	require.NoError(t, err)
	require.Len(t, header.Get(requestIDKey), 1)
	assert.NotEmpty(t, header.Get(requestIDKey)[0])

	ctx := metadata.AppendToOutgoingContext(testContext(t), requestIDKey, "req-42")
	err = c.conn.Invoke(ctx, methodGet, &GetRequest{Key: []byte("k")}, new(GetResponse), grpc.Header(&header))
	require.NoError(t, err)
	assert.Equal(t, []string{"req-42"}, header.Get(requestIDKey))
}

func TestInterceptor_RecordsMetrics(t *testing.T) {
	m := metrics.New()
	c := startServer(t, openEngine(t), Options{Metrics: m})
	ctx := testContext(t)

	require.NoError(t, c.Put(ctx, []byte("k"), []byte("v")))
	_ = c.Put(ctx, nil, []byte("v"))

	expected := `
# HELP lumenkv_requests_total Requests served by transport, method and status code.
# TYPE lumenkv_requests_total counter
lumenkv_requests_total{code="InvalidArgument",method="/kv.KeyValueStore/Put",transport="grpc"} 1
lumenkv_requests_total{code="OK",method="/kv.KeyValueStore/Put",transport="grpc"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "lumenkv_requests_total"))
}

func TestKeyValueStore_ConcurrentClients(t *testing.T) {
	e := openEngine(t)
	c := startServer(t, e, Options{})
	ctx := testContext(t)

	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				key := []byte(fmt.Sprintf("w%d-%d", w, i))
				assert.NoError(t, c.Put(ctx, key, key))
			}
		}(w)
	}
	wg.Wait()

	assert.Equal(t, 160, e.Len())
}
