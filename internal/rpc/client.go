package rpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"lumenkv/pkg/client"
)

// Client calls the kv.KeyValueStore service.
type Client struct {
	conn *grpc.ClientConn
}

var _ client.KV = (*Client)(nil)

// Dial connects to target without TLS. Extra options are applied after the
// defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(protoCodec{})),
	}, opts...)

	conn, err := grpc.Dial(target, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Put(ctx context.Context, key, value []byte) error {
	out := new(PutResponse)
	if err := c.conn.Invoke(ctx, methodPut, &PutRequest{Key: key, Value: value}, out); err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

func (c *Client) Get(ctx context.Context, key []byte) ([]byte, bool, error) {
	out := new(GetResponse)
	if err := c.conn.Invoke(ctx, methodGet, &GetRequest{Key: key}, out); err != nil {
		return nil, false, fmt.Errorf("get: %w", err)
	}
	return out.Value, out.Found, nil
}

func (c *Client) Delete(ctx context.Context, key []byte) (bool, error) {
	out := new(DeleteResponse)
	if err := c.conn.Invoke(ctx, methodDelete, &DeleteRequest{Key: key}, out); err != nil {
		return false, fmt.Errorf("delete: %w", err)
	}
	return out.Success, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}
