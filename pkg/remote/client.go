package remote

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Client calls a remote Executor service.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to an Executor at target. Without transport credentials in
// opts the connection is insecure.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	}
	dialOpts = append(dialOpts, opts...)

	conn, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to dial gRPC: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Execute runs an image remotely.
func (c *Client) Execute(ctx context.Context, req *ExecuteRequest) (*ExecuteResponse, error) {
	out := new(ExecuteResponse)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/Execute", req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Import stores an image remotely and returns its hash.
func (c *Client) Import(ctx context.Context, name string, image []int64) (string, error) {
	out := new(ImportResponse)
	req := &ImportRequest{Name: name, Image: image}
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/Import", req, out); err != nil {
		return "", err
	}
	return out.Hash, nil
}

// Close closes the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}
