package registryrpc

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region client-struct
// Client is a components.Registry backed by a remote registry service.
type Client struct {
	conn *grpc.ClientConn
	cc   grpc.ClientConnInterface
}

// #endregion client-struct

// #region constructor
// NewClient connects to the registry service at addr.
func NewClient(addr string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, fmt.Errorf("grpc dial %s: %w", addr, err)
	}
	return &Client{conn: conn, cc: conn}, nil
}

// NewClientWithConn uses an existing connection, which the caller closes.
func NewClientWithConn(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Close shuts down a connection opened by NewClient.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// #endregion constructor

func (c *Client) ListVersions(ctx context.Context, name string) ([]string, error) {
	resp, err := c.call(ctx, methodListVersions, map[string]any{"name": name})
	if err != nil {
		return nil, fmt.Errorf("list versions rpc: %w", err)
	}
	var versions []string
	for _, v := range resp.GetFields()["versions"].GetListValue().GetValues() {
		versions = append(versions, v.GetStringValue())
	}
	return versions, nil
}

func (c *Client) GetTags(ctx context.Context, name, version string) (map[string]string, error) {
	resp, err := c.call(ctx, methodGetTags, map[string]any{"name": name, "version": version})
	if err != nil {
		return nil, fmt.Errorf("get tags rpc: %w", err)
	}
	tags := map[string]string{}
	for k, v := range resp.GetFields()["tags"].GetStructValue().GetFields() {
		tags[k] = v.GetStringValue()
	}
	return tags, nil
}

func (c *Client) Publish(ctx context.Context, name string, document []byte) (string, error) {
	resp, err := c.call(ctx, methodPublish, map[string]any{"name": name, "document": string(document)})
	if err != nil {
		return "", fmt.Errorf("publish rpc: %w", err)
	}
	return resp.GetFields()["version"].GetStringValue(), nil
}

func (c *Client) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}
