package grpcservice

import (
	"context"
	"errors"
	"io"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"go.klb.dev/clipkeeper/internal/history"
)

// Client is a typed wrapper over a History connection.
type Client struct {
	conn *grpc.ClientConn
}

// DialOptions configures Dial.
type DialOptions struct {
	// Token is sent as a bearer token on every call when non-empty.
	Token string
	// Dialer replaces the default TCP dialer, e.g. for the IPC socket.
	Dialer func(ctx context.Context, addr string) (net.Conn, error)
}

// Dial creates a client for target. No I/O happens until the first call.
func Dial(target string, opts DialOptions) (*Client, error) {
	dopts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	}
	if opts.Token != "" {
		dopts = append(dopts, grpc.WithPerRPCCredentials(bearer(opts.Token)))
	}
	if opts.Dialer != nil {
		dopts = append(dopts, grpc.WithContextDialer(opts.Dialer))
	}
	conn, err := grpc.NewClient(target, dopts...)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) invoke(ctx context.Context, method string, in, out any) error {
	return c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, in, out)
}

func (c *Client) List(ctx context.Context, limit, offset int) ([]history.Entry, error) {
	var out EntriesResponse
	if err := c.invoke(ctx, "List", &ListRequest{Limit: limit, Offset: offset}, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) Search(ctx context.Context, pattern string, limit int) ([]history.Entry, error) {
	var out EntriesResponse
	if err := c.invoke(ctx, "Search", &SearchRequest{Pattern: pattern, Limit: limit}, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

func (c *Client) Get(ctx context.Context, id int64) (history.Entry, error) {
	var out EntryResponse
	if err := c.invoke(ctx, "Get", &IDRequest{ID: id}, &out); err != nil {
		return history.Entry{}, err
	}
	return out.Entry, nil
}

func (c *Client) Delete(ctx context.Context, id int64) (bool, error) {
	var out DeleteResponse
	if err := c.invoke(ctx, "Delete", &IDRequest{ID: id}, &out); err != nil {
		return false, err
	}
	return out.Deleted, nil
}

func (c *Client) Clear(ctx context.Context) error {
	return c.invoke(ctx, "Clear", &Empty{}, &Empty{})
}

func (c *Client) Restore(ctx context.Context, id int64) error {
	return c.invoke(ctx, "Restore", &IDRequest{ID: id}, &Empty{})
}

func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	var out StatusResponse
	if err := c.invoke(ctx, "Status", &Empty{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Watch calls fn for every committed entry until ctx ends or the stream
// fails. It returns nil when the server closes the stream.
func (c *Client) Watch(ctx context.Context, fn func(history.Entry)) error {
	stream, err := c.conn.NewStream(ctx, &serviceDesc.Streams[0], "/"+ServiceName+"/Watch")
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&WatchRequest{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	for {
		var out EntryResponse
		err := stream.RecvMsg(&out)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		fn(out.Entry)
	}
}

type bearer string

func (b bearer) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(b)}, nil
}

func (bearer) RequireTransportSecurity() bool { return false }
