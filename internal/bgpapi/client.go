package bgpapi

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName is the speaker's gRPC service path, matching its own API
// naming (GobgpApi.{AddPath,DeletePath,ListPath,ListPeer}).
const serviceName = "/gobgpapi.GobgpApi/"

// GobgpApiClient is the subset of the speaker's FlowSpec control surface
// prefixd depends on. Kept as a hand-written interface rather than a
// protoc-generated stub, in the same spirit as a client built "until
// protobuf is compiled" — it talks real gRPC, just with a JSON codec instead
// of a .proto-derived one.
type GobgpApiClient interface {
	AddPath(ctx context.Context, in *AddPathRequest, opts ...grpc.CallOption) (*AddPathResponse, error)
	DeletePath(ctx context.Context, in *DeletePathRequest, opts ...grpc.CallOption) (*DeletePathResponse, error)
	ListPath(ctx context.Context, in *ListPathRequest, opts ...grpc.CallOption) (*ListPathResponse, error)
	ListPeer(ctx context.Context, in *ListPeerRequest, opts ...grpc.CallOption) (*ListPeerResponse, error)
}

type client struct {
	conn *grpc.ClientConn
}

func NewGobgpApiClient(conn *grpc.ClientConn) GobgpApiClient {
	return &client{conn: conn}
}

func (c *client) callOpts(opts []grpc.CallOption) []grpc.CallOption {
	return append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
}

func (c *client) AddPath(ctx context.Context, in *AddPathRequest, opts ...grpc.CallOption) (*AddPathResponse, error) {
	out := new(AddPathResponse)
	if err := c.conn.Invoke(ctx, serviceName+"AddPath", in, out, c.callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) DeletePath(ctx context.Context, in *DeletePathRequest, opts ...grpc.CallOption) (*DeletePathResponse, error) {
	out := new(DeletePathResponse)
	if err := c.conn.Invoke(ctx, serviceName+"DeletePath", in, out, c.callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) ListPath(ctx context.Context, in *ListPathRequest, opts ...grpc.CallOption) (*ListPathResponse, error) {
	out := new(ListPathResponse)
	if err := c.conn.Invoke(ctx, serviceName+"ListPath", in, out, c.callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *client) ListPeer(ctx context.Context, in *ListPeerRequest, opts ...grpc.CallOption) (*ListPeerResponse, error) {
	out := new(ListPeerResponse)
	if err := c.conn.Invoke(ctx, serviceName+"ListPeer", in, out, c.callOpts(opts)...); err != nil {
		return nil, err
	}
	return out, nil
}
