package grpcservice

import (
	"context"

	"google.golang.org/grpc"

	"go.klb.dev/clipkeeper/internal/history"
	"go.klb.dev/clipkeeper/internal/keeper"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "clipkeeper.v1.History"

// ListRequest pages through history, newest first. Zero Limit selects the
// store default.
type ListRequest struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// SearchRequest matches Pattern as a case-insensitive substring.
type SearchRequest struct {
	Pattern string `json:"pattern"`
	Limit   int    `json:"limit"`
}

// IDRequest names one entry for Get, Delete and Restore.
type IDRequest struct {
	ID int64 `json:"id"`
}

// Empty is the request or response of calls that carry no data.
type Empty struct{}

// WatchRequest opens the stream of committed entries.
type WatchRequest struct{}

// EntriesResponse is returned by List and Search.
type EntriesResponse struct {
	Entries []history.Entry `json:"entries"`
}

// EntryResponse is returned by Get and sent on every Watch message.
type EntryResponse struct {
	Entry history.Entry `json:"entry"`
}

// DeleteResponse reports whether the entry existed.
type DeleteResponse struct {
	Deleted bool `json:"deleted"`
}

// StatusResponse describes the running daemon.
type StatusResponse struct {
	keeper.Stats
	Version string `json:"version,omitempty"`
}

// HistoryServer is the server API of the History service.
type HistoryServer interface {
	List(context.Context, *ListRequest) (*EntriesResponse, error)
	Search(context.Context, *SearchRequest) (*EntriesResponse, error)
	Get(context.Context, *IDRequest) (*EntryResponse, error)
	Delete(context.Context, *IDRequest) (*DeleteResponse, error)
	Clear(context.Context, *Empty) (*Empty, error)
	Restore(context.Context, *IDRequest) (*Empty, error)
	Status(context.Context, *Empty) (*StatusResponse, error)
	Watch(*WatchRequest, grpc.ServerStream) error
}

// unary adapts a typed method to a grpc.MethodDesc.
func unary[Req, Resp any](name string, call func(HistoryServer, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			s := srv.(HistoryServer)
			if interceptor == nil {
				return call(s, ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(s, ctx, req.(*Req))
			})
		},
	}
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*HistoryServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("List", HistoryServer.List),
		unary("Search", HistoryServer.Search),
		unary("Get", HistoryServer.Get),
		unary("Delete", HistoryServer.Delete),
		unary("Clear", HistoryServer.Clear),
		unary("Restore", HistoryServer.Restore),
		unary("Status", HistoryServer.Status),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Watch",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(WatchRequest)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(HistoryServer).Watch(in, stream)
			},
		},
	},
}

// Register adds the History service to s.
func Register(s grpc.ServiceRegistrar, srv HistoryServer) {
	s.RegisterService(&serviceDesc, srv)
}
