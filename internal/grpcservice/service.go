// Package grpcservice implements the History gRPC service used by the CLI
// over the local IPC socket and over TCP.
//
// Messages are plain Go structs encoded with a JSON codec registered under
// the "json" content-subtype; clients must select it with
// grpc.CallContentSubtype(CodecName), which Dial does.
package grpcservice

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"

	"go.klb.dev/clipkeeper/internal/clip"
	"go.klb.dev/clipkeeper/internal/history"
	"go.klb.dev/clipkeeper/internal/hub"
	"go.klb.dev/clipkeeper/internal/keeper"
	"go.klb.dev/clipkeeper/internal/store"
)

// Keeper is the subset of keeper.Keeper the service needs.
type Keeper interface {
	History(ctx context.Context, limit, offset int) ([]history.Entry, error)
	Search(ctx context.Context, pattern string, limit int) ([]history.Entry, error)
	Entry(ctx context.Context, id int64) (history.Entry, error)
	Delete(ctx context.Context, id int64) (bool, error)
	Clear(ctx context.Context) error
	Restore(ctx context.Context, id int64) error
	Stats(ctx context.Context) (keeper.Stats, error)
	AddObserver(o hub.Observer)
	RemoveObserver(o hub.Observer)
}

// Service implements HistoryServer.
type Service struct {
	k       Keeper
	token   string // empty = no auth
	version string
	log     *slog.Logger
}

// Options configures New.
type Options struct {
	Token   string
	Version string
	Logger  *slog.Logger
}

// New returns a Service backed by k.
func New(k Keeper, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Service{k: k, token: opts.Token, version: opts.Version, log: log}
}

func (s *Service) List(ctx context.Context, req *ListRequest) (*EntriesResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	if req.Limit < 0 || req.Offset < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit and offset must not be negative")
	}
	items, err := s.k.History(ctx, req.Limit, req.Offset)
	if err != nil {
		return nil, toStatus(err)
	}
	return &EntriesResponse{Entries: items}, nil
}

func (s *Service) Search(ctx context.Context, req *SearchRequest) (*EntriesResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	if req.Limit < 0 {
		return nil, status.Error(codes.InvalidArgument, "limit must not be negative")
	}
	items, err := s.k.Search(ctx, req.Pattern, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}
	return &EntriesResponse{Entries: items}, nil
}

func (s *Service) Get(ctx context.Context, req *IDRequest) (*EntryResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	e, err := s.k.Entry(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &EntryResponse{Entry: e}, nil
}

func (s *Service) Delete(ctx context.Context, req *IDRequest) (*DeleteResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	ok, err := s.k.Delete(ctx, req.ID)
	if err != nil {
		return nil, toStatus(err)
	}
	return &DeleteResponse{Deleted: ok}, nil
}

func (s *Service) Clear(ctx context.Context, _ *Empty) (*Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	if err := s.k.Clear(ctx); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Service) Restore(ctx context.Context, req *IDRequest) (*Empty, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	if err := s.k.Restore(ctx, req.ID); err != nil {
		return nil, toStatus(err)
	}
	return &Empty{}, nil
}

func (s *Service) Status(ctx context.Context, _ *Empty) (*StatusResponse, error) {
	if err := s.auth(ctx); err != nil {
		return nil, err
	}
	st, err := s.k.Stats(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &StatusResponse{Stats: st, Version: s.version}, nil
}

// Watch streams every committed entry until the client goes away.
func (s *Service) Watch(_ *WatchRequest, stream grpc.ServerStream) error {
	ctx := stream.Context()
	if err := s.auth(ctx); err != nil {
		return err
	}

	w := &watcher{
		id: "grpc-watch/" + uuid.NewString(),
		ch: make(chan history.Entry, 16),
	}
	s.k.AddObserver(w)
	defer s.k.RemoveObserver(w)

	log := s.log.With("watcher", w.id, "remote", addrFromCtx(ctx))
	log.Info("watch started")
	defer log.Info("watch ended")

	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-w.ch:
			if err := stream.SendMsg(&EntryResponse{Entry: e}); err != nil {
				return err
			}
		}
	}
}

// watcher is a transient hub.Observer backed by a Watch stream.
type watcher struct {
	id string
	ch chan history.Entry
}

func (w *watcher) ID() string { return w.id }

func (w *watcher) Notify(_ context.Context, e history.Entry) error {
	select {
	case w.ch <- e:
		return nil
	default:
		return errors.New("watch stream backlog full, dropping entry")
	}
}

// auth validates the bearer token in ctx metadata. Skipped when s.token is empty.
func (s *Service) auth(ctx context.Context) error {
	if s.token == "" {
		return nil
	}
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return status.Error(codes.Unauthenticated, "missing metadata")
	}
	vals := md.Get("authorization")
	if len(vals) == 0 {
		return status.Error(codes.Unauthenticated, "missing authorization header")
	}
	got := strings.TrimPrefix(vals[0], "Bearer ")
	if subtle.ConstantTimeCompare([]byte(got), []byte(s.token)) != 1 {
		return status.Error(codes.Unauthenticated, "invalid token")
	}
	return nil
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, history.ErrUnsupportedKind):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, clip.ErrWrite), errors.Is(err, clip.ErrUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func addrFromCtx(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return "unknown"
}
