// Package grpcserver exposes the catalog over gRPC for scripts and remote
// tools. Messages are google.protobuf.Struct values, so no generated code
// is needed on either side.
package grpcserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"photomap/internal/assign"
	"photomap/internal/catalog"
	"photomap/internal/photo"
)

// ServiceName is the fully qualified gRPC service.
const ServiceName = "photomap.Catalog"

// Backend is what the service reads from and writes to.
type Backend interface {
	Stats(ctx context.Context) (catalog.Stats, error)
	Records(ctx context.Context) ([]photo.Record, error)
	Assign(ctx context.Context, ids []photo.ID, ll photo.LatLng) error
}

// CatalogServer is the service interface registered with grpc.
type CatalogServer interface {
	Stats(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPhotos(context.Context, *structpb.Struct) (*structpb.Struct, error)
	AssignLocation(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type structCall func(CatalogServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(method string, call structCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: method,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CatalogServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + method}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CatalogServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// ServiceDesc describes photomap.Catalog.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CatalogServer)(nil),
	Methods: []grpc.MethodDesc{
		unary("Stats", CatalogServer.Stats),
		unary("ListPhotos", CatalogServer.ListPhotos),
		unary("AssignLocation", CatalogServer.AssignLocation),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "photomap/catalog",
}

// RegisterCatalogServer attaches srv to s.
func RegisterCatalogServer(s grpc.ServiceRegistrar, srv CatalogServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// Server implements CatalogServer on top of a Backend.
type Server struct {
	backend Backend
	log     *slog.Logger
}

// New returns a service backed by b.
func New(b Backend, log *slog.Logger) *Server {
	return &Server{backend: b, log: log}
}

func (s *Server) Stats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	st, err := s.backend.Stats(ctx)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	return structpb.NewStruct(map[string]any{
		"total":   st.Total,
		"located": st.Located,
		"manual":  st.Manual,
	})
}

// ListPhotos accepts an optional "filter" (all, nogps, located, manual).
func (s *Server) ListPhotos(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	filter, err := assign.ParseFilter(req.GetFields()["filter"].GetStringValue())
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	recs, err := s.backend.Records(ctx)
	if err != nil {
		return nil, status.Error(codes.Unavailable, err.Error())
	}
	pred := filter.Predicate()
	photos := []any{}
	for _, r := range recs {
		if pred(r) {
			photos = append(photos, recordMap(r))
		}
	}
	return structpb.NewStruct(map[string]any{"photos": photos})
}

func recordMap(r photo.Record) map[string]any {
	m := map[string]any{
		"id":     string(r.ID),
		"name":   r.Source.Name,
		"path":   r.ExportPath(),
		"time":   r.Timestamp.Format(time.RFC3339),
		"manual": r.ManuallyAssigned,
	}
	if r.Location != nil {
		m["lat"] = r.Location.Lat
		m["lng"] = r.Location.Lng
	}
	return m
}

// AssignLocation takes "ids" (list of strings) plus "lat" and "lng".
func (s *Server) AssignLocation(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	ids, ll, err := parseAssign(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if err := s.backend.Assign(ctx, ids, ll); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, status.Error(codes.NotFound, err.Error())
		}
		return nil, status.Error(codes.Internal, err.Error())
	}
	s.log.Info("assignment via gRPC", "photos", len(ids), "lat", ll.Lat, "lng", ll.Lng)
	return structpb.NewStruct(map[string]any{"assigned": len(ids)})
}

func parseAssign(req *structpb.Struct) ([]photo.ID, photo.LatLng, error) {
	fields := req.GetFields()
	var ids []photo.ID
	for _, v := range fields["ids"].GetListValue().GetValues() {
		if id := v.GetStringValue(); id != "" {
			ids = append(ids, photo.ID(id))
		}
	}
	if len(ids) == 0 {
		return nil, photo.LatLng{}, errors.New("ids is required")
	}
	lat, okLat := fields["lat"]
	lng, okLng := fields["lng"]
	if !okLat || !okLng {
		return nil, photo.LatLng{}, errors.New("lat and lng are required")
	}
	ll := photo.LatLng{Lat: lat.GetNumberValue(), Lng: lng.GetNumberValue()}
	if !ll.Valid() {
		return nil, photo.LatLng{}, fmt.Errorf("invalid location %s", ll)
	}
	return ids, ll, nil
}

// Serve listens on addr until ctx is done.
func Serve(ctx context.Context, addr string, b Backend, log *slog.Logger) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	srv := grpc.NewServer()
	RegisterCatalogServer(srv, New(b, log))

	go func() {
		<-ctx.Done()
		srv.GracefulStop()
	}()

	log.Info("gRPC server starting", "addr", addr)
	return srv.Serve(lis)
}
