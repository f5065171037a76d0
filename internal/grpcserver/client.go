package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"photomap/internal/catalog"
	"photomap/internal/photo"
)

// Client calls a running photomap.Catalog service.
type Client struct {
	conn grpc.ClientConnInterface
}

// Dial connects to addr without TLS.
func Dial(addr string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, nil, err
	}
	return NewClient(conn), conn, nil
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

func (c *Client) call(ctx context.Context, method string, in map[string]any) (*structpb.Struct, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, "/"+ServiceName+"/"+method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

// Stats returns the remote catalog counters.
func (c *Client) Stats(ctx context.Context) (catalog.Stats, error) {
	out, err := c.call(ctx, "Stats", nil)
	if err != nil {
		return catalog.Stats{}, err
	}
	f := out.GetFields()
	return catalog.Stats{
		Total:   int(f["total"].GetNumberValue()),
		Located: int(f["located"].GetNumberValue()),
		Manual:  int(f["manual"].GetNumberValue()),
	}, nil
}

// ListPhotos returns the photos matching filter as plain maps.
func (c *Client) ListPhotos(ctx context.Context, filter string) ([]map[string]any, error) {
	out, err := c.call(ctx, "ListPhotos", map[string]any{"filter": filter})
	if err != nil {
		return nil, err
	}
	var photos []map[string]any
	for _, v := range out.GetFields()["photos"].GetListValue().GetValues() {
		photos = append(photos, v.GetStructValue().AsMap())
	}
	return photos, nil
}

// AssignLocation places ids at ll on the remote catalog.
func (c *Client) AssignLocation(ctx context.Context, ids []photo.ID, ll photo.LatLng) (int, error) {
	list := make([]any, len(ids))
	for i, id := range ids {
		list[i] = string(id)
	}
	out, err := c.call(ctx, "AssignLocation", map[string]any{"ids": list, "lat": ll.Lat, "lng": ll.Lng})
	if err != nil {
		return 0, err
	}
	return int(out.GetFields()["assigned"].GetNumberValue()), nil
}
