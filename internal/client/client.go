// Package client is the typed gRPC client chatctl and chattui use to talk to chatd.
package client

import (
	"context"
	"fmt"

	"github.com/matheus3301/chatline/internal/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"
)

// Client wraps the gRPC connection to the daemon.
type Client struct {
	conn *grpc.ClientConn
}

// New dials the daemon's Unix domain socket.
func New(socketPath string) (*Client, error) {
	conn, err := grpc.NewClient(
		"unix://"+socketPath,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(api.CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial daemon: %w", err)
	}
	return &Client{conn: conn}, nil
}

// Close closes the gRPC connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, c *Client, method string, req any) (*Resp, error) {
	out := new(Resp)
	if err := c.conn.Invoke(ctx, method, req, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Status(ctx context.Context) (*api.StatusResponse, error) {
	return invoke[api.StatusResponse](ctx, c, api.SessionGetStatus, &api.Empty{})
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := invoke[api.Empty](ctx, c, api.SessionLogout, &api.Empty{})
	return err
}

// StartAuth streams pairing events until pairing succeeds, fails or ctx ends.
func (c *Client) StartAuth(ctx context.Context) (grpc.ServerStreamingClient[api.AuthEvent], error) {
	return serverStream[api.Empty, api.AuthEvent](ctx, c, &api.SessionServiceDesc.Streams[0], api.SessionStartAuth, &api.Empty{})
}

func (c *Client) Roster(ctx context.Context, filter, query string) (*api.ListRosterResponse, error) {
	return invoke[api.ListRosterResponse](ctx, c, api.RosterList, &api.ListRosterRequest{Filter: filter, Query: query})
}

func (c *Client) MarkRead(ctx context.Context, counterpartID string) error {
	_, err := invoke[api.Empty](ctx, c, api.RosterMarkRead, &api.CounterpartRequest{CounterpartID: counterpartID})
	return err
}

func (c *Client) OpenFeed(ctx context.Context, counterpartID string) (*api.FeedView, error) {
	return invoke[api.FeedView](ctx, c, api.FeedOpen, &api.CounterpartRequest{CounterpartID: counterpartID})
}

func (c *Client) ActivateFeed(ctx context.Context, counterpartID string) (*api.FeedView, error) {
	return invoke[api.FeedView](ctx, c, api.FeedActivate, &api.CounterpartRequest{CounterpartID: counterpartID})
}

func (c *Client) DeactivateFeed(ctx context.Context) error {
	_, err := invoke[api.Empty](ctx, c, api.FeedDeactivate, &api.Empty{})
	return err
}

func (c *Client) Compose(ctx context.Context, counterpartID, text string) (*api.Message, error) {
	return invoke[api.Message](ctx, c, api.FeedCompose, &api.ComposeRequest{CounterpartID: counterpartID, Text: text})
}

func (c *Client) Contacts(ctx context.Context) ([]api.Contact, error) {
	resp, err := invoke[api.ListContactsResponse](ctx, c, api.ContactList, &api.Empty{})
	if err != nil {
		return nil, err
	}
	return resp.Contacts, nil
}

func (c *Client) AddContact(ctx context.Context, contact api.Contact) (*api.Contact, error) {
	return invoke[api.Contact](ctx, c, api.ContactAdd, &contact)
}

func (c *Client) ImportContacts(ctx context.Context) (int, error) {
	resp, err := invoke[api.ImportContactsResponse](ctx, c, api.ContactImport, &api.Empty{})
	if err != nil {
		return 0, err
	}
	return resp.Imported, nil
}

// Watch streams daemon events whose kind starts with one of kinds; no kinds means all.
func (c *Client) Watch(ctx context.Context, kinds ...string) (<-chan api.Event, <-chan error, error) {
	stream, err := serverStream[api.WatchRequest, structpb.Struct](ctx, c, &api.EventServiceDesc.Streams[0], api.EventWatch, &api.WatchRequest{Kinds: kinds})
	if err != nil {
		return nil, nil, err
	}

	out := make(chan api.Event, 64)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		for {
			s, err := stream.Recv()
			if err != nil {
				errc <- err
				return
			}
			evt, err := api.EventFromStruct(s)
			if err != nil {
				continue
			}
			select {
			case out <- evt:
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
	}()
	return out, errc, nil
}

func serverStream[Req, Resp any](ctx context.Context, c *Client, desc *grpc.StreamDesc, method string, req *Req) (grpc.ServerStreamingClient[Resp], error) {
	cs, err := c.conn.NewStream(ctx, desc, method)
	if err != nil {
		return nil, err
	}
	x := &grpc.GenericClientStream[Req, Resp]{ClientStream: cs}
	if err := x.ClientStream.SendMsg(req); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}
