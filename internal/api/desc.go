package api

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// Fully qualified method names.
const (
	SessionGetStatus = "/chatline.v1.SessionService/GetStatus"
	SessionStartAuth = "/chatline.v1.SessionService/StartAuth"
	SessionLogout    = "/chatline.v1.SessionService/Logout"

	RosterList     = "/chatline.v1.RosterService/List"
	RosterMarkRead = "/chatline.v1.RosterService/MarkRead"

	FeedOpen       = "/chatline.v1.FeedService/Open"
	FeedActivate   = "/chatline.v1.FeedService/Activate"
	FeedDeactivate = "/chatline.v1.FeedService/Deactivate"
	FeedCompose    = "/chatline.v1.FeedService/Compose"

	ContactList   = "/chatline.v1.ContactService/List"
	ContactAdd    = "/chatline.v1.ContactService/Add"
	ContactImport = "/chatline.v1.ContactService/Import"

	EventWatch = "/chatline.v1.EventService/Watch"
)

type SessionServer interface {
	GetStatus(context.Context, *Empty) (*StatusResponse, error)
	StartAuth(*Empty, grpc.ServerStreamingServer[AuthEvent]) error
	Logout(context.Context, *Empty) (*Empty, error)
}

type RosterServer interface {
	List(context.Context, *ListRosterRequest) (*ListRosterResponse, error)
	MarkRead(context.Context, *CounterpartRequest) (*Empty, error)
}

type FeedServer interface {
	Open(context.Context, *CounterpartRequest) (*FeedView, error)
	Activate(context.Context, *CounterpartRequest) (*FeedView, error)
	Deactivate(context.Context, *Empty) (*Empty, error)
	Compose(context.Context, *ComposeRequest) (*Message, error)
}

type ContactServer interface {
	List(context.Context, *Empty) (*ListContactsResponse, error)
	Add(context.Context, *Contact) (*Contact, error)
	Import(context.Context, *Empty) (*ImportContactsResponse, error)
}

type EventServer interface {
	Watch(*WatchRequest, grpc.ServerStreamingServer[structpb.Struct]) error
}

var SessionServiceDesc = grpc.ServiceDesc{
	ServiceName: "chatline.v1.SessionService",
	HandlerType: (*SessionServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(SessionGetStatus, SessionServer.GetStatus),
		unary(SessionLogout, SessionServer.Logout),
	},
	Streams: []grpc.StreamDesc{
		serverStream(SessionStartAuth, SessionServer.StartAuth),
	},
}

var RosterServiceDesc = grpc.ServiceDesc{
	ServiceName: "chatline.v1.RosterService",
	HandlerType: (*RosterServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(RosterList, RosterServer.List),
		unary(RosterMarkRead, RosterServer.MarkRead),
	},
}

var FeedServiceDesc = grpc.ServiceDesc{
	ServiceName: "chatline.v1.FeedService",
	HandlerType: (*FeedServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(FeedOpen, FeedServer.Open),
		unary(FeedActivate, FeedServer.Activate),
		unary(FeedDeactivate, FeedServer.Deactivate),
		unary(FeedCompose, FeedServer.Compose),
	},
}

var ContactServiceDesc = grpc.ServiceDesc{
	ServiceName: "chatline.v1.ContactService",
	HandlerType: (*ContactServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(ContactList, ContactServer.List),
		unary(ContactAdd, ContactServer.Add),
		unary(ContactImport, ContactServer.Import),
	},
}

var EventServiceDesc = grpc.ServiceDesc{
	ServiceName: "chatline.v1.EventService",
	HandlerType: (*EventServer)(nil),
	Streams: []grpc.StreamDesc{
		serverStream(EventWatch, EventServer.Watch),
	},
}

// Register attaches every chatline service to srv.
func Register(srv grpc.ServiceRegistrar, session SessionServer, rosterSvc RosterServer, feedSvc FeedServer, contacts ContactServer, events EventServer) {
	srv.RegisterService(&SessionServiceDesc, session)
	srv.RegisterService(&RosterServiceDesc, rosterSvc)
	srv.RegisterService(&FeedServiceDesc, feedSvc)
	srv.RegisterService(&ContactServiceDesc, contacts)
	srv.RegisterService(&EventServiceDesc, events)
}

func unary[S, Req, Resp any](fullMethod string, call func(S, context.Context, *Req) (*Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: methodName(fullMethod),
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(Req)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(S), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
				return call(srv.(S), ctx, req.(*Req))
			})
		},
	}
}

func serverStream[S, Req, Resp any](fullMethod string, call func(S, *Req, grpc.ServerStreamingServer[Resp]) error) grpc.StreamDesc {
	return grpc.StreamDesc{
		StreamName:    methodName(fullMethod),
		ServerStreams: true,
		Handler: func(srv any, stream grpc.ServerStream) error {
			in := new(Req)
			if err := stream.RecvMsg(in); err != nil {
				return err
			}
			return call(srv.(S), in, &grpc.GenericServerStream[Req, Resp]{ServerStream: stream})
		},
	}
}

func methodName(fullMethod string) string {
	return fullMethod[strings.LastIndex(fullMethod, "/")+1:]
}
