package api

import (
	"context"
	"time"

	"github.com/matheus3301/chatline/internal/roster"
	"github.com/matheus3301/chatline/internal/status"
	"github.com/matheus3301/chatline/internal/store"
	"github.com/matheus3301/chatline/internal/transport"
	"github.com/matheus3301/chatline/internal/wa"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// Authenticator pairs and unpairs the daemon with an account. Only the WhatsApp
// transport has one.
type Authenticator interface {
	StartQRAuth(ctx context.Context) (<-chan wa.AuthEvent, error)
	Logout(ctx context.Context) error
}

// SessionInfo describes the session a daemon serves.
type SessionInfo struct {
	Name      string
	Transport string
	SelfID    string
}

// PendingCounter reports queued sends.
type PendingCounter interface {
	Pending() int
}

// SessionService implements SessionServer.
type SessionService struct {
	info      SessionInfo
	startedAt time.Time
	machine   *status.Machine
	transport transport.Transport
	auth      Authenticator
	roster    *roster.Roster
	db        *store.DB
	outbox    PendingCounter
}

// NewSessionService creates a new session service. auth, db and outbox may be nil.
func NewSessionService(info SessionInfo, machine *status.Machine, t transport.Transport, auth Authenticator, r *roster.Roster, db *store.DB, outbox PendingCounter) *SessionService {
	return &SessionService{
		info:      info,
		startedAt: time.Now(),
		machine:   machine,
		transport: t,
		auth:      auth,
		roster:    r,
		db:        db,
		outbox:    outbox,
	}
}

func (s *SessionService) GetStatus(_ context.Context, _ *Empty) (*StatusResponse, error) {
	resp := &StatusResponse{
		Session:   s.info.Name,
		Transport: s.info.Transport,
		SelfID:    s.info.SelfID,
		State:     string(s.machine.Current()),
		UptimeMs:  time.Since(s.startedAt).Milliseconds(),
	}
	if s.transport != nil {
		resp.Connected = s.transport.Connected()
	}
	if s.roster != nil {
		resp.Conversations = s.roster.Len()
		resp.UnreadConversations = s.roster.UnreadConversations()
	}
	if s.db != nil {
		if n, err := s.db.ContactCount(); err == nil {
			resp.ContactCount = n
		}
		if n, err := s.db.MessageCount(); err == nil {
			resp.MessageCount = n
		}
	}
	if s.outbox != nil {
		resp.PendingSends = s.outbox.Pending()
	}
	return resp, nil
}

func (s *SessionService) StartAuth(_ *Empty, stream grpc.ServerStreamingServer[AuthEvent]) error {
	if s.auth == nil {
		return grpcstatus.Errorf(codes.FailedPrecondition, "transport %q does not pair with QR codes", s.info.Transport)
	}

	authCh, err := s.auth.StartQRAuth(stream.Context())
	if err != nil {
		return grpcstatus.Errorf(codes.FailedPrecondition, "start auth: %v", err)
	}

	for evt := range authCh {
		if err := stream.Send(&AuthEvent{
			Type:    string(evt.Type),
			QRCode:  evt.QRCode,
			Message: evt.Message,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *SessionService) Logout(ctx context.Context, _ *Empty) (*Empty, error) {
	if s.auth == nil {
		return nil, grpcstatus.Errorf(codes.FailedPrecondition, "transport %q has no account to log out of", s.info.Transport)
	}
	if err := s.auth.Logout(ctx); err != nil {
		return nil, grpcstatus.Errorf(codes.Internal, "logout: %v", err)
	}
	return &Empty{}, nil
}
