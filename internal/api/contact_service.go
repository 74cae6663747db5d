package api

import (
	"context"
	"strings"

	"github.com/matheus3301/chatline/internal/feed"
	"github.com/matheus3301/chatline/internal/store"
	"google.golang.org/grpc/codes"
	grpcstatus "google.golang.org/grpc/status"
)

// ContactImporter copies contacts from the network into the directory.
type ContactImporter interface {
	ImportContacts(ctx context.Context) (int, error)
}

// ContactService implements ContactServer over the contact directory.
type ContactService struct {
	db       *store.DB
	feeds    *feed.Manager
	importer ContactImporter
}

// NewContactService creates a contact service. importer may be nil.
func NewContactService(db *store.DB, feeds *feed.Manager, importer ContactImporter) *ContactService {
	return &ContactService{db: db, feeds: feeds, importer: importer}
}

func (s *ContactService) List(_ context.Context, _ *Empty) (*ListContactsResponse, error) {
	contacts, err := s.db.ListContacts()
	if err != nil {
		return nil, toStatus(err)
	}
	resp := &ListContactsResponse{Contacts: make([]Contact, 0, len(contacts))}
	for _, c := range contacts {
		resp.Contacts = append(resp.Contacts, Contact{ID: c.ID, DisplayName: c.DisplayName, AvatarRef: c.AvatarRef})
	}
	return resp, nil
}

// Add creates or renames a directory record. The roster still lists the counterpart
// only after the first message.
func (s *ContactService) Add(_ context.Context, req *Contact) (*Contact, error) {
	id := strings.TrimSpace(req.ID)
	if id == "" {
		return nil, grpcstatus.Error(codes.InvalidArgument, "contact id is required")
	}
	c := &store.Contact{ID: id, DisplayName: strings.TrimSpace(req.DisplayName), AvatarRef: req.AvatarRef}
	if err := s.db.UpsertContact(c); err != nil {
		return nil, toStatus(err)
	}
	saved, err := s.db.GetContact(id)
	if err != nil {
		return nil, toStatus(err)
	}
	if saved == nil {
		return nil, grpcstatus.Errorf(codes.Internal, "contact %q vanished after save", id)
	}
	if s.feeds != nil {
		s.feeds.RefreshProfile(saved.Profile())
	}
	return &Contact{ID: saved.ID, DisplayName: saved.DisplayName, AvatarRef: saved.AvatarRef}, nil
}

func (s *ContactService) Import(ctx context.Context, _ *Empty) (*ImportContactsResponse, error) {
	if s.importer == nil {
		return nil, grpcstatus.Error(codes.FailedPrecondition, "transport cannot import contacts")
	}
	n, err := s.importer.ImportContacts(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &ImportContactsResponse{Imported: n}, nil
}
