package api

import (
	"context"

	"github.com/matheus3301/chatline/internal/roster"
)

// RosterService implements RosterServer.
type RosterService struct {
	roster *roster.Roster
}

// NewRosterService creates a roster service.
func NewRosterService(r *roster.Roster) *RosterService {
	return &RosterService{roster: r}
}

func (s *RosterService) List(_ context.Context, req *ListRosterRequest) (*ListRosterResponse, error) {
	filter, err := roster.ParseFilter(req.Filter)
	if err != nil {
		return nil, toStatus(err)
	}
	entries := s.roster.List(filter, req.Query)
	resp := &ListRosterResponse{
		Entries:             make([]RosterEntry, 0, len(entries)),
		UnreadConversations: s.roster.UnreadConversations(),
	}
	for _, e := range entries {
		resp.Entries = append(resp.Entries, entryFromRoster(e))
	}
	return resp, nil
}

func (s *RosterService) MarkRead(_ context.Context, req *CounterpartRequest) (*Empty, error) {
	s.roster.MarkRead(req.CounterpartID)
	return &Empty{}, nil
}
