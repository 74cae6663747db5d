package api

import (
	"context"

	"github.com/matheus3301/chatline/internal/feed"
)

// FeedService implements FeedServer on top of the feed manager.
type FeedService struct {
	feeds *feed.Manager
}

// NewFeedService creates a feed service.
func NewFeedService(m *feed.Manager) *FeedService {
	return &FeedService{feeds: m}
}

func (s *FeedService) Open(ctx context.Context, req *CounterpartRequest) (*FeedView, error) {
	f, err := s.feeds.Open(ctx, req.CounterpartID)
	if err != nil {
		return nil, toStatus(err)
	}
	return feedView(f), nil
}

func (s *FeedService) Activate(ctx context.Context, req *CounterpartRequest) (*FeedView, error) {
	f, err := s.feeds.Activate(ctx, req.CounterpartID)
	if err != nil {
		return nil, toStatus(err)
	}
	return feedView(f), nil
}

func (s *FeedService) Deactivate(_ context.Context, _ *Empty) (*Empty, error) {
	s.feeds.Deactivate()
	return &Empty{}, nil
}

func (s *FeedService) Compose(ctx context.Context, req *ComposeRequest) (*Message, error) {
	msg, err := s.feeds.Compose(ctx, req.CounterpartID, req.Text)
	if err != nil {
		return nil, toStatus(err)
	}
	out := MessageFromChat(msg)
	return &out, nil
}
