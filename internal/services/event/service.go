// Package event creates the events that trigger pay-in and pay-out transactions.
package event

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/vadiminshakov/tally/internal/domain"
)

type eventRepository interface {
	AddEvent(ctx context.Context, event *domain.Event) error
}

// Service creates and stores events.
type Service struct {
	l    *zap.Logger
	repo eventRepository
	now  func() time.Time
}

// NewService returns an event service writing to repo.
func NewService(l *zap.Logger, repo eventRepository) (*Service, error) {
	if l == nil {
		l = zap.NewNop()
	}
	if repo == nil {
		return nil, errors.New("event repository is required")
	}

	return &Service{l: l, repo: repo, now: time.Now}, nil
}

// CreatePayInEvent stores a pay-in event for the user.
func (s *Service) CreatePayInEvent(ctx context.Context, user domain.User, date time.Time) (domain.Event, error) {
	return s.create(ctx, user, date, domain.EventKindPayIn)
}

// CreatePayOutEvent stores a pay-out event for the user.
func (s *Service) CreatePayOutEvent(ctx context.Context, user domain.User, date time.Time) (domain.Event, error) {
	return s.create(ctx, user, date, domain.EventKindPayOut)
}

func (s *Service) create(ctx context.Context, user domain.User, date time.Time, kind domain.EventKind) (domain.Event, error) {
	if user.ID == "" {
		return domain.Event{}, errors.Errorf("user is required for %s event", kind)
	}
	if date.IsZero() {
		date = s.now()
	}

	event := domain.Event{
		ID:     uuid.New().String(),
		UserID: user.ID,
		Kind:   kind,
		Date:   date,
	}

	if err := s.repo.AddEvent(ctx, &event); err != nil {
		return domain.Event{}, errors.Wrapf(err, "store %s event", kind)
	}

	s.l.Debug("event created",
		zap.String("id", event.ID),
		zap.String("user", user.ID),
		zap.String("kind", string(kind)))

	return event, nil
}
