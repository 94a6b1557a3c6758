package service

import (
	"context"
	"log/slog"
	"time"

	"dmcore/internal/events"
	"dmcore/internal/observability/metrics"
	"dmcore/internal/store"

	"github.com/google/uuid"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// Service implements the key directory, conversation registry, message
// ledger and read receipt tracker on top of one store. It only ever sees
// ciphertext.
type Service struct {
	store       *store.Store
	bus         events.Bus
	now         func() time.Time
	pageSize    int
	maxPageSize int
}

type Option func(*Service)

func WithBus(bus events.Bus) Option {
	return func(s *Service) { s.bus = bus }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithPageSizes overrides the default and maximum history page sizes.
// Non-positive values keep the built-in defaults.
func WithPageSizes(def, max int) Option {
	return func(s *Service) {
		if def > 0 {
			s.pageSize = def
		}
		if max > 0 {
			s.maxPageSize = max
		}
	}
}

func New(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:       st,
		now:         time.Now,
		pageSize:    DefaultPageSize,
		maxPageSize: MaxPageSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pageSize > s.maxPageSize {
		s.pageSize = s.maxPageSize
	}
	return s
}

func (s *Service) Bus() events.Bus { return s.bus }

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// publish hands ev to the bus for each user. Delivery is best effort: the
// write it reports on has already committed.
func (s *Service) publish(ctx context.Context, ev events.Event, users ...uuid.UUID) {
	if s.bus == nil {
		return
	}
	for _, u := range users {
		if err := s.bus.Publish(ctx, u, ev); err != nil {
			slog.Default().Warn("publish event failed",
				"type", ev.Type,
				"user_id", u,
				"conversation_id", ev.ConversationID,
				"error", err,
			)
			continue
		}
		metrics.EventsPublishedTotal.WithLabelValues(string(ev.Type)).Inc()
	}
}
