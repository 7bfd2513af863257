package registration

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wolfman30/partsplit-prereg/pkg/logging"
)

var (
	// ErrSessionNotFound is returned for unknown or expired session IDs
	ErrSessionNotFound = errors.New("registration: session not found")

	// ErrUnknownVariant is returned when a session asks for a form that does not exist
	ErrUnknownVariant = errors.New("registration: unknown variant")
)

// FlowFactory builds a flow for one visitor session.
type FlowFactory func(Variant) (*Flow, error)

type session struct {
	flow     *Flow
	lastSeen time.Time
}

// Sessions maps visitor sessions to their flows and closes idle ones.
type Sessions struct {
	mu      sync.Mutex
	flows   map[string]*session
	factory FlowFactory
	idle    time.Duration
	now     func() time.Time
	logger  *logging.Logger
}

// NewSessions creates a session registry. idle <= 0 disables expiry.
func NewSessions(factory FlowFactory, idle time.Duration, logger *logging.Logger) *Sessions {
	if factory == nil {
		panic("registration: flow factory required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Sessions{
		flows:   make(map[string]*session),
		factory: factory,
		idle:    idle,
		now:     time.Now,
		logger:  logger,
	}
}

// Open starts a new session for the named variant.
func (s *Sessions) Open(variantName string) (string, *Flow, error) {
	variant, ok := LookupVariant(variantName)
	if !ok {
		return "", nil, ErrUnknownVariant
	}
	flow, err := s.factory(variant)
	if err != nil {
		return "", nil, err
	}
	id := uuid.NewString()

	s.mu.Lock()
	s.flows[id] = &session{flow: flow, lastSeen: s.now()}
	s.mu.Unlock()

	s.logger.Debug("registration session opened", "session_id", id, "variant", variant.Name)
	return id, flow, nil
}

// Get returns the flow of a live session and marks it as active.
func (s *Sessions) Get(id string) (*Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.flows[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	sess.lastSeen = s.now()
	return sess.flow, nil
}

// Close ends a session and tears its flow down.
func (s *Sessions) Close(ctx context.Context, id string) error {
	s.mu.Lock()
	sess, ok := s.flows[id]
	delete(s.flows, id)
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	sess.flow.Close(ctx)
	return nil
}

// Sweep closes sessions idle for longer than the configured timeout.
func (s *Sessions) Sweep(ctx context.Context) int {
	if s.idle <= 0 {
		return 0
	}
	cutoff := s.now().Add(-s.idle)

	var expired []*Flow
	s.mu.Lock()
	for id, sess := range s.flows {
		if sess.lastSeen.Before(cutoff) {
			expired = append(expired, sess.flow)
			delete(s.flows, id)
		}
	}
	s.mu.Unlock()

	for _, flow := range expired {
		flow.Close(ctx)
	}
	if len(expired) > 0 {
		s.logger.Info("expired idle registration sessions", "count", len(expired))
	}
	return len(expired)
}

// Run sweeps on every interval until ctx is done.
func (s *Sessions) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// CloseAll tears down every session, used on shutdown.
func (s *Sessions) CloseAll(ctx context.Context) {
	s.mu.Lock()
	flows := make([]*Flow, 0, len(s.flows))
	for id, sess := range s.flows {
		flows = append(flows, sess.flow)
		delete(s.flows, id)
	}
	s.mu.Unlock()
	for _, flow := range flows {
		flow.Close(ctx)
	}
}

// Len reports the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.flows)
}
