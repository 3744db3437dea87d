package usecases

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mzabaleta/veloloop/internal/core/domain"
	"github.com/mzabaleta/veloloop/internal/core/ports"
	"github.com/mzabaleta/veloloop/internal/pkg/metrics"
)

// Session owns one route for the lifetime of a conversation. All route and
// edit state is in-memory; nothing is persisted unless the user saves.
//
// Concurrent operations on the same session are serialized latest-wins:
// starting a new top-level operation cancels any still-in-flight oracle
// calls of the previous one and bumps the generation counter, so stale
// results can never be committed after a newer operation has started.
type Session struct {
	ID string

	mu         sync.Mutex
	route      *domain.Route
	result     *LoopResult
	generation uint64
	cancel     context.CancelFunc
	lastActive time.Time
}

// touch records activity so the idle sweep leaves the session alone.
func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActive)
}

// begin starts a new top-level operation: the previous operation's context
// is canceled and a fresh one is issued under the next generation.
func (s *Session) begin(parent context.Context) (context.Context, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		s.cancel()
	}
	ctx, cancel := context.WithCancel(parent)
	s.cancel = cancel
	s.generation++
	s.lastActive = time.Now()
	return ctx, s.generation
}

// commit installs a new route, but only if no newer operation has started
// since gen was issued.
func (s *Session) commit(gen uint64, route *domain.Route, result *LoopResult) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return false
	}
	s.route = route
	if result != nil {
		s.result = result
	}
	return true
}

// Route returns the committed route.
func (s *Session) Route() *domain.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

// SessionState is a snapshot handed to transport adapters.
type SessionState struct {
	SessionID string        `json:"session_id"`
	Route     *domain.Route `json:"route"`
	Center    domain.Point  `json:"center"`
	RadiusKm  float64       `json:"radius_km"`
	Accepted  bool          `json:"accepted"`
	Attempts  int           `json:"attempts"`
}

// SessionService orchestrates loop generation and editing per session.
type SessionService struct {
	loops    *LoopService
	stitcher *StitchService
	events   ports.EventPublisher

	mu       sync.RWMutex
	sessions map[string]*Session
}

// NewSessionService creates a SessionService. events may be nil.
func NewSessionService(loops *LoopService, stitcher *StitchService, events ports.EventPublisher) *SessionService {
	return &SessionService{
		loops:    loops,
		stitcher: stitcher,
		events:   events,
		sessions: make(map[string]*Session),
	}
}

// CreateLoop generates a loop for the request, converts the winning attempt
// into an editable segment chain, and opens a session owning it.
func (s *SessionService) CreateLoop(ctx context.Context, req domain.LoopRequest) (*SessionState, error) {
	sess := &Session{ID: uuid.NewString()}
	opCtx, gen := sess.begin(ctx)

	result, err := s.loops.GenerateLoop(opCtx, req)
	if err != nil {
		return nil, err
	}

	// The validated loop is re-routed leg by leg so that later edits only
	// touch the segments they affect.
	route, err := s.stitcher.BuildEditable(opCtx, result.Waypoints, req.Profile)
	if err != nil {
		return nil, fmt.Errorf("build editable route: %w", err)
	}
	sess.commit(gen, route, result)

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	metrics.ActiveSessions.Inc()

	if s.events != nil {
		if err := s.events.PublishRouteGenerated(ctx, sess.ID, route); err != nil {
			slog.Warn("publish route.generated failed", "error", err)
		}
	}
	return s.stateOf(sess), nil
}

// Get returns the current state of a session.
func (s *SessionService) Get(sessionID string) (*SessionState, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}
	return s.stateOf(sess), nil
}

// Close discards a session and cancels any in-flight work it owns.
func (s *SessionService) Close(sessionID string) {
	s.mu.Lock()
	sess, ok := s.sessions[sessionID]
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	if ok {
		sess.begin(context.Background()) // cancels in-flight work
		metrics.ActiveSessions.Dec()
	}
}

// MoveWaypoint relocates a via waypoint on the session's route.
func (s *SessionService) MoveWaypoint(ctx context.Context, sessionID, waypointID string, to domain.Point) (*domain.Route, error) {
	return s.edit(ctx, sessionID, "move", func(opCtx context.Context, route *domain.Route) (*domain.Route, error) {
		return s.stitcher.MoveWaypoint(opCtx, route, waypointID, to)
	})
}

// AddWaypoint inserts a waypoint after the given leg on the session's route.
func (s *SessionService) AddWaypoint(ctx context.Context, sessionID string, afterLeg int, at domain.Point) (*domain.Route, error) {
	return s.edit(ctx, sessionID, "add", func(opCtx context.Context, route *domain.Route) (*domain.Route, error) {
		return s.stitcher.AddWaypoint(opCtx, route, afterLeg, at)
	})
}

// RemoveWaypoint deletes a via waypoint from the session's route.
func (s *SessionService) RemoveWaypoint(ctx context.Context, sessionID, waypointID string) (*domain.Route, error) {
	return s.edit(ctx, sessionID, "remove", func(opCtx context.Context, route *domain.Route) (*domain.Route, error) {
		return s.stitcher.RemoveWaypoint(opCtx, route, waypointID)
	})
}

// edit runs one edit operation under the session's cancellation discipline.
// The committed route is replaced only when every affected leg succeeded
// and no newer operation has started meanwhile.
func (s *SessionService) edit(ctx context.Context, sessionID, op string, fn func(context.Context, *domain.Route) (*domain.Route, error)) (*domain.Route, error) {
	sess, err := s.session(sessionID)
	if err != nil {
		return nil, err
	}

	opCtx, gen := sess.begin(ctx)
	route := sess.Route()
	if route == nil {
		return nil, fmt.Errorf("session %s has no route", sessionID)
	}

	newRoute, err := fn(opCtx, route)
	if err != nil {
		if opCtx.Err() != nil {
			// Canceled by a newer operation: discard silently.
			return nil, domain.ErrStaleEdit
		}
		metrics.EditOperations.WithLabelValues(op, "error").Inc()
		return nil, err
	}
	if !sess.commit(gen, newRoute, nil) {
		return nil, domain.ErrStaleEdit
	}
	metrics.EditOperations.WithLabelValues(op, "ok").Inc()

	if s.events != nil {
		if err := s.events.PublishRouteEdited(ctx, sessionID, op, newRoute); err != nil {
			slog.Warn("publish route.edited failed", "error", err)
		}
	}
	return newRoute, nil
}

func (s *SessionService) session(id string) (*Session, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	sess.touch()
	return sess, nil
}

// SweepIdle discards sessions that saw no activity for longer than ttl and
// returns how many were removed. A discarded session behaves exactly like a
// closed one: in-flight work is canceled and later lookups get
// domain.ErrSessionNotFound.
func (s *SessionService) SweepIdle(ttl time.Duration) int {
	now := time.Now()

	s.mu.Lock()
	var idle []*Session
	for id, sess := range s.sessions {
		if sess.idleSince(now) > ttl {
			idle = append(idle, sess)
			delete(s.sessions, id)
		}
	}
	s.mu.Unlock()

	for _, sess := range idle {
		sess.begin(context.Background()) // cancels in-flight work
		metrics.ActiveSessions.Dec()
	}
	return len(idle)
}

// Janitor sweeps idle sessions every interval until ctx is canceled. An
// abandoned browser tab must not hold its route in memory forever.
func (s *SessionService) Janitor(ctx context.Context, ttl, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.SweepIdle(ttl); n > 0 {
				slog.Info("idle sessions discarded", "count", n, "ttl", ttl.String())
			}
		}
	}
}

func (s *SessionService) stateOf(sess *Session) *SessionState {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	state := &SessionState{SessionID: sess.ID, Route: sess.route}
	if sess.result != nil {
		state.Center = sess.result.Center
		state.RadiusKm = sess.result.RadiusKm
		state.Accepted = sess.result.Accepted
		state.Attempts = sess.result.Attempts
	}
	return state
}
