package attempt

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/smquiz/quiz-backend/internal/model"
)

// Registry errors.
var (
	ErrAttemptNotFound = errors.New("attempt not found")
	ErrAttemptActive   = errors.New("user already has an open attempt")
)

// Registry holds the live sessions of this process. A user has at most one
// unsubmitted attempt at a time.
type Registry struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	byUser   map[int]uuid.UUID
	grace    time.Duration
	idle     time.Duration
	log      zerolog.Logger
}

// NewRegistry creates a Registry. Submitted sessions stay readable for grace;
// sessions still in the instructions phase after idle are dropped.
func NewRegistry(grace, idle time.Duration, log zerolog.Logger) *Registry {
	return &Registry{
		sessions: make(map[uuid.UUID]*Session),
		byUser:   make(map[int]uuid.UUID),
		grace:    grace,
		idle:     idle,
		log:      log.With().Str("component", "attempt_registry").Logger(),
	}
}

// Open creates and registers a session for o. Its OnSubmitted hook is
// chained so the registry can release the user's slot.
func (r *Registry) Open(o Options) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id, ok := r.byUser[o.Candidate.ID]; ok {
		if _, live := r.sessions[id]; live {
			return nil, ErrAttemptActive
		}
	}

	next := o.OnSubmitted
	o.OnSubmitted = func(s *Session) {
		r.release(s)
		if next != nil {
			next(s)
		}
	}

	s := NewSession(o)
	r.sessions[s.ID()] = s
	r.byUser[o.Candidate.ID] = s.ID()

	if r.idle > 0 {
		time.AfterFunc(r.idle, func() { r.dropIfIdle(s) })
	}
	go r.reap(s)
	return s, nil
}

// Get returns the session with the given id.
func (r *Registry) Get(id uuid.UUID) (*Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, ErrAttemptNotFound
	}
	return s, nil
}

// Active returns the user's unsubmitted session, if any.
func (r *Registry) Active(userID int) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byUser[userID]
	if !ok {
		return nil, false
	}
	s, ok := r.sessions[id]
	return s, ok
}

// List returns the registered sessions in no particular order.
func (r *Registry) List() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// Len returns the number of registered sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// CloseAll stops every session. Used on shutdown.
func (r *Registry) CloseAll() {
	for _, s := range r.List() {
		s.Close()
		<-s.Done()
	}
}

// release frees the user's slot and schedules removal after the grace
// period. It runs on the session goroutine, so it must not call back into s.
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	if r.byUser[s.Candidate().ID] == s.ID() {
		delete(r.byUser, s.Candidate().ID)
	}
	r.mu.Unlock()

	time.AfterFunc(r.grace, s.Close)
}

func (r *Registry) dropIfIdle(s *Session) {
	phase, err := s.Phase()
	if err != nil {
		return
	}
	if phase == model.PhaseInstructions {
		r.log.Info().Str("attempt_id", s.ID().String()).Msg("Dropping attempt that was never started")
		s.Close()
	}
}

// reap forgets s once its loop has stopped.
func (r *Registry) reap(s *Session) {
	<-s.Done()
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s.ID())
	if r.byUser[s.Candidate().ID] == s.ID() {
		delete(r.byUser, s.Candidate().ID)
	}
}
