// Package session tracks the authenticated-user state of the client and
// gates navigation on it. The Store is the only shared mutable state in the
// client: one writer (the auth flow and the session check), many readers.
package session

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/courant-live/courant/internal/api"
)

// Status classifies the current session value.
type Status int

const (
	// Unknown means no session check has settled yet.
	Unknown Status = iota
	Anonymous
	Authenticated
)

func (s Status) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case Authenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// User is the server-defined identity record.
type User struct {
	Username string
	Role     string
}

// State is the session value at an instant. Transitions replace the whole
// value; there are no partial merges.
type State struct {
	Status Status
	User   User // zero unless Status == Authenticated
}

// Store holds the current session state and fans every transition out to
// its subscribers. Construct one per backend and pass it by reference;
// only the auth flow writes to it.
type Store struct {
	api *api.Client
	log zerolog.Logger

	mu     sync.Mutex
	state  State
	subs   map[int]func(State)
	nextID int
	ready  chan struct{} // closed on the first transition out of Unknown
}

// NewStore creates a store in the Unknown state.
func NewStore(client *api.Client, log zerolog.Logger) *Store {
	return &Store{
		api:   client,
		log:   log.With().Str("component", "session").Logger(),
		subs:  make(map[int]func(State)),
		ready: make(chan struct{}),
	}
}

// Current returns the latest state.
func (s *Store) Current() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready returns a channel closed once the store has produced its first
// value. Used by callers that must not decide on an unset state.
func (s *Store) Ready() <-chan struct{} {
	return s.ready
}

// Subscribe registers fn for the current value (delivered immediately if
// one exists) and every subsequent transition, in order. The returned
// cancel func detaches the subscriber; delivery itself never removes one.
// Callbacks run synchronously with the transition and must not block.
func (s *Store) Subscribe(fn func(State)) (cancel func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	current := s.state
	s.mu.Unlock()

	if current.Status != Unknown {
		fn(current)
	}

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// CheckSession asks the server who the session belongs to and replaces the
// state with the answer. Any failure (unreachable server, expired cookie,
// non-2xx) collapses to Anonymous; the caller only learns that the check
// has settled.
func (s *Store) CheckSession(ctx context.Context) {
	resp, err := s.api.Me(ctx)
	if err != nil {
		s.log.Debug().Err(err).Msg("session check failed, treating as anonymous")
		s.setAnonymous()
		return
	}
	s.setAuthenticated(User{Username: resp.Username, Role: resp.Role})
}

func (s *Store) setAuthenticated(u User) {
	s.replace(State{Status: Authenticated, User: u})
}

func (s *Store) setAnonymous() {
	s.replace(State{Status: Anonymous})
}

// replace installs the new state and notifies subscribers registered at the
// moment of the transition. Every set is an emission, even when the value
// is unchanged.
func (s *Store) replace(next State) {
	s.mu.Lock()
	s.state = next
	select {
	case <-s.ready:
	default:
		close(s.ready)
	}
	fns := make([]func(State), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	s.log.Debug().Stringer("status", next.Status).Str("user", next.User.Username).Msg("session state replaced")
	for _, fn := range fns {
		fn(next)
	}
}
