package gateway

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"helpboard/internal/attributes"
	"helpboard/internal/models"
)

// State is where a connection is in its authentication lifecycle.
type State int

const (
	StateUnauthenticated State = iota
	StateAuthenticated
	StateClosed
	StateRejected
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	case StateRejected:
		return "rejected"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

const (
	attrUserID      = "user_id"
	attrDisplayName = "display_name"
)

var (
	errNoIdentity     = errors.New("no identity on connection")
	errSessionEnded   = errors.New("connection session has ended")
	errBagUnavailable = errors.New("connection attribute store unavailable")
)

// Session holds the identity of one connection across frames. The identity
// lives in memory and is mirrored into the connection's attribute bag, so a
// Session rebuilt for the same connection id can recover it. Frames on one
// connection are handled one at a time; the mutex guards against the hub and
// the shutdown path.
type Session struct {
	mu       sync.Mutex
	connID   string
	state    State
	identity *models.Identity
	bag      attributes.Bag
}

// NewSession starts an unauthenticated session over bag.
func NewSession(connID string, bag attributes.Bag) *Session {
	return &Session{connID: connID, bag: bag, state: StateUnauthenticated}
}

// ConnID is the connection id the session belongs to.
func (s *Session) ConnID() string {
	return s.connID
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Identity returns the live identity, if any.
func (s *Session) Identity() (models.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return models.Identity{}, false
	}
	return *s.identity, true
}

// Authenticate binds id to the connection. An already authenticated session
// keeps its identity and returns it. The returned error reports a failed
// mirror write; the live binding holds regardless.
func (s *Session) Authenticate(ctx context.Context, id models.Identity) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateAuthenticated:
		return *s.identity, nil
	case StateClosed, StateRejected:
		return models.Identity{}, errSessionEnded
	}

	s.identity = &id
	s.state = StateAuthenticated

	if err := s.bag.Set(ctx, attrUserID, strconv.FormatUint(uint64(id.ID), 10)); err != nil {
		return id, fmt.Errorf("mirror identity: %w", err)
	}
	if err := s.bag.Set(ctx, attrDisplayName, id.DisplayName); err != nil {
		return id, fmt.Errorf("mirror identity: %w", err)
	}
	return id, nil
}

// Restamp returns the identity to attribute the current frame to: the live
// binding first, then the attribute bag. A bag hit re-binds the session.
func (s *Session) Restamp(ctx context.Context) (models.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateClosed, StateRejected:
		return models.Identity{}, errSessionEnded
	}
	if s.identity != nil {
		return *s.identity, nil
	}

	raw, ok, err := s.bag.Get(ctx, attrUserID)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", errBagUnavailable, err)
	}
	if !ok {
		return models.Identity{}, errNoIdentity
	}
	uid, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || uid == 0 {
		return models.Identity{}, errNoIdentity
	}
	name, _, err := s.bag.Get(ctx, attrDisplayName)
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %v", errBagUnavailable, err)
	}

	id := models.Identity{ID: uint(uid), DisplayName: name}
	s.identity = &id
	s.state = StateAuthenticated
	return id, nil
}

// Reject ends an unauthenticated session for good.
func (s *Session) Reject(ctx context.Context) {
	s.end(ctx, StateRejected)
}

// Close ends the session and drops its mirrored attributes.
func (s *Session) Close(ctx context.Context) {
	s.end(ctx, StateClosed)
}

func (s *Session) end(ctx context.Context, to State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed || s.state == StateRejected {
		return
	}
	s.state = to
	s.identity = nil
	_ = s.bag.Clear(ctx)
}
