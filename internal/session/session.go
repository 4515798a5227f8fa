package session

import (
	"context"
	"log"
	"sync"

	"clearcall/internal/media"
	"clearcall/internal/models"
)

// Role tags the negotiation side of a session.
type Role string

const (
	RoleOutbound Role = "outbound"
	RoleInbound  Role = "inbound"
)

// Outbound is the inviter leg of the signaling agent.
type Outbound interface {
	ID() string
	Peer() string
	WaitAnswer(ctx context.Context) ([]byte, error)
	Hangup(ctx context.Context) error
}

// Inbound is the invitation leg of the signaling agent.
type Inbound interface {
	ID() string
	Peer() string
	Offer() []byte
	Ring()
	Accept(answer []byte) error
	Reject(code int, reason string) error
	Hangup(ctx context.Context) error
}

// Signaler is the slice of the registered agent the controller drives.
type Signaler interface {
	Invite(ctx context.Context, target string, offer []byte) (Outbound, error)
	Registered() bool
}

// transport is the negotiated media leg behind a session.
// *media.Transport is the production implementation.
type transport interface {
	CreateOffer(ctx context.Context) ([]byte, error)
	Answer(ctx context.Context, offer []byte) ([]byte, error)
	AcceptAnswer(answer []byte) error
	RemoteTracks() []*media.Track
	Close() error
}

// Event is one ordered state-change notification for a session. For a
// given session, subscribers observe initial -> establishing ->
// established -> terminated (or a prefix ending in terminated) in that
// order, never reordered.
type Event struct {
	Session *Session
	State   models.SessionState
}

// Session is one call's negotiation-and-media lifecycle object, either
// outbound or inbound. The media bundle is exclusively owned by the
// session and released when it terminates.
type Session struct {
	ID   string
	Role Role
	Peer string
	Type models.CallType

	out Outbound
	in  Inbound

	mu        sync.Mutex
	state     models.SessionState
	subs      []func(Event)
	transport transport
	bundle    *media.Bundle
}

func newSession(role Role, peer string, t models.CallType) *Session {
	return &Session{
		Role:   role,
		Peer:   peer,
		Type:   t,
		state:  models.SessionInitial,
		bundle: media.NewBundle(),
	}
}

// State returns the current lifecycle state.
func (s *Session) State() models.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Bundle returns the media bundle owned by this session.
func (s *Session) Bundle() *media.Bundle { return s.bundle }

// CallID returns the signaling dialog identifier, empty before the leg
// exists.
func (s *Session) CallID() string {
	if s.in != nil {
		return s.in.ID()
	}
	if s.out != nil {
		return s.out.ID()
	}
	return ""
}

// Offer returns the inbound offer body, nil for outbound sessions.
func (s *Session) Offer() []byte {
	if s.in == nil {
		return nil
	}
	return s.in.Offer()
}

// Subscribe appends an observer to the session's ordered event stream.
// Observers registered before any transition see every state change.
func (s *Session) Subscribe(fn func(Event)) {
	s.mu.Lock()
	s.subs = append(s.subs, fn)
	s.mu.Unlock()
}

// transition advances the state machine. Regressions and repeated
// terminal notifications are ignored: only one terminal transition is
// ever acted upon. Observers run synchronously, preserving per-session
// order.
func (s *Session) transition(next models.SessionState) {
	s.mu.Lock()
	if s.state == models.SessionTerminated || s.state == next {
		s.mu.Unlock()
		return
	}
	if next == models.SessionEstablishing && s.state != models.SessionInitial {
		s.mu.Unlock()
		return
	}
	if next == models.SessionEstablished && s.state != models.SessionEstablishing {
		s.mu.Unlock()
		return
	}
	s.state = next
	subs := append([]func(Event){}, s.subs...)
	s.mu.Unlock()

	log.Printf("[Session] %s %s -> %s", s.Role, s.Peer, next)
	ev := Event{Session: s, State: next}
	for _, fn := range subs {
		fn(ev)
	}
}

func (s *Session) hangup(ctx context.Context) error {
	if s.in != nil {
		return s.in.Hangup(ctx)
	}
	if s.out != nil {
		return s.out.Hangup(ctx)
	}
	return nil
}
