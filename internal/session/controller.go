package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"clearcall/internal/media"
	"clearcall/internal/models"
	"clearcall/pkg/utils"

	"github.com/google/uuid"
)

var (
	// ErrNotRegistered is returned while no configured agent is live.
	ErrNotRegistered = errors.New("signaling agent not registered")
	// ErrCallInProgress preserves the single-call-slot invariant.
	ErrCallInProgress = errors.New("a call is already in progress")
	// ErrNoIncoming is returned by AnswerCall without a pending offer.
	ErrNoIncoming = errors.New("no incoming call to answer")
)

// Controller creates outbound sessions and accepts or rejects inbound
// offers. It owns at most one current session and at most one pending
// inbound offer; everything beyond that is rejected at the signaling
// level.
type Controller struct {
	source       media.Source
	newTransport func(local []*media.Track, onRemote func(*media.Track)) (transport, error)

	mu       sync.Mutex
	signaler Signaler
	current  *Session
	pending  *Session
	inCall   bool

	subs       []func(Event)
	onIncoming func(*Session)
}

func NewController(source media.Source, engine *media.Engine) *Controller {
	return &Controller{
		source: source,
		newTransport: func(local []*media.Track, onRemote func(*media.Track)) (transport, error) {
			return engine.NewTransport(local, onRemote)
		},
	}
}

// SetSignaler swaps the registered agent handle. A nil signaler leaves the
// controller inert: no calls are possible until reconfigured.
func (c *Controller) SetSignaler(s Signaler) {
	c.mu.Lock()
	c.signaler = s
	c.mu.Unlock()
}

// Subscribe registers an observer for every session's ordered event
// stream. The controller's own bookkeeping runs before observers, so an
// observer reading controller flags sees the post-transition values.
func (c *Controller) Subscribe(fn func(Event)) {
	c.mu.Lock()
	c.subs = append(c.subs, fn)
	c.mu.Unlock()
}

// OnIncoming installs the observer for newly pending inbound sessions.
func (c *Controller) OnIncoming(fn func(*Session)) {
	c.mu.Lock()
	c.onIncoming = fn
	c.mu.Unlock()
}

// InCall reports whether the current session is established.
func (c *Controller) InCall() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inCall
}

// Current returns the current session, nil when idle.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Pending returns the unanswered inbound session, if any.
func (c *Controller) Pending() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// ActiveBundle returns the media bundle of the current session, nil when
// idle. Mute and video toggles act through it.
func (c *Controller) ActiveBundle() *media.Bundle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.bundle
}

// PlaceCall dials target. The slot is reserved before the first
// suspension point so a concurrent PlaceCall is rejected, and before any
// negotiation call that could fire a state change synchronously.
func (c *Controller) PlaceCall(ctx context.Context, target string, mediaType models.CallType) error {
	c.mu.Lock()
	sig := c.signaler
	if sig == nil || !sig.Registered() {
		c.mu.Unlock()
		log.Printf("[SessionCtl] ✗ PlaceCall without registered agent")
		return ErrNotRegistered
	}
	if c.current != nil || c.pending != nil {
		c.mu.Unlock()
		log.Printf("[SessionCtl] ✗ PlaceCall while busy")
		return ErrCallInProgress
	}
	s := newSession(RoleOutbound, target, mediaType)
	s.ID = uuid.NewString()
	c.attachLocked(s)
	c.current = s
	c.mu.Unlock()

	tracks, err := c.source.Acquire(ctx, media.Constraints{
		Audio: true,
		Video: mediaType == models.CallVideo,
	})
	if err != nil {
		// Permission denied: abort with no session activity on the wire.
		utils.MediaDenials.Inc()
		c.discard(s)
		return fmt.Errorf("media acquisition: %w", err)
	}
	if s.State() == models.SessionTerminated {
		// EndCall arrived while acquisition was suspended: nothing may
		// reach the wire for this session.
		releaseAll(tracks)
		return fmt.Errorf("call cancelled during media acquisition")
	}
	s.bundle.SetLocal(tracks)

	transport, err := c.newTransport(tracks, s.bundle.AddRemote)
	if err != nil {
		s.bundle.Release()
		c.discard(s)
		return err
	}
	s.transport = transport

	offer, err := transport.CreateOffer(ctx)
	if err != nil {
		transport.Close()
		s.bundle.Release()
		c.discard(s)
		return err
	}

	s.transition(models.SessionEstablishing)
	if s.State() != models.SessionEstablishing {
		// Cancelled during offer negotiation: the terminal transition is
		// sticky, so the only legal move is full local cleanup.
		transport.Close()
		s.bundle.Release()
		return fmt.Errorf("call cancelled during negotiation")
	}
	leg, err := sig.Invite(ctx, target, offer)
	if err != nil {
		s.transition(models.SessionTerminated)
		return err
	}
	s.out = leg
	utils.CallsPlaced.WithLabelValues(string(mediaType)).Inc()

	go c.awaitAnswer(ctx, s, leg)
	return nil
}

// awaitAnswer suspends on the far end's final response, then binds the
// negotiated tracks and establishes the session.
func (c *Controller) awaitAnswer(ctx context.Context, s *Session, leg Outbound) {
	answer, err := leg.WaitAnswer(ctx)
	if err != nil {
		log.Printf("[SessionCtl] Call to %s not established: %v", s.Peer, err)
		s.transition(models.SessionTerminated)
		return
	}
	if err := s.transport.AcceptAnswer(answer); err != nil {
		log.Printf("[SessionCtl] Answer rejected: %v", err)
		leg.Hangup(ctx)
		s.transition(models.SessionTerminated)
		return
	}
	for _, t := range s.transport.RemoteTracks() {
		s.bundle.AddRemote(t)
	}
	s.transition(models.SessionEstablished)
}

// HandleInbound is the delegate installed behind the registration
// manager. A second offer while one is pending, or any offer during an
// active or establishing call, is rejected immediately: one call slot,
// no queueing.
func (c *Controller) HandleInbound(in Inbound) {
	c.mu.Lock()
	busy := c.pending != nil || c.current != nil
	if busy {
		c.mu.Unlock()
		log.Printf("[SessionCtl] ✗ Rejecting inbound from %s: busy", in.Peer())
		utils.OffersRejected.Inc()
		in.Reject(486, "Busy Here")
		return
	}
	s := newSession(RoleInbound, in.Peer(), models.CallAudio)
	if media.HasVideoSection(in.Offer()) {
		s.Type = models.CallVideo
	}
	s.ID = uuid.NewString()
	s.in = in
	c.attachLocked(s)
	c.pending = s
	onIncoming := c.onIncoming
	c.mu.Unlock()

	in.Ring()
	if onIncoming != nil {
		onIncoming(s)
	}
}

// AnswerCall accepts the pending inbound offer. The effective media
// decision is requested-video OR offer-has-video: caller intent never
// downgrades an offer that already contains video. On media-acquisition
// failure the offer stays pending, never half-accepted.
func (c *Controller) AnswerCall(ctx context.Context, mediaType models.CallType) error {
	c.mu.Lock()
	s := c.pending
	busy := c.current != nil
	c.mu.Unlock()
	if s == nil {
		return ErrNoIncoming
	}
	if busy {
		log.Printf("[SessionCtl] ✗ AnswerCall while busy")
		return ErrCallInProgress
	}

	wantVideo := mediaType == models.CallVideo || media.HasVideoSection(s.in.Offer())
	tracks, err := c.source.Acquire(ctx, media.Constraints{Audio: true, Video: wantVideo})
	if err != nil {
		utils.MediaDenials.Inc()
		return fmt.Errorf("media acquisition: %w", err)
	}
	if s.State() == models.SessionTerminated {
		// The caller cancelled while acquisition was suspended.
		releaseAll(tracks)
		return fmt.Errorf("offer withdrawn during media acquisition")
	}

	transport, err := c.newTransport(tracks, s.bundle.AddRemote)
	if err != nil {
		releaseAll(tracks)
		return err
	}
	answer, err := transport.Answer(ctx, s.in.Offer())
	if err != nil {
		transport.Close()
		releaseAll(tracks)
		return err
	}

	s.bundle.SetLocal(tracks)
	s.transport = transport
	s.transition(models.SessionEstablishing)

	// Promote before accept: the 200 can trigger state changes while the
	// synchronizer is already observing the current slot.
	c.mu.Lock()
	c.current = s
	c.pending = nil
	c.mu.Unlock()

	if err := s.in.Accept(answer); err != nil {
		s.transition(models.SessionTerminated)
		return err
	}
	for _, t := range transport.RemoteTracks() {
		s.bundle.AddRemote(t)
	}
	s.transition(models.SessionEstablished)
	return nil
}

// EndCall terminates whatever call activity exists: the current session
// gets a bye, a pending inbound offer gets declined. Idempotent; with no
// session it is a no-op. Local media is always released even when the
// terminate request fails.
func (c *Controller) EndCall(ctx context.Context) {
	c.mu.Lock()
	s := c.current
	if s == nil {
		s = c.pending
	}
	c.mu.Unlock()
	if s == nil {
		return
	}
	if err := s.hangup(ctx); err != nil {
		log.Printf("[SessionCtl] Hangup signaling failed (session still torn down): %v", err)
	}
	s.transition(models.SessionTerminated)
}

// HandleRemoteEnd routes a remote BYE or CANCEL, keyed by dialog Call-ID,
// to the matching session. Unknown ids are ignored: the session was
// already cleared.
func (c *Controller) HandleRemoteEnd(callID string) {
	c.mu.Lock()
	var s *Session
	if c.current != nil && c.current.CallID() == callID {
		s = c.current
	} else if c.pending != nil && c.pending.CallID() == callID {
		s = c.pending
	}
	c.mu.Unlock()
	if s == nil {
		return
	}
	s.transition(models.SessionTerminated)
}

// attachLocked wires the controller's own observer (first, so flags are
// updated before external observers run) plus forwarding to subscribers.
func (c *Controller) attachLocked(s *Session) {
	subs := append([]func(Event){}, c.subs...)
	s.Subscribe(c.onSessionEvent)
	for _, fn := range subs {
		s.Subscribe(fn)
	}
}

func (c *Controller) onSessionEvent(ev Event) {
	s := ev.Session
	switch ev.State {
	case models.SessionEstablished:
		c.mu.Lock()
		if c.current == s {
			c.inCall = true
			utils.ActiveCalls.Inc()
		}
		c.mu.Unlock()
	case models.SessionTerminated:
		c.mu.Lock()
		if c.current == s {
			c.current = nil
			if c.inCall {
				c.inCall = false
				utils.ActiveCalls.Dec()
			}
		}
		if c.pending == s {
			c.pending = nil
		}
		c.mu.Unlock()
		s.bundle.Release()
		if s.transport != nil {
			s.transport.Close()
		}
	}
}

// discard clears an aborted slot without emitting events: the session
// never produced signaling activity, so observers never learn of it.
func (c *Controller) discard(s *Session) {
	c.mu.Lock()
	if c.current == s {
		c.current = nil
	}
	c.mu.Unlock()
}

func releaseAll(tracks []*media.Track) {
	for _, t := range tracks {
		t.Stop()
	}
}
