package callsync

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"clearcall/internal/history"
	"clearcall/internal/media"
	"clearcall/internal/models"
	"clearcall/internal/session"
	"clearcall/pkg/utils"

	"github.com/google/uuid"
)

// ErrNoIncoming is returned by Accept/Decline without a ringing offer.
var ErrNoIncoming = errors.New("no incoming call")

// CallController is the slice of the session controller the synchronizer
// drives.
type CallController interface {
	PlaceCall(ctx context.Context, target string, mediaType models.CallType) error
	AnswerCall(ctx context.Context, mediaType models.CallType) error
	EndCall(ctx context.Context)
	ActiveBundle() *media.Bundle
	InCall() bool
}

// Roster resolves peers for record attribution.
type Roster interface {
	ByID(id string) (models.User, bool)
	ByIdentity(identity string) (models.User, bool)
}

// Notifier receives read-only state snapshots for rendering.
type Notifier interface {
	Publish(Snapshot)
}

// Synchronizer bridges low-level session events to the application call
// records: one current record, one incoming record, persisted transitions
// and UI snapshots. It is the only writer of record state.
type Synchronizer struct {
	self   models.User
	roster Roster
	store  history.Store
	ctl    CallController
	notify Notifier
	now    func() time.Time

	mu              sync.Mutex
	current         *models.CallRecord
	currentSession  *session.Session
	incoming        *models.CallRecord
	incomingSession *session.Session
	regState        models.RegistrationState
	history         []models.CallRecord // terminal records, newest first
}

func New(self models.User, roster Roster, store history.Store, ctl CallController, notify Notifier) *Synchronizer {
	return &Synchronizer{
		self:     self,
		roster:   roster,
		store:    store,
		ctl:      ctl,
		notify:   notify,
		regState: models.Unregistered,
		now:      time.Now,
	}
}

// Attach subscribes the synchronizer to a controller's event streams.
// Must run before any session exists so every event is observed.
func (s *Synchronizer) Attach(ctl *session.Controller) {
	ctl.Subscribe(s.OnSessionEvent)
	ctl.OnIncoming(s.OnIncoming)
}

// OnRegistrationState mirrors the registration manager's state for the
// UI: without a registered agent the whole calling surface is degraded.
func (s *Synchronizer) OnRegistrationState(st models.RegistrationState) {
	s.mu.Lock()
	s.regState = st
	s.mu.Unlock()
	s.publish()
}

// Start initiates an outbound call to the roster user receiverID. The
// ringing record and its provisional history row exist before the session
// is necessarily established, so a call that never connects is still
// recorded.
func (s *Synchronizer) Start(ctx context.Context, receiverID string, mediaType models.CallType) error {
	receiver, ok := s.roster.ByID(receiverID)
	if !ok {
		return fmt.Errorf("unknown receiver %q", receiverID)
	}

	rec := &models.CallRecord{
		ID:        uuid.NewString(),
		Caller:    s.self,
		Receiver:  receiver,
		Type:      mediaType,
		StartTime: s.now(),
		Status:    models.CallRinging,
	}
	s.mu.Lock()
	if s.current != nil {
		s.mu.Unlock()
		return session.ErrCallInProgress
	}
	s.current = rec
	s.currentSession = nil
	s.mu.Unlock()

	s.persist(func(ctx context.Context) error {
		return s.store.SaveRinging(ctx, rowFromRecord(*rec))
	})
	s.publish()

	if err := s.ctl.PlaceCall(ctx, receiver.Username, mediaType); err != nil {
		// Aborted before any signaling: the attempt is recorded as missed.
		s.finalizeCurrent(models.CallMissed)
		return err
	}
	return nil
}

// OnIncoming turns a pending inbound session into a visible ringing
// record. The caller is attributed by matching the offer's source
// identity against the roster; with no match the notification is dropped,
// since no peer identity can be attributed.
func (s *Synchronizer) OnIncoming(sess *session.Session) {
	caller, ok := s.roster.ByIdentity(sess.Peer)
	if !ok {
		log.Printf("[CallSync] Dropping inbound offer from unknown identity %q", sess.Peer)
		return
	}
	rec := &models.CallRecord{
		ID:        uuid.NewString(),
		Caller:    caller,
		Receiver:  s.self,
		Type:      sess.Type,
		StartTime: s.now(),
		Status:    models.CallRinging,
	}
	s.mu.Lock()
	s.incoming = rec
	s.incomingSession = sess
	s.mu.Unlock()
	log.Printf("[CallSync] Incoming %s call from %s", rec.Type, caller.Name)
	s.publish()
}

// Accept answers the ringing inbound call. On success the record goes
// active with a fresh start time reflecting connection time, and the
// caller's provisional row is updated through the (caller, receiver,
// ringing) tuple.
func (s *Synchronizer) Accept(ctx context.Context) error {
	s.mu.Lock()
	rec := s.incoming
	sess := s.incomingSession
	s.mu.Unlock()
	if rec == nil {
		return ErrNoIncoming
	}

	if err := s.ctl.AnswerCall(ctx, rec.Type); err != nil {
		log.Printf("[CallSync] ✗ Answer failed, offer stays pending: %v", err)
		return err
	}
	utils.CallsAnswered.Inc()

	connected := s.now()
	s.mu.Lock()
	rec.Status = models.CallActive
	rec.StartTime = connected
	s.current = rec
	s.currentSession = sess
	s.incoming = nil
	s.incomingSession = nil
	s.mu.Unlock()

	s.persist(func(ctx context.Context) error {
		id, err := s.store.MarkActive(ctx, rec.Caller.ID, rec.Receiver.ID, connected)
		if err == nil && id != "" {
			s.mu.Lock()
			rec.ID = id
			s.mu.Unlock()
		}
		return err
	})
	s.publish()
	return nil
}

// Decline rejects the ringing inbound call: defensively ends any session
// activity, records a missed call with zero duration and finalizes the
// caller's row through the ringing tuple.
func (s *Synchronizer) Decline(ctx context.Context) error {
	s.mu.Lock()
	rec := s.incoming
	s.mu.Unlock()
	if rec == nil {
		return ErrNoIncoming
	}
	s.ctl.EndCall(ctx)
	// EndCall normally terminates the pending session, whose event
	// finalizes the record; cover the path where it already vanished.
	s.mu.Lock()
	leftover := s.incoming == rec
	s.mu.Unlock()
	if leftover {
		s.finalizeIncoming()
	}
	return nil
}

// Hangup ends the active call; the terminal bookkeeping rides on the
// session's terminated event.
func (s *Synchronizer) Hangup(ctx context.Context) {
	s.ctl.EndCall(ctx)
}

// ToggleMute flips every local audio track of the active call.
func (s *Synchronizer) ToggleMute() {
	if b := s.ctl.ActiveBundle(); b != nil {
		b.ToggleMute()
		s.publish()
	}
}

// ToggleVideo flips every local video track of the active call.
func (s *Synchronizer) ToggleVideo() {
	if b := s.ctl.ActiveBundle(); b != nil {
		b.ToggleVideo()
		s.publish()
	}
}

// History returns the in-memory terminal records, newest first.
func (s *Synchronizer) History() []models.CallRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.CallRecord(nil), s.history...)
}

// OnSessionEvent consumes the ordered per-session event stream. Events
// for already-cleared sessions are ignored, which makes terminal
// bookkeeping idempotent: only the first terminated notification for a
// slot does any work.
func (s *Synchronizer) OnSessionEvent(ev session.Event) {
	switch ev.State {
	case models.SessionEstablished:
		s.onEstablished(ev.Session)
	case models.SessionTerminated:
		s.onTerminated(ev.Session)
	}
}

func (s *Synchronizer) onEstablished(sess *session.Session) {
	s.mu.Lock()
	if sess.Role == session.RoleInbound {
		// Accept drives the inbound record transition itself.
		s.mu.Unlock()
		return
	}
	rec := s.current
	if rec == nil || rec.Status != models.CallRinging || !s.matchesCurrentLocked(sess) {
		s.mu.Unlock()
		return
	}
	s.currentSession = sess
	connected := s.now()
	rec.Status = models.CallActive
	rec.StartTime = connected
	s.mu.Unlock()

	log.Printf("[CallSync] Call with %s connected", rec.Receiver.Name)
	s.persist(func(ctx context.Context) error {
		_, err := s.store.MarkActive(ctx, rec.Caller.ID, rec.Receiver.ID, connected)
		return err
	})
	s.publish()
}

func (s *Synchronizer) onTerminated(sess *session.Session) {
	s.mu.Lock()
	if s.incomingSession == sess {
		s.mu.Unlock()
		s.finalizeIncoming()
		return
	}
	match := s.matchesCurrentLocked(sess)
	s.mu.Unlock()
	if !match {
		return
	}
	s.finalizeCurrent(models.CallEnded)
}

// matchesCurrentLocked pairs a session with the current record. An
// outbound session that terminated before the synchronizer learned its
// identity still matches: the single call slot guarantees there is only
// one candidate.
func (s *Synchronizer) matchesCurrentLocked(sess *session.Session) bool {
	if s.current == nil {
		return false
	}
	if s.currentSession != nil {
		return s.currentSession == sess
	}
	return sess.Role == session.RoleOutbound
}

// finalizeCurrent closes the current record: ended with a computed
// duration when it was active, missed with zero duration when it never
// connected. No-op when the record was already cleared.
func (s *Synchronizer) finalizeCurrent(terminal models.CallStatus) {
	s.mu.Lock()
	rec := s.current
	if rec == nil {
		s.mu.Unlock()
		return
	}
	s.current = nil
	s.currentSession = nil

	end := s.now()
	rec.EndTime = &end
	if rec.Status == models.CallActive && terminal == models.CallEnded {
		rec.Status = models.CallEnded
		rec.Duration = int(end.Sub(rec.StartTime).Seconds())
	} else {
		rec.Status = models.CallMissed
		rec.Duration = 0
		utils.CallsMissed.Inc()
	}
	s.history = append([]models.CallRecord{*rec}, s.history...)
	s.mu.Unlock()

	log.Printf("[CallSync] Call %s %s (%ds)", rec.ID, rec.Status, rec.Duration)
	s.persist(func(ctx context.Context) error {
		return s.store.Finish(ctx, rowFromRecord(*rec))
	})
	s.publish()
}

// finalizeIncoming records a missed inbound call and updates the
// caller's provisional row by the ringing tuple, since this side never
// held the authoritative row id.
func (s *Synchronizer) finalizeIncoming() {
	s.mu.Lock()
	rec := s.incoming
	if rec == nil {
		s.mu.Unlock()
		return
	}
	s.incoming = nil
	s.incomingSession = nil

	end := s.now()
	rec.EndTime = &end
	rec.Status = models.CallMissed
	rec.Duration = 0
	s.history = append([]models.CallRecord{*rec}, s.history...)
	s.mu.Unlock()

	utils.CallsMissed.Inc()
	log.Printf("[CallSync] Missed call from %s", rec.Caller.Name)
	s.persist(func(ctx context.Context) error {
		return s.store.FinishRinging(ctx, rec.Caller.ID, rec.Receiver.ID, rowFromRecord(*rec))
	})
	s.publish()
}

// persist runs one history write, logging failures. In-memory call state
// is the source of truth; a failed write never rolls back the call.
func (s *Synchronizer) persist(write func(context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := write(ctx); err != nil {
		utils.HistoryWriteErrors.Inc()
		log.Printf("[CallSync] History write failed (ignored): %v", err)
	}
}

func rowFromRecord(rec models.CallRecord) models.HistoryRow {
	row := models.HistoryRow{
		ID:         rec.ID,
		CallerID:   rec.Caller.ID,
		ReceiverID: rec.Receiver.ID,
		Type:       rec.Type,
		StartTime:  rec.StartTime,
		Duration:   rec.Duration,
		Status:     rec.Status,
	}
	if rec.EndTime != nil {
		row.EndTime = *rec.EndTime
	}
	return row
}
