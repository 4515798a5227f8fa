package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
)

// TrackKind mirrors the SDP media kinds we negotiate.
type TrackKind string

const (
	KindAudio TrackKind = "audio"
	KindVideo TrackKind = "video"
)

// Track is one audio or video track. Local tracks wrap the sample track we
// feed into the peer connection plus a stop hook for the capture pipeline;
// remote tracks wrap what the transport delivered. Toggling a track flips
// its enabled flag only, it never stops the track, so unmuting never needs
// a fresh acquisition or a renegotiation.
type Track struct {
	ID   string
	Kind TrackKind

	mu      sync.Mutex
	enabled bool
	stopped bool

	local  *webrtc.TrackLocalStaticSample
	remote *webrtc.TrackRemote
	stop   func()
}

// NewLocalTrack wraps a capture-side track. stop releases the underlying
// device pipeline and may be nil.
func NewLocalTrack(id string, kind TrackKind, t *webrtc.TrackLocalStaticSample, stop func()) *Track {
	return &Track{ID: id, Kind: kind, enabled: true, local: t, stop: stop}
}

// NewRemoteTrack wraps a track delivered by the transport.
func NewRemoteTrack(t *webrtc.TrackRemote) *Track {
	kind := KindAudio
	if t.Kind() == webrtc.RTPCodecTypeVideo {
		kind = KindVideo
	}
	return &Track{ID: t.ID(), Kind: kind, enabled: true, remote: t}
}

func (t *Track) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *Track) SetEnabled(on bool) {
	t.mu.Lock()
	t.enabled = on
	t.mu.Unlock()
}

// Local exposes the negotiable track for transport attachment and for the
// capture pipeline to write samples into. Nil for remote tracks.
func (t *Track) Local() *webrtc.TrackLocalStaticSample { return t.local }

// Remote exposes the delivered transport track. Nil for local tracks.
func (t *Track) Remote() *webrtc.TrackRemote { return t.remote }

// Stop releases the capture pipeline behind a local track. Idempotent.
func (t *Track) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.enabled = false
	stop := t.stop
	t.mu.Unlock()
	if stop != nil {
		stop()
	}
}

func (t *Track) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stopped
}

// Bundle pairs the local tracks owned by the active session with the
// remote tracks the transport has delivered so far. The remote side is
// monotonically additive until Release.
type Bundle struct {
	mu     sync.RWMutex
	local  []*Track
	remote []*Track
}

func NewBundle() *Bundle { return &Bundle{} }

// SetLocal hands exclusive ownership of the acquired tracks to the bundle.
func (b *Bundle) SetLocal(tracks []*Track) {
	b.mu.Lock()
	b.local = tracks
	b.mu.Unlock()
}

// AddRemote appends a delivered track. Renegotiation can add tracks well
// after the session established.
func (b *Bundle) AddRemote(t *Track) {
	b.mu.Lock()
	b.remote = append(b.remote, t)
	b.mu.Unlock()
}

func (b *Bundle) Local() []*Track {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Track(nil), b.local...)
}

func (b *Bundle) Remote() []*Track {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]*Track(nil), b.remote...)
}

// ToggleMute flips the enabled flag on every local audio track.
func (b *Bundle) ToggleMute() {
	b.toggle(KindAudio)
}

// ToggleVideo flips the enabled flag on every local video track.
func (b *Bundle) ToggleVideo() {
	b.toggle(KindVideo)
}

func (b *Bundle) toggle(kind TrackKind) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.local {
		if t.Kind == kind {
			t.SetEnabled(!t.Enabled())
		}
	}
}

// Release stops every local track and clears both sides. Called exactly
// when the owning session terminates.
func (b *Bundle) Release() {
	b.mu.Lock()
	local := b.local
	b.local = nil
	b.remote = nil
	b.mu.Unlock()
	for _, t := range local {
		t.Stop()
	}
}
