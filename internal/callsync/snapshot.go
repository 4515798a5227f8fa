package callsync

import (
	"clearcall/internal/media"
	"clearcall/internal/models"
)

// TrackInfo is the renderable view of one track.
type TrackInfo struct {
	ID      string `json:"id"`
	Kind    string `json:"kind"`
	Enabled bool   `json:"enabled"`
}

// Snapshot is the read-only state handed to presentation. The UI never
// mutates core state through it, only through the synchronizer's
// operations.
type Snapshot struct {
	Current      *models.CallRecord       `json:"current_call,omitempty"`
	Incoming     *models.CallRecord       `json:"incoming_call,omitempty"`
	Registration models.RegistrationState `json:"registration"`
	InCall       bool                     `json:"in_call"`
	LocalTracks  []TrackInfo              `json:"local_tracks"`
	RemoteTracks []TrackInfo              `json:"remote_tracks"`
}

// Snapshot builds the current view.
func (s *Synchronizer) Snapshot() Snapshot {
	s.mu.Lock()
	snap := Snapshot{Registration: s.regState}
	if s.current != nil {
		rec := *s.current
		snap.Current = &rec
	}
	if s.incoming != nil {
		rec := *s.incoming
		snap.Incoming = &rec
	}
	s.mu.Unlock()

	snap.InCall = s.ctl.InCall()
	if b := s.ctl.ActiveBundle(); b != nil {
		snap.LocalTracks = trackInfos(b.Local())
		snap.RemoteTracks = trackInfos(b.Remote())
	}
	return snap
}

func (s *Synchronizer) publish() {
	if s.notify != nil {
		s.notify.Publish(s.Snapshot())
	}
}

func trackInfos(tracks []*media.Track) []TrackInfo {
	infos := make([]TrackInfo, 0, len(tracks))
	for _, t := range tracks {
		infos = append(infos, TrackInfo{ID: t.ID, Kind: string(t.Kind), Enabled: t.Enabled()})
	}
	return infos
}
