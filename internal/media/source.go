package media

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Constraints is the audio/video request handed to the device layer,
// the same shape the UI passes to getUserMedia.
type Constraints struct {
	Audio bool
	Video bool
}

// Source acquires exclusively-owned local capture tracks. Acquisition can
// fail when the user denies the device permission prompt or no device is
// present; the failed call attempt aborts but the system stays usable.
type Source interface {
	Acquire(ctx context.Context, c Constraints) ([]*Track, error)
}

// WebRTCSource builds the negotiable track endpoints for local capture.
// The device pipeline attaches through Track.Local and writes samples;
// stopping a track tears that pipeline down.
type WebRTCSource struct{}

func NewWebRTCSource() *WebRTCSource { return &WebRTCSource{} }

func (s *WebRTCSource) Acquire(ctx context.Context, c Constraints) ([]*Track, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.Audio && !c.Video {
		return nil, fmt.Errorf("no media requested")
	}

	var tracks []*Track
	if c.Audio {
		t, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus},
			"audio-"+uuid.NewString(), "clearcall",
		)
		if err != nil {
			return nil, fmt.Errorf("audio track: %w", err)
		}
		tracks = append(tracks, NewLocalTrack(t.ID(), KindAudio, t, nil))
	}
	if c.Video {
		t, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
			"video-"+uuid.NewString(), "clearcall",
		)
		if err != nil {
			releaseTracks(tracks)
			return nil, fmt.Errorf("video track: %w", err)
		}
		tracks = append(tracks, NewLocalTrack(t.ID(), KindVideo, t, nil))
	}
	return tracks, nil
}

func releaseTracks(tracks []*Track) {
	for _, t := range tracks {
		t.Stop()
	}
}
