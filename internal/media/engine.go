package media

import (
	"context"
	"fmt"
	"log"

	"github.com/pion/webrtc/v4"
)

// Engine builds one Transport per call, carrying the NAT-traversal
// configuration every peer connection is created with.
type Engine struct {
	config webrtc.Configuration
}

func NewEngine(iceServers []string) *Engine {
	cfg := webrtc.Configuration{}
	if len(iceServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: iceServers}}
	}
	return &Engine{config: cfg}
}

// Transport is one negotiated media leg: a peer connection producing and
// consuming the SDP bodies carried in the signaling exchange.
type Transport struct {
	pc *webrtc.PeerConnection
}

// NewTransport creates a peer connection with the local tracks attached.
// onRemote fires for every inbound track the transport delivers, including
// tracks added by renegotiation after the session established.
func (e *Engine) NewTransport(local []*Track, onRemote func(*Track)) (*Transport, error) {
	pc, err := webrtc.NewPeerConnection(e.config)
	if err != nil {
		return nil, fmt.Errorf("peer connection: %w", err)
	}
	for _, t := range local {
		if t.Local() == nil {
			continue
		}
		if _, err := pc.AddTrack(t.Local()); err != nil {
			pc.Close()
			return nil, fmt.Errorf("add %s track: %w", t.Kind, err)
		}
	}
	pc.OnTrack(func(remote *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		log.Printf("[Media] Remote %s track arrived (%s)", remote.Kind(), remote.ID())
		if onRemote != nil {
			onRemote(NewRemoteTrack(remote))
		}
	})
	return &Transport{pc: pc}, nil
}

// CreateOffer produces the SDP body for an outbound invite. Blocks until
// ICE gathering completes so the body carries usable candidates.
func (t *Transport) CreateOffer(ctx context.Context) ([]byte, error) {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return nil, fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []byte(t.pc.LocalDescription().SDP), nil
}

// Answer consumes a remote offer body and produces the answer body.
func (t *Transport) Answer(ctx context.Context, offer []byte) ([]byte, error) {
	err := t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeOffer,
		SDP:  string(offer),
	})
	if err != nil {
		return nil, fmt.Errorf("set remote offer: %w", err)
	}
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return nil, fmt.Errorf("create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return nil, fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return []byte(t.pc.LocalDescription().SDP), nil
}

// AcceptAnswer consumes the remote answer body on the inviting side.
func (t *Transport) AcceptAnswer(answer []byte) error {
	err := t.pc.SetRemoteDescription(webrtc.SessionDescription{
		Type: webrtc.SDPTypeAnswer,
		SDP:  string(answer),
	})
	if err != nil {
		return fmt.Errorf("set remote answer: %w", err)
	}
	return nil
}

// RemoteTracks enumerates the tracks already negotiated on the receivers,
// for binding right after the session establishes.
func (t *Transport) RemoteTracks() []*Track {
	var tracks []*Track
	for _, recv := range t.pc.GetReceivers() {
		if rt := recv.Track(); rt != nil {
			tracks = append(tracks, NewRemoteTrack(rt))
		}
	}
	return tracks
}

func (t *Transport) Close() error {
	return t.pc.Close()
}
