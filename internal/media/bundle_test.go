package media

import "testing"

func localBundle() (*Bundle, *Track, *Track) {
	audio := NewLocalTrack("a1", KindAudio, nil, nil)
	video := NewLocalTrack("v1", KindVideo, nil, nil)
	b := NewBundle()
	b.SetLocal([]*Track{audio, video})
	return b, audio, video
}

func TestToggleMuteFlipsOnlyAudio(t *testing.T) {
	b, audio, video := localBundle()

	b.ToggleMute()
	if audio.Enabled() {
		t.Fatal("audio track still enabled after mute")
	}
	if !video.Enabled() {
		t.Fatal("video track disabled by mute")
	}
	if audio.Stopped() {
		t.Fatal("mute must not stop the track")
	}

	b.ToggleMute()
	if !audio.Enabled() {
		t.Fatal("audio track not restored by second toggle")
	}
	if audio.Stopped() {
		t.Fatal("unmute must not stop the track")
	}
}

func TestToggleVideoFlipsOnlyVideo(t *testing.T) {
	b, audio, video := localBundle()

	b.ToggleVideo()
	if video.Enabled() {
		t.Fatal("video track still enabled after toggle")
	}
	if !audio.Enabled() {
		t.Fatal("audio track disabled by video toggle")
	}
	b.ToggleVideo()
	if !video.Enabled() {
		t.Fatal("video track not restored by second toggle")
	}
}

func TestReleaseStopsLocalAndClearsBoth(t *testing.T) {
	b, audio, video := localBundle()
	stopped := false
	b.SetLocal([]*Track{NewLocalTrack("a2", KindAudio, nil, func() { stopped = true }), audio, video})

	b.Release()
	if !stopped {
		t.Fatal("release did not stop the capture pipeline")
	}
	if len(b.Local()) != 0 || len(b.Remote()) != 0 {
		t.Fatalf("release left tracks behind: %d local, %d remote", len(b.Local()), len(b.Remote()))
	}
	if audio.Enabled() {
		t.Fatal("stopped track still enabled")
	}
}

func TestRemoteIsAdditive(t *testing.T) {
	b := NewBundle()
	b.AddRemote(&Track{ID: "r1", Kind: KindAudio, enabled: true})
	b.AddRemote(&Track{ID: "r2", Kind: KindVideo, enabled: true})
	remote := b.Remote()
	if len(remote) != 2 {
		t.Fatalf("expected 2 remote tracks, got %d", len(remote))
	}
	if remote[0].ID != "r1" || remote[1].ID != "r2" {
		t.Fatalf("remote tracks out of order: %s, %s", remote[0].ID, remote[1].ID)
	}
}

func TestTrackStopIdempotent(t *testing.T) {
	calls := 0
	tr := NewLocalTrack("a1", KindAudio, nil, func() { calls++ })
	tr.Stop()
	tr.Stop()
	if calls != 1 {
		t.Fatalf("stop hook ran %d times, want 1", calls)
	}
}
