package media

import "testing"

const audioOnlyOffer = `v=0
o=- 4611731400430051336 2 IN IP4 127.0.0.1
s=-
t=0 0
m=audio 9 UDP/TLS/RTP/SAVPF 111
a=rtpmap:111 opus/48000/2
`

const audioVideoOffer = `v=0
o=- 4611731400430051336 2 IN IP4 127.0.0.1
s=-
t=0 0
m=audio 9 UDP/TLS/RTP/SAVPF 111
a=rtpmap:111 opus/48000/2
m=video 9 UDP/TLS/RTP/SAVPF 96
a=rtpmap:96 VP8/90000
`

func TestHasVideoSection(t *testing.T) {
	tests := []struct {
		name string
		body string
		want bool
	}{
		{"audio only", audioOnlyOffer, false},
		{"audio and video", audioVideoOffer, true},
		{"empty body", "", false},
		{"video attribute without media line", "a=video-something\r\nm=audio 9 RTP\r\n", false},
		{"video line mid body crlf", "v=0\r\nm=video 9 UDP/TLS/RTP/SAVPF 96\r\n", true},
		{"substring of another token", "m=videoish 9 RTP\n", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasVideoSection([]byte(tt.body)); got != tt.want {
				t.Fatalf("HasVideoSection = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestHasAudioSection(t *testing.T) {
	if !HasAudioSection([]byte(audioOnlyOffer)) {
		t.Fatal("expected audio section in audio-only offer")
	}
	if HasAudioSection([]byte("m=video 9 RTP\n")) {
		t.Fatal("did not expect audio section in video-only body")
	}
}
