package media

import "regexp"

// An SDP media description starts a line with "m=<kind> <port> ..."
// (RFC 4566 §5.14). We only care whether a given kind is present, so a
// line scan is the whole contract here.
var (
	videoLine = regexp.MustCompile(`(?m)^m=video\s`)
	audioLine = regexp.MustCompile(`(?m)^m=audio\s`)
)

// HasVideoSection reports whether an offer body carries a video media
// description. Callers use this to decide the answering constraints: an
// offer that already contains video is never downgraded by caller intent.
func HasVideoSection(body []byte) bool {
	return videoLine.Match(body)
}

// HasAudioSection reports whether an offer body carries an audio media
// description.
func HasAudioSection(body []byte) bool {
	return audioLine.Match(body)
}
