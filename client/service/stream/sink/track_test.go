package sink

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v3"
)

func TestNewTrack(t *testing.T) {
	track, err := NewTrack("h264", 72)
	if err != nil {
		t.Fatalf("new track: %v", err)
	}
	if track.Local() == nil {
		t.Fatalf("no underlying track")
	}
	if track.duration != time.Second/72 {
		t.Fatalf("duration = %v, want %v", track.duration, time.Second/72)
	}
	if got := track.Local().Codec().MimeType; got != webrtc.MimeTypeH264 {
		t.Fatalf("mime = %q", got)
	}
}

func TestNewTrackDefaultsFrameRate(t *testing.T) {
	track, err := NewTrack("h264", 0)
	if err != nil {
		t.Fatalf("new track: %v", err)
	}
	if track.duration != time.Second/30 {
		t.Fatalf("duration = %v, want nominal 30fps", track.duration)
	}
}

func TestOnPacketWithoutBoundSender(t *testing.T) {
	track, err := NewTrack("hevc", 72)
	if err != nil {
		t.Fatalf("new track: %v", err)
	}
	// No peer connection is attached; the write fails internally and must
	// be swallowed, never panic or block.
	track.OnPacket([]byte{0, 0, 0, 1, 0x26}, 123, true)
	track.OnPacket(nil, 124, false)

	var nilTrack *Track
	nilTrack.OnPacket([]byte{1}, 0, false)
	if nilTrack.Local() != nil {
		t.Fatalf("nil track exposed a local track")
	}
}

func TestMimeType(t *testing.T) {
	cases := map[string]string{
		"h264": webrtc.MimeTypeH264,
		"hevc": "video/H265",
		"H265": "video/H265",
		"av1":  webrtc.MimeTypeH264,
	}
	for codec, want := range cases {
		if got := mimeType(codec); got != want {
			t.Fatalf("mimeType(%q) = %q, want %q", codec, got, want)
		}
	}
}
