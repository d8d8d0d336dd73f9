// Package sink adapts compressed stream packets to downstream consumers.
package sink

import (
	"strings"
	"sync"
	"time"

	"github.com/kataras/golog"
	"github.com/pion/webrtc/v3"
	"github.com/pion/webrtc/v3/pkg/media"
)

var logger = golog.Child("[stream-sink]")

// Track forwards compressed packets into a pion sample track so a peer
// connection can carry the stream. Write failures are logged and dropped;
// the encoding side never blocks on the network.
type Track struct {
	mu       sync.Mutex
	track    *webrtc.TrackLocalStaticSample
	duration time.Duration
}

// NewTrack builds a sample track for the codec at the nominal frame rate.
// The frame rate only seeds per-sample durations; it does not pace writes.
func NewTrack(codec string, fps int) (*Track, error) {
	track, err := webrtc.NewTrackLocalStaticSample(webrtc.RTPCodecCapability{
		MimeType: mimeType(codec),
	}, "lumen-video", "lumen")
	if err != nil {
		return nil, err
	}
	duration := time.Second / 30
	if fps > 0 {
		duration = time.Second / time.Duration(fps)
	}
	return &Track{track: track, duration: duration}, nil
}

// OnPacket writes one compressed packet as a media sample.
func (t *Track) OnPacket(data []byte, timestampNS uint64, idr bool) {
	if t == nil || len(data) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	err := t.track.WriteSample(media.Sample{
		Data:     data,
		Duration: t.duration,
	})
	if err != nil {
		logger.Debugf("video sample drop ts=%d idr=%t: %v", timestampNS, idr, err)
	}
}

// Local exposes the underlying track for AddTrack on a peer connection.
func (t *Track) Local() *webrtc.TrackLocalStaticSample {
	if t == nil {
		return nil
	}
	return t.track
}

func mimeType(codec string) string {
	if strings.EqualFold(codec, "hevc") || strings.EqualFold(codec, "h265") {
		return "video/H265"
	}
	return webrtc.MimeTypeH264
}
