package encoder

import (
	"errors"
	"runtime"

	"Lumen/client/service/stream/bridge"
)

// Config describes the desired output properties for a codec instance.
type Config struct {
	Codec   string // "h264" or "hevc"
	Width   int
	Height  int
	FPS     int
	Bitrate int64 // bits per second
	TenBit  bool  // encode 10-bit planar output
}

// RawFrame is a CPU-visible raw frame handed to the fallback encoder. Rows
// may carry pitch padding beyond Width*bytes-per-pixel.
type RawFrame struct {
	Data     []byte
	Width    int
	Height   int
	RowPitch int
	Format   bridge.PixelFormat
}

// Packet is one compressed packet produced by a codec instance.
type Packet struct {
	Data        []byte
	TimestampNS uint64
	IDR         bool
}

var ErrEncoderClosed = errors.New("encoder: closed")

// Capability describes an encoding path this build can expose.
type Capability struct {
	Name           string `json:"name"`
	Type           string `json:"type"`
	Codec          string `json:"codec,omitempty"`
	OutOfProcess   bool   `json:"outOfProcess"`
	Description    string `json:"description,omitempty"`
	Disabled       bool   `json:"disabled,omitempty"`
	DisabledReason string `json:"disabledReason,omitempty"`
}

// Capabilities lists the encoding paths known to this build: the
// out-of-process bridge and the in-process libav fallback. The list is
// diagnostic; path selection happens once at pipeline initialization.
func Capabilities(codec string) []Capability {
	bridgeCap := Capability{
		Name:         "encoder-bridge",
		Type:         "ipc-bridge",
		Codec:        codec,
		OutOfProcess: true,
		Description:  "shared-memory bridge to the native encoder process",
	}
	if !BridgeSupported() {
		bridgeCap.Disabled = true
		bridgeCap.DisabledReason = "no native encoder process for " + runtime.GOOS + "/" + runtime.GOARCH
	}
	return []Capability{
		bridgeCap,
		{
			Name:        "libav-software",
			Type:        "software-libav",
			Codec:       codec,
			Description: "in-process libav software encoder",
		},
	}
}

// BridgeSupported reports whether a purpose-built encoder process exists
// for this platform. The out-of-process path exists for hosts whose native
// encoders cannot be loaded in-process, which today means ARM64.
func BridgeSupported() bool {
	return runtime.GOARCH == "arm64"
}
