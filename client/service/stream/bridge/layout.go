package bridge

import "encoding/binary"

// Wire layout of the shared region. Both processes are built from these
// constants; there is no version field, so any change here is a breaking
// protocol change.
//
//	FrameHeader | PacketHeader | frame buffer | packet buffer
//
// All multi-byte fields are little-endian with no implicit padding.
const (
	// FrameBufferSize fits one 4K RGBA frame.
	FrameBufferSize = 4096 * 2160 * 4
	// PacketBufferSize bounds a single compressed packet.
	PacketBufferSize = 4 * 1024 * 1024

	frameHeaderSize  = 30
	packetHeaderSize = 16

	frameHeaderOffset  = 0
	packetHeaderOffset = frameHeaderOffset + frameHeaderSize
	frameBufferOffset  = packetHeaderOffset + packetHeaderSize
	packetBufferOffset = frameBufferOffset + FrameBufferSize

	// RegionSize is the total size of the shared mapping.
	RegionSize = packetBufferOffset + PacketBufferSize
)

// PixelFormat is the wire code describing the layout of a raw frame.
type PixelFormat uint8

const (
	// PixelFormatRGBA is packed 4-channel 8-bit.
	PixelFormatRGBA PixelFormat = 0
	// PixelFormatNV12 is semi-planar 8-bit: a luma plane followed by an
	// interleaved UV plane at half height.
	PixelFormatNV12 PixelFormat = 1
	// PixelFormatP010 is semi-planar 10-bit (16 bits per sample).
	PixelFormatP010 PixelFormat = 2
)

// SemiPlanar reports whether the format carries a second chroma plane.
func (f PixelFormat) SemiPlanar() bool {
	return f == PixelFormatNV12 || f == PixelFormatP010
}

// BytesPerPixel returns the per-pixel byte count of the first plane.
func (f PixelFormat) BytesPerPixel() int {
	switch f {
	case PixelFormatP010:
		return 2
	case PixelFormatNV12:
		return 1
	default:
		return 4
	}
}

func (f PixelFormat) String() string {
	switch f {
	case PixelFormatRGBA:
		return "rgba"
	case PixelFormatNV12:
		return "nv12"
	case PixelFormatP010:
		return "p010"
	default:
		return "unknown"
	}
}

// FrameHeader describes one outgoing raw frame.
type FrameHeader struct {
	Width       uint32
	Height      uint32
	TimestampNS uint64
	InsertIDR   bool
	Format      PixelFormat
	RowPitch    uint32
	DataSize    uint32
	Shutdown    bool
}

// PacketHeader describes one compressed packet.
type PacketHeader struct {
	Size        uint32
	TimestampNS uint64
	IDR         bool
}

// region wraps the raw mapping with typed header/buffer accessors so the
// fixed offsets live in exactly one place.
type region struct {
	data []byte
}

func (r region) putFrameHeader(h FrameHeader) {
	b := r.data[frameHeaderOffset : frameHeaderOffset+frameHeaderSize]
	binary.LittleEndian.PutUint32(b[0:], h.Width)
	binary.LittleEndian.PutUint32(b[4:], h.Height)
	binary.LittleEndian.PutUint64(b[8:], h.TimestampNS)
	b[16] = boolByte(h.InsertIDR)
	b[17] = byte(h.Format)
	binary.LittleEndian.PutUint32(b[18:], h.RowPitch)
	binary.LittleEndian.PutUint32(b[22:], h.DataSize)
	b[26] = boolByte(h.Shutdown)
	b[27], b[28], b[29] = 0, 0, 0
}

func (r region) frameHeader() FrameHeader {
	b := r.data[frameHeaderOffset : frameHeaderOffset+frameHeaderSize]
	return FrameHeader{
		Width:       binary.LittleEndian.Uint32(b[0:]),
		Height:      binary.LittleEndian.Uint32(b[4:]),
		TimestampNS: binary.LittleEndian.Uint64(b[8:]),
		InsertIDR:   b[16] != 0,
		Format:      PixelFormat(b[17]),
		RowPitch:    binary.LittleEndian.Uint32(b[18:]),
		DataSize:    binary.LittleEndian.Uint32(b[22:]),
		Shutdown:    b[26] != 0,
	}
}

// setShutdown flips only the shutdown flag, leaving an in-flight frame's
// header fields untouched so the peer can still tell the two wake reasons
// apart.
func (r region) setShutdown() {
	r.data[frameHeaderOffset+26] = 1
}

func (r region) putPacketHeader(h PacketHeader) {
	b := r.data[packetHeaderOffset : packetHeaderOffset+packetHeaderSize]
	binary.LittleEndian.PutUint32(b[0:], h.Size)
	binary.LittleEndian.PutUint64(b[4:], h.TimestampNS)
	b[12] = boolByte(h.IDR)
	b[13], b[14], b[15] = 0, 0, 0
}

func (r region) packetHeader() PacketHeader {
	b := r.data[packetHeaderOffset : packetHeaderOffset+packetHeaderSize]
	return PacketHeader{
		Size:        binary.LittleEndian.Uint32(b[0:]),
		TimestampNS: binary.LittleEndian.Uint64(b[4:]),
		IDR:         b[12] != 0,
	}
}

func (r region) frameBuffer() []byte {
	return r.data[frameBufferOffset : frameBufferOffset+FrameBufferSize]
}

func (r region) packetBuffer() []byte {
	return r.data[packetBufferOffset : packetBufferOffset+PacketBufferSize]
}

func boolByte(v bool) byte {
	if v {
		return 1
	}
	return 0
}
