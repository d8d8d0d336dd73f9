package bridge

import (
	"fmt"
	"time"
)

// Frame is one raw frame read out of the frame slot by the consuming side.
// Shutdown marks a teardown wake: when set, the remaining fields are not
// meaningful and the buffer was not read.
type Frame struct {
	Width       uint32
	Height      uint32
	TimestampNS uint64
	InsertIDR   bool
	Format      PixelFormat
	RowPitch    uint32
	Data        []byte
	Shutdown    bool
}

// Server is the consuming side of the bridge, run inside the peer encoder
// process. It owns creation of the shared transport; the driver side
// attaches to it by name.
type Server struct {
	transport *Transport
}

// NewServer creates the shared transport as its exclusive owner.
func NewServer(channel string) (*Server, error) {
	if channel == "" {
		channel = DefaultChannel
	}
	transport, err := Create(channel)
	if err != nil {
		return nil, err
	}
	return &Server{transport: transport}, nil
}

// SignalReady announces that the encoder behind this server finished its
// setup and frames may be sent.
func (s *Server) SignalReady() error {
	return s.transport.SignalReady()
}

// WaitFrame blocks until the producer signals a frame or shutdown (zero
// timeout waits forever). The shutdown flag is checked before the buffer is
// touched, so a teardown wake never surfaces as a frame.
func (s *Server) WaitFrame(timeout time.Duration) (Frame, bool, error) {
	fired, err := s.transport.WaitFrameReady(timeout)
	if err != nil {
		return Frame{}, false, fmt.Errorf("bridge: wait frame: %w", err)
	}
	if !fired {
		return Frame{}, false, nil
	}
	header := s.transport.region.frameHeader()
	if header.Shutdown {
		return Frame{Shutdown: true}, true, nil
	}
	if header.DataSize > FrameBufferSize {
		return Frame{}, false, fmt.Errorf("bridge: declared frame size %d exceeds capacity", header.DataSize)
	}
	data := make([]byte, header.DataSize)
	copy(data, s.transport.region.frameBuffer()[:header.DataSize])
	return Frame{
		Width:       header.Width,
		Height:      header.Height,
		TimestampNS: header.TimestampNS,
		InsertIDR:   header.InsertIDR,
		Format:      header.Format,
		RowPitch:    header.RowPitch,
		Data:        data,
	}, true, nil
}

// SendPacket publishes one compressed packet into the packet slot and wakes
// the producer.
func (s *Server) SendPacket(data []byte, timestampNS uint64, idr bool) error {
	if len(data) > PacketBufferSize {
		return ErrPacketCorrupt
	}
	s.transport.region.putPacketHeader(PacketHeader{
		Size:        uint32(len(data)),
		TimestampNS: timestampNS,
		IDR:         idr,
	})
	copy(s.transport.region.packetBuffer(), data)
	return s.transport.PacketReady()
}

// Close releases the transport and unlinks its named resources.
func (s *Server) Close() error {
	if s == nil || s.transport == nil {
		return nil
	}
	err := s.transport.Close()
	s.transport = nil
	return err
}
