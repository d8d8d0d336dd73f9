package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/kataras/golog"
)

var logger = golog.Child("[stream-bridge]")

var (
	// ErrNotConnected is returned by send/receive before a successful
	// Initialize or after Shutdown.
	ErrNotConnected = errors.New("bridge: not connected")
	// ErrFrameTooLarge rejects a frame payload exceeding the slot capacity.
	ErrFrameTooLarge = errors.New("bridge: frame exceeds buffer capacity")
	// ErrPacketCorrupt flags a declared packet size beyond the slot
	// capacity. This is protocol corruption, not a retryable condition.
	ErrPacketCorrupt = errors.New("bridge: packet exceeds buffer capacity")
)

const (
	attachAttempts        = 50
	attachInterval        = 100 * time.Millisecond
	defaultReadyTimeout   = 5 * time.Second
	defaultReceiveTimeout = time.Second
	peerExitTimeout       = 3 * time.Second
)

// Packet is one compressed packet received from the peer encoder.
type Packet struct {
	Data        []byte
	TimestampNS uint64
	IDR         bool
}

// Options tune a Client. The zero value uses the conventional channel name
// and launches the peer process when the transport is absent.
type Options struct {
	// Channel overrides the transport name (default DefaultChannel).
	Channel string
	// NoLaunch attaches only, never spawning the peer process.
	NoLaunch bool
	// ReadyTimeout bounds the wait for the peer's ready signal
	// (default 5s).
	ReadyTimeout time.Duration
}

// Client is the producing side of the encoding bridge: it hands raw frames
// to the peer process and collects compressed packets. A Client is a single
// producer/consumer session; it is not safe for concurrent use.
type Client struct {
	opts      Options
	transport *Transport
	proc      launcher
	width     uint32
	height    uint32
	codec     string
	connected bool
}

// NewClient returns an unconnected client.
func NewClient(opts Options) *Client {
	if opts.Channel == "" {
		opts.Channel = DefaultChannel
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	return &Client{opts: opts}
}

// Initialize attaches to the shared transport, launching the peer encoder
// process first when the transport does not exist yet, then waits for the
// peer's ready signal. On any failure every partially-acquired handle is
// released and the client stays unconnected so the caller can fall back to
// in-process encoding without leaks.
func (c *Client) Initialize(width, height uint32, codec string) error {
	if c.connected {
		return nil
	}
	c.width, c.height, c.codec = width, height, codec

	transport, err := Attach(c.opts.Channel)
	if errors.Is(err, ErrRegionMissing) {
		if c.opts.NoLaunch {
			return err
		}
		logger.Debugf("transport %q not found, launching encoder process", c.opts.Channel)
		if err := c.proc.start(width, height, codec); err != nil {
			return err
		}
		// Deliberately a plain bounded poll: the peer owns creation and
		// needs a moment to publish the named resources.
		for i := 0; i < attachAttempts; i++ {
			time.Sleep(attachInterval)
			if transport, err = Attach(c.opts.Channel); err == nil {
				break
			}
		}
	}
	if err != nil {
		c.proc.waitExit(peerExitTimeout)
		return fmt.Errorf("bridge: attach %q: %w", c.opts.Channel, err)
	}

	fired, err := transport.WaitReady(c.opts.ReadyTimeout)
	if err == nil && !fired {
		err = fmt.Errorf("bridge: encoder not ready within %s", c.opts.ReadyTimeout)
	}
	if err != nil {
		transport.Close()
		c.proc.waitExit(peerExitTimeout)
		return err
	}

	c.transport = transport
	c.connected = true
	logger.Infof("encoder bridge connected channel=%s %dx%d codec=%s", c.opts.Channel, width, height, codec)
	return nil
}

// SendFrame publishes one raw frame into the single frame slot and signals
// the peer. The slot has no queue: a send before the peer consumed the
// previous frame silently replaces it.
func (c *Client) SendFrame(data []byte, width, height, rowPitch uint32, timestampNS uint64, insertIDR bool, format PixelFormat) error {
	if !c.connected {
		return ErrNotConnected
	}
	if len(data) > FrameBufferSize {
		logger.Errorf("frame too large: %d > %d", len(data), FrameBufferSize)
		return ErrFrameTooLarge
	}
	c.transport.region.putFrameHeader(FrameHeader{
		Width:       width,
		Height:      height,
		TimestampNS: timestampNS,
		InsertIDR:   insertIDR,
		Format:      format,
		RowPitch:    rowPitch,
		DataSize:    uint32(len(data)),
	})
	copy(c.transport.region.frameBuffer(), data)
	if err := c.transport.FrameReady(); err != nil {
		return fmt.Errorf("bridge: signal frame ready: %w", err)
	}
	return nil
}

// ReceivePacket blocks until the peer publishes a packet or the timeout
// elapses (zero means the 1s default). A timeout is reported as ok=false
// with a nil error: nothing available yet, not a connection loss.
func (c *Client) ReceivePacket(timeout time.Duration) (Packet, bool, error) {
	if !c.connected {
		return Packet{}, false, ErrNotConnected
	}
	if timeout <= 0 {
		timeout = defaultReceiveTimeout
	}
	fired, err := c.transport.WaitPacketReady(timeout)
	if err != nil {
		return Packet{}, false, fmt.Errorf("bridge: wait packet: %w", err)
	}
	if !fired {
		return Packet{}, false, nil
	}
	header := c.transport.region.packetHeader()
	if header.Size > PacketBufferSize {
		logger.Errorf("packet too large: %d > %d", header.Size, PacketBufferSize)
		return Packet{}, false, ErrPacketCorrupt
	}
	data := make([]byte, header.Size)
	copy(data, c.transport.region.packetBuffer()[:header.Size])
	return Packet{Data: data, TimestampNS: header.TimestampNS, IDR: header.IDR}, true, nil
}

// Shutdown tells the peer to exit, releases every local handle and waits
// briefly for a launched peer process. Safe to call repeatedly and when
// never connected.
func (c *Client) Shutdown() {
	if c.connected && c.transport != nil {
		// The flag is set before the wake so the peer can tell shutdown
		// from a new frame by checking it first.
		c.transport.region.setShutdown()
		if err := c.transport.FrameReady(); err != nil {
			logger.Warnf("shutdown signal failed: %v", err)
		}
	}
	if c.transport != nil {
		c.transport.Close()
		c.transport = nil
	}
	if c.proc.started() {
		c.proc.waitExit(peerExitTimeout)
	}
	c.connected = false
}

// IsConnected reports whether Initialize succeeded and Shutdown has not run.
func (c *Client) IsConnected() bool {
	return c != nil && c.connected
}
