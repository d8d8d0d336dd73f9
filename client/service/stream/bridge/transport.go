package bridge

import (
	"errors"
	"time"
)

// DefaultChannel is the conventional transport name shared by both
// processes. Tests and multi-stream setups may pick their own.
const DefaultChannel = "lumen-encoder"

var (
	// ErrRegionExists is returned by Create when another process already
	// owns a transport with the same name.
	ErrRegionExists = errors.New("bridge: shared region already exists")
	// ErrRegionMissing is returned by Attach when no peer has created the
	// transport yet.
	ErrRegionMissing = errors.New("bridge: shared region not found")
)

// signal is a named binary wake-up shared across processes. Set never
// blocks; Wait blocks up to the timeout (zero means wait forever) and
// reports whether the signal fired. Coalesced sets wake a single waiter.
type signal interface {
	Set() error
	Wait(timeout time.Duration) (bool, error)
	Close() error
}

// Transport is the mailbox both processes agree on: one fixed-layout shared
// region plus the frame-ready, packet-ready and encoder-ready signals. It
// stores bytes and wakes peers; it knows nothing about encoding.
type Transport struct {
	region      region
	frameReady  signal
	packetReady signal
	ready       signal

	releaseRegion func() error
}

// Create builds the transport as the owning side. Creation is exclusive:
// the region and signals must not already exist under this name.
func Create(channel string) (*Transport, error) {
	return newTransport(channel, true)
}

// Attach opens a transport previously created by the peer.
func Attach(channel string) (*Transport, error) {
	return newTransport(channel, false)
}

// FrameReady wakes the consumer side after a frame write.
func (t *Transport) FrameReady() error { return t.frameReady.Set() }

// PacketReady wakes the producer side after a packet write.
func (t *Transport) PacketReady() error { return t.packetReady.Set() }

// SignalReady announces the consumer finished its setup.
func (t *Transport) SignalReady() error { return t.ready.Set() }

// WaitFrameReady blocks until a frame (or shutdown) is signalled.
func (t *Transport) WaitFrameReady(timeout time.Duration) (bool, error) {
	return t.frameReady.Wait(timeout)
}

// WaitPacketReady blocks until a packet is signalled.
func (t *Transport) WaitPacketReady(timeout time.Duration) (bool, error) {
	return t.packetReady.Wait(timeout)
}

// WaitReady blocks until the consumer announces readiness.
func (t *Transport) WaitReady(timeout time.Duration) (bool, error) {
	return t.ready.Wait(timeout)
}

// Close releases every handle. The owning side also removes the named
// resources so a later Create can succeed.
func (t *Transport) Close() error {
	if t == nil {
		return nil
	}
	var first error
	for _, s := range []signal{t.frameReady, t.packetReady, t.ready} {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	t.frameReady, t.packetReady, t.ready = nil, nil, nil
	if t.releaseRegion != nil {
		if err := t.releaseRegion(); err != nil && first == nil {
			first = err
		}
		t.releaseRegion = nil
	}
	t.region.data = nil
	return first
}

func signalNames(channel string) (frame, packet, ready string) {
	return channel + "-frame-ready", channel + "-packet-ready", channel + "-encoder-ready"
}
