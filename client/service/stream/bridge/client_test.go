package bridge

import (
	"bytes"
	"errors"
	"testing"
	"time"
)

// startServer creates the owning side and signals readiness so a client
// Initialize can complete without launching a process.
func startServer(t *testing.T, channel string) *Server {
	t.Helper()
	server, err := NewServer(channel)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	if err := server.SignalReady(); err != nil {
		t.Fatalf("ready: %v", err)
	}
	return server
}

func TestClientInitializeAgainstRunningPeer(t *testing.T) {
	channel := testChannel(t)
	startServer(t, channel)

	client := NewClient(Options{Channel: channel, NoLaunch: true})
	if client.IsConnected() {
		t.Fatalf("connected before initialize")
	}
	if err := client.Initialize(1920, 1080, "h264"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer client.Shutdown()
	if !client.IsConnected() {
		t.Fatalf("not connected after initialize")
	}
}

func TestClientInitializePeerUnlaunchable(t *testing.T) {
	channel := testChannel(t)

	// No transport and no encoder binary beside the test executable: the
	// launch fails and Initialize must come back a clean failure.
	client := NewClient(Options{Channel: channel})
	start := time.Now()
	err := client.Initialize(1920, 1080, "h264")
	if err == nil {
		t.Fatalf("expected initialize failure")
	}
	if time.Since(start) > 10*time.Second {
		t.Fatalf("initialize exceeded its polling budget")
	}
	if client.IsConnected() {
		t.Fatalf("client connected after failure")
	}
	// Safe even though nothing was acquired.
	client.Shutdown()
}

func TestClientInitializeReadyTimeout(t *testing.T) {
	channel := testChannel(t)
	server, err := NewServer(channel)
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	defer server.Close()
	// Deliberately no SignalReady.
	client := NewClient(Options{Channel: channel, NoLaunch: true, ReadyTimeout: 200 * time.Millisecond})
	if err := client.Initialize(1280, 720, "h264"); err == nil {
		t.Fatalf("expected ready-wait timeout")
	}
	if client.IsConnected() {
		t.Fatalf("client connected despite timeout")
	}
}

func TestSendFrameRoundTrip(t *testing.T) {
	channel := testChannel(t)
	server := startServer(t, channel)
	client := NewClient(Options{Channel: channel, NoLaunch: true})
	if err := client.Initialize(320, 240, "h264"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer client.Shutdown()

	payload := make([]byte, 320*240*4)
	for i := range payload {
		payload[i] = byte(i)
	}
	if err := client.SendFrame(payload, 320, 240, 320*4, 123456789, true, PixelFormatRGBA); err != nil {
		t.Fatalf("send: %v", err)
	}

	frame, ok, err := server.WaitFrame(time.Second)
	if err != nil || !ok {
		t.Fatalf("wait frame: ok=%t err=%v", ok, err)
	}
	if frame.Shutdown {
		t.Fatalf("frame wake misread as shutdown")
	}
	if frame.Width != 320 || frame.Height != 240 || frame.RowPitch != 320*4 {
		t.Fatalf("frame geometry mismatch: %+v", frame)
	}
	if frame.TimestampNS != 123456789 || !frame.InsertIDR || frame.Format != PixelFormatRGBA {
		t.Fatalf("frame metadata mismatch: %+v", frame)
	}
	if !bytes.Equal(frame.Data, payload) {
		t.Fatalf("frame payload not byte-identical")
	}
}

func TestSendFrameTooLarge(t *testing.T) {
	channel := testChannel(t)
	server := startServer(t, channel)
	client := NewClient(Options{Channel: channel, NoLaunch: true})
	if err := client.Initialize(320, 240, "h264"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer client.Shutdown()

	previous := []byte("previous frame contents")
	if err := client.SendFrame(previous, 320, 240, 1280, 1, false, PixelFormatRGBA); err != nil {
		t.Fatalf("send: %v", err)
	}

	oversize := make([]byte, FrameBufferSize+1)
	if err := client.SendFrame(oversize, 4096, 2160, 4096*4, 2, false, PixelFormatRGBA); !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("expected ErrFrameTooLarge, got %v", err)
	}

	// The rejected send must not have disturbed the stored frame.
	frame, ok, err := server.WaitFrame(time.Second)
	if err != nil || !ok {
		t.Fatalf("wait frame: ok=%t err=%v", ok, err)
	}
	if frame.TimestampNS != 1 || !bytes.Equal(frame.Data, previous) {
		t.Fatalf("rejected send corrupted the frame slot: %+v", frame)
	}

	// And the client carries no corrupted state into the next send.
	if err := client.SendFrame(previous, 320, 240, 1280, 3, false, PixelFormatRGBA); err != nil {
		t.Fatalf("send after rejection: %v", err)
	}
	frame, ok, err = server.WaitFrame(time.Second)
	if err != nil || !ok || frame.TimestampNS != 3 {
		t.Fatalf("send after rejection not delivered: ok=%t err=%v frame=%+v", ok, err, frame)
	}
}

func TestSendFrameNotConnected(t *testing.T) {
	client := NewClient(Options{Channel: testChannel(t), NoLaunch: true})
	if err := client.SendFrame([]byte{1}, 1, 1, 4, 0, false, PixelFormatRGBA); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, _, err := client.ReceivePacket(time.Millisecond); !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
}

func TestReceivePacketTimeout(t *testing.T) {
	channel := testChannel(t)
	startServer(t, channel)
	client := NewClient(Options{Channel: channel, NoLaunch: true})
	if err := client.Initialize(320, 240, "h264"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer client.Shutdown()

	packet, ok, err := client.ReceivePacket(100 * time.Millisecond)
	if err != nil {
		t.Fatalf("timeout surfaced as error: %v", err)
	}
	if ok {
		t.Fatalf("received a packet nobody sent: %+v", packet)
	}
}

func TestReceivePacketCorruptSize(t *testing.T) {
	channel := testChannel(t)
	server := startServer(t, channel)
	client := NewClient(Options{Channel: channel, NoLaunch: true})
	if err := client.Initialize(320, 240, "h264"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer client.Shutdown()

	// Forge a header claiming more bytes than the slot holds.
	server.transport.region.putPacketHeader(PacketHeader{Size: PacketBufferSize + 1, TimestampNS: 9})
	if err := server.transport.PacketReady(); err != nil {
		t.Fatalf("signal: %v", err)
	}
	if _, _, err := client.ReceivePacket(time.Second); !errors.Is(err, ErrPacketCorrupt) {
		t.Fatalf("expected ErrPacketCorrupt, got %v", err)
	}
}

func TestPacketEcho(t *testing.T) {
	channel := testChannel(t)
	server := startServer(t, channel)
	client := NewClient(Options{Channel: channel, NoLaunch: true})
	if err := client.Initialize(1920, 1080, "h264"); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	defer client.Shutdown()

	go func() {
		frame, ok, err := server.WaitFrame(2 * time.Second)
		if err != nil || !ok || frame.Shutdown {
			return
		}
		server.SendPacket(frame.Data[:16], frame.TimestampNS, frame.InsertIDR)
	}()

	payload := make([]byte, 1920*1080*4)
	if err := client.SendFrame(payload, 1920, 1080, 1920*4, 777, true, PixelFormatRGBA); err != nil {
		t.Fatalf("send: %v", err)
	}
	packet, ok, err := client.ReceivePacket(2 * time.Second)
	if err != nil || !ok {
		t.Fatalf("receive: ok=%t err=%v", ok, err)
	}
	if packet.TimestampNS != 777 || !packet.IDR || len(packet.Data) != 16 {
		t.Fatalf("echoed packet mismatch: ts=%d idr=%t len=%d", packet.TimestampNS, packet.IDR, len(packet.Data))
	}
}

func TestShutdownWakesPeer(t *testing.T) {
	channel := testChannel(t)
	server := startServer(t, channel)
	client := NewClient(Options{Channel: channel, NoLaunch: true})
	if err := client.Initialize(320, 240, "h264"); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	done := make(chan Frame, 1)
	go func() {
		frame, ok, err := server.WaitFrame(2 * time.Second)
		if err == nil && ok {
			done <- frame
		}
	}()
	time.Sleep(50 * time.Millisecond)
	client.Shutdown()
	select {
	case frame := <-done:
		if !frame.Shutdown {
			t.Fatalf("peer woke without the shutdown flag: %+v", frame)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("peer never woke on shutdown")
	}
	if client.IsConnected() {
		t.Fatalf("client still connected after shutdown")
	}
	// Idempotent: a second shutdown must be a no-op.
	client.Shutdown()
}
