package stream

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kataras/golog"

	"Lumen/client/service/stream/bridge"
	"Lumen/client/service/stream/encoder"
)

var logger = golog.Child("[stream]")

// PacketSink consumes the compressed packets a pipeline produces, in
// submission order.
type PacketSink interface {
	OnPacket(data []byte, timestampNS uint64, idr bool)
}

// State tracks the pipeline lifecycle. The encode path is chosen once at
// Initialize and never revisited per frame.
type State int

const (
	StateUninitialized State = iota
	StateBridgeActive
	StateFallbackActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateBridgeActive:
		return "bridge"
	case StateFallbackActive:
		return "fallback"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var ErrPipelineClosed = errors.New("stream: pipeline closed")

// bridgeLink is the bridge client surface the pipeline drives.
type bridgeLink interface {
	Initialize(width, height uint32, codec string) error
	SendFrame(data []byte, width, height, rowPitch uint32, timestampNS uint64, insertIDR bool, format bridge.PixelFormat) error
	ReceivePacket(timeout time.Duration) (bridge.Packet, bool, error)
	Shutdown()
	IsConnected() bool
}

// codecInstance is the in-process encoder surface of the fallback path.
type codecInstance interface {
	Encode(frame encoder.RawFrame, timestampNS uint64, forceIDR bool) ([]encoder.Packet, error)
	UpdateRate(bitrate int64, fps int)
	Close() error
}

// Seams for tests; production wiring uses the real bridge client and the
// libav encoder.
var (
	openBridge = func(channel string) bridgeLink {
		return bridge.NewClient(bridge.Options{Channel: channel})
	}
	openCodec = func(cfg encoder.Config) (codecInstance, error) {
		return encoder.NewLibav(cfg)
	}
)

// encodePath is the strategy contract both execution paths satisfy.
type encodePath interface {
	submit(frame encoder.RawFrame, timestampNS uint64, forceIDR bool) error
	shutdown()
}

// Pipeline drives one logical stream: it stages each frame, hands it to the
// selected encode path and forwards resulting packets to the sink. It is
// called synchronously from the producer's render loop and is not safe for
// concurrent use.
type Pipeline struct {
	settings Settings
	width    int
	height   int
	sink     PacketSink
	params   ParamSource

	state   State
	path    encodePath
	staging stagingBuffer
	metrics pipelineMetrics
}

// NewPipeline builds an uninitialized pipeline for the negotiated
// dimensions.
func NewPipeline(width, height int, settings Settings, sink PacketSink, params ParamSource) *Pipeline {
	return &Pipeline{
		settings: settings,
		width:    width,
		height:   height,
		sink:     sink,
		params:   params,
	}
}

// Initialize picks the encode path. The bridge is attempted only when the
// platform probe allows it; on bridge failure or ineligibility the
// in-process fallback encoder is constructed instead. Only a fallback
// construction failure is fatal.
func (p *Pipeline) Initialize() error {
	if p.state != StateUninitialized {
		return fmt.Errorf("stream: initialize in state %s", p.state)
	}
	if bridgeAttempted() {
		link := openBridge(p.settings.Channel)
		if err := link.Initialize(uint32(p.width), uint32(p.height), p.settings.Codec); err == nil {
			p.path = &bridgePath{link: link, sink: p.sink, metrics: &p.metrics}
			p.state = StateBridgeActive
			logger.Infof("pipeline using out-of-process encoder %dx%d codec=%s", p.width, p.height, p.settings.Codec)
			return nil
		} else {
			logger.Debugf("encoder bridge unavailable, falling back in-process: %v", err)
		}
	}
	codec, err := openCodec(encoder.Config{
		Codec:   p.settings.Codec,
		Width:   p.width,
		Height:  p.height,
		FPS:     p.settings.FPS,
		Bitrate: p.settings.Bitrate,
		TenBit:  p.settings.TenBit,
	})
	if err != nil {
		return fmt.Errorf("stream: open fallback encoder: %w", err)
	}
	p.path = &fallbackPath{codec: codec, params: p.params, sink: p.sink, metrics: &p.metrics}
	p.state = StateFallbackActive
	logger.Infof("pipeline using in-process encoder %dx%d codec=%s", p.width, p.height, p.settings.Codec)
	return nil
}

// SubmitFrame processes one source frame: staging copy, encode via the
// active path, packets to the sink. Failures drop the frame and keep the
// stream alive; the producer's next frame is the implicit retry. The
// staging mapping is released on every exit path.
func (p *Pipeline) SubmitFrame(surface Surface, presentationNS, targetNS uint64, forceIDR bool) error {
	switch p.state {
	case StateBridgeActive, StateFallbackActive:
	case StateClosed:
		return ErrPipelineClosed
	default:
		return fmt.Errorf("stream: submit in state %s", p.state)
	}
	frame, err := p.staging.acquire(surface)
	if err != nil {
		p.metrics.recordError(err)
		logger.Errorf("staging copy failed: %v", err)
		p.staging.release()
		return err
	}
	defer p.staging.release()

	if err := p.path.submit(frame, targetNS, forceIDR); err != nil {
		p.metrics.recordError(err)
		logger.Errorf("frame dropped: %v", err)
		return err
	}
	p.metrics.recordFrame()
	return nil
}

// State reports the pipeline lifecycle state.
func (p *Pipeline) State() State { return p.state }

// Shutdown tears down the active path and closes the pipeline. A closed
// pipeline accepts no further frames. Idempotent.
func (p *Pipeline) Shutdown() {
	if p.state == StateClosed {
		return
	}
	if p.path != nil {
		p.path.shutdown()
		p.path = nil
	}
	p.state = StateClosed
}

// bridgePath hands frames to the peer encoder process. On error the frame
// is dropped; the pipeline never switches paths mid-stream.
type bridgePath struct {
	link    bridgeLink
	sink    PacketSink
	metrics *pipelineMetrics
}

func (b *bridgePath) submit(frame encoder.RawFrame, timestampNS uint64, forceIDR bool) error {
	err := b.link.SendFrame(frame.Data,
		uint32(frame.Width), uint32(frame.Height), uint32(frame.RowPitch),
		timestampNS, forceIDR, frame.Format)
	if err != nil {
		return err
	}
	packet, ok, err := b.link.ReceivePacket(0)
	if err != nil {
		return err
	}
	if !ok {
		// Nothing ready yet; the frame stays with the peer.
		return nil
	}
	b.sink.OnPacket(packet.Data, packet.TimestampNS, packet.IDR)
	b.metrics.recordPacket(len(packet.Data), packet.IDR)
	return nil
}

func (b *bridgePath) shutdown() {
	b.link.Shutdown()
}

// fallbackPath encodes in-process, applying pending rate-control updates
// before each frame.
type fallbackPath struct {
	codec   codecInstance
	params  ParamSource
	sink    PacketSink
	metrics *pipelineMetrics
}

func (f *fallbackPath) submit(frame encoder.RawFrame, timestampNS uint64, forceIDR bool) error {
	if f.params != nil {
		if params := f.params.Consume(); params.Updated {
			f.codec.UpdateRate(params.BitrateBPS, params.FPS)
		}
	}
	packets, err := f.codec.Encode(frame, timestampNS, forceIDR)
	if err != nil {
		return err
	}
	for _, packet := range packets {
		f.sink.OnPacket(packet.Data, packet.TimestampNS, packet.IDR)
		f.metrics.recordPacket(len(packet.Data), packet.IDR)
	}
	return nil
}

func (f *fallbackPath) shutdown() {
	if err := f.codec.Close(); err != nil {
		logger.Warnf("fallback encoder close: %v", err)
	}
}

// bridgeAttempted decides once per pipeline whether the out-of-process path
// is tried at all. LUMEN_BRIDGE=1 forces the attempt, LUMEN_BRIDGE=0
// disables it; otherwise the platform probe decides.
func bridgeAttempted() bool {
	switch strings.TrimSpace(os.Getenv("LUMEN_BRIDGE")) {
	case "1":
		return true
	case "0":
		return false
	}
	return encoder.BridgeSupported()
}
