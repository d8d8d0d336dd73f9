package encoder

import (
	"errors"
	"fmt"

	"github.com/asticode/go-astiav"
	"github.com/kataras/golog"

	"Lumen/client/service/stream/bridge"
)

var logger = golog.Child("[stream-encoder]")

// rate-control buffer covers one frame interval with some headroom to
// absorb encoder burstiness.
const rcHeadroom = 1.1

// Libav wraps one libav codec context configured for low-latency software
// encoding. Each instance owns its context exclusively; nothing here is
// process-global.
type Libav struct {
	codecCtx *astiav.CodecContext
	encFrame *astiav.Frame
	srcFrame *astiav.Frame
	scaler   *astiav.SoftwareScaleContext
	cfg      Config
	closed   bool
}

// NewLibav opens a software codec context for the requested configuration.
// An unsupported codec name is substituted with HEVC after a warning;
// substitution is never a configuration-time failure.
func NewLibav(cfg Config) (*Libav, error) {
	codec := astiav.FindEncoder(resolveCodecID(cfg.Codec))
	if codec == nil {
		return nil, fmt.Errorf("encoder: no libav encoder for %q", cfg.Codec)
	}

	codecCtx := astiav.AllocCodecContext(codec)
	if codecCtx == nil {
		return nil, errors.New("encoder: allocate codec context failed")
	}
	ok := false
	defer func() {
		if !ok {
			codecCtx.Free()
		}
	}()

	pixelFormat := astiav.PixelFormatYuv420P
	if cfg.TenBit {
		pixelFormat = astiav.PixelFormatYuv420P10Le
	}
	codecCtx.SetWidth(cfg.Width)
	codecCtx.SetHeight(cfg.Height)
	codecCtx.SetTimeBase(astiav.NewRational(1, 1_000_000_000))
	codecCtx.SetFramerate(astiav.NewRational(cfg.FPS, 1))
	codecCtx.SetSampleAspectRatio(astiav.NewRational(1, 1))
	codecCtx.SetPixelFormat(pixelFormat)
	codecCtx.SetGopSize(0)
	codecCtx.SetMaxBFrames(0)
	codecCtx.SetBitRate(cfg.Bitrate)
	codecCtx.SetRcBufferSize(rcBufferSize(cfg.Bitrate, cfg.FPS))
	codecCtx.SetRcMaxRate(cfg.Bitrate)

	options := astiav.NewDictionary()
	defer options.Free()
	options.Set("preset", "ultrafast", astiav.NewDictionaryFlags())
	options.Set("tune", "zerolatency", astiav.NewDictionaryFlags())

	if err := codecCtx.Open(codec, options); err != nil {
		return nil, fmt.Errorf("encoder: open codec: %w", err)
	}

	encFrame := astiav.AllocFrame()
	encFrame.SetWidth(cfg.Width)
	encFrame.SetHeight(cfg.Height)
	encFrame.SetPixelFormat(pixelFormat)
	if err := encFrame.AllocBuffer(0); err != nil {
		encFrame.Free()
		return nil, fmt.Errorf("encoder: allocate encode frame: %w", err)
	}

	ok = true
	logger.Debugf("libav encoder opened %dx%d codec=%s bitrate=%d", cfg.Width, cfg.Height, cfg.Codec, cfg.Bitrate)
	return &Libav{codecCtx: codecCtx, encFrame: encFrame, cfg: cfg}, nil
}

// Encode converts one raw frame into the codec's planar layout and drains
// every packet the codec has buffered. A frame may yield zero, one or more
// packets.
func (l *Libav) Encode(frame RawFrame, timestampNS uint64, forceIDR bool) ([]Packet, error) {
	if l == nil || l.closed {
		return nil, ErrEncoderClosed
	}
	if err := l.ensureScaler(frame); err != nil {
		return nil, err
	}

	packed, err := packRows(frame)
	if err != nil {
		return nil, err
	}
	if err := l.srcFrame.Data().SetBytes(packed, 1); err != nil {
		return nil, fmt.Errorf("encoder: load source frame: %w", err)
	}
	if err := l.encFrame.MakeWritable(); err != nil {
		return nil, fmt.Errorf("encoder: encode frame not writable: %w", err)
	}
	if err := l.scaler.ScaleFrame(l.srcFrame, l.encFrame); err != nil {
		return nil, fmt.Errorf("encoder: scale frame: %w", err)
	}

	if forceIDR {
		l.encFrame.SetPictureType(astiav.PictureTypeI)
	} else {
		l.encFrame.SetPictureType(astiav.PictureTypeNone)
	}
	l.encFrame.SetPts(int64(timestampNS))

	if err := l.codecCtx.SendFrame(l.encFrame); err != nil {
		return nil, fmt.Errorf("encoder: submit frame: %w", err)
	}

	var packets []Packet
	for {
		packet := astiav.AllocPacket()
		if err := l.codecCtx.ReceivePacket(packet); err != nil {
			packet.Free()
			if errors.Is(err, astiav.ErrEagain) || errors.Is(err, astiav.ErrEof) {
				break
			}
			return packets, fmt.Errorf("encoder: retrieve packet: %w", err)
		}
		data := make([]byte, len(packet.Data()))
		copy(data, packet.Data())
		packets = append(packets, Packet{
			Data:        data,
			TimestampNS: uint64(packet.Pts()),
			IDR:         packet.Flags().Has(astiav.PacketFlagKey),
		})
		packet.Free()
	}
	return packets, nil
}

// UpdateRate retunes bitrate, frame rate and the derived rate-control
// buffer on the live context without reallocating codec state.
func (l *Libav) UpdateRate(bitrate int64, fps int) {
	if l == nil || l.closed || bitrate <= 0 || fps <= 0 {
		return
	}
	l.codecCtx.SetBitRate(bitrate)
	l.codecCtx.SetFramerate(astiav.NewRational(fps, 1))
	l.codecCtx.SetRcBufferSize(rcBufferSize(bitrate, fps))
	l.codecCtx.SetRcMaxRate(bitrate)
	l.cfg.Bitrate = bitrate
	l.cfg.FPS = fps
	logger.Debugf("libav encoder retuned bitrate=%d fps=%d", bitrate, fps)
}

// Close releases the codec context, frames and scaler.
func (l *Libav) Close() error {
	if l == nil || l.closed {
		return nil
	}
	l.closed = true
	if l.scaler != nil {
		l.scaler.Free()
		l.scaler = nil
	}
	if l.srcFrame != nil {
		l.srcFrame.Free()
		l.srcFrame = nil
	}
	if l.encFrame != nil {
		l.encFrame.Free()
		l.encFrame = nil
	}
	if l.codecCtx != nil {
		l.codecCtx.Free()
		l.codecCtx = nil
	}
	return nil
}

// ensureScaler builds the source frame and swscale context lazily: input
// dimensions are only known once the first frame arrives.
func (l *Libav) ensureScaler(frame RawFrame) error {
	if l.scaler != nil {
		return nil
	}
	srcFormat := sourcePixelFormat(frame.Format)
	srcFrame := astiav.AllocFrame()
	srcFrame.SetWidth(frame.Width)
	srcFrame.SetHeight(frame.Height)
	srcFrame.SetPixelFormat(srcFormat)
	if err := srcFrame.AllocBuffer(1); err != nil {
		srcFrame.Free()
		return fmt.Errorf("encoder: allocate source frame: %w", err)
	}
	scaler, err := astiav.CreateSoftwareScaleContext(
		frame.Width, frame.Height, srcFormat,
		l.cfg.Width, l.cfg.Height, l.codecCtx.PixelFormat(),
		astiav.NewSoftwareScaleContextFlags(astiav.SoftwareScaleContextFlagBilinear),
	)
	if err != nil {
		srcFrame.Free()
		return fmt.Errorf("encoder: create scaler: %w", err)
	}
	l.srcFrame = srcFrame
	l.scaler = scaler
	logger.Debugf("scaler ready %dx%d %s -> %dx%d", frame.Width, frame.Height, frame.Format, l.cfg.Width, l.cfg.Height)
	return nil
}

func resolveCodecID(name string) astiav.CodecID {
	switch name {
	case "h264", "":
		return astiav.CodecIDH264
	case "hevc", "h265":
		return astiav.CodecIDHevc
	default:
		logger.Warnf("codec %q not supported, using hevc instead", name)
		return astiav.CodecIDHevc
	}
}

func sourcePixelFormat(format bridge.PixelFormat) astiav.PixelFormat {
	switch format {
	case bridge.PixelFormatNV12:
		return astiav.PixelFormatNv12
	case bridge.PixelFormatP010:
		return astiav.PixelFormatP010Le
	default:
		return astiav.PixelFormatRgba
	}
}

func rcBufferSize(bitrate int64, fps int) int {
	return int(float64(bitrate) / float64(fps) * rcHeadroom)
}
