package stream

import (
	"errors"
	"fmt"

	"Lumen/client/service/stream/bridge"
	"Lumen/client/service/stream/encoder"
)

// Surface is a GPU-resident frame whose pixels are not directly
// CPU-addressable. ReadInto performs the staging copy into CPU-visible
// memory; the caller owns dst.
type Surface interface {
	Dimensions() (width, height int)
	RowPitch() int
	Format() bridge.PixelFormat
	ReadInto(dst []byte) error
}

var errStagingMapped = errors.New("stream: staging buffer still mapped")

// stagingBuffer holds the CPU-readable copy of one frame. The buffer is
// allocated lazily, sized from the first frame's geometry, and its mapping
// is a scoped resource: acquired for one frame's processing and released on
// every exit path before the next frame.
type stagingBuffer struct {
	data   []byte
	width  int
	height int
	pitch  int
	format bridge.PixelFormat
	mapped bool
}

// acquire stages the surface and returns it as a raw frame backed by the
// buffer. The caller must release before the next acquire.
func (b *stagingBuffer) acquire(s Surface) (encoder.RawFrame, error) {
	if b.mapped {
		return encoder.RawFrame{}, errStagingMapped
	}
	width, height := s.Dimensions()
	if b.data == nil {
		b.width, b.height = width, height
		b.pitch = s.RowPitch()
		b.format = s.Format()
		b.data = make([]byte, encoder.PayloadSize(b.format, b.pitch, b.height))
	} else if width != b.width || height != b.height {
		return encoder.RawFrame{}, fmt.Errorf("stream: surface %dx%d does not match staging %dx%d",
			width, height, b.width, b.height)
	}
	if err := s.ReadInto(b.data); err != nil {
		return encoder.RawFrame{}, fmt.Errorf("stream: staging copy: %w", err)
	}
	b.mapped = true
	return encoder.RawFrame{
		Data:     b.data,
		Width:    b.width,
		Height:   b.height,
		RowPitch: b.pitch,
		Format:   b.format,
	}, nil
}

// release unmaps the staging copy. Idempotent.
func (b *stagingBuffer) release() {
	b.mapped = false
}
