package encoder

import (
	"fmt"

	"Lumen/client/service/stream/bridge"
)

// PayloadSize returns the byte count a raw frame occupies: the luma (or
// packed) plane, plus the interleaved half-height chroma plane for
// semi-planar formats.
func PayloadSize(format bridge.PixelFormat, rowPitch, height int) int {
	size := rowPitch * height
	if format.SemiPlanar() {
		size += rowPitch * (height / 2)
	}
	return size
}

// packRows drops pitch padding, copying every plane of a raw frame into a
// tightly strided buffer. swscale interprets tightly packed input, so this
// is the normalization step before conversion.
func packRows(f RawFrame) ([]byte, error) {
	rowBytes := f.Width * f.Format.BytesPerPixel()
	if f.RowPitch < rowBytes {
		return nil, fmt.Errorf("encoder: row pitch %d below row size %d", f.RowPitch, rowBytes)
	}
	if need := PayloadSize(f.Format, f.RowPitch, f.Height); len(f.Data) < need {
		return nil, fmt.Errorf("encoder: frame payload %d below expected %d", len(f.Data), need)
	}
	rows := f.Height
	if f.Format.SemiPlanar() {
		// The chroma plane sits right after the luma plane at the same
		// pitch and half the height.
		rows += f.Height / 2
	}
	if f.RowPitch == rowBytes {
		return f.Data[:rows*rowBytes], nil
	}
	packed := make([]byte, rows*rowBytes)
	for y := 0; y < rows; y++ {
		copy(packed[y*rowBytes:(y+1)*rowBytes], f.Data[y*f.RowPitch:y*f.RowPitch+rowBytes])
	}
	return packed, nil
}
