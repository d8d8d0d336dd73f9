package encoder

import (
	"bytes"
	"testing"

	"Lumen/client/service/stream/bridge"
)

func TestPayloadSize(t *testing.T) {
	cases := []struct {
		format   bridge.PixelFormat
		pitch    int
		height   int
		expected int
	}{
		{bridge.PixelFormatRGBA, 640 * 4, 480, 640 * 4 * 480},
		{bridge.PixelFormatNV12, 640, 480, 640*480 + 640*240},
		{bridge.PixelFormatP010, 1280, 480, 1280*480 + 1280*240},
	}
	for _, c := range cases {
		if got := PayloadSize(c.format, c.pitch, c.height); got != c.expected {
			t.Fatalf("PayloadSize(%s, %d, %d) = %d, want %d", c.format, c.pitch, c.height, got, c.expected)
		}
	}
}

func TestPackRowsTightPitchIsZeroCopy(t *testing.T) {
	frame := RawFrame{
		Data: make([]byte, 4*2*4), Width: 4, Height: 2, RowPitch: 16,
		Format: bridge.PixelFormatRGBA,
	}
	packed, err := packRows(frame)
	if err != nil {
		t.Fatalf("packRows: %v", err)
	}
	if &packed[0] != &frame.Data[0] {
		t.Fatalf("tight pitch should return the source buffer")
	}
	if len(packed) != 32 {
		t.Fatalf("packed length %d, want 32", len(packed))
	}
}

func TestPackRowsDropsPadding(t *testing.T) {
	// 2x2 RGBA with 4 bytes of per-row padding: pitch 12, row 8.
	data := []byte{
		1, 2, 3, 4, 5, 6, 7, 8, 0xFF, 0xFF, 0xFF, 0xFF,
		9, 10, 11, 12, 13, 14, 15, 16, 0xFF, 0xFF, 0xFF, 0xFF,
	}
	frame := RawFrame{Data: data, Width: 2, Height: 2, RowPitch: 12, Format: bridge.PixelFormatRGBA}
	packed, err := packRows(frame)
	if err != nil {
		t.Fatalf("packRows: %v", err)
	}
	want := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	if !bytes.Equal(packed, want) {
		t.Fatalf("packed = %v, want %v", packed, want)
	}
}

func TestPackRowsCopiesChromaPlane(t *testing.T) {
	// 2x2 NV12 with pitch 4 (2 bytes padding per row): 2 luma rows plus
	// 1 interleaved chroma row.
	data := []byte{
		10, 11, 0, 0,
		12, 13, 0, 0,
		20, 21, 0, 0,
	}
	frame := RawFrame{Data: data, Width: 2, Height: 2, RowPitch: 4, Format: bridge.PixelFormatNV12}
	packed, err := packRows(frame)
	if err != nil {
		t.Fatalf("packRows: %v", err)
	}
	want := []byte{10, 11, 12, 13, 20, 21}
	if !bytes.Equal(packed, want) {
		t.Fatalf("packed = %v, want %v", packed, want)
	}
}

func TestPackRowsRejectsBadGeometry(t *testing.T) {
	short := RawFrame{Data: make([]byte, 8), Width: 2, Height: 2, RowPitch: 8, Format: bridge.PixelFormatRGBA}
	if _, err := packRows(short); err == nil {
		t.Fatalf("expected payload-too-short error")
	}
	narrow := RawFrame{Data: make([]byte, 64), Width: 4, Height: 2, RowPitch: 8, Format: bridge.PixelFormatRGBA}
	if _, err := packRows(narrow); err == nil {
		t.Fatalf("expected pitch-below-row error")
	}
}

func TestRcBufferSize(t *testing.T) {
	// One frame interval of bits plus headroom.
	if got := rcBufferSize(30_000_000, 60); got != int(float64(30_000_000)/60*1.1) {
		t.Fatalf("rcBufferSize = %d", got)
	}
}
