// lumen-encoder is the out-of-process video encoder. The driver launches it
// with positional width, height and codec arguments, attaches to the shared
// transport this process creates, and exchanges raw frames for compressed
// packets through it.
package main

import (
	"os"
	"strconv"
	"time"

	"github.com/kataras/golog"

	"Lumen/client/service/stream"
	"Lumen/client/service/stream/bridge"
	"Lumen/client/service/stream/encoder"
)

var logger = golog.Child("[lumen-encoder]")

func main() {
	if level := os.Getenv("LUMEN_LOG_LEVEL"); level != "" {
		golog.SetLevel(level)
	}

	width := argUint(1, 1920)
	height := argUint(2, 1080)
	codec := "h264"
	if len(os.Args) > 3 {
		codec = os.Args[3]
	}

	settings, err := stream.LoadSettings(os.Getenv("LUMEN_SETTINGS"))
	if err != nil {
		logger.Warnf("settings load failed, using defaults: %v", err)
	}
	settings.Codec = codec

	logger.Infof("starting %dx%d codec=%s bitrate=%d fps=%d", width, height, codec, settings.Bitrate, settings.FPS)

	server, err := bridge.NewServer(settings.Channel)
	if err != nil {
		logger.Fatalf("transport setup failed: %v", err)
	}
	defer server.Close()

	enc, err := encoder.NewLibav(encoder.Config{
		Codec:   codec,
		Width:   width,
		Height:  height,
		FPS:     settings.FPS,
		Bitrate: settings.Bitrate,
		TenBit:  settings.TenBit,
	})
	if err != nil {
		logger.Fatalf("encoder setup failed: %v", err)
	}
	defer enc.Close()

	if err := server.SignalReady(); err != nil {
		logger.Fatalf("ready signal failed: %v", err)
	}
	logger.Infof("ready, waiting for frames")

	for {
		frame, ok, err := server.WaitFrame(0)
		if err != nil {
			logger.Errorf("frame receive failed: %v", err)
			time.Sleep(10 * time.Millisecond)
			continue
		}
		if !ok {
			continue
		}
		if frame.Shutdown {
			logger.Infof("shutdown requested, exiting")
			return
		}
		packets, err := enc.Encode(encoder.RawFrame{
			Data:     frame.Data,
			Width:    int(frame.Width),
			Height:   int(frame.Height),
			RowPitch: int(frame.RowPitch),
			Format:   frame.Format,
		}, frame.TimestampNS, frame.InsertIDR)
		if err != nil {
			logger.Errorf("encode failed, dropping frame: %v", err)
			continue
		}
		for _, packet := range packets {
			if err := server.SendPacket(packet.Data, packet.TimestampNS, packet.IDR); err != nil {
				logger.Errorf("packet send failed: %v", err)
			}
		}
	}
}

func argUint(index, fallback int) int {
	if len(os.Args) > index {
		if v, err := strconv.Atoi(os.Args[index]); err == nil && v > 0 {
			return v
		}
	}
	return fallback
}
