package stream

import (
	"sync"
	"time"
)

// pipelineMetrics tracks per-stream counters for diagnostics. Dropped
// frames are counted through recordError; the stream itself never stops on
// a drop.
type pipelineMetrics struct {
	sync.Mutex
	frames        uint64
	packets       uint64
	keyframes     uint64
	bytes         uint64
	encoderErrors uint64
	lastError     string
	startedAt     time.Time
}

type metricsSnapshot struct {
	frames        uint64
	packets       uint64
	keyframes     uint64
	bytes         uint64
	encoderErrors uint64
	lastError     string
	uptime        time.Duration
}

func (m *pipelineMetrics) recordFrame() {
	m.Lock()
	if m.startedAt.IsZero() {
		m.startedAt = time.Now()
	}
	m.frames++
	m.Unlock()
}

func (m *pipelineMetrics) recordPacket(size int, idr bool) {
	m.Lock()
	m.packets++
	m.bytes += uint64(size)
	if idr {
		m.keyframes++
	}
	m.Unlock()
}

func (m *pipelineMetrics) recordError(err error) {
	if err == nil {
		return
	}
	m.Lock()
	m.encoderErrors++
	m.lastError = err.Error()
	m.Unlock()
}

func (m *pipelineMetrics) snapshot() metricsSnapshot {
	m.Lock()
	defer m.Unlock()
	snap := metricsSnapshot{
		frames:        m.frames,
		packets:       m.packets,
		keyframes:     m.keyframes,
		bytes:         m.bytes,
		encoderErrors: m.encoderErrors,
		lastError:     m.lastError,
	}
	if !m.startedAt.IsZero() {
		snap.uptime = time.Since(m.startedAt)
	}
	return snap
}
