package stream

import (
	"fmt"
	"sync"
)

// Manager owns the named streams of one process. Each stream is a pipeline
// bound to a sink; opening a stream under an existing name replaces the old
// one.
type Manager struct {
	mu       sync.Mutex
	settings Settings
	streams  map[string]*Pipeline
}

// NewManager builds a manager applying the given settings to every stream
// it opens.
func NewManager(settings Settings) *Manager {
	return &Manager{
		settings: settings,
		streams:  make(map[string]*Pipeline),
	}
}

// Open creates and initializes a pipeline for the stream. An existing
// pipeline under the same id is shut down first.
func (m *Manager) Open(id string, width, height int, sink PacketSink, params ParamSource) (*Pipeline, error) {
	if m == nil {
		return nil, fmt.Errorf("stream: manager unavailable")
	}
	if id == "" {
		return nil, fmt.Errorf("stream: missing stream id")
	}
	pipeline := NewPipeline(width, height, m.settings, sink, params)
	if err := pipeline.Initialize(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	if existing, ok := m.streams[id]; ok && existing != nil {
		existing.Shutdown()
	}
	m.streams[id] = pipeline
	m.mu.Unlock()
	logger.Infof("stream opened id=%s %dx%d path=%s", id, width, height, pipeline.State())
	return pipeline, nil
}

// Lookup returns the pipeline for the stream, or nil.
func (m *Manager) Lookup(id string) *Pipeline {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streams[id]
}

// Close shuts down and removes one stream.
func (m *Manager) Close(id string) {
	if m == nil {
		return
	}
	m.mu.Lock()
	pipeline := m.streams[id]
	delete(m.streams, id)
	m.mu.Unlock()
	if pipeline != nil {
		pipeline.Shutdown()
		logger.Infof("stream closed id=%s", id)
	}
}

// CloseAll shuts down every stream.
func (m *Manager) CloseAll() {
	if m == nil {
		return
	}
	m.mu.Lock()
	pipelines := make([]*Pipeline, 0, len(m.streams))
	for id, pipeline := range m.streams {
		if pipeline != nil {
			pipelines = append(pipelines, pipeline)
		}
		delete(m.streams, id)
	}
	m.mu.Unlock()
	for _, pipeline := range pipelines {
		pipeline.Shutdown()
	}
}

// Describe reports diagnostic counters for one stream.
func (m *Manager) Describe(id string) map[string]any {
	pipeline := m.Lookup(id)
	if pipeline == nil {
		return nil
	}
	snap := pipeline.metrics.snapshot()
	return map[string]any{
		"state":         pipeline.State().String(),
		"frames":        snap.frames,
		"packets":       snap.packets,
		"keyframes":     snap.keyframes,
		"bytes":         snap.bytes,
		"encoderErrors": snap.encoderErrors,
		"lastError":     snap.lastError,
		"uptimeMs":      snap.uptime.Milliseconds(),
	}
}
