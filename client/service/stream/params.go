package stream

import "sync"

// Params is one rate-control decision: target bitrate and frame rate, plus
// a flag marking whether anything changed since the last consumption.
type Params struct {
	BitrateBPS int64
	FPS        int
	Updated    bool
}

// ParamSource supplies rate-control parameters. The pipeline consumes it
// once per frame; Updated must self-clear on consumption so a change is
// applied exactly once.
type ParamSource interface {
	Consume() Params
}

// RateSetting is a thread-safe ParamSource fed by an external rate
// controller through Update.
type RateSetting struct {
	mu      sync.Mutex
	current Params
}

// NewRateSetting seeds the source with the stream's initial targets.
func NewRateSetting(bitrate int64, fps int) *RateSetting {
	return &RateSetting{current: Params{BitrateBPS: bitrate, FPS: fps}}
}

// Update records new targets to be applied on the next frame.
func (r *RateSetting) Update(bitrate int64, fps int) {
	r.mu.Lock()
	r.current = Params{BitrateBPS: bitrate, FPS: fps, Updated: true}
	r.mu.Unlock()
}

// Consume returns the current targets and clears the updated flag.
func (r *RateSetting) Consume() Params {
	r.mu.Lock()
	params := r.current
	r.current.Updated = false
	r.mu.Unlock()
	return params
}
