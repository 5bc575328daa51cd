// Package avsync implements the master media clock every render reads
// timing decisions from. It is lock-protected and threadless: no
// goroutine of its own, just short, non-blocking methods behind a mutex.
package avsync

import (
	"sync"
	"time"
)

// ClockType selects which component owns the anchor: the audio render (the
// common case, since audio hardware paces playback) or the system clock
// (used when there is no audio track).
type ClockType int

const (
	ClockAudio ClockType = iota
	ClockSystem
)

// nowFunc is overridden in tests to control elapsed time deterministically.
var nowFunc = func() int64 { return time.Now().UnixMicro() }

// Controller maintains the single anchor the master clock extrapolates
// from. All methods take one mutex and return quickly; none of them
// block.
type Controller struct {
	mu sync.Mutex

	anchorMediaPTSUs int64
	anchorSysTimeUs  int64
	maxMediaTimeUs   int64
	hasAnchor        bool

	rate      float64
	clockType ClockType

	paused          bool
	pausedMediaTime int64
}

// New creates a Controller with rate 1.0 and no anchor.
func New() *Controller {
	return &Controller{rate: 1.0}
}

// UpdateAnchor sets the anchor. maxMediaTimeUs is stored as the max of the
// current cap, the provided cap, and mediaPTSUs itself, so the cap never
// drops below the media time it is meant to bound.
func (c *Controller) UpdateAnchor(mediaPTSUs, sysTimeUs, maxMediaTimeUs int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if maxMediaTimeUs < mediaPTSUs {
		maxMediaTimeUs = mediaPTSUs
	}
	if maxMediaTimeUs < c.maxMediaTimeUs {
		maxMediaTimeUs = c.maxMediaTimeUs
	}
	c.maxMediaTimeUs = maxMediaTimeUs

	c.anchorMediaPTSUs = mediaPTSUs
	c.anchorSysTimeUs = sysTimeUs
	c.hasAnchor = true

	if c.paused {
		c.pausedMediaTime = c.extrapolateLocked(sysTimeUs)
	}
}

// GetMasterClock returns the current extrapolated media time, capped at
// MaxMediaTimeUs and frozen while paused. Returns 0 if no anchor exists.
func (c *Controller) GetMasterClock() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.hasAnchor {
		return 0
	}
	if c.paused {
		return c.pausedMediaTime
	}
	return c.extrapolateLocked(nowFunc())
}

// extrapolateLocked computes raw = anchorMedia + elapsed*rate, capped at
// maxMediaTimeUs. Caller must hold mu.
func (c *Controller) extrapolateLocked(nowUs int64) int64 {
	elapsed := nowUs - c.anchorSysTimeUs
	if elapsed < 0 {
		elapsed = 0
	}
	raw := c.anchorMediaPTSUs + int64(float64(elapsed)*c.rate)
	if raw > c.maxMediaTimeUs {
		return c.maxMediaTimeUs
	}
	return raw
}

// SetPlaybackRate clamps rate to >= 0 and stores it for extrapolation.
func (c *Controller) SetPlaybackRate(rate float64) {
	if rate < 0 {
		rate = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = rate
}

// GetPlaybackRate returns the stored rate.
func (c *Controller) GetPlaybackRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate
}

// SetClockType chooses which component owns the anchor.
func (c *Controller) SetClockType(t ClockType) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clockType = t
}

// GetClockType returns the current clock type.
func (c *Controller) GetClockType() ClockType {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clockType
}

// Pause freezes extrapolation at the current media time. A second Pause
// while already paused is a no-op.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.paused {
		return
	}
	if c.hasAnchor {
		c.pausedMediaTime = c.extrapolateLocked(nowFunc())
	}
	c.paused = true
}

// Resume unfreezes extrapolation, rebasing the anchor to
// (frozen_media, now) so the clock does not jump forward on resume. A
// second Resume while already running is a no-op.
func (c *Controller) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused {
		return
	}
	c.paused = false
	if c.hasAnchor {
		c.anchorMediaPTSUs = c.pausedMediaTime
		c.anchorSysTimeUs = nowFunc()
	}
}

// IsPaused reports whether the clock is currently frozen.
func (c *Controller) IsPaused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Reset drops the anchor and playback settings, returning the controller
// to its post-New state.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.anchorMediaPTSUs = 0
	c.anchorSysTimeUs = 0
	c.maxMediaTimeUs = 0
	c.hasAnchor = false
	c.rate = 1.0
	c.paused = false
	c.pausedMediaTime = 0
}

// HasAnchor reports whether UpdateAnchor has been called since the last
// Reset (or construction).
func (c *Controller) HasAnchor() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hasAnchor
}
