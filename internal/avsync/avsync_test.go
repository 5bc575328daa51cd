package avsync

import "testing"

// withFakeClock temporarily overrides nowFunc, restoring it on return. Tests
// call the returned advance function to move fake time forward.
func withFakeClock(startUs int64) (advance func(deltaUs int64), restore func()) {
	cur := startUs
	prev := nowFunc
	nowFunc = func() int64 { return cur }
	return func(deltaUs int64) { cur += deltaUs }, func() { nowFunc = prev }
}

func TestGetMasterClockNoAnchor(t *testing.T) {
	t.Parallel()
	c := New()
	if got := c.GetMasterClock(); got != 0 {
		t.Errorf("GetMasterClock() with no anchor = %d, want 0", got)
	}
}

func TestUpdateAnchorExtrapolates(t *testing.T) {
	advance, restore := withFakeClock(1_000_000)
	defer restore()

	c := New()
	c.UpdateAnchor(0, 1_000_000, 10_000_000)

	advance(500_000)
	got := c.GetMasterClock()
	if got != 500_000 {
		t.Errorf("GetMasterClock() = %d, want 500000", got)
	}
}

func TestMasterClockNeverExceedsMax(t *testing.T) {
	advance, restore := withFakeClock(0)
	defer restore()

	c := New()
	c.UpdateAnchor(0, 0, 1_000_000)
	advance(5_000_000)

	got := c.GetMasterClock()
	if got != 1_000_000 {
		t.Errorf("GetMasterClock() = %d, want capped at 1000000", got)
	}
}

func TestMaxMediaTimeMonotonic(t *testing.T) {
	t.Parallel()
	c := New()
	c.UpdateAnchor(0, 0, 5_000_000)
	c.UpdateAnchor(1_000_000, 0, 2_000_000) // lower cap must not regress
	if got := c.GetMasterClock(); got > 5_000_000 {
		t.Errorf("cap regressed: GetMasterClock() = %d", got)
	}
}

func TestPauseFreezesClock(t *testing.T) {
	advance, restore := withFakeClock(0)
	defer restore()

	c := New()
	c.UpdateAnchor(2_000_000, 0, 10_000_000)
	advance(1_000_000)
	c.Pause()

	frozen := c.GetMasterClock()
	advance(3_000_000)
	if got := c.GetMasterClock(); got != frozen {
		t.Errorf("clock moved while paused: got %d, want frozen %d", got, frozen)
	}
}

func TestPauseIsIdempotent(t *testing.T) {
	advance, restore := withFakeClock(0)
	defer restore()

	c := New()
	c.UpdateAnchor(0, 0, 10_000_000)
	advance(1_000_000)
	c.Pause()
	frozen := c.GetMasterClock()
	c.Pause() // second Pause is a no-op
	if got := c.GetMasterClock(); got != frozen {
		t.Errorf("double Pause changed clock: got %d, want %d", got, frozen)
	}
}

func TestResumeRebasesWithoutJump(t *testing.T) {
	advance, restore := withFakeClock(0)
	defer restore()

	c := New()
	c.UpdateAnchor(0, 0, 10_000_000)
	advance(1_000_000)
	c.Pause()
	paused := c.GetMasterClock()

	advance(2_000_000) // time passes while paused; must not count
	c.Resume()
	if got := c.GetMasterClock(); got != paused {
		t.Errorf("Resume jumped: got %d, want %d", got, paused)
	}

	advance(500_000)
	if got := c.GetMasterClock(); got < paused {
		t.Errorf("clock did not advance after Resume: got %d, want >= %d", got, paused)
	}
}

func TestResumeIsIdempotent(t *testing.T) {
	t.Parallel()
	c := New()
	c.Resume() // resuming a never-paused controller is a no-op
	if c.IsPaused() {
		t.Error("IsPaused() = true after Resume on unpaused controller")
	}
}

func TestSetPlaybackRateClampsNegative(t *testing.T) {
	t.Parallel()
	c := New()
	c.SetPlaybackRate(-2)
	if got := c.GetPlaybackRate(); got != 0 {
		t.Errorf("GetPlaybackRate() = %v, want 0", got)
	}
}

func TestSetPlaybackRateRoundTrip(t *testing.T) {
	t.Parallel()
	c := New()
	c.SetPlaybackRate(1.5)
	if got := c.GetPlaybackRate(); got != 1.5 {
		t.Errorf("GetPlaybackRate() = %v, want 1.5", got)
	}
}

func TestReset(t *testing.T) {
	t.Parallel()
	c := New()
	c.UpdateAnchor(1_000_000, 0, 2_000_000)
	c.SetPlaybackRate(2)
	c.Pause()

	c.Reset()

	if c.HasAnchor() {
		t.Error("HasAnchor() = true after Reset")
	}
	if got := c.GetPlaybackRate(); got != 1.0 {
		t.Errorf("GetPlaybackRate() after Reset = %v, want 1.0", got)
	}
	if c.IsPaused() {
		t.Error("IsPaused() = true after Reset")
	}
}

// TestAudioMasterClockScenario exercises S1 from the testable-properties
// scenarios: an audio anchor advancing roughly in step with wall time. The
// cap is set well past the extrapolated time so it does not bind here;
// TestMasterClockNeverExceedsMax covers the cap.
func TestAudioMasterClockScenario(t *testing.T) {
	advance, restore := withFakeClock(0)
	defer restore()

	c := New()
	frameDurationUs := int64(23220)
	lastPTS := int64(0)
	for i := 0; i < 10; i++ {
		lastPTS = int64(i) * frameDurationUs
		c.UpdateAnchor(lastPTS, nowFunc(), lastPTS+10_000_000)
		advance(frameDurationUs)
	}

	advance(500_000)
	got := c.GetMasterClock()
	want := lastPTS + 500_000
	diff := got - want
	if diff < 0 {
		diff = -diff
	}
	if diff > frameDurationUs {
		t.Errorf("GetMasterClock() = %d, want ~%d (within %d)", got, want, frameDurationUs)
	}
}
