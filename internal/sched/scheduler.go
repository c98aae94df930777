/*
 * This file is part of Cycler (https://github.com/cyclerlabs/cycler).
 * Copyright (C) 2026 Cycler Labs
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU Affero General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
 * GNU Affero General Public License for more details.
 *
 * You should have received a copy of the GNU Affero General Public License
 * along with this program. If not, see <https://www.gnu.org/licenses/>.
 */

// Package sched implements the pattern-playback lookahead scheduler.
//
// The scheduler converts tempo-relative pattern content (events at
// fractional offsets within a musical cycle) into precisely timed play
// calls, using an external hardware-driven clock as the ground truth
// for time. Patterns can be added, removed, or hot-swapped while it
// runs without duplicate or missed dispatch.
package sched

import (
	"log"
	"math"
	"sync"
	"time"
)

// Clock supplies the scheduler's notion of time in fractional seconds.
// It must be monotonically non-decreasing and never reset; the epoch is
// arbitrary. In production this is the audio hardware's own clock so
// scheduled times line up with what is actually rendered.
type Clock interface {
	CurrentTime() float64
}

// PlayFunc receives one call per dispatched event, at or before the
// moment the sound must start. It must return promptly; the scheduler
// does not wait on it and a panic from it is contained.
type PlayFunc func(params map[string]any, when float64)

// Defaults used when the corresponding Options field is zero.
const (
	DefaultLookahead        = 0.1 // seconds
	DefaultScheduleInterval = 25 * time.Millisecond
	DefaultCPS              = 0.5

	beatsPerCycle = 4
)

// Options configures a Scheduler. Zero fields select the defaults
// above. Lookahead and ScheduleInterval are fixed for the life of the
// instance; CPS can be changed at any time with SetCPS.
type Options struct {
	// Lookahead is the forward buffer, in seconds, within which events
	// are pre-computed and dispatched. It must stay comfortably larger
	// than the worst expected gap between ticks: the tick processes a
	// range of cycles precisely so a missed tick is absorbed, but only
	// as far as the lookahead reaches.
	Lookahead float64

	// ScheduleInterval is the wall-clock period between ticks.
	ScheduleInterval time.Duration

	// CPS is the initial tempo in cycles per second.
	CPS float64
}

// Scheduler is the pattern-playback state machine. Construct with New;
// the zero value is not usable.
//
// All public methods are safe for concurrent use: a mutex guards the
// registry and run state, and the tick goroutine snapshots both under
// the lock but invokes generators and callbacks outside it, so a
// callback may call back into the scheduler without deadlocking.
type Scheduler struct {
	mu sync.Mutex

	clock Clock
	play  PlayFunc

	lookahead float64
	interval  time.Duration

	cps       float64
	running   bool
	startTime float64

	// lastCycle is the watermark: the highest cycle index already
	// dispatched. Monotonically non-decreasing while running; reset to
	// -1 by every Start.
	lastCycle int

	patterns map[string]PatternContent
	order    []string // registration order; overwrite keeps the slot

	cycleCbs registry[CycleFunc]
	eventCbs registry[EventFunc]
	startCbs registry[func()]
	stopCbs  registry[func()]

	stopCh chan struct{}
}

// New creates a stopped scheduler bound to a clock source and a play
// callback. Both are required; a nil value is a ValidationError, as is
// a negative option.
func New(clock Clock, play PlayFunc, opts Options) (*Scheduler, error) {
	if clock == nil {
		return nil, validationErrorf("clock source is required")
	}
	if play == nil {
		return nil, validationErrorf("play callback is required")
	}
	lookahead := opts.Lookahead
	if lookahead == 0 {
		lookahead = DefaultLookahead
	}
	if lookahead < 0 {
		return nil, validationErrorf("lookahead must be positive, got %v", opts.Lookahead)
	}
	interval := opts.ScheduleInterval
	if interval == 0 {
		interval = DefaultScheduleInterval
	}
	if interval < 0 {
		return nil, validationErrorf("schedule interval must be positive, got %v", opts.ScheduleInterval)
	}
	cps := opts.CPS
	if cps == 0 {
		cps = DefaultCPS
	}
	if cps < 0 {
		return nil, validationErrorf("cps must be positive, got %v", opts.CPS)
	}
	return &Scheduler{
		clock:     clock,
		play:      play,
		lookahead: lookahead,
		interval:  interval,
		cps:       cps,
		lastCycle: -1,
		patterns:  make(map[string]PatternContent),
	}, nil
}

// CPS returns the current tempo in cycles per second.
func (s *Scheduler) CPS() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cps
}

// SetCPS changes the tempo. Non-positive values are rejected with a
// ValidationError and leave the tempo unchanged.
//
// Changing tempo mid-run does not move the cycle anchor or rewind the
// watermark: cycle arithmetic re-derives from the new cps against the
// original start time, so the instantaneous cycle position may jump.
// Only the rate changes; history does not rewrite.
func (s *Scheduler) SetCPS(cps float64) error {
	if cps <= 0 {
		return validationErrorf("cps must be positive, got %v", cps)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cps = cps
	return nil
}

// BPM returns the tempo as beats per minute under the fixed
// 4-beats-per-cycle convention.
func (s *Scheduler) BPM() float64 {
	return s.CPS() * beatsPerCycle * 60
}

// SetBPM is a convenience wrapper over SetCPS; it holds no state of
// its own.
func (s *Scheduler) SetBPM(bpm float64) error {
	return s.SetCPS(bpm / (beatsPerCycle * 60))
}

// CurrentCycle returns the continuous fractional cycle position. It
// reads exactly 0 whenever the scheduler is not running and grows
// without bound while it is.
func (s *Scheduler) CurrentCycle() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return 0
	}
	return (s.clock.CurrentTime() - s.startTime) * s.cps
}

// CurrentCycleNumber returns the integer cycle the scheduler is
// currently inside, or 0 when stopped.
func (s *Scheduler) CurrentCycleNumber() int {
	return int(math.Floor(s.CurrentCycle()))
}

// SchedulePattern registers content under id, silently replacing any
// existing registration with the same id. Replacement is the hot-swap
// mechanism: the new content is picked up by the next tick that
// processes a not-yet-scheduled cycle, and the old content never fires
// again for later cycles.
func (s *Scheduler) SchedulePattern(id string, content PatternContent) error {
	if id == "" {
		return validationErrorf("pattern id is required")
	}
	switch c := content.(type) {
	case EventList:
	case Generator:
		if c == nil {
			return validationErrorf("pattern %q: generator must not be nil", id)
		}
	case nil:
		return validationErrorf("pattern %q: content must be an EventList or a Generator", id)
	default:
		return validationErrorf("pattern %q: unsupported content type %T", id, content)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.patterns[id]; !exists {
		s.order = append(s.order, id)
	}
	s.patterns[id] = content
	return nil
}

// UpdatePattern replaces a pattern's content. It is a pure alias for
// SchedulePattern, kept for call sites that want to express intent.
func (s *Scheduler) UpdatePattern(id string, content PatternContent) error {
	return s.SchedulePattern(id, content)
}

// StopPattern removes the pattern and reports whether anything was
// removed. A missing id is not an error.
func (s *Scheduler) StopPattern(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.patterns[id]; !exists {
		return false
	}
	delete(s.patterns, id)
	for i, other := range s.order {
		if other == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Hush removes every registered pattern in one step. Running state and
// tempo are untouched.
func (s *Scheduler) Hush() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.patterns = make(map[string]PatternContent)
	s.order = nil
}

// HasPattern reports whether id is currently registered.
func (s *Scheduler) HasPattern(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.patterns[id]
	return exists
}

// PatternIDs returns the registered ids in registration order.
func (s *Scheduler) PatternIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Pattern returns the registration for id, if present.
func (s *Scheduler) Pattern(id string) (Pattern, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	content, exists := s.patterns[id]
	if !exists {
		return Pattern{}, false
	}
	return Pattern{ID: id, Content: content}, true
}

// Patterns returns all registrations in registration order.
func (s *Scheduler) Patterns() []Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotPatternsLocked()
}

func (s *Scheduler) snapshotPatternsLocked() []Pattern {
	out := make([]Pattern, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, Pattern{ID: id, Content: s.patterns[id]})
	}
	return out
}

// OnCycle registers fn to fire once per scheduled cycle, before that
// cycle's events are dispatched. The returned func unsubscribes.
// Callbacks fire from a snapshot, so an unsubscribe made inside a
// callback applies from the next round.
func (s *Scheduler) OnCycle(fn CycleFunc) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.cycleCbs.add(fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.cycleCbs.remove(id)
	}
}

// OnEvent registers fn to fire for every dispatched event, just before
// the play callback. The returned func unsubscribes.
func (s *Scheduler) OnEvent(fn EventFunc) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.eventCbs.add(fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.eventCbs.remove(id)
	}
}

// OnStart registers fn to fire on every transition to running.
func (s *Scheduler) OnStart(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.startCbs.add(fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.startCbs.remove(id)
	}
}

// OnStop registers fn to fire on every transition to stopped.
func (s *Scheduler) OnStop(fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.stopCbs.add(fn)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.stopCbs.remove(id)
	}
}

// IsRunning reports whether the scheduler is between Start and Stop.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Start anchors cycle 0 at the clock's current reading, resets the
// watermark, fires on-start callbacks, ticks once immediately (so an
// event at cycle position 0 is not delayed by a full interval), and
// begins periodic ticking. No-op when already running.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.startTime = s.clock.CurrentTime()
	s.lastCycle = -1
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	startCbs := s.startCbs.snapshot()
	s.mu.Unlock()

	for _, fn := range startCbs {
		invoke("start callback", fn)
	}
	s.tick()
	go s.run(stopCh)
}

// Stop halts future ticks and fires on-stop callbacks. Patterns and
// tempo are left in place; already-dispatched events cannot be
// recalled. No-op when already stopped.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.stopCh = nil
	stopCbs := s.stopCbs.snapshot()
	s.mu.Unlock()

	for _, fn := range stopCbs {
		invoke("stop callback", fn)
	}
}

// Dispose stops the scheduler, clears all patterns, and clears all
// four callback registries. The clock and play bindings survive, but
// the instance is meant to be discarded afterwards.
func (s *Scheduler) Dispose() {
	s.Stop()
	s.Hush()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycleCbs.clear()
	s.eventCbs.clear()
	s.startCbs.clear()
	s.stopCbs.clear()
}

// run drives periodic ticking until stopCh closes. Ticks are issued
// from this single goroutine only, so they never overlap.
func (s *Scheduler) run(stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

// tick is the lookahead pass: it computes the integer cycle range
// between "now" (bounded below by the watermark) and "now + lookahead"
// and dispatches every registered pattern's events for those cycles in
// strictly increasing cycle order.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	now := s.clock.CurrentTime()
	cps := s.cps
	startTime := s.startTime
	watermark := s.lastCycle
	patterns := s.snapshotPatternsLocked()
	cycleCbs := s.cycleCbs.snapshot()
	eventCbs := s.eventCbs.snapshot()
	s.mu.Unlock()

	nowPos := (now - startTime) * cps
	endPos := (now + s.lookahead - startTime) * cps

	// The max() guards against re-processing a cycle already scheduled
	// on a prior tick, even if a tempo change shrank the apparent
	// "now" position.
	first := int(math.Floor(math.Max(nowPos, float64(watermark+1))))
	last := int(math.Floor(endPos))

	for c := first; c <= last; c++ {
		if c <= watermark {
			continue
		}
		for _, fn := range cycleCbs {
			invokeCycle(fn, c)
		}

		cycleStart := startTime + float64(c)/cps
		cycleDur := 1.0 / cps
		for _, p := range patterns {
			events, err := resolveEvents(p.Content, c)
			if err != nil {
				log.Printf("⚠️  pattern %q: cycle %d skipped: %v", p.ID, c, err)
				continue
			}
			for _, ev := range events {
				when := cycleStart + ev.Start*cycleDur
				if when < now {
					// Already unplayable; dropped silently.
					continue
				}
				for _, fn := range eventCbs {
					invokeEvent(fn, ev, when, c)
				}
				s.dispatch(ev.Params, when)
			}
		}

		// Advance once per cycle, after all patterns have contributed.
		s.mu.Lock()
		if c > s.lastCycle {
			s.lastCycle = c
		}
		s.mu.Unlock()
	}
}

// dispatch hands one event to the play callback, containing any panic
// so one bad dispatch never stops the ones behind it.
func (s *Scheduler) dispatch(params map[string]any, when float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️  play callback panicked: %v", r)
		}
	}()
	s.play(params, when)
}

func invoke(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️  %s panicked: %v", what, r)
		}
	}()
	fn()
}

func invokeCycle(fn CycleFunc, cycle int) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️  cycle callback panicked: %v", r)
		}
	}()
	fn(cycle)
}

func invokeEvent(fn EventFunc, ev Event, when float64, cycle int) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("⚠️  event callback panicked: %v", r)
		}
	}()
	fn(ev, when, cycle)
}
