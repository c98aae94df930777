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

// Package synth is a small polyphonic voice engine that consumes the
// scheduler's play callbacks. Triggers are queued with an absolute
// start time and fired sample-accurately as the render position
// reaches them, so the render clock and the scheduling clock are one
// and the same.
package synth

import (
	"math"
	"sync"
)

// Waveform selects the oscillator shape for a voice.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveTriangle
	WaveSaw
	WaveSquare
)

const (
	maxVoices     = 32
	defaultFreq   = 440.0
	defaultGain   = 0.8
	defaultDecay  = 0.25 // seconds
	minDecay      = 0.01
	attackSeconds = 0.005
)

// trigger is a pending note start, timed in the engine's own clock
// domain (seconds of rendered audio).
type trigger struct {
	when  float64
	freq  float64
	gain  float64
	decay float64
	wave  Waveform
}

type voice struct {
	wave        Waveform
	phase       float64
	phaseStep   float64
	gain        float64
	age         int
	attack      int
	decaySample int
}

// Engine renders queued triggers into interleaved float32 buffers.
// Safe for concurrent use: Trigger is called from the scheduler's tick
// goroutine while Render runs on the audio goroutine.
type Engine struct {
	mu         sync.Mutex
	sampleRate float64
	channels   int
	frames     int64
	pending    []trigger
	voices     []voice
}

// NewEngine creates an engine for the given output format.
func NewEngine(sampleRate float64, channels int) *Engine {
	if channels < 1 {
		channels = 1
	}
	return &Engine{
		sampleRate: sampleRate,
		channels:   channels,
	}
}

// CurrentTime returns seconds of audio rendered so far. This is the
// scheduler's clock source: it advances only as frames are actually
// produced, so it can neither drift against the output nor free-wheel
// past it.
func (e *Engine) CurrentTime() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return float64(e.frames) / e.sampleRate
}

// Trigger queues a note start at the absolute time `when`. It is the
// engine's half of the scheduler's play-callback contract: it returns
// immediately and never fails, ignoring payload keys it does not
// understand.
//
// Recognized keys: "freq" (Hz), "note" (MIDI number, used when freq is
// absent), "gain", "decay" (seconds), "wave" ("sine", "triangle",
// "saw", "square").
func (e *Engine) Trigger(params map[string]any, when float64) {
	tr := trigger{
		when:  when,
		freq:  defaultFreq,
		gain:  defaultGain,
		decay: defaultDecay,
	}
	if f, ok := floatParam(params, "freq"); ok && f > 0 {
		tr.freq = f
	} else if n, ok := floatParam(params, "note"); ok {
		tr.freq = midiToHz(n)
	}
	if g, ok := floatParam(params, "gain"); ok && g >= 0 {
		tr.gain = math.Min(g, 1)
	}
	if d, ok := floatParam(params, "decay"); ok && d > 0 {
		tr.decay = math.Max(d, minDecay)
	}
	if w, ok := params["wave"].(string); ok {
		tr.wave = waveformByName(w)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	// Keep pending sorted by start time; new triggers usually arrive
	// in order, so insertion from the tail is cheap.
	e.pending = append(e.pending, tr)
	for i := len(e.pending) - 1; i > 0 && e.pending[i-1].when > e.pending[i].when; i-- {
		e.pending[i-1], e.pending[i] = e.pending[i], e.pending[i-1]
	}
}

// Render fills out (interleaved, e.channels wide) and advances the
// engine clock by the rendered frame count.
func (e *Engine) Render(out []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()

	frames := len(out) / e.channels
	for f := 0; f < frames; f++ {
		now := float64(e.frames) / e.sampleRate
		for len(e.pending) > 0 && e.pending[0].when <= now {
			e.startVoiceLocked(e.pending[0])
			e.pending = e.pending[1:]
		}
		sample := float32(e.mixLocked())
		for ch := 0; ch < e.channels; ch++ {
			out[f*e.channels+ch] = sample
		}
		e.frames++
	}
}

// PendingCount reports queued triggers that have not started yet.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// ActiveVoices reports voices still sounding.
func (e *Engine) ActiveVoices() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.voices)
}

func (e *Engine) startVoiceLocked(tr trigger) {
	if len(e.voices) >= maxVoices {
		// Steal the oldest voice.
		copy(e.voices, e.voices[1:])
		e.voices = e.voices[:maxVoices-1]
	}
	attack := int(attackSeconds * e.sampleRate)
	if attack < 1 {
		attack = 1
	}
	decaySamples := int(tr.decay * e.sampleRate)
	if decaySamples < 1 {
		decaySamples = 1
	}
	e.voices = append(e.voices, voice{
		wave:        tr.wave,
		phaseStep:   2 * math.Pi * tr.freq / e.sampleRate,
		gain:        tr.gain,
		attack:      attack,
		decaySample: decaySamples,
	})
}

func (e *Engine) mixLocked() float64 {
	if len(e.voices) == 0 {
		return 0
	}
	sum := 0.0
	write := 0
	for i := range e.voices {
		v := e.voices[i]
		if v.age >= v.decaySample {
			continue
		}
		sum += v.gain * envelope(v.age, v.attack, v.decaySample) * waveSample(v.wave, v.phase)
		v.phase += v.phaseStep
		if v.phase > math.Pi {
			v.phase -= 2 * math.Pi
		}
		v.age++
		e.voices[write] = v
		write++
	}
	e.voices = e.voices[:write]
	return sum
}

// envelope is an exponential attack/decay shape; age and decay are in
// samples.
func envelope(age, attack, decay int) float64 {
	const floor = 0.0001
	const peak = 0.25

	if age < attack {
		t := float64(age) / float64(attack)
		return floor * math.Pow(peak/floor, t)
	}
	if decay <= attack {
		return floor
	}
	t := float64(age-attack) / float64(decay-attack)
	return peak * math.Pow(floor/peak, t)
}

func waveSample(w Waveform, phase float64) float64 {
	switch w {
	case WaveTriangle:
		return (2 / math.Pi) * math.Asin(math.Sin(phase))
	case WaveSaw:
		return phase / math.Pi
	case WaveSquare:
		if math.Sin(phase) >= 0 {
			return 1
		}
		return -1
	default:
		return math.Sin(phase)
	}
}

func waveformByName(name string) Waveform {
	switch name {
	case "triangle":
		return WaveTriangle
	case "saw":
		return WaveSaw
	case "square":
		return WaveSquare
	default:
		return WaveSine
	}
}

func midiToHz(note float64) float64 {
	return 440 * math.Pow(2, (note-69)/12)
}

// floatParam reads a numeric payload value regardless of the concrete
// Go number type it arrived as (JSON decoding yields float64, direct
// callers often pass int).
func floatParam(params map[string]any, key string) (float64, bool) {
	v, ok := params[key]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}
