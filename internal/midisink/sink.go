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

// Package midisink routes scheduler play callbacks to a MIDI output
// port, for driving hardware or external software synths instead of
// the built-in engine.
package midisink

import (
	"fmt"
	"log"
	"time"

	"gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/cyclerlabs/cycler-go/internal/sched"
)

const defaultGate = 0.2 // seconds between NoteOn and NoteOff

// SendFunc delivers one MIDI message to the output port.
type SendFunc func(msg midi.Message) error

// Sink converts play callbacks into timed NoteOn/NoteOff pairs. The
// scheduler dispatches events up to a lookahead early, so the sink
// holds each note until its absolute time arrives on the scheduling
// clock.
type Sink struct {
	clock sched.Clock
	send  SendFunc
}

// Ports lists the names of the available MIDI output ports.
func Ports() []string {
	outs := midi.GetOutPorts()
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names
}

// NewSink opens the MIDI output port at index and binds the sink to
// the scheduling clock.
func NewSink(clock sched.Clock, index int) (*Sink, error) {
	outs := midi.GetOutPorts()
	if index < 0 || index >= len(outs) {
		return nil, fmt.Errorf("invalid MIDI port index: %d", index)
	}
	send, err := midi.SendTo(outs[index])
	if err != nil {
		return nil, fmt.Errorf("failed to open MIDI port: %w", err)
	}
	return NewSinkWithSend(clock, SendFunc(send)), nil
}

// NewSinkWithSend binds the sink to an arbitrary send function (for
// testing).
func NewSinkWithSend(clock sched.Clock, send SendFunc) *Sink {
	return &Sink{clock: clock, send: send}
}

// Play implements the scheduler's play-callback contract. It returns
// immediately; a goroutine waits out the remaining time to `when`,
// sends NoteOn, and sends the matching NoteOff after the gate.
//
// Recognized payload keys: "note" (MIDI number, default 60),
// "velocity" (default 100), "channel" (default 0), "gate" (seconds
// NoteOn stays held, default 0.2).
func (s *Sink) Play(params map[string]any, when float64) {
	note := uint8Param(params, "note", 60)
	velocity := uint8Param(params, "velocity", 100)
	channel := uint8Param(params, "channel", 0)
	gate := defaultGate
	if g, ok := floatParam(params, "gate"); ok && g > 0 {
		gate = g
	}

	delay := when - s.clock.CurrentTime()
	go func() {
		if delay > 0 {
			time.Sleep(time.Duration(delay * float64(time.Second)))
		}
		if err := s.send(midi.NoteOn(channel, note, velocity)); err != nil {
			log.Printf("⚠️  MIDI NoteOn failed: %v", err)
			return
		}
		time.Sleep(time.Duration(gate * float64(time.Second)))
		if err := s.send(midi.NoteOff(channel, note)); err != nil {
			log.Printf("⚠️  MIDI NoteOff failed: %v", err)
		}
	}()
}

// Close releases the MIDI driver.
func (s *Sink) Close() {
	midi.CloseDriver()
}

func uint8Param(params map[string]any, key string, def uint8) uint8 {
	v, ok := floatParam(params, key)
	if !ok || v < 0 || v > 127 {
		return def
	}
	return uint8(v)
}

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
	case uint8:
		return float64(n), true
	}
	return 0, false
}
