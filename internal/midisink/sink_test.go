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

package midisink

import (
	"sync"
	"testing"
	"time"

	"gitlab.com/gomidi/midi/v2"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClock struct{ now float64 }

func (c *stubClock) CurrentTime() float64 { return c.now }

// messageRecorder captures sent MIDI messages with receive times.
type messageRecorder struct {
	mu       sync.Mutex
	messages []midi.Message
	at       []time.Time
}

func (r *messageRecorder) send(msg midi.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	r.at = append(r.at, time.Now())
	return nil
}

func (r *messageRecorder) waitFor(t *testing.T, n int) []midi.Message {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		count := len(r.messages)
		r.mu.Unlock()
		if count >= n {
			break
		}
		time.Sleep(time.Millisecond)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	require.GreaterOrEqual(t, len(r.messages), n, "expected at least %d MIDI messages", n)
	out := make([]midi.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

func TestPlaySendsNoteOnThenNoteOff(t *testing.T) {
	rec := &messageRecorder{}
	sink := NewSinkWithSend(&stubClock{}, rec.send)

	sink.Play(map[string]any{"note": 64, "velocity": 90, "channel": 2, "gate": 0.01}, 0)

	msgs := rec.waitFor(t, 2)
	var ch, key, vel uint8
	require.True(t, msgs[0].GetNoteOn(&ch, &key, &vel), "first message is NoteOn")
	assert.Equal(t, uint8(2), ch)
	assert.Equal(t, uint8(64), key)
	assert.Equal(t, uint8(90), vel)

	require.True(t, msgs[1].GetNoteOff(&ch, &key, &vel), "second message is NoteOff")
	assert.Equal(t, uint8(2), ch)
	assert.Equal(t, uint8(64), key)
}

func TestPlayDefaults(t *testing.T) {
	rec := &messageRecorder{}
	sink := NewSinkWithSend(&stubClock{}, rec.send)

	sink.Play(map[string]any{"gate": 0.01}, 0)

	msgs := rec.waitFor(t, 1)
	var ch, key, vel uint8
	require.True(t, msgs[0].GetNoteOn(&ch, &key, &vel))
	assert.Equal(t, uint8(0), ch)
	assert.Equal(t, uint8(60), key, "default note is middle C")
	assert.Equal(t, uint8(100), vel)
}

func TestPlayWaitsForAbsoluteTime(t *testing.T) {
	rec := &messageRecorder{}
	clock := &stubClock{now: 1.0}
	sink := NewSinkWithSend(clock, rec.send)

	// Event 60ms ahead of the clock: NoteOn must not be immediate.
	before := time.Now()
	sink.Play(map[string]any{"gate": 0.01}, 1.06)

	rec.waitFor(t, 1)
	rec.mu.Lock()
	elapsed := rec.at[0].Sub(before)
	rec.mu.Unlock()
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond, "NoteOn held back until the event time")
}

func TestPlayClampsBadParams(t *testing.T) {
	rec := &messageRecorder{}
	sink := NewSinkWithSend(&stubClock{}, rec.send)

	// Out-of-range note falls back to the default rather than wrapping.
	sink.Play(map[string]any{"note": 400, "velocity": -3, "gate": 0.01}, 0)

	msgs := rec.waitFor(t, 1)
	var ch, key, vel uint8
	require.True(t, msgs[0].GetNoteOn(&ch, &key, &vel))
	assert.Equal(t, uint8(60), key)
	assert.Equal(t, uint8(100), vel)
}
