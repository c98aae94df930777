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

package audio

import (
	"sync"
	"time"
)

// MockBackend implements Backend for testing without hardware
// dependencies. It records every written buffer and can inject errors
// at each lifecycle step.
type MockBackend struct {
	mu                 sync.Mutex
	initialized        bool
	initError          error
	terminateError     error
	createStreamError  error
	simulateRealTiming bool
	streams            []*MockStream
}

// NewMockBackend creates a new mock audio backend.
func NewMockBackend() *MockBackend {
	return &MockBackend{}
}

// SetInitError configures the backend to fail Initialize.
func (m *MockBackend) SetInitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.initError = err
}

// SetTerminateError configures the backend to fail Terminate.
func (m *MockBackend) SetTerminateError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.terminateError = err
}

// SetCreateStreamError configures the backend to fail stream creation.
func (m *MockBackend) SetCreateStreamError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createStreamError = err
}

// SetSimulateRealTiming makes Write block for one buffer's duration,
// approximating a real device's backpressure.
func (m *MockBackend) SetSimulateRealTiming(simulate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.simulateRealTiming = simulate
}

// Initialize initializes the mock audio subsystem.
func (m *MockBackend) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.initError != nil {
		return m.initError
	}
	m.initialized = true
	return nil
}

// Terminate terminates the mock audio subsystem.
func (m *MockBackend) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.terminateError != nil {
		return m.terminateError
	}
	m.initialized = false
	return nil
}

// IsInitialized reports whether Initialize has succeeded.
func (m *MockBackend) IsInitialized() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initialized
}

// CreateOutputStream creates a mock output stream.
func (m *MockBackend) CreateOutputStream(sampleRate float64, channels, bufferSize int) (Stream, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createStreamError != nil {
		return nil, m.createStreamError
	}
	s := &MockStream{
		sampleRate:         sampleRate,
		channels:           channels,
		bufferSize:         bufferSize,
		simulateRealTiming: m.simulateRealTiming,
	}
	m.streams = append(m.streams, s)
	return s, nil
}

// Streams returns every stream this backend created.
func (m *MockBackend) Streams() []*MockStream {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockStream, len(m.streams))
	copy(out, m.streams)
	return out
}

// MockStream implements Stream, capturing written audio for assertions.
type MockStream struct {
	mu                 sync.Mutex
	sampleRate         float64
	channels           int
	bufferSize         int
	started            bool
	closed             bool
	writeError         error
	simulateRealTiming bool
	written            [][]float32
}

// SetWriteError configures the stream to fail Write.
func (s *MockStream) SetWriteError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeError = err
}

func (s *MockStream) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *MockStream) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

func (s *MockStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *MockStream) Write(data []float32) error {
	s.mu.Lock()
	if s.writeError != nil {
		err := s.writeError
		s.mu.Unlock()
		return err
	}
	buf := make([]float32, len(data))
	copy(buf, data)
	s.written = append(s.written, buf)
	simulate := s.simulateRealTiming
	sampleRate := s.sampleRate
	channels := s.channels
	s.mu.Unlock()

	if simulate && sampleRate > 0 && channels > 0 {
		frames := len(data) / channels
		time.Sleep(time.Duration(float64(frames) / sampleRate * float64(time.Second)))
	}
	return nil
}

// Written returns every buffer written so far.
func (s *MockStream) Written() [][]float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]float32, len(s.written))
	copy(out, s.written)
	return out
}

// IsStarted reports whether the stream is between Start and Stop.
func (s *MockStream) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// IsClosed reports whether Close was called.
func (s *MockStream) IsClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
