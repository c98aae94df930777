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
	"fmt"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend implements Backend using the real PortAudio library.
type PortAudioBackend struct {
	initialized bool
}

// NewPortAudioBackend creates a new PortAudio backend.
func NewPortAudioBackend() *PortAudioBackend {
	return &PortAudioBackend{}
}

// Initialize initializes the PortAudio subsystem.
func (p *PortAudioBackend) Initialize() error {
	if p.initialized {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	p.initialized = true
	return nil
}

// Terminate terminates the PortAudio subsystem.
func (p *PortAudioBackend) Terminate() error {
	if !p.initialized {
		return nil
	}
	err := portaudio.Terminate()
	p.initialized = false
	return err
}

// CreateOutputStream opens the default output device for playback.
func (p *PortAudioBackend) CreateOutputStream(sampleRate float64, channels, bufferSize int) (Stream, error) {
	if !p.initialized {
		return nil, fmt.Errorf("PortAudio not initialized")
	}

	outputBuffer := make([]float32, bufferSize*channels)
	stream, err := portaudio.OpenDefaultStream(
		0,        // input channels (none for output stream)
		channels, // output channels
		sampleRate,
		bufferSize,
		outputBuffer,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to open output stream: %w", err)
	}

	return &portAudioStream{
		stream:       stream,
		outputBuffer: outputBuffer,
	}, nil
}

// portAudioStream implements Stream over a PortAudio blocking-write
// stream.
type portAudioStream struct {
	stream       *portaudio.Stream
	outputBuffer []float32
}

func (s *portAudioStream) Start() error {
	if s.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	return s.stream.Start()
}

func (s *portAudioStream) Stop() error {
	if s.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	return s.stream.Stop()
}

func (s *portAudioStream) Close() error {
	if s.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	return s.stream.Close()
}

func (s *portAudioStream) Write(data []float32) error {
	if s.stream == nil {
		return fmt.Errorf("stream is nil")
	}
	copy(s.outputBuffer, data)
	return s.stream.Write()
}
