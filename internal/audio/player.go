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

// Package audio owns the output device. The Player pulls rendered
// buffers from a Renderer and pushes them to a backend stream; the
// renderer's clock advances with each buffer, which is what makes it a
// valid scheduling clock.
package audio

import (
	"fmt"
	"log"
	"sync"
)

// Renderer produces interleaved audio on demand. synth.Engine is the
// production implementation.
type Renderer interface {
	Render(out []float32)
}

// Config holds the output format. Zero fields select defaults.
type Config struct {
	SampleRate float64 // default 44100
	Channels   int     // default 2
	BufferSize int     // frames per write, default 1024
}

func (c Config) withDefaults() Config {
	if c.SampleRate <= 0 {
		c.SampleRate = 44100
	}
	if c.Channels <= 0 {
		c.Channels = 2
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1024
	}
	return c
}

// Player runs the playback loop: render one buffer, write it, repeat.
// The backend's blocking Write provides the pacing.
type Player struct {
	mu       sync.Mutex
	backend  Backend
	renderer Renderer
	config   Config
	stream   Stream
	running  bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewPlayer initializes the backend and opens an output stream.
func NewPlayer(backend Backend, renderer Renderer, config Config) (*Player, error) {
	if backend == nil {
		return nil, fmt.Errorf("audio backend is required")
	}
	if renderer == nil {
		return nil, fmt.Errorf("renderer is required")
	}
	config = config.withDefaults()

	if err := backend.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audio backend: %w", err)
	}
	stream, err := backend.CreateOutputStream(config.SampleRate, config.Channels, config.BufferSize)
	if err != nil {
		_ = backend.Terminate()
		return nil, fmt.Errorf("failed to create output stream: %w", err)
	}

	return &Player{
		backend:  backend,
		renderer: renderer,
		config:   config,
		stream:   stream,
	}, nil
}

// Start begins the playback loop. No-op if already running.
func (p *Player) Start() error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return nil
	}
	if err := p.stream.Start(); err != nil {
		p.mu.Unlock()
		return fmt.Errorf("failed to start output stream: %w", err)
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.playLoop(stopCh, doneCh)
	return nil
}

func (p *Player) playLoop(stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	buf := make([]float32, p.config.BufferSize*p.config.Channels)
	for {
		select {
		case <-stopCh:
			return
		default:
		}
		p.renderer.Render(buf)
		if err := p.stream.Write(buf); err != nil {
			log.Printf("⚠️  audio write failed, stopping playback: %v", err)
			return
		}
	}
}

// Stop halts the playback loop and stops the stream. No-op if already
// stopped.
func (p *Player) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	close(p.stopCh)
	doneCh := p.doneCh
	p.mu.Unlock()

	<-doneCh
	return p.stream.Stop()
}

// IsRunning reports whether the playback loop is active.
func (p *Player) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Shutdown stops playback, closes the stream, and terminates the
// backend.
func (p *Player) Shutdown() {
	if err := p.Stop(); err != nil {
		log.Printf("⚠️  failed to stop output stream: %v", err)
	}
	if err := p.stream.Close(); err != nil {
		log.Printf("⚠️  failed to close output stream: %v", err)
	}
	if err := p.backend.Terminate(); err != nil {
		log.Printf("⚠️  failed to terminate audio backend: %v", err)
	}
}
