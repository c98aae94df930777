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

// Backend abstracts the audio output device so the player can be
// tested without hardware.
type Backend interface {
	// Initialize the audio subsystem.
	Initialize() error

	// Terminate the audio subsystem.
	Terminate() error

	// CreateOutputStream opens an output stream for playback.
	CreateOutputStream(sampleRate float64, channels, bufferSize int) (Stream, error)
}

// Stream abstracts a single output stream.
type Stream interface {
	// Start the stream.
	Start() error

	// Stop the stream.
	Stop() error

	// Close the stream and release resources.
	Close() error

	// Write one buffer of interleaved samples, blocking until the
	// device has consumed it.
	Write(data []float32) error
}
