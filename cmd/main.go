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

package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyclerlabs/cycler-go/internal/audio"
	"github.com/cyclerlabs/cycler-go/internal/midisink"
	"github.com/cyclerlabs/cycler-go/internal/remote"
	"github.com/cyclerlabs/cycler-go/internal/sched"
	"github.com/cyclerlabs/cycler-go/internal/synth"
)

func main() {
	// Command line flags
	instanceID := flag.String("id", "cycler-001", "Instance identifier for NATS control subjects")
	natsURL := flag.String("nats", "", "NATS server URL for remote control (empty = disabled)")
	cps := flag.Float64("cps", 0.5, "Initial tempo in cycles per second")
	midiPort := flag.Int("midi", -1, "MIDI output port index (-1 = built-in synth)")
	listMIDI := flag.Bool("list-midi", false, "List MIDI output ports and exit")
	flag.Parse()

	if *listMIDI {
		for i, name := range midisink.Ports() {
			fmt.Printf("%d: %s\n", i, name)
		}
		return
	}

	log.Printf("🚀 Starting Cycler")
	log.Printf("📋 Instance ID: %s", *instanceID)

	var clock sched.Clock
	var play sched.PlayFunc
	var shutdownOutput func()

	if *midiPort >= 0 {
		// MIDI output carries its own synthesis; a monotonic runtime
		// clock is enough to time the messages.
		clock = newRuntimeClock()
		sink, err := midisink.NewSink(clock, *midiPort)
		if err != nil {
			log.Fatalf("❌ Failed to open MIDI output: %v", err)
		}
		play = sink.Play
		shutdownOutput = sink.Close
		log.Printf("🎹 MIDI output: port %d", *midiPort)
	} else {
		engine := synth.NewEngine(44100, 2)
		player, err := audio.NewPlayer(audio.NewPortAudioBackend(), engine, audio.Config{})
		if err != nil {
			log.Fatalf("❌ Failed to initialize audio: %v", err)
		}
		if err := player.Start(); err != nil {
			log.Fatalf("❌ Failed to start audio playback: %v", err)
		}
		clock = engine
		play = engine.Trigger
		shutdownOutput = player.Shutdown
		log.Printf("🔊 Audio output: built-in synth")
	}

	scheduler, err := sched.New(clock, play, sched.Options{CPS: *cps})
	if err != nil {
		log.Fatalf("❌ Failed to create scheduler: %v", err)
	}

	for id, content := range demoPatterns() {
		if err := scheduler.SchedulePattern(id, content); err != nil {
			log.Fatalf("❌ Failed to schedule pattern %q: %v", id, err)
		}
	}

	if *natsURL != "" {
		subscriber, err := remote.NewControlSubscriber(*natsURL, *instanceID, scheduler)
		if err != nil {
			log.Fatalf("❌ Failed to connect remote control: %v", err)
		}
		if err := subscriber.Start(); err != nil {
			log.Fatalf("❌ Failed to subscribe remote control: %v", err)
		}
		defer subscriber.Close()
	}

	scheduler.Start()
	log.Printf("▶️  Transport running at %.3f cps (%.0f bpm)", scheduler.CPS(), scheduler.BPM())
	log.Printf("⏹️  Press Ctrl+C to stop")

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("🛑 Shutting down...")
	scheduler.Dispose()
	shutdownOutput()
	log.Println("👋 Stopped")
}

// runtimeClock is a monotonic wall clock for output paths that have no
// hardware clock of their own.
type runtimeClock struct {
	start time.Time
}

func newRuntimeClock() *runtimeClock {
	return &runtimeClock{start: time.Now()}
}

func (c *runtimeClock) CurrentTime() float64 {
	return time.Since(c.start).Seconds()
}

// demoPatterns is the startup content: a four-on-the-floor kick, an
// offbeat hat, and a generated bass line that walks a minor arpeggio
// one cycle at a time.
func demoPatterns() map[string]sched.PatternContent {
	kick := sched.EventList{
		{Start: 0, Params: map[string]any{"freq": 55.0, "decay": 0.2, "gain": 0.9}},
		{Start: 0.25, Params: map[string]any{"freq": 55.0, "decay": 0.2, "gain": 0.9}},
		{Start: 0.5, Params: map[string]any{"freq": 55.0, "decay": 0.2, "gain": 0.9}},
		{Start: 0.75, Params: map[string]any{"freq": 55.0, "decay": 0.2, "gain": 0.9}},
	}
	hat := sched.EventList{
		{Start: 0.125, Params: map[string]any{"freq": 6000.0, "decay": 0.03, "gain": 0.3, "wave": "square"}},
		{Start: 0.375, Params: map[string]any{"freq": 6000.0, "decay": 0.03, "gain": 0.3, "wave": "square"}},
		{Start: 0.625, Params: map[string]any{"freq": 6000.0, "decay": 0.03, "gain": 0.3, "wave": "square"}},
		{Start: 0.875, Params: map[string]any{"freq": 6000.0, "decay": 0.03, "gain": 0.3, "wave": "square"}},
	}
	arp := []float64{45, 48, 52, 57} // A minor, MIDI numbers
	bass := sched.Generator(func(cycle int) ([]sched.Event, error) {
		note := arp[((cycle%len(arp))+len(arp))%len(arp)]
		return []sched.Event{
			{Start: 0, Params: map[string]any{"note": note, "decay": 0.4, "gain": 0.5, "wave": "saw"}},
			{Start: 0.5, Params: map[string]any{"note": note + 12, "decay": 0.3, "gain": 0.4, "wave": "saw"}},
		}, nil
	})
	return map[string]sched.PatternContent{
		"kick": kick,
		"hat":  hat,
		"bass": bass,
	}
}
