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

// Package remote exposes scheduler control over NATS, so patterns can
// be scheduled, hot-swapped, and stopped from the network while the
// transport runs. Only static event lists cross the wire; generator
// patterns are in-process only.
package remote

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/cyclerlabs/cycler-go/internal/sched"
)

// ControlMessage is the JSON envelope for every control operation.
type ControlMessage struct {
	Op        string         `json:"op"`                   // "schedule", "update", "stop", "hush", "cps", "bpm", "start", "stop-transport"
	PatternID string         `json:"pattern_id,omitempty"` // target pattern for schedule/update/stop
	Events    []EventMessage `json:"events,omitempty"`     // pattern content for schedule/update
	CPS       float64        `json:"cps,omitempty"`        // tempo for op "cps"
	BPM       float64        `json:"bpm,omitempty"`        // tempo for op "bpm"
}

// EventMessage is the wire form of one event.
type EventMessage struct {
	Start  float64        `json:"start"`
	Params map[string]any `json:"params,omitempty"`
}

// Conn is the slice of a NATS connection the subscriber needs, kept as
// an interface for dependency injection in tests.
type Conn interface {
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

// ConnAdapter adapts *nats.Conn to the Conn interface.
type ConnAdapter struct {
	conn *nats.Conn
}

func NewConnAdapter(conn *nats.Conn) *ConnAdapter {
	return &ConnAdapter{conn: conn}
}

func (a *ConnAdapter) Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error) {
	return a.conn.Subscribe(subject, cb)
}

func (a *ConnAdapter) Close() {
	a.conn.Close()
}

// ControlSubscriber applies control messages from NATS to a scheduler.
type ControlSubscriber struct {
	conn       Conn
	instanceID string
	scheduler  *sched.Scheduler
}

// NewControlSubscriber connects to NATS (with retry) and binds the
// subscriber to a scheduler.
func NewControlSubscriber(natsURL, instanceID string, scheduler *sched.Scheduler) (*ControlSubscriber, error) {
	var nc *nats.Conn
	var err error

	for i := 0; i < 5; i++ {
		nc, err = nats.Connect(natsURL)
		if err == nil {
			break
		}
		log.Printf("⚠️  Failed to connect to NATS (attempt %d/5): %v", i+1, err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS after 5 attempts: %w", err)
	}

	log.Printf("✅ Connected to NATS at %s", natsURL)
	return NewControlSubscriberWithConn(NewConnAdapter(nc), instanceID, scheduler), nil
}

// NewControlSubscriberWithConn binds an existing connection (for
// testing).
func NewControlSubscriberWithConn(conn Conn, instanceID string, scheduler *sched.Scheduler) *ControlSubscriber {
	return &ControlSubscriber{
		conn:       conn,
		instanceID: instanceID,
		scheduler:  scheduler,
	}
}

// Start subscribes to the instance-specific and broadcast control
// subjects.
func (c *ControlSubscriber) Start() error {
	instanceSubject := fmt.Sprintf("cycler.%s.control", c.instanceID)
	if _, err := c.conn.Subscribe(instanceSubject, c.handleControl); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", instanceSubject, err)
	}

	broadcastSubject := "cycler.broadcast.control"
	if _, err := c.conn.Subscribe(broadcastSubject, c.handleControl); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", broadcastSubject, err)
	}

	log.Printf("🎧 Subscribed to control subjects: %s, %s", instanceSubject, broadcastSubject)
	return nil
}

// handleControl decodes and applies one control message. Malformed or
// invalid messages are logged and dropped; the scheduler keeps
// running either way.
func (c *ControlSubscriber) handleControl(msg *nats.Msg) {
	var ctl ControlMessage
	if err := json.Unmarshal(msg.Data, &ctl); err != nil {
		log.Printf("❌ Failed to unmarshal control message: %v", err)
		return
	}
	if err := c.apply(ctl); err != nil {
		log.Printf("❌ Control op %q rejected: %v", ctl.Op, err)
	}
}

func (c *ControlSubscriber) apply(ctl ControlMessage) error {
	switch ctl.Op {
	case "schedule", "update":
		events := make(sched.EventList, len(ctl.Events))
		for i, ev := range ctl.Events {
			events[i] = sched.Event{Start: ev.Start, Params: ev.Params}
		}
		if err := c.scheduler.SchedulePattern(ctl.PatternID, events); err != nil {
			return err
		}
		log.Printf("🎵 Pattern %q scheduled with %d events", ctl.PatternID, len(events))
	case "stop":
		if c.scheduler.StopPattern(ctl.PatternID) {
			log.Printf("🔇 Pattern %q stopped", ctl.PatternID)
		}
	case "hush":
		c.scheduler.Hush()
		log.Printf("🔇 All patterns cleared")
	case "cps":
		if err := c.scheduler.SetCPS(ctl.CPS); err != nil {
			return err
		}
	case "bpm":
		if err := c.scheduler.SetBPM(ctl.BPM); err != nil {
			return err
		}
	case "start":
		c.scheduler.Start()
	case "stop-transport":
		c.scheduler.Stop()
	default:
		return fmt.Errorf("unknown op %q", ctl.Op)
	}
	return nil
}

// Close closes the NATS connection.
func (c *ControlSubscriber) Close() {
	if c.conn != nil {
		c.conn.Close()
		log.Println("🔌 NATS connection closed")
	}
}
