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

package sched

import "fmt"

// Event is a single sound-triggering instruction positioned inside a
// musical cycle.
type Event struct {
	// Start is the event's onset as a fraction of its cycle, in [0, 1).
	Start float64

	// Params is an opaque payload forwarded verbatim to the play
	// callback. The scheduler never inspects or validates it.
	Params map[string]any
}

// PatternContent is the closed set of pattern body kinds. A pattern is
// either a static EventList repeated every cycle, or a Generator asked
// for each cycle's events on demand. No other implementations exist.
type PatternContent interface {
	patternContent()
}

// EventList is a static, ordered sequence of events repeated on every
// cycle.
type EventList []Event

func (EventList) patternContent() {}

// Generator produces the events for a single cycle. It is called once
// per cycle per tick that schedules that cycle; results are never
// cached, so a hot-swapped generator takes effect from the next
// not-yet-scheduled cycle.
type Generator func(cycle int) ([]Event, error)

func (Generator) patternContent() {}

// Pattern is a named registration in the scheduler's registry.
type Pattern struct {
	ID      string
	Content PatternContent
}

// resolveEvents materializes the events a pattern contributes to one
// cycle. A panicking generator is reported as an error rather than
// propagated, so one bad pattern cannot take down a tick.
func resolveEvents(content PatternContent, cycle int) (events []Event, err error) {
	switch c := content.(type) {
	case EventList:
		return c, nil
	case Generator:
		defer func() {
			if r := recover(); r != nil {
				events = nil
				err = fmt.Errorf("generator panicked: %v", r)
			}
		}()
		return c(cycle)
	}
	return nil, nil
}
