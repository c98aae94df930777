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

// CycleFunc observes each cycle as it is scheduled.
type CycleFunc func(cycle int)

// EventFunc observes each dispatched event together with its computed
// absolute time and cycle number.
type EventFunc func(ev Event, when float64, cycle int)

// registry is a multicast callback list with stable integer handles,
// so unsubscribing never depends on function identity. Entries fire in
// registration order. The owning Scheduler serializes all access.
type registry[T any] struct {
	nextID  int
	entries []regEntry[T]
}

type regEntry[T any] struct {
	id int
	fn T
}

func (r *registry[T]) add(fn T) int {
	r.nextID++
	r.entries = append(r.entries, regEntry[T]{id: r.nextID, fn: fn})
	return r.nextID
}

func (r *registry[T]) remove(id int) {
	for i, e := range r.entries {
		if e.id == id {
			r.entries = append(r.entries[:i], r.entries[i+1:]...)
			return
		}
	}
}

// snapshot copies the current callback list. Firing a snapshot means a
// removal made inside a callback applies from the next round, never
// mid-round.
func (r *registry[T]) snapshot() []T {
	if len(r.entries) == 0 {
		return nil
	}
	out := make([]T, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.fn
	}
	return out
}

func (r *registry[T]) clear() {
	r.entries = nil
}
