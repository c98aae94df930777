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

// ValidationError reports an invalid argument. It is returned
// synchronously by the mutating method that received the argument, so
// embedding code can catch and display it. It is the only error kind
// this package returns from its public surface; failures inside
// callbacks are logged and contained instead (see Scheduler).
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "sched: " + e.Reason
}

func validationErrorf(format string, args ...any) *ValidationError {
	return &ValidationError{Reason: fmt.Sprintf(format, args...)}
}
