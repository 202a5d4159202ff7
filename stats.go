//
// SPDX-License-Identifier: GPL-3.0-or-later
//
// Copyright (C) 2025 The RecordFlow Authors
//
// This file is part of RecordFlow.
//
// RecordFlow is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// RecordFlow is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with RecordFlow. If not, see https://www.gnu.org/licenses/.

package recordflow

import "time"

// RunStats summarizes one pipeline run. The pipeline runs single-threaded,
// so counters are plain ints updated in the run loop and read after Run
// returns.
type RunStats struct {
	Pipeline string
	State    State

	Extracted   int // Raw items pulled from the source
	Parsed      int // Items successfully turned into records
	Transformed int // Records that survived the full chain
	Loaded      int // Records the loader persisted
	Simulated   int // Records counted in simulate-only dry runs

	ParseFailures     int
	TransformFailures int
	LoadFailures      int

	Batches int

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration
}

// Failed returns the total number of records lost to per-record faults.
func (s *RunStats) Failed() int {
	return s.ParseFailures + s.TransformFailures + s.LoadFailures
}
