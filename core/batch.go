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

package core

// Failure marks one record dropped before reaching the loader, with the
// stage that dropped it and the reason code.
type Failure struct {
	RecordID string
	Stage    string
	Reason   string
	Err      error
}

// Batch is an ordered, bounded group of records flushed together to the
// loader, plus the failure markers for records dropped while the batch was
// being filled. Batches are transient: created by the orchestrator,
// consumed exactly once by the loader, then discarded.
type Batch struct {
	records []Record
	dropped []Failure
	size    int
}

// NewBatch creates an empty batch bounded at size records.
func NewBatch(size int) *Batch {
	if size < 1 {
		size = 1
	}
	return &Batch{
		records: make([]Record, 0, size),
		size:    size,
	}
}

// Append adds a record. The caller flushes before appending past the bound;
// Append reports whether the batch is now full.
func (b *Batch) Append(record Record) bool {
	b.records = append(b.records, record)
	return len(b.records) >= b.size
}

// MarkDropped records a failure marker for a record that will never reach
// the loader.
func (b *Batch) MarkDropped(f Failure) {
	b.dropped = append(b.dropped, f)
}

// Records returns the buffered records in extraction order.
func (b *Batch) Records() []Record { return b.records }

// Dropped returns the failure markers accumulated for this batch.
func (b *Batch) Dropped() []Failure { return b.dropped }

// Len returns the number of buffered records.
func (b *Batch) Len() int { return len(b.records) }

// Full reports whether the batch reached its configured bound.
func (b *Batch) Full() bool { return len(b.records) >= b.size }

// Reset empties the batch for reuse, keeping the configured bound.
func (b *Batch) Reset() {
	b.records = b.records[:0]
	b.dropped = nil
}
