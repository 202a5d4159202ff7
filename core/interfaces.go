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

import "context"

// This file contains the collaborator contracts the orchestrator depends
// on: extraction, parsing, transformation, and loading.

// RawItem is one opaque item pulled from a source before parsing. Payload
// is source-specific (bytes for a queue message, a decoded document for a
// cursor source); Meta carries the source-side provenance (offset, topic,
// collection, original identifier).
type RawItem struct {
	Payload interface{}
	Meta    Metadata
}

// Extractor produces a lazy, finite (or externally terminated) sequence of
// raw items. Implementations stream one item per Next call and return
// io.EOF when the source is exhausted. Connectivity failures are fatal to
// the run and must be reported as *CollaboratorError.
type Extractor interface {
	// Next returns the next raw item or io.EOF at end of stream.
	Next(ctx context.Context) (RawItem, error)
	// Close releases any resources held by the extractor.
	Close() error
}

// Parser converts one raw item into a Record. Parse is a pure function of
// its input: it must not mutate shared state. A malformed payload is
// reported as *ParseError and never aborts the run.
type Parser interface {
	Parse(item RawItem) (Record, error)
}

// Transformer is one normalization pass over a Record. Apply returns the
// transformed record, or a *FieldError when the record cannot survive the
// pass. Transformers hold no per-record state and are safely reusable
// across records and batches.
type Transformer interface {
	// Name identifies the pass for stage attribution in failures and logs.
	Name() string
	// Apply runs the pass on one record.
	Apply(ctx context.Context, record Record) (Record, error)
}

// LoadOutcome reports the fate of a single record within a loaded batch.
type LoadOutcome struct {
	Persisted bool
	Err       error
}

// Loader persists one batch of records and reports a per-record outcome
// list, parallel to the batch's record order. A total loader failure (not
// per-record) must be reported as *CollaboratorError and aborts the run.
type Loader interface {
	Load(ctx context.Context, batch *Batch) ([]LoadOutcome, error)
	Close() error
}
