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

package transform

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/recordflow/recordflow/core"
)

// EnricherOption configures a MetadataEnricher.
type EnricherOption func(*MetadataEnricher)

// WithCreatedAtField renames the creation-timestamp field. Default
// "createdAt".
func WithCreatedAtField(name string) EnricherOption {
	return func(e *MetadataEnricher) {
		if name != "" {
			e.createdAtField = name
		}
	}
}

// WithProcessedAtField adds a processing-timestamp field under name.
func WithProcessedAtField(name string) EnricherOption {
	return func(e *MetadataEnricher) { e.processedAtField = name }
}

// WithIDField copies the record identifier into the payload under name.
func WithIDField(name string) EnricherOption {
	return func(e *MetadataEnricher) { e.idField = name }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) EnricherOption {
	return func(e *MetadataEnricher) { e.now = now }
}

// WithIDGenerator overrides the identifier generator. Used by tests.
func WithIDGenerator(newID func() string) EnricherOption {
	return func(e *MetadataEnricher) { e.newID = newID }
}

// MetadataEnricher is the last pass of the chain. It stamps every record
// with a creation timestamp field and completes the provenance bag: source
// type, ingestion time, and a record identifier (kept when the source
// already assigned one, generated otherwise). Enrichment never fails a
// record.
type MetadataEnricher struct {
	createdAtField   string
	processedAtField string
	idField          string

	now   func() time.Time
	newID func() string
}

// NewMetadataEnricher builds an enricher with the given options.
func NewMetadataEnricher(opts ...EnricherOption) *MetadataEnricher {
	e := &MetadataEnricher{
		createdAtField: "createdAt",
		now:            time.Now,
		newID:          uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements core.Transformer.
func (e *MetadataEnricher) Name() string { return "metadata_enricher" }

// Apply implements core.Transformer.
func (e *MetadataEnricher) Apply(ctx context.Context, record core.Record) (core.Record, error) {
	out := record.Clone()
	now := e.now().UTC()

	out.Fields[e.createdAtField] = now
	if e.processedAtField != "" {
		out.Fields[e.processedAtField] = now
	}

	if out.ID() == "" {
		out.Meta[core.MetaRecordID] = e.newID()
	}
	if _, ok := out.Meta[core.MetaIngestedAt]; !ok {
		out.Meta[core.MetaIngestedAt] = now
	}
	out.Meta[core.MetaSourceType] = out.SourceType()

	if e.idField != "" {
		out.Fields[e.idField] = out.ID()
	}

	return out, nil
}
