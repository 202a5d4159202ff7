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

// Package core defines the canonical record model shared by every stage of
// a RecordFlow pipeline.
//
// A Record is the in-flight representation of one source item: a flat-or-
// nested field map plus a provenance bag that accumulates metadata (source
// type, original offset, ingestion timestamp) as the record moves through
// the pipeline.

// Fields is the payload of a record: a map from field name to a value.
// Values are one of nil, bool, int64, float64, string, time.Time, a nested
// map[string]interface{}, or a []interface{} of the same, prior to
// flattening. Field names are unique at every pipeline stage.
type Fields map[string]interface{}

// Metadata is the provenance bag attached to a record. Keys are populated
// incrementally by extractors, parsers, and the metadata enricher; a key is
// never removed once set, though the enricher may overwrite its own keys.
type Metadata map[string]interface{}

// Well-known provenance keys.
const (
	MetaSourceType = "source_type"
	MetaRecordID   = "record_id"
	MetaIngestedAt = "ingested_at"
	MetaTopic      = "topic"
	MetaPartition  = "partition"
	MetaOffset     = "offset"
	MetaKey        = "key"
	MetaTimestamp  = "timestamp"
	MetaDatabase   = "database"
	MetaCollection = "collection"
	MetaDocumentID = "document_id"
	MetaWarnings   = "warnings"
	MetaParseError = "parse_error"
)

// Record is a single data record in flight. Transformers receive a Record
// by exclusive logical ownership for the duration of one pass and return a
// (possibly new) Record; no transformer retains a reference after
// returning.
type Record struct {
	Fields Fields
	Meta   Metadata
}

// NewRecord creates an empty record with initialized field and provenance
// maps.
func NewRecord() Record {
	return Record{
		Fields: make(Fields),
		Meta:   make(Metadata),
	}
}

// Clone returns a record with fresh top-level field and metadata maps.
// Nested values are shared; transformers that rewrite nested structure
// build new containers rather than mutating the originals.
func (r Record) Clone() Record {
	out := Record{
		Fields: make(Fields, len(r.Fields)),
		Meta:   make(Metadata, len(r.Meta)),
	}
	for k, v := range r.Fields {
		out.Fields[k] = v
	}
	for k, v := range r.Meta {
		out.Meta[k] = v
	}
	return out
}

// SourceType returns the record's declared source type tag, or "unknown"
// when the extractor did not set one.
func (r Record) SourceType() string {
	if v, ok := r.Meta[MetaSourceType].(string); ok && v != "" {
		return v
	}
	return "unknown"
}

// ID returns the record's stable identifier from the provenance bag, or ""
// when none has been assigned yet.
func (r Record) ID() string {
	if v, ok := r.Meta[MetaRecordID].(string); ok {
		return v
	}
	return ""
}

// AddWarning appends a field-level warning to the provenance bag without
// failing the record. Warnings survive every later pipeline stage.
func (r Record) AddWarning(warning string) {
	existing, _ := r.Meta[MetaWarnings].([]string)
	r.Meta[MetaWarnings] = append(existing, warning)
}

// Warnings returns the field-level warnings accumulated so far.
func (r Record) Warnings() []string {
	w, _ := r.Meta[MetaWarnings].([]string)
	return w
}
