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
	"encoding/json"
	"fmt"
	"sort"
	"strconv"

	"github.com/recordflow/recordflow/core"
)

// ArrayMode decides how sequences are flattened.
type ArrayMode string

const (
	// ArrayIndex expands sequence elements under numeric index suffixes,
	// e.g. tags.0, tags.1.
	ArrayIndex ArrayMode = "index"
	// ArraySerialize keeps the sequence as one field holding its JSON text.
	ArraySerialize ArrayMode = "serialize"
)

// FlattenerOption configures a Flattener.
type FlattenerOption func(*Flattener)

// WithArrayMode selects the sequence handling strategy. Default ArrayIndex.
func WithArrayMode(mode ArrayMode) FlattenerOption {
	return func(f *Flattener) { f.arrays = mode }
}

// Flattener rewrites nested mappings and sequences into flat keys joined by
// the separator, up to the configured maximum depth. Structure below the
// maximum depth is serialized to JSON text. Flattening is deterministic:
// the same nested input always yields the same flat key set, and a key
// collision fails the record rather than silently overwriting.
type Flattener struct {
	separator string
	maxDepth  int
	arrays    ArrayMode
}

// NewFlattener builds a flattener. The separator must be non-empty and the
// depth at least 1.
func NewFlattener(separator string, maxDepth int, opts ...FlattenerOption) (*Flattener, error) {
	if separator == "" {
		return nil, &core.ConfigError{
			Section: "flattener",
			Err:     fmt.Errorf("separator must not be empty"),
		}
	}
	if maxDepth < 1 {
		return nil, &core.ConfigError{
			Section: "flattener",
			Err:     fmt.Errorf("max depth must be at least 1, got %d", maxDepth),
		}
	}
	f := &Flattener{
		separator: separator,
		maxDepth:  maxDepth,
		arrays:    ArrayIndex,
	}
	for _, opt := range opts {
		opt(f)
	}
	switch f.arrays {
	case ArrayIndex, ArraySerialize:
	default:
		return nil, &core.ConfigError{
			Section: "flattener",
			Err:     fmt.Errorf("unknown array mode %q", f.arrays),
		}
	}
	return f, nil
}

// Name implements core.Transformer.
func (f *Flattener) Name() string { return "flattener" }

// Apply implements core.Transformer.
func (f *Flattener) Apply(ctx context.Context, record core.Record) (core.Record, error) {
	out := record.Clone()
	out.Fields = make(core.Fields, len(record.Fields))

	for _, key := range sortedFieldNames(record.Fields) {
		if err := f.flatten(key, record.Fields[key], 0, out.Fields, record.ID()); err != nil {
			return core.Record{}, err
		}
	}
	return out, nil
}

func (f *Flattener) flatten(key string, value interface{}, depth int, out core.Fields, recordID string) error {
	switch v := value.(type) {
	case map[string]interface{}:
		if len(v) == 0 {
			return f.assign(key, nil, out, recordID)
		}
		if depth+1 >= f.maxDepth {
			return f.assignJSON(key, v, out, recordID)
		}
		for _, child := range sortedFieldNames(v) {
			joined := key + f.separator + child
			if err := f.flatten(joined, v[child], depth+1, out, recordID); err != nil {
				return err
			}
		}
		return nil

	case core.Fields:
		return f.flatten(key, map[string]interface{}(v), depth, out, recordID)

	case []interface{}:
		if len(v) == 0 {
			return f.assign(key, nil, out, recordID)
		}
		if f.arrays == ArraySerialize || depth+1 >= f.maxDepth {
			return f.assignJSON(key, v, out, recordID)
		}
		for i, item := range v {
			joined := key + f.separator + strconv.Itoa(i)
			if err := f.flatten(joined, item, depth+1, out, recordID); err != nil {
				return err
			}
		}
		return nil

	default:
		return f.assign(key, value, out, recordID)
	}
}

func (f *Flattener) assign(key string, value interface{}, out core.Fields, recordID string) error {
	if _, taken := out[key]; taken {
		return &core.FieldError{
			RecordID: recordID,
			Field:    key,
			Reason:   core.ReasonKeyCollision,
			Err:      fmt.Errorf("flattened key already present"),
		}
	}
	out[key] = value
	return nil
}

func (f *Flattener) assignJSON(key string, value interface{}, out core.Fields, recordID string) error {
	text, err := json.Marshal(value)
	if err != nil {
		return &core.FieldError{
			RecordID: recordID,
			Field:    key,
			Reason:   core.ReasonSerialization,
			Err:      fmt.Errorf("serialize nested value: %w", err),
		}
	}
	return f.assign(key, string(text), out, recordID)
}

func sortedFieldNames(fields map[string]interface{}) []string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
