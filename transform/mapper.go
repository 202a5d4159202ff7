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
	"fmt"
	"sort"
	"strings"

	"github.com/recordflow/recordflow/core"
)

// Package transform provides the built-in normalization passes and the
// chain that composes them. Passes always run in the fixed relative order
// field mapping, type conversion, flattening, cleaning, metadata
// enrichment.

// MappingRules maps a source type to its alias table: canonical field name
// to the ordered list of accepted alias names. Aliases are checked in
// listed order and the first alias present in the incoming record wins.
type MappingRules map[string]map[string][]string

// MapperOption configures a FieldMapper.
type MapperOption func(*FieldMapper)

// WithKeepUnmapped controls whether fields outside the alias table pass
// through under their original names. Default true.
func WithKeepUnmapped(keep bool) MapperOption {
	return func(m *FieldMapper) { m.keepUnmapped = keep }
}

// WithCaseSensitive controls whether alias matching is case sensitive.
// Default false.
func WithCaseSensitive(sensitive bool) MapperOption {
	return func(m *FieldMapper) { m.caseSensitive = sensitive }
}

// FieldMapper rewrites record keys per the alias table for the record's
// declared source type. It fails only on configuration conflicts (two
// simultaneously matched source fields claiming the same canonical name),
// never on missing optional fields.
type FieldMapper struct {
	rules         MappingRules
	keepUnmapped  bool
	caseSensitive bool
}

// NewFieldMapper builds a field mapper from the alias table. The table is
// rejected with a *core.ConfigError when one alias is claimed by two
// canonical targets for the same source type.
func NewFieldMapper(rules MappingRules, opts ...MapperOption) (*FieldMapper, error) {
	m := &FieldMapper{
		rules:        rules,
		keepUnmapped: true,
	}
	for _, opt := range opts {
		opt(m)
	}

	for sourceType, table := range rules {
		seen := make(map[string]string)
		for _, canonical := range sortedKeys(table) {
			for _, alias := range table[canonical] {
				key := m.normalize(alias)
				if prev, dup := seen[key]; dup && prev != canonical {
					return nil, &core.ConfigError{
						Section: "field_mapper",
						Err: fmt.Errorf("source %q: alias %q mapped to both %q and %q",
							sourceType, alias, prev, canonical),
					}
				}
				seen[key] = canonical
			}
		}
	}
	return m, nil
}

// Name implements core.Transformer.
func (m *FieldMapper) Name() string { return "field_mapper" }

// Apply implements core.Transformer.
func (m *FieldMapper) Apply(ctx context.Context, record core.Record) (core.Record, error) {
	table := m.rules[record.SourceType()]
	if len(table) == 0 {
		return record, nil
	}

	// Index of normalized incoming field name to actual field name.
	index := make(map[string]string, len(record.Fields))
	for name := range record.Fields {
		index[m.normalize(name)] = name
	}

	out := record.Clone()
	out.Fields = make(core.Fields, len(record.Fields))
	consumed := make(map[string]bool)

	// Canonical targets in sorted order so mapping is deterministic.
	for _, canonical := range sortedKeys(table) {
		for _, alias := range table[canonical] {
			source, ok := index[m.normalize(alias)]
			if !ok {
				continue
			}
			out.Fields[canonical] = record.Fields[source]
			consumed[source] = true
			break // first alias present wins; later aliases never overwrite
		}
	}

	for name, value := range record.Fields {
		if consumed[name] {
			continue
		}
		if _, taken := out.Fields[name]; taken {
			// The record carries a literal field with a canonical name that
			// was also produced by an alias match.
			return core.Record{}, &core.FieldError{
				RecordID: record.ID(),
				Field:    name,
				Reason:   core.ReasonAliasConflict,
				Err:      fmt.Errorf("canonical target assigned from two source fields"),
			}
		}
		if m.keepUnmapped {
			out.Fields[name] = value
		}
	}

	return out, nil
}

func (m *FieldMapper) normalize(name string) string {
	if m.caseSensitive {
		return name
	}
	return strings.ToLower(name)
}

func sortedKeys(table map[string][]string) []string {
	keys := make([]string, 0, len(table))
	for k := range table {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
