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

package parse

import (
	"encoding/json"
	"fmt"

	"github.com/recordflow/recordflow/core"
)

// Package parse provides parsers that turn raw extracted items into
// records: JSON bytes from queue messages and BSON documents from cursor
// sources. Parsers are pure and per-item; a malformed payload fails only
// that item.

// MalformedMode decides what happens to a payload that cannot be decoded.
type MalformedMode string

const (
	// MalformedFail rejects the item with a *core.ParseError.
	MalformedFail MalformedMode = "fail"
	// MalformedKeep wraps the undecodable payload into a record holding its
	// raw text, marked in the provenance bag.
	MalformedKeep MalformedMode = "keep"
)

// RawTextField holds the undecoded payload when malformed items are kept.
const RawTextField = "raw_text"

// JSONParserOption configures a JSONParser.
type JSONParserOption func(*JSONParser)

// WithMalformedMode selects malformed payload handling. Default
// MalformedFail.
func WithMalformedMode(mode MalformedMode) JSONParserOption {
	return func(p *JSONParser) { p.malformed = mode }
}

// JSONParser decodes JSON object payloads into records. The payload must
// be a byte slice or string holding one JSON object; arrays and bare
// scalars are rejected as malformed.
type JSONParser struct {
	malformed MalformedMode
}

// NewJSONParser creates a JSON parser with the given options.
func NewJSONParser(opts ...JSONParserOption) *JSONParser {
	p := &JSONParser{malformed: MalformedFail}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Parse implements core.Parser.
func (p *JSONParser) Parse(item core.RawItem) (core.Record, error) {
	data, err := payloadBytes(item.Payload)
	if err != nil {
		return p.reject(item, err)
	}

	var fields map[string]interface{}
	if err := json.Unmarshal(data, &fields); err != nil {
		return p.reject(item, fmt.Errorf("decode json object: %w", err))
	}
	// A literal null decodes into a nil map without error.
	if fields == nil {
		return p.reject(item, fmt.Errorf("payload is not a json object"))
	}

	rec := core.NewRecord()
	rec.Fields = fields
	for k, v := range item.Meta {
		rec.Meta[k] = v
	}
	return rec, nil
}

func (p *JSONParser) reject(item core.RawItem, cause error) (core.Record, error) {
	if p.malformed == MalformedKeep {
		rec := core.NewRecord()
		if data, err := payloadBytes(item.Payload); err == nil {
			rec.Fields[RawTextField] = string(data)
		} else {
			rec.Fields[RawTextField] = fmt.Sprintf("%v", item.Payload)
		}
		for k, v := range item.Meta {
			rec.Meta[k] = v
		}
		rec.Meta[core.MetaParseError] = cause.Error()
		return rec, nil
	}
	return core.Record{}, &core.ParseError{
		RecordID: itemID(item),
		Err:      cause,
	}
}

func payloadBytes(payload interface{}) ([]byte, error) {
	switch v := payload.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T", payload)
	}
}

// itemID pulls the best available source-side identifier for error
// attribution.
func itemID(item core.RawItem) string {
	if v, ok := item.Meta[core.MetaKey].(string); ok && v != "" {
		return v
	}
	if v, ok := item.Meta[core.MetaDocumentID].(string); ok && v != "" {
		return v
	}
	if offset, ok := item.Meta[core.MetaOffset].(int64); ok {
		if topic, ok := item.Meta[core.MetaTopic].(string); ok {
			return fmt.Sprintf("%s@%d", topic, offset)
		}
	}
	return ""
}
