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
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/recordflow/recordflow/core"
)

// BSONParser converts decoded BSON documents into records. Driver-specific
// value types are normalized to plain Go values: ObjectIDs become hex
// strings, BSON datetimes become time.Time, nested documents and arrays are
// converted recursively.
type BSONParser struct{}

// NewBSONParser creates a BSON parser.
func NewBSONParser() *BSONParser {
	return &BSONParser{}
}

// Parse implements core.Parser.
func (p *BSONParser) Parse(item core.RawItem) (core.Record, error) {
	doc, ok := item.Payload.(bson.M)
	if !ok {
		return core.Record{}, &core.ParseError{
			RecordID: itemID(item),
			Err:      fmt.Errorf("expected bson document, got %T", item.Payload),
		}
	}

	rec := core.NewRecord()
	for key, value := range doc {
		rec.Fields[key] = normalizeBSONValue(value)
	}
	for k, v := range item.Meta {
		rec.Meta[k] = v
	}
	return rec, nil
}

func normalizeBSONValue(value interface{}) interface{} {
	switch v := value.(type) {
	case primitive.ObjectID:
		return v.Hex()
	case primitive.DateTime:
		return v.Time().UTC()
	case primitive.Timestamp:
		return time.Unix(int64(v.T), 0).UTC()
	case primitive.Decimal128:
		return v.String()
	case primitive.Binary:
		return v.Data
	case primitive.Null, primitive.Undefined:
		return nil
	case int32:
		return int64(v)
	case bson.M:
		out := make(map[string]interface{}, len(v))
		for k, val := range v {
			out[k] = normalizeBSONValue(val)
		}
		return out
	case bson.D:
		out := make(map[string]interface{}, len(v))
		for _, elem := range v {
			out[elem.Key] = normalizeBSONValue(elem.Value)
		}
		return out
	case bson.A:
		out := make([]interface{}, len(v))
		for i, val := range v {
			out[i] = normalizeBSONValue(val)
		}
		return out
	default:
		return v
	}
}
