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
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/recordflow/recordflow/core"
)

func TestBSONParser_NormalizesDriverTypes(t *testing.T) {
	parser := NewBSONParser()

	oid := primitive.NewObjectID()
	created := time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)

	item := core.RawItem{
		Payload: bson.M{
			"_id":        oid,
			"name":       "Alice",
			"age":        int32(30),
			"created_at": primitive.NewDateTimeFromTime(created),
			"missing":    primitive.Null{},
		},
		Meta: core.Metadata{
			core.MetaSourceType: "mongodb",
			core.MetaDocumentID: oid.Hex(),
		},
	}
	rec, err := parser.Parse(item)
	require.NoError(t, err)

	assert.Equal(t, oid.Hex(), rec.Fields["_id"])
	assert.Equal(t, "Alice", rec.Fields["name"])
	assert.Equal(t, int64(30), rec.Fields["age"])
	assert.Equal(t, created, rec.Fields["created_at"])
	assert.Nil(t, rec.Fields["missing"])
	assert.Equal(t, "mongodb", rec.SourceType())
}

func TestBSONParser_NestedDocumentsAndArrays(t *testing.T) {
	parser := NewBSONParser()

	item := core.RawItem{
		Payload: bson.M{
			"user": bson.M{
				"id":   int32(1),
				"tags": bson.A{"a", "b"},
			},
			"ordered": bson.D{{Key: "x", Value: int32(9)}},
		},
	}
	rec, err := parser.Parse(item)
	require.NoError(t, err)

	user, ok := rec.Fields["user"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(1), user["id"])
	assert.Equal(t, []interface{}{"a", "b"}, user["tags"])

	ordered, ok := rec.Fields["ordered"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, int64(9), ordered["x"])
}

func TestBSONParser_RejectsNonDocumentPayload(t *testing.T) {
	parser := NewBSONParser()

	_, err := parser.Parse(core.RawItem{
		Payload: []byte(`{"a":1}`),
		Meta:    core.Metadata{core.MetaDocumentID: "doc-1"},
	})
	require.Error(t, err)

	var pe *core.ParseError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "doc-1", pe.RecordID)
}
