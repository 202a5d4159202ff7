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

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func numberedRecord(n string) Record {
	rec := NewRecord()
	rec.Fields["n"] = n
	rec.Meta[MetaRecordID] = n
	return rec
}

func TestBatch_AppendReportsFull(t *testing.T) {
	b := NewBatch(2)

	assert.False(t, b.Append(numberedRecord("1")))
	assert.True(t, b.Append(numberedRecord("2")))
	assert.True(t, b.Full())
	assert.Equal(t, 2, b.Len())
}

func TestBatch_PreservesOrder(t *testing.T) {
	b := NewBatch(3)
	b.Append(numberedRecord("1"))
	b.Append(numberedRecord("2"))
	b.Append(numberedRecord("3"))

	records := b.Records()
	require.Len(t, records, 3)
	assert.Equal(t, "1", records[0].ID())
	assert.Equal(t, "2", records[1].ID())
	assert.Equal(t, "3", records[2].ID())
}

func TestBatch_DroppedMarkersAreSeparate(t *testing.T) {
	b := NewBatch(2)
	b.Append(numberedRecord("1"))
	b.MarkDropped(Failure{RecordID: "2", Stage: "type_converter", Reason: ReasonTypeConversion})

	assert.Equal(t, 1, b.Len())
	require.Len(t, b.Dropped(), 1)
	assert.Equal(t, "2", b.Dropped()[0].RecordID)
}

func TestBatch_Reset(t *testing.T) {
	b := NewBatch(2)
	b.Append(numberedRecord("1"))
	b.MarkDropped(Failure{RecordID: "x"})

	b.Reset()
	assert.Zero(t, b.Len())
	assert.Empty(t, b.Dropped())
	assert.False(t, b.Full())
}

func TestBatch_MinimumSize(t *testing.T) {
	b := NewBatch(0)
	assert.True(t, b.Append(numberedRecord("1")))
}

func TestRecord_CloneIsolatesTopLevel(t *testing.T) {
	rec := NewRecord()
	rec.Fields["a"] = 1
	rec.Meta[MetaSourceType] = "kafka"

	clone := rec.Clone()
	clone.Fields["a"] = 2
	clone.Meta[MetaSourceType] = "mongodb"

	assert.Equal(t, 1, rec.Fields["a"])
	assert.Equal(t, "kafka", rec.SourceType())
}

func TestRecord_Warnings(t *testing.T) {
	rec := NewRecord()
	assert.Empty(t, rec.Warnings())

	rec.AddWarning("email: invalid email format")
	rec.AddWarning("phone: invalid phone format")
	assert.Len(t, rec.Warnings(), 2)
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(&CollaboratorError{Collaborator: "loader", Op: "commit", Err: errors.New("down")}))
	assert.False(t, IsFatal(&ParseError{Err: errors.New("bad json")}))
	assert.False(t, IsFatal(&FieldError{Field: "age", Reason: ReasonTypeConversion}))
	assert.False(t, IsFatal(errors.New("plain")))
}

func TestFieldError_MessageIncludesStage(t *testing.T) {
	err := &FieldError{
		RecordID: "r1",
		Field:    "age",
		Reason:   ReasonTypeConversion,
		Stage:    "type_converter",
		Err:      errors.New("cannot parse"),
	}
	assert.Contains(t, err.Error(), "type_converter")
	assert.Contains(t, err.Error(), "age")
	assert.Contains(t, err.Error(), ReasonTypeConversion)
}
