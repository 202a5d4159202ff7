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
	"fmt"
)

// This file contains the pipeline error taxonomy.
//
// ConfigError is fatal at validate time or pipeline construction.
// ParseError and FieldError are per-record: the orchestrator records them
// and continues. CollaboratorError always escalates and aborts the run.

// Reason codes attached to per-record failures.
const (
	ReasonMalformedPayload = "malformed_payload"
	ReasonAliasConflict    = "alias_conflict"
	ReasonTypeConversion   = "type_conversion"
	ReasonKeyCollision     = "key_collision"
	ReasonSerialization    = "serialization"
	ReasonValidation       = "validation"
)

// ConfigError reports an invalid or contradictory rule definition. It is
// raised when a pipeline is built or validated, never per record.
type ConfigError struct {
	Section string // Configuration section at fault (e.g. "field_mapper")
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Section != "" {
		return fmt.Sprintf("config [%s]: %v", e.Section, e.Err)
	}
	return fmt.Sprintf("config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ParseError reports one raw item that could not be turned into a Record.
type ParseError struct {
	RecordID string // Source-side identifier when one is available
	Err      error
}

func (e *ParseError) Error() string {
	if e.RecordID != "" {
		return fmt.Sprintf("parse [%s]: %v", e.RecordID, e.Err)
	}
	return fmt.Sprintf("parse: %v", e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// FieldError reports a single-field failure inside a transformation pass.
// It names the offending field and carries a stable reason code; the Stage
// field is filled in by the transformation chain.
type FieldError struct {
	RecordID string
	Field    string
	Reason   string
	Stage    string
	Err      error
}

func (e *FieldError) Error() string {
	msg := fmt.Sprintf("field %q: %s", e.Field, e.Reason)
	if e.Stage != "" {
		msg = fmt.Sprintf("%s [%s]: %s", e.Stage, e.Field, e.Reason)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FieldError) Unwrap() error { return e.Err }

// CollaboratorError reports a fault at the extractor or loader boundary.
// It is the only error class that terminates a run.
type CollaboratorError struct {
	Collaborator string // "extractor" or "loader"
	Op           string // Operation that failed (e.g. "connect", "read")
	Err          error
}

func (e *CollaboratorError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Collaborator, e.Op, e.Err)
}

func (e *CollaboratorError) Unwrap() error { return e.Err }

// IsFatal reports whether err must abort the run rather than be recovered
// per record.
func IsFatal(err error) bool {
	var ce *CollaboratorError
	return errors.As(err, &ce)
}
