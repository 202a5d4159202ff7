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
	"regexp"
	"strings"

	"github.com/recordflow/recordflow/core"
)

// Tokens normalized to null when empty-token standardization is on.
// Matching is case-insensitive after trimming.
var defaultEmptyTokens = []string{"", "null", "none", "n/a", "na", "undefined"}

var (
	defaultEmailPattern = `^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`
	defaultPhonePattern = `^\+?[1-9]\d{0,15}$`

	phoneStrip = regexp.MustCompile(`[^\d+]`)
)

// CleanerOption configures a DataCleaner.
type CleanerOption func(*DataCleaner)

// WithTrimWhitespace controls whitespace trimming of text fields. Default
// true.
func WithTrimWhitespace(trim bool) CleanerOption {
	return func(c *DataCleaner) { c.trim = trim }
}

// WithEmptyTokens replaces the set of text tokens normalized to null.
func WithEmptyTokens(tokens []string) CleanerOption {
	return func(c *DataCleaner) {
		c.emptyTokens = make(map[string]struct{}, len(tokens))
		for _, t := range tokens {
			c.emptyTokens[strings.ToLower(t)] = struct{}{}
		}
	}
}

// WithEmailValidation enables format validation of email-like fields using
// pattern, or the default pattern when pattern is empty.
func WithEmailValidation(pattern string) CleanerOption {
	return func(c *DataCleaner) {
		c.validateEmails = true
		if pattern != "" {
			c.emailPattern = pattern
		}
	}
}

// WithPhoneValidation enables cleanup and format validation of phone-like
// fields using pattern, or the default pattern when pattern is empty.
func WithPhoneValidation(pattern string) CleanerOption {
	return func(c *DataCleaner) {
		c.validatePhones = true
		if pattern != "" {
			c.phonePattern = pattern
		}
	}
}

// WithStrictValidation makes a validation mismatch fail the record instead
// of recording a field-level warning. Default false: warn-only.
func WithStrictValidation(strict bool) CleanerOption {
	return func(c *DataCleaner) { c.strict = strict }
}

// DataCleaner trims whitespace from text fields, normalizes configured
// empty tokens to null, and optionally validates format-constrained fields.
// Validation failures are recorded as field-level warnings in the
// provenance bag unless strict validation is configured.
type DataCleaner struct {
	trim           bool
	emptyTokens    map[string]struct{}
	validateEmails bool
	validatePhones bool
	emailPattern   string
	phonePattern   string
	strict         bool

	emailRe *regexp.Regexp
	phoneRe *regexp.Regexp
}

// NewDataCleaner builds a cleaner, rejecting validation patterns that do
// not compile with a *core.ConfigError.
func NewDataCleaner(opts ...CleanerOption) (*DataCleaner, error) {
	c := &DataCleaner{
		trim:         true,
		emailPattern: defaultEmailPattern,
		phonePattern: defaultPhonePattern,
	}
	WithEmptyTokens(defaultEmptyTokens)(c)
	for _, opt := range opts {
		opt(c)
	}

	var err error
	if c.emailRe, err = regexp.Compile(c.emailPattern); err != nil {
		return nil, &core.ConfigError{
			Section: "data_cleaner",
			Err:     fmt.Errorf("email pattern: %w", err),
		}
	}
	if c.phoneRe, err = regexp.Compile(c.phonePattern); err != nil {
		return nil, &core.ConfigError{
			Section: "data_cleaner",
			Err:     fmt.Errorf("phone pattern: %w", err),
		}
	}
	return c, nil
}

// Name implements core.Transformer.
func (c *DataCleaner) Name() string { return "data_cleaner" }

// Apply implements core.Transformer.
func (c *DataCleaner) Apply(ctx context.Context, record core.Record) (core.Record, error) {
	out := record.Clone()

	for field, value := range record.Fields {
		text, ok := value.(string)
		if !ok {
			continue
		}

		if c.trim {
			text = strings.TrimSpace(text)
		}
		if _, empty := c.emptyTokens[strings.ToLower(text)]; empty {
			out.Fields[field] = nil
			continue
		}

		if c.validateEmails && isEmailField(field) {
			cleaned, err := c.cleanEmail(out, field, text)
			if err != nil {
				return core.Record{}, err
			}
			text = cleaned
		}
		if c.validatePhones && isPhoneField(field) {
			cleaned, err := c.cleanPhone(out, field, text)
			if err != nil {
				return core.Record{}, err
			}
			text = cleaned
		}

		out.Fields[field] = text
	}

	return out, nil
}

func (c *DataCleaner) cleanEmail(record core.Record, field, text string) (string, error) {
	candidate := strings.ToLower(text)
	if c.emailRe.MatchString(candidate) {
		return candidate, nil
	}
	if c.strict {
		return "", &core.FieldError{
			RecordID: record.ID(),
			Field:    field,
			Reason:   core.ReasonValidation,
			Err:      fmt.Errorf("invalid email format"),
		}
	}
	record.AddWarning(fmt.Sprintf("%s: invalid email format", field))
	return text, nil
}

func (c *DataCleaner) cleanPhone(record core.Record, field, text string) (string, error) {
	candidate := phoneStrip.ReplaceAllString(text, "")
	if c.phoneRe.MatchString(candidate) {
		return candidate, nil
	}
	if c.strict {
		return "", &core.FieldError{
			RecordID: record.ID(),
			Field:    field,
			Reason:   core.ReasonValidation,
			Err:      fmt.Errorf("invalid phone format"),
		}
	}
	record.AddWarning(fmt.Sprintf("%s: invalid phone format", field))
	return text, nil
}

func isEmailField(name string) bool {
	lower := strings.ToLower(name)
	return strings.Contains(lower, "email") || strings.Contains(lower, "mail")
}

func isPhoneField(name string) bool {
	lower := strings.ToLower(name)
	for _, hint := range []string{"phone", "tel", "mobile", "cell"} {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}
