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
	"strconv"
	"strings"
	"time"

	"github.com/recordflow/recordflow/core"
)

// TypeName is a declared conversion target.
type TypeName string

const (
	TypeInt       TypeName = "int"
	TypeFloat     TypeName = "float"
	TypeBool      TypeName = "bool"
	TypeString    TypeName = "string"
	TypeTimestamp TypeName = "timestamp"
)

// Policy decides what happens to a value that cannot be converted.
type Policy string

const (
	// PolicyStrict fails the whole record on a parse failure.
	PolicyStrict Policy = "strict"
	// PolicyDefault substitutes the target type's zero value.
	PolicyDefault Policy = "default"
	// PolicyNull substitutes an explicit null.
	PolicyNull Policy = "null"
)

// ConversionRule declares a field's target type and fallback policy.
type ConversionRule struct {
	Type   TypeName
	Policy Policy
}

// Wildcard matches every field that has no dedicated rule.
const Wildcard = "*"

// Timestamp layouts tried in order when no layouts are configured.
var defaultTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
	"01/02/2006",
}

// Boolean token grammar, matched case-insensitively after trimming.
var (
	truthyTokens = map[string]bool{"true": true, "yes": true, "1": true, "on": true}
	falsyTokens  = map[string]bool{"false": true, "no": true, "0": true, "off": true}
)

// ConverterOption configures a TypeConverter.
type ConverterOption func(*TypeConverter)

// WithTimeLayouts sets the timestamp layouts tried in order.
func WithTimeLayouts(layouts []string) ConverterOption {
	return func(c *TypeConverter) {
		if len(layouts) > 0 {
			c.layouts = append([]string(nil), layouts...)
		}
	}
}

// TypeConverter converts rule-covered fields to their declared target
// types. After this pass a converted field holds a value of its declared
// type or an explicit nil, never a raw unconverted string.
type TypeConverter struct {
	rules   map[string]ConversionRule
	layouts []string
}

// NewTypeConverter builds a type converter, rejecting unknown target types
// or policies with a *core.ConfigError.
func NewTypeConverter(rules map[string]ConversionRule, opts ...ConverterOption) (*TypeConverter, error) {
	c := &TypeConverter{
		rules:   make(map[string]ConversionRule, len(rules)),
		layouts: defaultTimeLayouts,
	}
	for field, rule := range rules {
		if rule.Policy == "" {
			rule.Policy = PolicyDefault
		}
		switch rule.Type {
		case TypeInt, TypeFloat, TypeBool, TypeString, TypeTimestamp:
		default:
			return nil, &core.ConfigError{
				Section: "type_converter",
				Err:     fmt.Errorf("field %q: unknown target type %q", field, rule.Type),
			}
		}
		switch rule.Policy {
		case PolicyStrict, PolicyDefault, PolicyNull:
		default:
			return nil, &core.ConfigError{
				Section: "type_converter",
				Err:     fmt.Errorf("field %q: unknown policy %q", field, rule.Policy),
			}
		}
		c.rules[field] = rule
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name implements core.Transformer.
func (c *TypeConverter) Name() string { return "type_converter" }

// Apply implements core.Transformer.
func (c *TypeConverter) Apply(ctx context.Context, record core.Record) (core.Record, error) {
	out := record.Clone()

	for field, value := range record.Fields {
		rule, ok := c.rules[field]
		if !ok {
			rule, ok = c.rules[Wildcard]
		}
		if !ok {
			continue
		}
		if value == nil {
			continue
		}

		converted, err := c.convert(value, rule.Type)
		if err == nil {
			out.Fields[field] = converted
			continue
		}

		switch rule.Policy {
		case PolicyNull:
			out.Fields[field] = nil
		case PolicyDefault:
			out.Fields[field] = zeroValue(rule.Type)
		default:
			return core.Record{}, &core.FieldError{
				RecordID: record.ID(),
				Field:    field,
				Reason:   core.ReasonTypeConversion,
				Err:      err,
			}
		}
	}

	return out, nil
}

func (c *TypeConverter) convert(value interface{}, target TypeName) (interface{}, error) {
	switch target {
	case TypeInt:
		return toInt(value)
	case TypeFloat:
		return toFloat(value)
	case TypeBool:
		return toBool(value)
	case TypeString:
		return toString(value), nil
	case TypeTimestamp:
		return c.toTimestamp(value)
	}
	return nil, fmt.Errorf("unknown target type %q", target)
}

func toInt(value interface{}) (int64, error) {
	switch v := value.(type) {
	case int:
		return int64(v), nil
	case int32:
		return int64(v), nil
	case int64:
		return v, nil
	case float64:
		return int64(v), nil
	case float32:
		return int64(v), nil
	case string:
		s := strings.TrimSpace(v)
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
		// Accept numerals in float form, e.g. "30.0".
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), nil
		}
		return 0, fmt.Errorf("cannot parse %q as int", v)
	default:
		return 0, fmt.Errorf("cannot convert %T to int", value)
	}
}

func toFloat(value interface{}) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as float", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("cannot convert %T to float", value)
	}
}

func toBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case string:
		token := strings.ToLower(strings.TrimSpace(v))
		if truthyTokens[token] {
			return true, nil
		}
		if falsyTokens[token] {
			return false, nil
		}
		return false, fmt.Errorf("cannot parse %q as bool", v)
	default:
		return false, fmt.Errorf("cannot convert %T to bool", value)
	}
}

func toString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case bool:
		return strconv.FormatBool(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func (c *TypeConverter) toTimestamp(value interface{}) (interface{}, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range c.layouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return nil, fmt.Errorf("cannot parse %q with any configured layout", v)
	default:
		return nil, fmt.Errorf("cannot convert %T to timestamp", value)
	}
}

func zeroValue(target TypeName) interface{} {
	switch target {
	case TypeInt:
		return int64(0)
	case TypeFloat:
		return float64(0)
	case TypeBool:
		return false
	case TypeString:
		return ""
	default:
		// No sensible zero exists for a timestamp.
		return nil
	}
}
