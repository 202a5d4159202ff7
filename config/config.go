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

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/recordflow/recordflow/core"
	"github.com/recordflow/recordflow/transform"
)

// Package config defines the YAML configuration surface of a pipeline and
// the consistency checks behind validate mode. A Config is declarative: it
// is inspected and validated without touching any source or target system.

// Config is the root configuration document.
type Config struct {
	Source    Source    `yaml:"source"`
	Target    Target    `yaml:"target"`
	Transform Transform `yaml:"transform"`
	Pipeline  Pipeline  `yaml:"pipeline"`
}

// Source declares where records come from.
type Source struct {
	Type    string        `yaml:"type"` // "kafka" or "mongodb"
	Kafka   KafkaSource   `yaml:"kafka"`
	MongoDB MongoDBSource `yaml:"mongodb"`
	Parser  ParserConfig  `yaml:"parser"`
}

// Duration decodes YAML duration strings like "5s" or "2m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var text string
	if err := value.Decode(&text); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	*d = Duration(parsed)
	return nil
}

// KafkaSource configures the Kafka extractor.
type KafkaSource struct {
	Brokers     []string `yaml:"brokers"`
	Topic       string   `yaml:"topic"`
	GroupID     string   `yaml:"group_id"`
	MaxMessages int64    `yaml:"max_messages"`
	IdleTimeout Duration `yaml:"idle_timeout"`
}

// MongoDBSource configures the MongoDB extractor.
type MongoDBSource struct {
	URI        string `yaml:"uri"`
	Database   string `yaml:"database"`
	Collection string `yaml:"collection"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	AuthSource string `yaml:"auth_source"`
	Limit      int64  `yaml:"limit"`
}

// ParserConfig configures payload parsing.
type ParserConfig struct {
	// HandleMalformed keeps undecodable payloads as raw-text records
	// instead of rejecting them.
	HandleMalformed bool `yaml:"handle_malformed"`
}

// Target declares where normalized records go.
type Target struct {
	Type        string `yaml:"type"` // "postgres" or "sqlserver"
	DSN         string `yaml:"dsn"`
	Table       string `yaml:"table"`
	CreateTable bool   `yaml:"create_table"`
	Truncate    bool   `yaml:"truncate_before_load"`
}

// Transform holds the per-pass configuration. Passes always run in the
// fixed relative order below; disabling a pass removes it from the chain.
type Transform struct {
	FieldMapper      FieldMapperConfig      `yaml:"field_mapper"`
	TypeConverter    TypeConverterConfig    `yaml:"type_converter"`
	Flattener        FlattenerConfig        `yaml:"flattener"`
	DataCleaner      DataCleanerConfig      `yaml:"data_cleaner"`
	MetadataEnricher MetadataEnricherConfig `yaml:"metadata_enricher"`
}

// FieldMapperConfig configures alias-to-canonical renaming.
type FieldMapperConfig struct {
	Enabled       *bool                          `yaml:"enabled"`
	Mappings      map[string]map[string][]string `yaml:"mappings"`
	KeepUnmapped  *bool                          `yaml:"keep_unmapped"`
	CaseSensitive bool                           `yaml:"case_sensitive"`
}

// ConversionRuleConfig declares one field's target type and fallback
// policy.
type ConversionRuleConfig struct {
	Type   string `yaml:"type"`
	Policy string `yaml:"policy"`
}

// TypeConverterConfig configures declared type conversion.
type TypeConverterConfig struct {
	Enabled     *bool                           `yaml:"enabled"`
	Rules       map[string]ConversionRuleConfig `yaml:"rules"`
	TimeLayouts []string                        `yaml:"time_layouts"`
}

// FlattenerConfig configures nested structure flattening.
type FlattenerConfig struct {
	Enabled       *bool  `yaml:"enabled"`
	Separator     string `yaml:"separator"`
	MaxDepth      int    `yaml:"max_depth"`
	ArrayHandling string `yaml:"array_handling"`
}

// DataCleanerConfig configures text cleanup and format validation.
type DataCleanerConfig struct {
	Enabled        *bool    `yaml:"enabled"`
	TrimWhitespace *bool    `yaml:"trim_whitespace"`
	EmptyTokens    []string `yaml:"empty_tokens"`
	ValidateEmails bool     `yaml:"validate_emails"`
	EmailPattern   string   `yaml:"email_pattern"`
	ValidatePhones bool     `yaml:"validate_phones"`
	PhonePattern   string   `yaml:"phone_pattern"`
	Strict         bool     `yaml:"strict"`
}

// MetadataEnricherConfig configures record stamping.
type MetadataEnricherConfig struct {
	Enabled          *bool  `yaml:"enabled"`
	CreatedAtField   string `yaml:"created_at_field"`
	ProcessedAtField string `yaml:"processed_at_field"`
	IDField          string `yaml:"id_field"`
}

// Pipeline holds run-level settings.
type Pipeline struct {
	Name      string `yaml:"name"`
	BatchSize int    `yaml:"batch_size"`
	LogLevel  string `yaml:"log_level"`
}

// Load reads and decodes a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &core.ConfigError{Section: "file", Err: err}
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &core.ConfigError{Section: "file", Err: fmt.Errorf("decode yaml: %w", err)}
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Pipeline.BatchSize <= 0 {
		c.Pipeline.BatchSize = 100
	}
	if c.Pipeline.LogLevel == "" {
		c.Pipeline.LogLevel = "info"
	}
	if c.Transform.Flattener.Separator == "" {
		c.Transform.Flattener.Separator = "."
	}
	if c.Transform.Flattener.MaxDepth <= 0 {
		c.Transform.Flattener.MaxDepth = 10
	}
	if c.Transform.Flattener.ArrayHandling == "" {
		c.Transform.Flattener.ArrayHandling = string(transform.ArrayIndex)
	}
	if c.Transform.MetadataEnricher.CreatedAtField == "" {
		c.Transform.MetadataEnricher.CreatedAtField = "createdAt"
	}
}

// ValidationReport collects the findings of a validate-mode pass.
type ValidationReport struct {
	Errors   []string
	Warnings []string
}

// Valid reports whether the configuration can drive a run.
func (r *ValidationReport) Valid() bool { return len(r.Errors) == 0 }

func (r *ValidationReport) errorf(format string, args ...interface{}) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *ValidationReport) warnf(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Validate checks the configuration for internal consistency without
// contacting any collaborator. It reports every finding rather than
// stopping at the first.
func (c *Config) Validate() *ValidationReport {
	report := &ValidationReport{}

	c.validateSource(report)
	c.validateTarget(report)
	c.validateTransform(report)

	if c.Pipeline.BatchSize < 1 {
		report.errorf("pipeline: batch_size must be at least 1, got %d", c.Pipeline.BatchSize)
	}
	switch c.Pipeline.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		report.warnf("pipeline: unknown log_level %q, using info", c.Pipeline.LogLevel)
	}

	return report
}

func (c *Config) validateSource(report *ValidationReport) {
	switch c.Source.Type {
	case "kafka":
		if len(c.Source.Kafka.Brokers) == 0 {
			report.errorf("source.kafka: at least one broker address is required")
		}
		if c.Source.Kafka.Topic == "" {
			report.errorf("source.kafka: topic is required")
		}
		if c.Source.Kafka.MaxMessages == 0 && c.Source.Kafka.IdleTimeout == 0 {
			report.warnf("source.kafka: neither max_messages nor idle_timeout set, run ends only on cancellation")
		}
	case "mongodb":
		if c.Source.MongoDB.Database == "" {
			report.errorf("source.mongodb: database is required")
		}
		if c.Source.MongoDB.Collection == "" {
			report.errorf("source.mongodb: collection is required")
		}
	case "":
		report.errorf("source: type is required")
	default:
		report.errorf("source: unsupported type %q", c.Source.Type)
	}

	// Alias matching at runtime follows the mapper's case rule, so the
	// duplicate check here must normalize the same way.
	normalize := func(name string) string {
		if c.Transform.FieldMapper.CaseSensitive {
			return name
		}
		return strings.ToLower(name)
	}
	for sourceType, table := range c.Transform.FieldMapper.Mappings {
		switch sourceType {
		case "kafka", "mongodb":
			if c.Source.Type != "" && sourceType != c.Source.Type {
				report.warnf("transform.field_mapper: mappings for source %q never apply to a %q source",
					sourceType, c.Source.Type)
			}
		default:
			report.errorf("transform.field_mapper: unrecognized source type %q in mappings", sourceType)
		}

		seen := make(map[string]string)
		for canonical, aliases := range table {
			for _, alias := range aliases {
				key := normalize(alias)
				if prev, dup := seen[key]; dup && prev != canonical {
					report.errorf("transform.field_mapper: source %q: alias %q mapped to both %q and %q",
						sourceType, alias, prev, canonical)
				}
				seen[key] = canonical
			}
		}
	}
}

func (c *Config) validateTarget(report *ValidationReport) {
	switch c.Target.Type {
	case "postgres", "sqlserver":
		if c.Target.DSN == "" {
			report.errorf("target: dsn is required")
		}
		if c.Target.Table == "" {
			report.errorf("target: table is required")
		}
	case "":
		report.errorf("target: type is required")
	default:
		report.errorf("target: unsupported type %q", c.Target.Type)
	}
}

func (c *Config) validateTransform(report *ValidationReport) {
	for field, rule := range c.Transform.TypeConverter.Rules {
		switch transform.TypeName(rule.Type) {
		case transform.TypeInt, transform.TypeFloat, transform.TypeBool,
			transform.TypeString, transform.TypeTimestamp:
		default:
			report.errorf("transform.type_converter: field %q: unknown target type %q", field, rule.Type)
		}
		switch transform.Policy(rule.Policy) {
		case "", transform.PolicyStrict, transform.PolicyDefault, transform.PolicyNull:
		default:
			report.errorf("transform.type_converter: field %q: unknown policy %q", field, rule.Policy)
		}
	}

	if c.Transform.Flattener.Separator == "" {
		report.errorf("transform.flattener: separator must not be empty")
	}
	if c.Transform.Flattener.MaxDepth < 1 {
		report.errorf("transform.flattener: max_depth must be at least 1")
	}
	switch transform.ArrayMode(c.Transform.Flattener.ArrayHandling) {
	case transform.ArrayIndex, transform.ArraySerialize:
	default:
		report.errorf("transform.flattener: unknown array_handling %q", c.Transform.Flattener.ArrayHandling)
	}

	if p := c.Transform.DataCleaner.EmailPattern; p != "" {
		if _, err := regexp.Compile(p); err != nil {
			report.errorf("transform.data_cleaner: email_pattern does not compile: %v", err)
		}
	}
	if p := c.Transform.DataCleaner.PhonePattern; p != "" {
		if _, err := regexp.Compile(p); err != nil {
			report.errorf("transform.data_cleaner: phone_pattern does not compile: %v", err)
		}
	}
}

// enabled interprets a tri-state enabled flag: nil means on.
func enabled(flag *bool) bool {
	return flag == nil || *flag
}
