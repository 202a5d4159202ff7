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
	"time"

	"github.com/recordflow/recordflow/core"
	"github.com/recordflow/recordflow/extract"
	"github.com/recordflow/recordflow/load"
	"github.com/recordflow/recordflow/parse"
	"github.com/recordflow/recordflow/transform"
)

// This file turns a validated Config into live pipeline components.

// BuildExtractor constructs the extractor declared by the source section.
func (c *Config) BuildExtractor() (core.Extractor, error) {
	switch c.Source.Type {
	case "kafka":
		opts := []extract.KafkaOption{
			extract.WithKafkaBrokers(c.Source.Kafka.Brokers),
			extract.WithKafkaTopic(c.Source.Kafka.Topic),
		}
		if c.Source.Kafka.GroupID != "" {
			opts = append(opts, extract.WithKafkaGroupID(c.Source.Kafka.GroupID))
		}
		if c.Source.Kafka.MaxMessages > 0 {
			opts = append(opts, extract.WithKafkaMaxMessages(c.Source.Kafka.MaxMessages))
		}
		if c.Source.Kafka.IdleTimeout > 0 {
			opts = append(opts, extract.WithKafkaIdleTimeout(time.Duration(c.Source.Kafka.IdleTimeout)))
		}
		return extract.NewKafkaExtractor(opts...)

	case "mongodb":
		opts := []extract.MongoOption{
			extract.WithMongoDatabase(c.Source.MongoDB.Database),
			extract.WithMongoCollection(c.Source.MongoDB.Collection),
		}
		if c.Source.MongoDB.URI != "" {
			opts = append(opts, extract.WithMongoURI(c.Source.MongoDB.URI))
		}
		if c.Source.MongoDB.Limit > 0 {
			opts = append(opts, extract.WithMongoLimit(c.Source.MongoDB.Limit))
		}
		if c.Source.MongoDB.Username != "" {
			opts = append(opts, extract.WithMongoAuth(
				c.Source.MongoDB.Username,
				c.Source.MongoDB.Password,
				c.Source.MongoDB.AuthSource,
			))
		}
		return extract.NewMongoExtractor(opts...)

	default:
		return nil, &core.ConfigError{
			Section: "source",
			Err:     fmt.Errorf("unsupported type %q", c.Source.Type),
		}
	}
}

// BuildParser constructs the parser matching the source type.
func (c *Config) BuildParser() (core.Parser, error) {
	switch c.Source.Type {
	case "kafka":
		var opts []parse.JSONParserOption
		if c.Source.Parser.HandleMalformed {
			opts = append(opts, parse.WithMalformedMode(parse.MalformedKeep))
		}
		return parse.NewJSONParser(opts...), nil
	case "mongodb":
		return parse.NewBSONParser(), nil
	default:
		return nil, &core.ConfigError{
			Section: "source",
			Err:     fmt.Errorf("unsupported type %q", c.Source.Type),
		}
	}
}

// BuildChain constructs the transformation chain from the enabled passes,
// in the fixed relative order.
func (c *Config) BuildChain() (*transform.Chain, error) {
	var stages []core.Transformer

	if enabled(c.Transform.FieldMapper.Enabled) {
		opts := []transform.MapperOption{
			transform.WithCaseSensitive(c.Transform.FieldMapper.CaseSensitive),
		}
		if c.Transform.FieldMapper.KeepUnmapped != nil {
			opts = append(opts, transform.WithKeepUnmapped(*c.Transform.FieldMapper.KeepUnmapped))
		}
		mapper, err := transform.NewFieldMapper(c.Transform.FieldMapper.Mappings, opts...)
		if err != nil {
			return nil, err
		}
		stages = append(stages, mapper)
	}

	if enabled(c.Transform.TypeConverter.Enabled) {
		rules := make(map[string]transform.ConversionRule, len(c.Transform.TypeConverter.Rules))
		for field, rule := range c.Transform.TypeConverter.Rules {
			rules[field] = transform.ConversionRule{
				Type:   transform.TypeName(rule.Type),
				Policy: transform.Policy(rule.Policy),
			}
		}
		var opts []transform.ConverterOption
		if len(c.Transform.TypeConverter.TimeLayouts) > 0 {
			opts = append(opts, transform.WithTimeLayouts(c.Transform.TypeConverter.TimeLayouts))
		}
		converter, err := transform.NewTypeConverter(rules, opts...)
		if err != nil {
			return nil, err
		}
		stages = append(stages, converter)
	}

	if enabled(c.Transform.Flattener.Enabled) {
		flattener, err := transform.NewFlattener(
			c.Transform.Flattener.Separator,
			c.Transform.Flattener.MaxDepth,
			transform.WithArrayMode(transform.ArrayMode(c.Transform.Flattener.ArrayHandling)),
		)
		if err != nil {
			return nil, err
		}
		stages = append(stages, flattener)
	}

	if enabled(c.Transform.DataCleaner.Enabled) {
		opts := []transform.CleanerOption{
			transform.WithStrictValidation(c.Transform.DataCleaner.Strict),
		}
		if c.Transform.DataCleaner.TrimWhitespace != nil {
			opts = append(opts, transform.WithTrimWhitespace(*c.Transform.DataCleaner.TrimWhitespace))
		}
		if len(c.Transform.DataCleaner.EmptyTokens) > 0 {
			opts = append(opts, transform.WithEmptyTokens(c.Transform.DataCleaner.EmptyTokens))
		}
		if c.Transform.DataCleaner.ValidateEmails {
			opts = append(opts, transform.WithEmailValidation(c.Transform.DataCleaner.EmailPattern))
		}
		if c.Transform.DataCleaner.ValidatePhones {
			opts = append(opts, transform.WithPhoneValidation(c.Transform.DataCleaner.PhonePattern))
		}
		cleaner, err := transform.NewDataCleaner(opts...)
		if err != nil {
			return nil, err
		}
		stages = append(stages, cleaner)
	}

	if enabled(c.Transform.MetadataEnricher.Enabled) {
		opts := []transform.EnricherOption{
			transform.WithCreatedAtField(c.Transform.MetadataEnricher.CreatedAtField),
		}
		if c.Transform.MetadataEnricher.ProcessedAtField != "" {
			opts = append(opts, transform.WithProcessedAtField(c.Transform.MetadataEnricher.ProcessedAtField))
		}
		if c.Transform.MetadataEnricher.IDField != "" {
			opts = append(opts, transform.WithIDField(c.Transform.MetadataEnricher.IDField))
		}
		stages = append(stages, transform.NewMetadataEnricher(opts...))
	}

	return transform.NewChain(stages...), nil
}

// BuildLoader constructs the loader declared by the target section.
func (c *Config) BuildLoader() (core.Loader, error) {
	return load.NewSQLLoader(
		load.WithSQLDialect(c.Target.Type),
		load.WithSQLDSN(c.Target.DSN),
		load.WithSQLTable(c.Target.Table),
		load.WithSQLCreateTable(c.Target.CreateTable),
		load.WithSQLTruncate(c.Target.Truncate),
	)
}
