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

package extract

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/recordflow/recordflow/core"
)

// KafkaExtractorStats holds counters for one Kafka extraction run.
type KafkaExtractorStats struct {
	MessagesRead int64
	BytesRead    int64
	ReadDuration time.Duration
	LastReadTime time.Time
}

// KafkaExtractorOptions configures the Kafka extractor.
type KafkaExtractorOptions struct {
	Brokers []string // Bootstrap broker addresses
	Topic   string   // Topic to consume
	GroupID string   // Consumer group; empty reads without group coordination

	// MaxMessages bounds the run: the extractor reports end of stream after
	// this many messages. 0 means unbounded.
	MaxMessages int64
	// IdleTimeout ends the stream when no message arrives within the
	// window. 0 disables the idle cutoff.
	IdleTimeout time.Duration

	MinBytes    int
	MaxBytes    int
	StartOffset int64
}

// KafkaOption is a functional option for KafkaExtractorOptions.
type KafkaOption func(*KafkaExtractorOptions)

// WithKafkaBrokers sets the bootstrap broker addresses.
func WithKafkaBrokers(brokers []string) KafkaOption {
	return func(opts *KafkaExtractorOptions) { opts.Brokers = brokers }
}

// WithKafkaTopic sets the topic to consume.
func WithKafkaTopic(topic string) KafkaOption {
	return func(opts *KafkaExtractorOptions) { opts.Topic = topic }
}

// WithKafkaGroupID sets the consumer group.
func WithKafkaGroupID(groupID string) KafkaOption {
	return func(opts *KafkaExtractorOptions) { opts.GroupID = groupID }
}

// WithKafkaMaxMessages bounds the run to at most n messages.
func WithKafkaMaxMessages(n int64) KafkaOption {
	return func(opts *KafkaExtractorOptions) { opts.MaxMessages = n }
}

// WithKafkaIdleTimeout ends the stream after a quiet period.
func WithKafkaIdleTimeout(timeout time.Duration) KafkaOption {
	return func(opts *KafkaExtractorOptions) { opts.IdleTimeout = timeout }
}

// WithKafkaStartOffset sets the offset to start from when no committed
// offset exists (kafka.FirstOffset or kafka.LastOffset).
func WithKafkaStartOffset(offset int64) KafkaOption {
	return func(opts *KafkaExtractorOptions) { opts.StartOffset = offset }
}

// kafkaFetcher is the slice of kafka.Reader the extractor uses. Tests
// substitute an in-memory implementation.
type kafkaFetcher interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaExtractor consumes messages from one Kafka topic. It implements
// core.Extractor: each Next call yields one message's value bytes as the
// raw payload, tagged with topic, partition, offset, key, and the broker
// timestamp. A topic is unbounded by nature, so runs are terminated by the
// message cap, the idle timeout, or context cancellation.
type KafkaExtractor struct {
	opts   *KafkaExtractorOptions
	reader kafkaFetcher
	stats  KafkaExtractorStats
}

// NewKafkaExtractor creates a Kafka extractor with configurable options.
func NewKafkaExtractor(options ...KafkaOption) (*KafkaExtractor, error) {
	opts := &KafkaExtractorOptions{
		MinBytes:    1,
		MaxBytes:    10 << 20, // 10 MiB
		StartOffset: kafka.FirstOffset,
	}
	for _, option := range options {
		option(opts)
	}

	if len(opts.Brokers) == 0 {
		return nil, &core.ConfigError{
			Section: "source.kafka",
			Err:     fmt.Errorf("at least one broker address is required"),
		}
	}
	if opts.Topic == "" {
		return nil, &core.ConfigError{
			Section: "source.kafka",
			Err:     fmt.Errorf("topic is required"),
		}
	}

	readerCfg := kafka.ReaderConfig{
		Brokers:  opts.Brokers,
		Topic:    opts.Topic,
		GroupID:  opts.GroupID,
		MinBytes: opts.MinBytes,
		MaxBytes: opts.MaxBytes,
	}
	// StartOffset only applies to group consumers.
	if opts.GroupID != "" {
		readerCfg.StartOffset = opts.StartOffset
	}
	reader := kafka.NewReader(readerCfg)

	return &KafkaExtractor{opts: opts, reader: reader}, nil
}

// Next implements core.Extractor.
func (ke *KafkaExtractor) Next(ctx context.Context) (core.RawItem, error) {
	if ke.opts.MaxMessages > 0 && ke.stats.MessagesRead >= ke.opts.MaxMessages {
		return core.RawItem{}, io.EOF
	}

	fetchCtx := ctx
	if ke.opts.IdleTimeout > 0 {
		var cancel context.CancelFunc
		fetchCtx, cancel = context.WithTimeout(ctx, ke.opts.IdleTimeout)
		defer cancel()
	}

	start := time.Now()
	msg, err := ke.reader.FetchMessage(fetchCtx)
	ke.stats.ReadDuration += time.Since(start)
	ke.stats.LastReadTime = time.Now()

	if err != nil {
		// A quiet topic hit the idle cutoff: treat as end of stream unless
		// the caller's own context was cancelled.
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return core.RawItem{}, io.EOF
		}
		if errors.Is(err, io.EOF) {
			return core.RawItem{}, io.EOF
		}
		return core.RawItem{}, &core.CollaboratorError{
			Collaborator: "extractor",
			Op:           "fetch",
			Err:          err,
		}
	}

	// Group consumers must commit what they consumed, or every restart
	// replays the topic from the last committed offset.
	if ke.opts.GroupID != "" {
		if err := ke.reader.CommitMessages(ctx, msg); err != nil {
			return core.RawItem{}, &core.CollaboratorError{
				Collaborator: "extractor",
				Op:           "commit",
				Err:          err,
			}
		}
	}

	ke.stats.MessagesRead++
	ke.stats.BytesRead += int64(len(msg.Value))

	meta := core.Metadata{
		core.MetaSourceType: "kafka",
		core.MetaTopic:      msg.Topic,
		core.MetaPartition:  msg.Partition,
		core.MetaOffset:     msg.Offset,
		core.MetaTimestamp:  msg.Time,
	}
	if len(msg.Key) > 0 {
		meta[core.MetaKey] = string(msg.Key)
	}

	return core.RawItem{Payload: msg.Value, Meta: meta}, nil
}

// Close implements core.Extractor.
func (ke *KafkaExtractor) Close() error {
	if err := ke.reader.Close(); err != nil {
		return &core.CollaboratorError{
			Collaborator: "extractor",
			Op:           "close",
			Err:          err,
		}
	}
	return nil
}

// Stats returns extraction counters for the run so far.
func (ke *KafkaExtractor) Stats() KafkaExtractorStats { return ke.stats }
