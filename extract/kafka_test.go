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
	"io"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recordflow/recordflow/core"
)

// In-memory fetcher standing in for a live broker.
type fakeFetcher struct {
	messages  []kafka.Message
	pos       int
	fetchErr  error
	commitErr error
	committed []kafka.Message
	closed    bool
}

func (f *fakeFetcher) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if f.fetchErr != nil {
		return kafka.Message{}, f.fetchErr
	}
	if f.pos >= len(f.messages) {
		return kafka.Message{}, context.DeadlineExceeded
	}
	msg := f.messages[f.pos]
	f.pos++
	return msg, nil
}

func (f *fakeFetcher) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.commitErr != nil {
		return f.commitErr
	}
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeFetcher) Close() error {
	f.closed = true
	return nil
}

func newFakeKafkaExtractor(t *testing.T, fetcher *fakeFetcher, opts ...KafkaOption) *KafkaExtractor {
	t.Helper()
	base := []KafkaOption{
		WithKafkaBrokers([]string{"localhost:9092"}),
		WithKafkaTopic("users"),
	}
	ke, err := NewKafkaExtractor(append(base, opts...)...)
	require.NoError(t, err)
	ke.reader.Close()
	ke.reader = fetcher
	return ke
}

func TestKafkaExtractor_RequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafkaExtractor(WithKafkaTopic("users"))
	require.Error(t, err)
	var ce *core.ConfigError
	require.True(t, errors.As(err, &ce))

	_, err = NewKafkaExtractor(WithKafkaBrokers([]string{"localhost:9092"}))
	require.Error(t, err)
}

func TestKafkaExtractor_MessageMetadata(t *testing.T) {
	sent := time.Date(2025, 6, 15, 9, 30, 0, 0, time.UTC)
	fetcher := &fakeFetcher{messages: []kafka.Message{
		{
			Topic:     "users",
			Partition: 2,
			Offset:    41,
			Key:       []byte("user-7"),
			Value:     []byte(`{"name":"Alice"}`),
			Time:      sent,
		},
	}}
	ke := newFakeKafkaExtractor(t, fetcher)

	item, err := ke.Next(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []byte(`{"name":"Alice"}`), item.Payload)
	assert.Equal(t, "kafka", item.Meta[core.MetaSourceType])
	assert.Equal(t, "users", item.Meta[core.MetaTopic])
	assert.Equal(t, 2, item.Meta[core.MetaPartition])
	assert.Equal(t, int64(41), item.Meta[core.MetaOffset])
	assert.Equal(t, "user-7", item.Meta[core.MetaKey])
	assert.Equal(t, sent, item.Meta[core.MetaTimestamp])
}

func TestKafkaExtractor_MaxMessagesEndsStream(t *testing.T) {
	fetcher := &fakeFetcher{messages: []kafka.Message{
		{Value: []byte("1")}, {Value: []byte("2")}, {Value: []byte("3")},
	}}
	ke := newFakeKafkaExtractor(t, fetcher, WithKafkaMaxMessages(2))

	ctx := context.Background()
	_, err := ke.Next(ctx)
	require.NoError(t, err)
	_, err = ke.Next(ctx)
	require.NoError(t, err)

	_, err = ke.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, int64(2), ke.Stats().MessagesRead)
}

func TestKafkaExtractor_IdleTimeoutEndsStream(t *testing.T) {
	fetcher := &fakeFetcher{} // no messages: fetch reports deadline exceeded
	ke := newFakeKafkaExtractor(t, fetcher, WithKafkaIdleTimeout(10*time.Millisecond))

	_, err := ke.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestKafkaExtractor_BrokerFaultIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{fetchErr: errors.New("broker unreachable")}
	ke := newFakeKafkaExtractor(t, fetcher)

	_, err := ke.Next(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))

	var ce *core.CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "extractor", ce.Collaborator)
	assert.Equal(t, "fetch", ce.Op)
}

func TestKafkaExtractor_GroupConsumerCommitsOffsets(t *testing.T) {
	fetcher := &fakeFetcher{messages: []kafka.Message{
		{Offset: 10, Value: []byte("1")},
		{Offset: 11, Value: []byte("2")},
	}}
	ke := newFakeKafkaExtractor(t, fetcher, WithKafkaGroupID("recordflow"))

	ctx := context.Background()
	_, err := ke.Next(ctx)
	require.NoError(t, err)
	_, err = ke.Next(ctx)
	require.NoError(t, err)

	require.Len(t, fetcher.committed, 2)
	assert.Equal(t, int64(10), fetcher.committed[0].Offset)
	assert.Equal(t, int64(11), fetcher.committed[1].Offset)
}

func TestKafkaExtractor_GrouplessConsumerNeverCommits(t *testing.T) {
	fetcher := &fakeFetcher{messages: []kafka.Message{{Value: []byte("1")}}}
	ke := newFakeKafkaExtractor(t, fetcher)

	_, err := ke.Next(context.Background())
	require.NoError(t, err)
	assert.Empty(t, fetcher.committed)
}

func TestKafkaExtractor_CommitFaultIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{
		messages:  []kafka.Message{{Value: []byte("1")}},
		commitErr: errors.New("coordinator unavailable"),
	}
	ke := newFakeKafkaExtractor(t, fetcher, WithKafkaGroupID("recordflow"))

	_, err := ke.Next(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))

	var ce *core.CollaboratorError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "commit", ce.Op)
}

func TestKafkaExtractor_Close(t *testing.T) {
	fetcher := &fakeFetcher{}
	ke := newFakeKafkaExtractor(t, fetcher)

	require.NoError(t, ke.Close())
	assert.True(t, fetcher.closed)
}
