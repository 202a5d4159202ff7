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

package recordflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/charmbracelet/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recordflow/recordflow/core"
	"github.com/recordflow/recordflow/parse"
	"github.com/recordflow/recordflow/transform"
)

// Fake extractor feeding a fixed list of payloads.
type fakeExtractor struct {
	items  []core.RawItem
	pos    int
	failAt int // item index at which Next reports a collaborator fault, -1 for never
	closed bool
}

func newFakeExtractor(payloads ...string) *fakeExtractor {
	fe := &fakeExtractor{failAt: -1}
	for i, payload := range payloads {
		fe.items = append(fe.items, core.RawItem{
			Payload: []byte(payload),
			Meta: core.Metadata{
				core.MetaSourceType: "kafka",
				core.MetaRecordID:   fmt.Sprintf("r%d", i+1),
			},
		})
	}
	return fe
}

func (fe *fakeExtractor) Next(ctx context.Context) (core.RawItem, error) {
	if fe.failAt >= 0 && fe.pos == fe.failAt {
		return core.RawItem{}, &core.CollaboratorError{
			Collaborator: "extractor", Op: "read", Err: errors.New("source down"),
		}
	}
	if fe.pos >= len(fe.items) {
		return core.RawItem{}, io.EOF
	}
	item := fe.items[fe.pos]
	fe.pos++
	return item, nil
}

func (fe *fakeExtractor) Close() error {
	fe.closed = true
	return nil
}

// Fake loader capturing every batch it receives.
type fakeLoader struct {
	batches  [][]core.Record
	rejectID string // record id the target rejects, "" for none
	loadErr  error  // total failure, when set
	closed   bool
}

func (fl *fakeLoader) Load(ctx context.Context, batch *core.Batch) ([]core.LoadOutcome, error) {
	if fl.loadErr != nil {
		return nil, fl.loadErr
	}
	records := batch.Records()
	copied := make([]core.Record, len(records))
	copy(copied, records)
	fl.batches = append(fl.batches, copied)

	outcomes := make([]core.LoadOutcome, len(records))
	for i, rec := range records {
		if fl.rejectID != "" && rec.ID() == fl.rejectID {
			outcomes[i] = core.LoadOutcome{Err: errors.New("constraint violation")}
			continue
		}
		outcomes[i] = core.LoadOutcome{Persisted: true}
	}
	return outcomes, nil
}

func (fl *fakeLoader) Close() error {
	fl.closed = true
	return nil
}

func testChain(t *testing.T) *transform.Chain {
	t.Helper()
	conv, err := transform.NewTypeConverter(map[string]transform.ConversionRule{
		"age": {Type: transform.TypeInt, Policy: transform.PolicyStrict},
	})
	require.NoError(t, err)
	return transform.NewChain(conv)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func newTestPipeline(t *testing.T, fe *fakeExtractor, fl *fakeLoader, opts ...PipelineOption) *Pipeline {
	t.Helper()
	var loader core.Loader
	if fl != nil {
		loader = fl
	}
	base := []PipelineOption{WithLogger(quietLogger()), WithBatchSize(2)}
	p, err := NewPipeline(fe, parse.NewJSONParser(), testChain(t), loader, append(base, opts...)...)
	require.NoError(t, err)
	return p
}

func TestPipeline_HappyPath(t *testing.T) {
	fe := newFakeExtractor(
		`{"name":"a","age":"1"}`,
		`{"name":"b","age":"2"}`,
		`{"name":"c","age":"3"}`,
	)
	fl := &fakeLoader{}
	p := newTestPipeline(t, fe, fl)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, p.State())
	assert.Equal(t, 3, stats.Extracted)
	assert.Equal(t, 3, stats.Parsed)
	assert.Equal(t, 3, stats.Transformed)
	assert.Equal(t, 3, stats.Loaded)
	assert.Zero(t, stats.Failed())
	// Two records per batch plus the final partial one.
	assert.Equal(t, 2, stats.Batches)
	require.Len(t, fl.batches, 2)
	assert.Len(t, fl.batches[0], 2)
	assert.Len(t, fl.batches[1], 1)

	assert.True(t, fe.closed)
	assert.True(t, fl.closed)
}

func TestPipeline_MalformedRecordDoesNotAbort(t *testing.T) {
	fe := newFakeExtractor(
		`{"name":"a","age":"1"}`,
		`{not json`,
		`{"name":"c","age":"3"}`,
	)
	fl := &fakeLoader{}
	p := newTestPipeline(t, fe, fl)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Extracted)
	assert.Equal(t, 2, stats.Parsed)
	assert.Equal(t, 1, stats.ParseFailures)
	assert.Equal(t, 2, stats.Loaded)
	assert.Equal(t, StateCompleted, p.State())
}

func TestPipeline_TransformFailureDropsOnlyThatRecord(t *testing.T) {
	fe := newFakeExtractor(
		`{"name":"a","age":"1"}`,
		`{"name":"b","age":"not a number"}`,
		`{"name":"c","age":"3"}`,
	)
	fl := &fakeLoader{}
	p := newTestPipeline(t, fe, fl)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.TransformFailures)
	assert.Equal(t, 2, stats.Loaded)
}

func TestPipeline_SurvivorOrderPreserved(t *testing.T) {
	fe := newFakeExtractor(
		`{"name":"a","age":"1"}`,
		`{"name":"b","age":"bad"}`,
		`{"name":"c","age":"3"}`,
		`{"name":"d","age":"4"}`,
	)
	fl := &fakeLoader{}
	p := newTestPipeline(t, fe, fl, WithBatchSize(10))

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, fl.batches, 1)
	loaded := fl.batches[0]
	require.Len(t, loaded, 3)
	assert.Equal(t, "a", loaded[0].Fields["name"])
	assert.Equal(t, "c", loaded[1].Fields["name"])
	assert.Equal(t, "d", loaded[2].Fields["name"])
}

func TestPipeline_BatchNeverExceedsBound(t *testing.T) {
	var payloads []string
	for i := 0; i < 7; i++ {
		payloads = append(payloads, fmt.Sprintf(`{"n":"%d","age":"%d"}`, i, i))
	}
	fe := newFakeExtractor(payloads...)
	fl := &fakeLoader{}
	p := newTestPipeline(t, fe, fl, WithBatchSize(3))

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Batches)
	for _, batch := range fl.batches {
		assert.LessOrEqual(t, len(batch), 3)
	}
	require.Len(t, fl.batches, 3)
	assert.Len(t, fl.batches[2], 1)
}

func TestPipeline_DryRunCapsExtraction(t *testing.T) {
	var payloads []string
	for i := 0; i < 50; i++ {
		payloads = append(payloads, fmt.Sprintf(`{"n":"%d"}`, i))
	}
	fe := newFakeExtractor(payloads...)
	fl := &fakeLoader{}
	p := newTestPipeline(t, fe, fl, WithDryRun(10))

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 10, stats.Extracted)
	assert.Equal(t, 10, stats.Loaded)
}

func TestPipeline_SimulateNeverCallsLoader(t *testing.T) {
	fe := newFakeExtractor(
		`{"name":"a","age":"1"}`,
		`{"name":"b","age":"2"}`,
		`{"name":"c","age":"3"}`,
	)
	fl := &fakeLoader{}
	p := newTestPipeline(t, fe, fl, WithSimulate(true))

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Empty(t, fl.batches)
	assert.Zero(t, stats.Loaded)
	assert.Equal(t, 3, stats.Simulated)
	assert.Equal(t, StateCompleted, p.State())
}

func TestPipeline_SimulateAllowsNilLoader(t *testing.T) {
	fe := newFakeExtractor(`{"name":"a","age":"1"}`)
	p, err := NewPipeline(fe, parse.NewJSONParser(), testChain(t), nil,
		WithLogger(quietLogger()), WithSimulate(true))
	require.NoError(t, err)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Simulated)
}

func TestPipeline_NilLoaderRejectedOutsideSimulate(t *testing.T) {
	fe := newFakeExtractor()
	_, err := NewPipeline(fe, parse.NewJSONParser(), testChain(t), nil,
		WithLogger(quietLogger()))
	require.Error(t, err)

	var ce *core.ConfigError
	assert.True(t, errors.As(err, &ce))
}

func TestPipeline_ExtractorFaultAborts(t *testing.T) {
	fe := newFakeExtractor(
		`{"name":"a","age":"1"}`,
		`{"name":"b","age":"2"}`,
	)
	fe.failAt = 1
	fl := &fakeLoader{}
	p := newTestPipeline(t, fe, fl)

	stats, err := p.Run(context.Background())
	require.Error(t, err)
	assert.True(t, core.IsFatal(err))
	assert.Equal(t, StateAborted, p.State())
	assert.Equal(t, StateAborted, stats.State)
	assert.Equal(t, 1, stats.Extracted)
}

func TestPipeline_LoaderFaultAborts(t *testing.T) {
	fe := newFakeExtractor(
		`{"name":"a","age":"1"}`,
		`{"name":"b","age":"2"}`,
	)
	fl := &fakeLoader{loadErr: &core.CollaboratorError{
		Collaborator: "loader", Op: "commit", Err: errors.New("target down"),
	}}
	p := newTestPipeline(t, fe, fl)

	_, err := p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateAborted, p.State())
}

func TestPipeline_PerRowRejectionDoesNotAbort(t *testing.T) {
	fe := newFakeExtractor(
		`{"name":"a","age":"1"}`,
		`{"name":"b","age":"2"}`,
	)
	fl := &fakeLoader{rejectID: "r2"}
	p := newTestPipeline(t, fe, fl)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Loaded)
	assert.Equal(t, 1, stats.LoadFailures)
	assert.Equal(t, StateCompleted, p.State())
}

func TestPipeline_CancellationAborts(t *testing.T) {
	fe := newFakeExtractor(`{"name":"a","age":"1"}`)
	fl := &fakeLoader{}
	p := newTestPipeline(t, fe, fl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)

	var ce *core.CollaboratorError
	assert.False(t, errors.As(err, &ce))
	assert.Equal(t, StateAborted, p.State())
}

func TestPipeline_StatsTiming(t *testing.T) {
	fe := newFakeExtractor(`{"name":"a","age":"1"}`)
	fl := &fakeLoader{}
	p := newTestPipeline(t, fe, fl, WithName("timing"))

	stats, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "timing", stats.Pipeline)
	assert.False(t, stats.StartTime.IsZero())
	assert.False(t, stats.EndTime.IsZero())
	assert.GreaterOrEqual(t, stats.Duration, time.Duration(0))
	assert.True(t, !stats.EndTime.Before(stats.StartTime))
}
