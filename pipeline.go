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
	"io"
	"time"

	"github.com/charmbracelet/log"

	"github.com/recordflow/recordflow/core"
	"github.com/recordflow/recordflow/transform"
)

// Package recordflow moves records from a streaming or document source
// into a relational target through a configurable normalization chain.
// The root package holds the batch orchestrator; collaborators live in
// extract, parse, transform, and load.

// State is the orchestrator's lifecycle position.
type State int

const (
	StateIdle State = iota
	StateExtracting
	StateParsingTransforming
	StateLoading
	StateCompleted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateExtracting:
		return "extracting"
	case StateParsingTransforming:
		return "parsing_transforming"
	case StateLoading:
		return "loading"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// PipelineOption configures a Pipeline.
type PipelineOption func(*Pipeline)

// WithName names the pipeline in logs and statistics.
func WithName(name string) PipelineOption {
	return func(p *Pipeline) {
		if name != "" {
			p.name = name
		}
	}
}

// WithBatchSize sets the loader batch bound. Default 100.
func WithBatchSize(size int) PipelineOption {
	return func(p *Pipeline) {
		if size > 0 {
			p.batchSize = size
		}
	}
}

// WithDryRun caps the run at n extracted items. 0 removes the cap.
func WithDryRun(n int) PipelineOption {
	return func(p *Pipeline) { p.dryRunLimit = n }
}

// WithSimulate makes the run skip the loader entirely: records flow
// through parse and transform, batches are counted and discarded.
func WithSimulate(simulate bool) PipelineOption {
	return func(p *Pipeline) { p.simulate = simulate }
}

// WithLogger injects the run logger.
func WithLogger(logger *log.Logger) PipelineOption {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// Pipeline is the batch orchestrator: it pulls raw items one at a time,
// parses and transforms each, buffers survivors into bounded batches, and
// flushes each batch to the loader. Per-record faults drop only the record;
// collaborator faults abort the run. A Pipeline runs once.
type Pipeline struct {
	extractor core.Extractor
	parser    core.Parser
	chain     *transform.Chain
	loader    core.Loader

	name        string
	batchSize   int
	dryRunLimit int
	simulate    bool
	logger      *log.Logger

	state State
	stats RunStats
}

// NewPipeline wires a pipeline from its collaborators. The loader may be
// nil only in simulate mode.
func NewPipeline(extractor core.Extractor, parser core.Parser, chain *transform.Chain, loader core.Loader, opts ...PipelineOption) (*Pipeline, error) {
	p := &Pipeline{
		extractor: extractor,
		parser:    parser,
		chain:     chain,
		loader:    loader,
		name:      "recordflow",
		batchSize: 100,
		logger:    log.Default(),
		state:     StateIdle,
	}
	for _, opt := range opts {
		opt(p)
	}

	if extractor == nil {
		return nil, &core.ConfigError{Section: "pipeline", Err: errors.New("extractor is required")}
	}
	if parser == nil {
		return nil, &core.ConfigError{Section: "pipeline", Err: errors.New("parser is required")}
	}
	if chain == nil {
		return nil, &core.ConfigError{Section: "pipeline", Err: errors.New("transformation chain is required")}
	}
	if loader == nil && !p.simulate {
		return nil, &core.ConfigError{Section: "pipeline", Err: errors.New("loader is required outside simulate mode")}
	}
	return p, nil
}

// State returns the orchestrator's current lifecycle position.
func (p *Pipeline) State() State { return p.state }

// Stats returns the run statistics. Meaningful after Run returns.
func (p *Pipeline) Stats() RunStats { return p.stats }

// Run executes the pipeline until the source is exhausted, the dry-run cap
// is reached, the context is cancelled, or a collaborator fails. The
// returned statistics are valid in every outcome.
func (p *Pipeline) Run(ctx context.Context) (RunStats, error) {
	p.stats = RunStats{Pipeline: p.name, StartTime: time.Now()}
	p.logger.Info("pipeline starting",
		"pipeline", p.name,
		"batch_size", p.batchSize,
		"dry_run", p.dryRunLimit,
		"simulate", p.simulate)

	err := p.run(ctx)

	p.stats.EndTime = time.Now()
	p.stats.Duration = p.stats.EndTime.Sub(p.stats.StartTime)
	if err != nil {
		p.state = StateAborted
	} else {
		p.state = StateCompleted
	}
	p.stats.State = p.state

	p.logger.Info("pipeline finished",
		"state", p.state.String(),
		"extracted", p.stats.Extracted,
		"loaded", p.stats.Loaded,
		"simulated", p.stats.Simulated,
		"failed", p.stats.Failed(),
		"batches", p.stats.Batches,
		"duration", p.stats.Duration)
	return p.stats, err
}

func (p *Pipeline) run(ctx context.Context) error {
	defer p.closeCollaborators()

	batch := core.NewBatch(p.batchSize)

	for {
		// Cancellation is honored at item boundaries only: a record in
		// flight always finishes its pass. The context error is returned
		// as-is; collaborator faults keep their own type.
		if err := ctx.Err(); err != nil {
			return err
		}
		if p.dryRunLimit > 0 && p.stats.Extracted >= p.dryRunLimit {
			p.logger.Info("dry-run cap reached", "records", p.stats.Extracted)
			break
		}

		p.state = StateExtracting
		item, err := p.extractor.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			p.logger.Error("extraction failed", "error", err)
			return err
		}
		p.stats.Extracted++

		p.state = StateParsingTransforming
		rec, err := p.parser.Parse(item)
		if err != nil {
			if core.IsFatal(err) {
				return err
			}
			p.stats.ParseFailures++
			batch.MarkDropped(failureFrom(err, "parser"))
			p.logger.Warn("record dropped", "stage", "parser", "error", err)
			continue
		}
		p.stats.Parsed++

		rec, err = p.chain.Run(ctx, rec)
		if err != nil {
			if core.IsFatal(err) {
				return err
			}
			p.stats.TransformFailures++
			batch.MarkDropped(failureFrom(err, "transform"))
			p.logger.Warn("record dropped", "stage", "transform", "error", err)
			continue
		}
		p.stats.Transformed++

		if batch.Append(rec) {
			if err := p.flush(ctx, batch); err != nil {
				return err
			}
		}
	}

	// Final partial batch.
	if batch.Len() > 0 {
		if err := p.flush(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) flush(ctx context.Context, batch *core.Batch) error {
	p.state = StateLoading
	p.stats.Batches++

	if p.simulate {
		p.stats.Simulated += batch.Len()
		p.logger.Info("batch simulated", "records", batch.Len(), "dropped", len(batch.Dropped()))
		batch.Reset()
		return nil
	}

	outcomes, err := p.loader.Load(ctx, batch)
	if err != nil {
		p.logger.Error("batch load failed", "records", batch.Len(), "error", err)
		return err
	}
	for i, outcome := range outcomes {
		if outcome.Persisted {
			p.stats.Loaded++
			continue
		}
		p.stats.LoadFailures++
		records := batch.Records()
		if i < len(records) {
			p.logger.Warn("record rejected by target",
				"record_id", records[i].ID(), "error", outcome.Err)
		}
	}

	p.logger.Debug("batch loaded", "records", batch.Len(), "dropped", len(batch.Dropped()))
	batch.Reset()
	return nil
}

func (p *Pipeline) closeCollaborators() {
	if err := p.extractor.Close(); err != nil {
		p.logger.Warn("extractor close failed", "error", err)
	}
	if p.loader != nil {
		if err := p.loader.Close(); err != nil {
			p.logger.Warn("loader close failed", "error", err)
		}
	}
}

// failureFrom builds a batch failure marker out of a per-record error.
func failureFrom(err error, fallbackStage string) core.Failure {
	var fe *core.FieldError
	if errors.As(err, &fe) {
		return core.Failure{
			RecordID: fe.RecordID,
			Stage:    fe.Stage,
			Reason:   fe.Reason,
			Err:      err,
		}
	}
	var pe *core.ParseError
	if errors.As(err, &pe) {
		return core.Failure{
			RecordID: pe.RecordID,
			Stage:    fallbackStage,
			Reason:   core.ReasonMalformedPayload,
			Err:      err,
		}
	}
	return core.Failure{Stage: fallbackStage, Err: err}
}
