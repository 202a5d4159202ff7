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
	"errors"
	"fmt"

	"github.com/recordflow/recordflow/core"
)

// Chain composes transformation passes into one ordered pipeline. A pass
// that fails short-circuits the chain for that record; the failure carries
// the name of the pass it came from.
type Chain struct {
	stages []core.Transformer
}

// NewChain builds a chain running the given passes in order.
func NewChain(stages ...core.Transformer) *Chain {
	return &Chain{stages: stages}
}

// Stages returns the pass names in execution order.
func (c *Chain) Stages() []string {
	names := make([]string, len(c.stages))
	for i, t := range c.stages {
		names[i] = t.Name()
	}
	return names
}

// Run passes record through every stage. On failure the remaining stages
// are skipped and the error is attributed to the failing stage.
func (c *Chain) Run(ctx context.Context, record core.Record) (core.Record, error) {
	current := record
	for _, stage := range c.stages {
		next, err := stage.Apply(ctx, current)
		if err != nil {
			var fe *core.FieldError
			if errors.As(err, &fe) {
				if fe.Stage == "" {
					fe.Stage = stage.Name()
				}
				return core.Record{}, err
			}
			return core.Record{}, fmt.Errorf("%s: %w", stage.Name(), err)
		}
		current = next
	}
	return current, nil
}
