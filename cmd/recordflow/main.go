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

package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/recordflow/recordflow"
	"github.com/recordflow/recordflow/config"
	"github.com/recordflow/recordflow/core"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "recordflow",
		Short:         "Move records from Kafka or MongoDB into a relational target",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newRunCmd(), newValidateCmd())
	return root
}

func newRunCmd() *cobra.Command {
	var (
		dryRun   int
		simulate bool
	)

	cmd := &cobra.Command{
		Use:   "run <config>",
		Short: "Run the pipeline described by a configuration file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if report := cfg.Validate(); !report.Valid() {
				printReport(cmd, report)
				return fmt.Errorf("configuration is invalid")
			}

			logger := newLogger(cfg.Pipeline.LogLevel)

			extractor, err := cfg.BuildExtractor()
			if err != nil {
				return err
			}
			parser, err := cfg.BuildParser()
			if err != nil {
				return err
			}
			chain, err := cfg.BuildChain()
			if err != nil {
				return err
			}

			// Simulate-only runs never touch the target, so the loader is
			// not even constructed.
			var loader core.Loader
			if !simulate {
				if loader, err = cfg.BuildLoader(); err != nil {
					return err
				}
			}

			pipeline, err := recordflow.NewPipeline(extractor, parser, chain, loader,
				recordflow.WithName(cfg.Pipeline.Name),
				recordflow.WithBatchSize(cfg.Pipeline.BatchSize),
				recordflow.WithLogger(logger),
				recordflow.WithDryRun(dryRun),
				recordflow.WithSimulate(simulate),
			)
			if err != nil {
				return err
			}

			stats, err := pipeline.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("run aborted: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(),
				"completed: extracted=%d loaded=%d simulated=%d failed=%d batches=%d duration=%s\n",
				stats.Extracted, stats.Loaded, stats.Simulated,
				stats.Failed(), stats.Batches, stats.Duration)
			return nil
		},
	}

	cmd.Flags().IntVar(&dryRun, "dry-run", 0, "process at most N records, 0 for no cap")
	cmd.Flags().BoolVar(&simulate, "simulate", false, "run transforms but never invoke the loader")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <config>",
		Short: "Check a configuration file without contacting any system",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			report := cfg.Validate()
			printReport(cmd, report)
			if !report.Valid() {
				return fmt.Errorf("configuration is invalid")
			}
			fmt.Fprintln(cmd.OutOrStdout(), "configuration is valid")
			return nil
		},
	}
}

func printReport(cmd *cobra.Command, report *config.ValidationReport) {
	for _, warning := range report.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", warning)
	}
	for _, problem := range report.Errors {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %s\n", problem)
	}
}

func newLogger(level string) *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		Prefix:          "recordflow",
	})
	switch level {
	case "debug":
		logger.SetLevel(log.DebugLevel)
	case "warn":
		logger.SetLevel(log.WarnLevel)
	case "error":
		logger.SetLevel(log.ErrorLevel)
	default:
		logger.SetLevel(log.InfoLevel)
	}
	return logger
}
