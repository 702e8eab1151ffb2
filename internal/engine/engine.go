// Package engine runs reversal matching across worker blocks and aggregates
// the per-block outcomes into a single tagged table.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pharmacy-repricing-service/internal/matcher"
	"pharmacy-repricing-service/internal/models"
	"pharmacy-repricing-service/pkg/errors"
	"pharmacy-repricing-service/pkg/logger"
)

// Config holds engine parameters.
type Config struct {
	// MaxWorkers caps the number of concurrent matching workers. Zero means
	// the default cap; the effective count never exceeds NumCPU-1.
	MaxWorkers int
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() *Config {
	return &Config{MaxWorkers: DefaultMaxWorkers}
}

// Result aggregates the outcome of a full matching run.
type Result struct {
	// MatchedPairs counts reversal/original pairs across all blocks.
	MatchedPairs int

	// UnmatchedReversalIDs holds the RowIDs of unmatched reversals across
	// all blocks, sorted ascending.
	UnmatchedReversalIDs []int

	// Workers and Blocks record the effective parallelism of the run.
	Workers int
	Blocks  int

	Elapsed time.Duration
}

// Engine fans claim blocks out to matching workers.
type Engine struct {
	config  *Config
	matcher *matcher.Matcher
	logger  logger.Logger
}

// NewEngine creates an engine around the given matcher.
func NewEngine(config *Config, m *matcher.Matcher) (*Engine, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if m == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "matcher", nil, nil)
	}

	return &Engine{
		config:  config,
		matcher: m,
		logger:  logger.GetGlobalLogger().WithComponent("engine"),
	}, nil
}

type blockOutcome struct {
	index  int
	result *matcher.BlockResult
	err    error
}

// Run partitions the prepared table, matches every block concurrently, and
// aggregates the outcomes. Disposition tags are applied to the table rows in
// place; the result carries the run-level counts. A panic or error in any
// worker fails the whole run with the failing block identified. The outcome
// is identical for any worker count.
func (e *Engine) Run(ctx context.Context, table *models.ClaimTable) (*Result, error) {
	start := time.Now()

	workers := WorkerCount(e.config.MaxWorkers)
	blocks := Partition(table.Rows, workers)

	e.logger.WithFields(logger.Fields{
		"rows":    table.Len(),
		"workers": workers,
		"blocks":  len(blocks),
	}).Info("Starting reversal matching")

	outcomes := make(chan blockOutcome, len(blocks))
	for i, block := range blocks {
		go e.matchBlock(i, block, outcomes)
	}

	collected := make([]*matcher.BlockResult, len(blocks))
	for range blocks {
		select {
		case <-ctx.Done():
			return nil, errors.Wrap(ctx.Err(), errors.CategoryMatching, errors.CodeResultMissing,
				"matching cancelled before all blocks completed")
		case outcome := <-outcomes:
			if outcome.err != nil {
				return nil, outcome.err
			}
			collected[outcome.index] = outcome.result
		}
	}

	result := &Result{
		Workers: workers,
		Blocks:  len(blocks),
	}

	var rows int
	for i, block := range collected {
		if block == nil {
			return nil, errors.MatchingError(errors.CodeResultMissing, i, nil)
		}
		rows += len(block.Rows)
		result.MatchedPairs += block.MatchedPairs
		result.UnmatchedReversalIDs = append(result.UnmatchedReversalIDs, block.UnmatchedReversalIDs...)
	}

	if rows != table.Len() {
		return nil, errors.MatchingError(errors.CodeRowCountMismatch, -1,
			fmt.Errorf("aggregated %d rows from %d input rows", rows, table.Len()))
	}

	sort.Ints(result.UnmatchedReversalIDs)
	result.Elapsed = time.Since(start)

	e.logger.WithFields(logger.Fields{
		"matched_pairs":       result.MatchedPairs,
		"unmatched_reversals": len(result.UnmatchedReversalIDs),
		"elapsed":             result.Elapsed.String(),
	}).Info("Reversal matching complete")

	return result, nil
}

// matchBlock runs one worker. A panic in the matcher is converted into a
// matching error carrying the block index instead of crashing the process.
func (e *Engine) matchBlock(index int, block []*models.ClaimRecord, outcomes chan<- blockOutcome) {
	defer func() {
		if r := recover(); r != nil {
			outcomes <- blockOutcome{
				index: index,
				err:   errors.MatchingError(errors.CodeBlockFailed, index, fmt.Errorf("worker panic: %v", r)),
			}
		}
	}()

	outcomes <- blockOutcome{index: index, result: e.matcher.MatchBlock(block)}
}
