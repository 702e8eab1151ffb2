package engine

import (
	"runtime"

	"pharmacy-repricing-service/internal/models"
)

// DefaultMaxWorkers caps parallelism when the caller does not configure it.
const DefaultMaxWorkers = 4

// WorkerCount resolves the effective worker count: the configured maximum,
// bounded by NumCPU-1 so one core stays free for aggregation, and never
// below one.
func WorkerCount(maxWorkers int) int {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	available := runtime.NumCPU() - 1
	if available < 1 {
		available = 1
	}
	if maxWorkers > available {
		return available
	}
	return maxWorkers
}

// Partition splits the prepared rows into at most workers contiguous blocks
// of near-equal size, preserving table order. Blocks are views into the
// input slice, never empty; fewer rows than workers yields fewer blocks.
func Partition(rows []*models.ClaimRecord, workers int) [][]*models.ClaimRecord {
	if len(rows) == 0 {
		return nil
	}
	if workers < 1 {
		workers = 1
	}
	if workers > len(rows) {
		workers = len(rows)
	}

	blockSize := (len(rows) + workers - 1) / workers

	blocks := make([][]*models.ClaimRecord, 0, workers)
	for start := 0; start < len(rows); start += blockSize {
		end := start + blockSize
		if end > len(rows) {
			end = len(rows)
		}
		blocks = append(blocks, rows[start:end])
	}
	return blocks
}
