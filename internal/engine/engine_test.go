package engine

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy-repricing-service/internal/matcher"
	"pharmacy-repricing-service/internal/models"
	"pharmacy-repricing-service/pkg/errors"
	"pharmacy-repricing-service/pkg/logger"
)

func TestMain(m *testing.M) {
	logger.SetGlobalLogger(logger.NewNopLogger())
	os.Exit(m.Run())
}

// pairedTestTable builds a prepared table of n adjacent original/reversal
// pairs, already sorted with dense RowIDs.
func pairedTestTable(t *testing.T, pairs int) *models.ClaimTable {
	t.Helper()
	table := models.NewClaimTable([]string{"SOURCERECORDID", "QUANTITY"})

	base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < pairs; i++ {
		member := fmt.Sprintf("M%d", i)

		original := table.AddRow([]string{fmt.Sprintf("SR-%d-O", i), "30"})
		original.DateFilled = base.AddDate(0, 0, i)
		original.SourceRecordID = fmt.Sprintf("SR-%d-O", i)
		original.MemberID = member
		original.NDC = "00001"
		original.Quantity = decimal.NewFromInt(30)

		reversal := table.AddRow([]string{fmt.Sprintf("SR-%d-R", i), "-30"})
		reversal.DateFilled = base.AddDate(0, 0, i)
		reversal.SourceRecordID = fmt.Sprintf("SR-%d-R", i)
		reversal.MemberID = member
		reversal.NDC = "00001"
		reversal.Quantity = decimal.NewFromInt(-30)
	}
	table.AssignRowIDs()
	return table
}

func createTestEngine(t *testing.T, config *Config) *Engine {
	t.Helper()
	m, err := matcher.NewMatcher(matcher.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	e, err := NewEngine(config, m)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return e
}

func TestRunSequential(t *testing.T) {
	e := createTestEngine(t, &Config{MaxWorkers: 1})
	table := pairedTestTable(t, 10)

	result, err := e.Run(context.Background(), table)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if result.MatchedPairs != 10 {
		t.Errorf("expected 10 matched pairs, got %d", result.MatchedPairs)
	}
	if len(result.UnmatchedReversalIDs) != 0 {
		t.Errorf("expected no unmatched reversals, got %v", result.UnmatchedReversalIDs)
	}
	if result.Workers != 1 || result.Blocks != 1 {
		t.Errorf("expected 1 worker and 1 block, got %d/%d", result.Workers, result.Blocks)
	}

	for _, record := range table.Rows {
		if record.Logic != models.LogicMatchedPair {
			t.Errorf("row %d: expected matched tag, got %q", record.RowID, record.Logic)
		}
	}
}

func TestRunMatchesSequentialBaseline(t *testing.T) {
	collect := func(e *Engine) ([]string, []int) {
		// 60 pairs = 120 rows: ceil(120/W) is even for every W up to
		// DefaultMaxWorkers, so no pair ever straddles a block boundary.
		table := pairedTestTable(t, 60)
		result, err := e.Run(context.Background(), table)
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
		tags := make([]string, table.Len())
		for i, record := range table.Rows {
			tags[i] = record.Logic
		}
		return tags, result.UnmatchedReversalIDs
	}

	sequential := createTestEngine(t, &Config{MaxWorkers: 1})
	parallel := createTestEngine(t, DefaultConfig())

	baseTags, baseUnmatched := collect(sequential)
	for run := 0; run < 3; run++ {
		tags, unmatched := collect(parallel)
		for i := range tags {
			if tags[i] != baseTags[i] {
				t.Fatalf("run %d: row %d disposition differs from sequential: %q vs %q", run, i, tags[i], baseTags[i])
			}
		}
		if len(unmatched) != len(baseUnmatched) {
			t.Fatalf("run %d: unmatched count differs from sequential: %d vs %d", run, len(unmatched), len(baseUnmatched))
		}
		for i := range unmatched {
			if unmatched[i] != baseUnmatched[i] {
				t.Fatalf("run %d: unmatched ID %d differs from sequential: %d vs %d", run, i, unmatched[i], baseUnmatched[i])
			}
		}
	}
}

func TestRunUnmatchedIDsSorted(t *testing.T) {
	e := createTestEngine(t, DefaultConfig())

	table := models.NewClaimTable([]string{"SOURCERECORDID", "QUANTITY"})
	base := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 20; i++ {
		record := table.AddRow([]string{fmt.Sprintf("SR-%d", i), "-30"})
		record.DateFilled = base.AddDate(0, 0, i)
		record.SourceRecordID = fmt.Sprintf("SR-%d", i)
		record.MemberID = fmt.Sprintf("M%d", i)
		record.NDC = "00001"
		record.Quantity = decimal.NewFromInt(-30)
	}
	table.AssignRowIDs()

	result, err := e.Run(context.Background(), table)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(result.UnmatchedReversalIDs) != 20 {
		t.Fatalf("expected 20 unmatched reversals, got %d", len(result.UnmatchedReversalIDs))
	}
	for i := 1; i < len(result.UnmatchedReversalIDs); i++ {
		if result.UnmatchedReversalIDs[i-1] >= result.UnmatchedReversalIDs[i] {
			t.Fatalf("unmatched RowIDs not sorted: %v", result.UnmatchedReversalIDs)
		}
	}
}

func TestRunWorkerPanicBecomesMatchingError(t *testing.T) {
	config := matcher.DefaultConfig()
	config.IsReversal = func(record *models.ClaimRecord) bool {
		if record.SourceRecordID == "SR-3-R" {
			panic("bad row")
		}
		return record.Quantity.IsNegative()
	}
	m, err := matcher.NewMatcher(config)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	e, err := NewEngine(&Config{MaxWorkers: 2}, m)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	_, err = e.Run(context.Background(), pairedTestTable(t, 10))
	if err == nil {
		t.Fatal("expected error from panicking worker")
	}

	repricerErr, ok := errors.AsRepricerError(err)
	if !ok {
		t.Fatalf("expected RepricerError, got %T", err)
	}
	if repricerErr.Category != errors.CategoryMatching {
		t.Errorf("expected matching category, got %s", repricerErr.Category)
	}
	if repricerErr.Code != errors.CodeBlockFailed {
		t.Errorf("expected block failed code, got %s", repricerErr.Code)
	}
	if _, ok := repricerErr.Context["block_index"]; !ok {
		t.Error("expected block_index in error context")
	}
}

func TestRunCancelledContext(t *testing.T) {
	e := createTestEngine(t, DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Run(ctx, pairedTestTable(t, 1000))
	if err == nil {
		t.Skip("all blocks completed before cancellation was observed")
	}
	repricerErr, ok := errors.AsRepricerError(err)
	if !ok || repricerErr.Category != errors.CategoryMatching {
		t.Errorf("expected matching category for cancellation, got %v", err)
	}
}

func TestRunEmptyTable(t *testing.T) {
	e := createTestEngine(t, DefaultConfig())
	table := models.NewClaimTable([]string{"SOURCERECORDID", "QUANTITY"})

	result, err := e.Run(context.Background(), table)
	if err != nil {
		t.Fatalf("Run failed on empty table: %v", err)
	}
	if result.MatchedPairs != 0 || len(result.UnmatchedReversalIDs) != 0 {
		t.Errorf("expected empty result, got %+v", result)
	}
}

func TestNewEngineRequiresMatcher(t *testing.T) {
	if _, err := NewEngine(DefaultConfig(), nil); err == nil {
		t.Error("expected error for nil matcher")
	}
}
