package engine

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"

	"pharmacy-repricing-service/internal/matcher"
	"pharmacy-repricing-service/internal/parsers"
	"pharmacy-repricing-service/internal/writer"
	"pharmacy-repricing-service/pkg/audit"
	"pharmacy-repricing-service/pkg/errors"
)

const pipelineClaimsCSV = `DATEFILLED,SOURCERECORDID,QUANTITY,DAYSUPPLY,NDC,MemberID,Drug Name,Pharmacy Name,Total AWP (Historical)
2024-03-01,SR-1,30,30,00001,M1,DrugA,PharmA,100.00
2024-03-05,SR-2,-30,30,00001,M1,DrugA,PharmA,-100.00
2024-03-10,SR-3,60,30,00002,M2,DrugB,PharmB,50.00
2024-03-12,SR-4,-15,7,00003,M3,DrugC,PharmC,-10.00
`

const pipelineRepricingCSV = `SOURCERECORDID,New Price
SR-1,80.00
SR-3,40.00
`

func createTestPipeline(t *testing.T, outputDir string) *Pipeline {
	t.Helper()

	loader, err := parsers.NewLoader(parsers.DefaultLoaderConfig())
	if err != nil {
		t.Fatalf("failed to create loader: %v", err)
	}
	m, err := matcher.NewMatcher(matcher.DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	eng, err := NewEngine(DefaultConfig(), m)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	w, err := writer.NewWriter(writer.DefaultConfig(outputDir), audit.NopLogger{})
	if err != nil {
		t.Fatalf("failed to create writer: %v", err)
	}
	resolver := parsers.NewOpportunityResolver(loader, "")

	pipeline, err := NewPipeline(loader, resolver, eng, w, audit.NopLogger{})
	if err != nil {
		t.Fatalf("failed to create pipeline: %v", err)
	}
	return pipeline
}

func writePipelineFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestPipelineExecute(t *testing.T) {
	inputDir := t.TempDir()
	outputDir := t.TempDir()
	claims := writePipelineFile(t, inputDir, "claims.csv", pipelineClaimsCSV)
	repricing := writePipelineFile(t, inputDir, "repricing.csv", pipelineRepricingCSV)

	pipeline := createTestPipeline(t, outputDir)

	summary, err := pipeline.Execute(context.Background(), claims, repricing)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if summary.InputRows != 4 {
		t.Errorf("expected 4 merged rows, got %d", summary.InputRows)
	}
	if summary.MatchedPairs != 1 {
		t.Errorf("expected 1 matched pair, got %d", summary.MatchedPairs)
	}
	if summary.UnmatchedReversals != 1 {
		t.Errorf("expected 1 unmatched reversal, got %d", summary.UnmatchedReversals)
	}

	// Opportunity label is the second cell of the first data row.
	if summary.OpportunityLabel != "SR-1" {
		t.Errorf("expected positional label SR-1, got %q", summary.OpportunityLabel)
	}

	file, err := os.Open(summary.Artifacts.CSVPath)
	if err != nil {
		t.Fatalf("failed to open claim detail CSV: %v", err)
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		t.Fatalf("failed to read claim detail CSV: %v", err)
	}

	// Header plus three rows: the unmatched reversal is excluded.
	if len(records) != 4 {
		t.Fatalf("expected 4 CSV lines, got %d", len(records))
	}

	// The repriced value from the secondary extract survives the merge.
	var sawPrice bool
	for _, record := range records[1:] {
		for _, cell := range record {
			if cell == "80.00" {
				sawPrice = true
			}
		}
	}
	if !sawPrice {
		t.Error("expected merged repricing value 80.00 in output")
	}
}

func TestPipelineExecuteMissingInput(t *testing.T) {
	outputDir := t.TempDir()
	pipeline := createTestPipeline(t, outputDir)

	_, err := pipeline.Execute(context.Background(),
		filepath.Join(outputDir, "missing.csv"),
		filepath.Join(outputDir, "also-missing.csv"))
	if err == nil {
		t.Fatal("expected error for missing inputs")
	}

	repricerErr, ok := errors.AsRepricerError(err)
	if !ok || repricerErr.Category != errors.CategoryLoad {
		t.Errorf("expected load error, got %v", err)
	}

	// Nothing may be written when loading fails.
	entries, err := os.ReadDir(outputDir)
	if err != nil {
		t.Fatalf("failed to list output dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no artifacts on failed run, found %d", len(entries))
	}
}

func TestPipelineExecuteMissingColumns(t *testing.T) {
	inputDir := t.TempDir()
	claims := writePipelineFile(t, inputDir, "claims.csv", "SOURCERECORDID,QUANTITY\nSR-1,30\n")
	repricing := writePipelineFile(t, inputDir, "repricing.csv", "SOURCERECORDID,New Price\nSR-1,80.00\n")

	pipeline := createTestPipeline(t, t.TempDir())

	_, err := pipeline.Execute(context.Background(), claims, repricing)
	if err == nil {
		t.Fatal("expected validation error")
	}
	repricerErr, ok := errors.AsRepricerError(err)
	if !ok || repricerErr.Category != errors.CategoryValidation {
		t.Errorf("expected validation error, got %v", err)
	}
}
