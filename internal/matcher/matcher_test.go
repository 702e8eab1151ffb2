package matcher

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pharmacy-repricing-service/internal/models"
)

func testClaim(rowID int, date string, srid, member, ndc, quantity string) *models.ClaimRecord {
	parsed, err := time.Parse("2006-01-02", date)
	if err != nil {
		panic(err)
	}
	qty, err := decimal.NewFromString(quantity)
	if err != nil {
		panic(err)
	}
	return &models.ClaimRecord{
		RowID:          rowID,
		DateFilled:     parsed,
		SourceRecordID: srid,
		MemberID:       member,
		NDC:            ndc,
		Quantity:       qty,
	}
}

func createTestMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := NewMatcher(DefaultConfig())
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}
	return m
}

func TestMatchBlockSimplePair(t *testing.T) {
	m := createTestMatcher(t)
	rows := []*models.ClaimRecord{
		testClaim(0, "2024-03-01", "SR-1", "M1", "00001", "30"),
		testClaim(1, "2024-03-05", "SR-2", "M1", "00001", "-30"),
	}

	result := m.MatchBlock(rows)

	if result.MatchedPairs != 1 {
		t.Errorf("expected 1 matched pair, got %d", result.MatchedPairs)
	}
	if rows[0].Logic != models.LogicMatchedPair || rows[1].Logic != models.LogicMatchedPair {
		t.Errorf("expected both rows tagged %q, got %q and %q",
			models.LogicMatchedPair, rows[0].Logic, rows[1].Logic)
	}
	if len(result.UnmatchedReversalIDs) != 0 {
		t.Errorf("expected no unmatched reversals, got %v", result.UnmatchedReversalIDs)
	}
}

func TestMatchBlockOriginalConsumedOnce(t *testing.T) {
	m := createTestMatcher(t)
	rows := []*models.ClaimRecord{
		testClaim(0, "2024-03-01", "SR-1", "M1", "00001", "10"),
		testClaim(1, "2024-03-03", "SR-2", "M1", "00001", "-10"),
		testClaim(2, "2024-03-04", "SR-3", "M1", "00001", "-10"),
	}

	result := m.MatchBlock(rows)

	if result.MatchedPairs != 1 {
		t.Errorf("expected 1 matched pair, got %d", result.MatchedPairs)
	}
	if rows[1].Logic != models.LogicMatchedPair {
		t.Errorf("expected first reversal matched, got %q", rows[1].Logic)
	}
	if rows[2].Logic != models.LogicUnmatchedReversal {
		t.Errorf("expected second reversal unmatched, got %q", rows[2].Logic)
	}
	if len(result.UnmatchedReversalIDs) != 1 || result.UnmatchedReversalIDs[0] != 2 {
		t.Errorf("expected unmatched RowID [2], got %v", result.UnmatchedReversalIDs)
	}
}

func TestMatchBlockWindowBoundary(t *testing.T) {
	m := createTestMatcher(t)

	tests := []struct {
		name         string
		originalDate string
		expectMatch  bool
	}{
		{"exactly 30 days prior matches", "2024-03-01", true},
		{"31 days prior is too old", "2024-02-29", false},
		{"same day matches", "2024-03-31", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := []*models.ClaimRecord{
				testClaim(0, tt.originalDate, "SR-1", "M1", "00001", "30"),
				testClaim(1, "2024-03-31", "SR-2", "M1", "00001", "-30"),
			}

			result := m.MatchBlock(rows)

			matched := result.MatchedPairs == 1
			if matched != tt.expectMatch {
				t.Errorf("expected match=%v, got pairs=%d", tt.expectMatch, result.MatchedPairs)
			}
		})
	}
}

func TestMatchBlockOriginalMustBePrior(t *testing.T) {
	m := createTestMatcher(t)
	rows := []*models.ClaimRecord{
		testClaim(0, "2024-03-01", "SR-1", "M1", "00001", "-30"),
		testClaim(1, "2024-03-05", "SR-2", "M1", "00001", "30"),
	}

	result := m.MatchBlock(rows)

	if result.MatchedPairs != 0 {
		t.Errorf("expected no pair for original dated after reversal, got %d", result.MatchedPairs)
	}
	if rows[0].Logic != models.LogicUnmatchedReversal {
		t.Errorf("expected unmatched reversal, got %q", rows[0].Logic)
	}
	if rows[1].Logic != models.LogicNone {
		t.Errorf("expected original left untagged, got %q", rows[1].Logic)
	}
}

func TestMatchBlockNearestPriorWins(t *testing.T) {
	m := createTestMatcher(t)
	rows := []*models.ClaimRecord{
		testClaim(0, "2024-03-01", "SR-1", "M1", "00001", "30"),
		testClaim(1, "2024-03-08", "SR-2", "M1", "00001", "30"),
		testClaim(2, "2024-03-10", "SR-3", "M1", "00001", "-30"),
	}

	m.MatchBlock(rows)

	if rows[1].Logic != models.LogicMatchedPair {
		t.Errorf("expected nearest original matched, got %q", rows[1].Logic)
	}
	if rows[0].Logic != models.LogicNone {
		t.Errorf("expected older original untouched, got %q", rows[0].Logic)
	}
}

func TestMatchBlockEqualDateTieBreaksOnRowID(t *testing.T) {
	m := createTestMatcher(t)
	rows := []*models.ClaimRecord{
		testClaim(0, "2024-03-05", "SR-1", "M1", "00001", "30"),
		testClaim(1, "2024-03-05", "SR-2", "M1", "00001", "30"),
		testClaim(2, "2024-03-10", "SR-3", "M1", "00001", "-30"),
	}

	m.MatchBlock(rows)

	if rows[0].Logic != models.LogicMatchedPair {
		t.Errorf("expected lower RowID original matched, got %q", rows[0].Logic)
	}
	if rows[1].Logic != models.LogicNone {
		t.Errorf("expected higher RowID original untouched, got %q", rows[1].Logic)
	}
}

func TestMatchBlockBusinessKeyMismatch(t *testing.T) {
	m := createTestMatcher(t)

	tests := []struct {
		name     string
		original *models.ClaimRecord
	}{
		{"different member", testClaim(0, "2024-03-01", "SR-1", "M2", "00001", "30")},
		{"different drug", testClaim(0, "2024-03-01", "SR-1", "M1", "00002", "30")},
		{"different quantity", testClaim(0, "2024-03-01", "SR-1", "M1", "00001", "60")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := []*models.ClaimRecord{
				tt.original,
				testClaim(1, "2024-03-05", "SR-2", "M1", "00001", "-30"),
			}
			tt.original.Logic = models.LogicNone
			rows[1].Logic = models.LogicNone

			result := m.MatchBlock(rows)

			if result.MatchedPairs != 0 {
				t.Errorf("expected no match, got %d pairs", result.MatchedPairs)
			}
			if rows[1].Logic != models.LogicUnmatchedReversal {
				t.Errorf("expected unmatched reversal, got %q", rows[1].Logic)
			}
		})
	}
}

func TestMatchBlockQuantityScaleNormalized(t *testing.T) {
	m := createTestMatcher(t)
	rows := []*models.ClaimRecord{
		testClaim(0, "2024-03-01", "SR-1", "M1", "00001", "30.0"),
		testClaim(1, "2024-03-05", "SR-2", "M1", "00001", "-30"),
	}

	result := m.MatchBlock(rows)

	if result.MatchedPairs != 1 {
		t.Errorf("expected scale-insensitive quantity match, got %d pairs", result.MatchedPairs)
	}
}

func TestMatchBlockZeroQuantityIsNotReversal(t *testing.T) {
	m := createTestMatcher(t)
	rows := []*models.ClaimRecord{
		testClaim(0, "2024-03-01", "SR-1", "M1", "00001", "0"),
	}

	result := m.MatchBlock(rows)

	if len(result.UnmatchedReversalIDs) != 0 {
		t.Errorf("zero quantity must not classify as reversal, got %v", result.UnmatchedReversalIDs)
	}
	if rows[0].Logic != models.LogicNone {
		t.Errorf("expected untagged row, got %q", rows[0].Logic)
	}
}

func TestMatchBlockCustomPredicate(t *testing.T) {
	config := DefaultConfig()
	config.IsReversal = func(record *models.ClaimRecord) bool {
		return strings.HasSuffix(record.SourceRecordID, "-R")
	}
	m, err := NewMatcher(config)
	if err != nil {
		t.Fatalf("failed to create matcher: %v", err)
	}

	rows := []*models.ClaimRecord{
		testClaim(0, "2024-03-01", "SR-1", "M1", "00001", "30"),
		testClaim(1, "2024-03-05", "SR-2-R", "M1", "00001", "30"),
	}

	result := m.MatchBlock(rows)

	if result.MatchedPairs != 1 {
		t.Errorf("expected custom predicate pair, got %d", result.MatchedPairs)
	}
}

func TestNewMatcherRejectsInvalidConfig(t *testing.T) {
	config := DefaultConfig()
	config.IsReversal = nil
	if _, err := NewMatcher(config); err == nil {
		t.Error("expected error for nil reversal predicate")
	}

	config = DefaultConfig()
	config.MatchWindowDays = -1
	if _, err := NewMatcher(config); err == nil {
		t.Error("expected error for negative match window")
	}
}
