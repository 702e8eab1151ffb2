// Package matcher pairs reversal claims with the originals they cancel.
//
// Matching is block-local: a block is a contiguous slice of the prepared,
// date-sorted claim table, and a reversal can only pair with an original in
// the same block. Pairs share a business key (member, NDC, absolute
// quantity); the original must be dated on or before the reversal, within
// the configured window, and not already consumed by another reversal.
package matcher

import (
	"strings"

	"pharmacy-repricing-service/internal/models"
	"pharmacy-repricing-service/pkg/logger"
)

// BlockResult reports the outcome of matching one block. Rows is the input
// slice with disposition tags applied in place.
type BlockResult struct {
	Rows []*models.ClaimRecord

	// MatchedPairs counts reversal/original pairs tagged in this block.
	MatchedPairs int

	// UnmatchedReversalIDs holds the RowIDs of reversals with no usable
	// original, in block order.
	UnmatchedReversalIDs []int
}

// Matcher tags claim rows with their reversal disposition.
type Matcher struct {
	config *Config
	logger logger.Logger
}

// NewMatcher creates a matcher with the given configuration.
func NewMatcher(config *Config) (*Matcher, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Matcher{
		config: config,
		logger: logger.GetGlobalLogger().WithComponent("matcher"),
	}, nil
}

type candidate struct {
	record   *models.ClaimRecord
	consumed bool
}

// MatchBlock tags every row of one block. Rows must arrive in prepared table
// order (ascending fill date, then source record id). Reversals are processed
// in that order; each consumes the nearest prior unconsumed original with the
// same business key, with equal-date ties broken by the lower RowID. A
// reversal with no usable original is tagged unmatched; it is never reused as
// an original for another reversal.
func (m *Matcher) MatchBlock(rows []*models.ClaimRecord) *BlockResult {
	result := &BlockResult{Rows: rows}

	originals := make(map[string][]*candidate)
	for _, record := range rows {
		if m.config.IsReversal(record) {
			continue
		}
		key := m.businessKey(record)
		originals[key] = append(originals[key], &candidate{record: record})
	}

	for _, record := range rows {
		if !m.config.IsReversal(record) {
			continue
		}

		original := m.findOriginal(originals[m.businessKey(record)], record)
		if original == nil {
			record.Logic = models.LogicUnmatchedReversal
			result.UnmatchedReversalIDs = append(result.UnmatchedReversalIDs, record.RowID)
			continue
		}

		original.consumed = true
		original.record.Logic = models.LogicMatchedPair
		record.Logic = models.LogicMatchedPair
		result.MatchedPairs++
	}

	return result
}

// findOriginal scans the key's candidates backwards from the latest one.
// Candidates are in table order, so the first unconsumed candidate dated on
// or before the reversal and inside the window is the nearest; the scan then
// keeps walking back through candidates sharing that date to land on the
// lowest RowID.
func (m *Matcher) findOriginal(candidates []*candidate, reversal *models.ClaimRecord) *candidate {
	cutoff := reversal.DateFilled.AddDate(0, 0, -m.config.MatchWindowDays)

	best := -1
	for i := len(candidates) - 1; i >= 0; i-- {
		c := candidates[i]
		if c.consumed {
			continue
		}
		if c.record.DateFilled.After(reversal.DateFilled) {
			continue
		}
		if c.record.DateFilled.Before(cutoff) {
			break
		}
		if best >= 0 && !candidates[best].record.DateFilled.Equal(c.record.DateFilled) {
			break
		}
		best = i
	}

	if best < 0 {
		return nil
	}
	return candidates[best]
}

// businessKey combines the member, drug, and absolute quantity into the
// pairing key. Quantity is canonicalized to a fixed scale so "30" and "30.0"
// key identically.
func (m *Matcher) businessKey(record *models.ClaimRecord) string {
	return strings.Join([]string{
		record.MemberID,
		record.NDC,
		record.AbsQuantity().StringFixed(4),
	}, "|")
}
