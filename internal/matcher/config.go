package matcher

import (
	"pharmacy-repricing-service/internal/models"
	"pharmacy-repricing-service/pkg/errors"
)

// ReversalPredicate decides whether a claim row represents a reversal.
// The predicate is pluggable so client-specific extracts can flag reversals
// by something other than a negative dispensed quantity.
type ReversalPredicate func(*models.ClaimRecord) bool

// NegativeQuantityReversal is the standard predicate: a claim is a reversal
// when its dispensed quantity is negative.
func NegativeQuantityReversal(record *models.ClaimRecord) bool {
	return record.Quantity.IsNegative()
}

// Config holds reversal matching parameters.
type Config struct {
	// IsReversal classifies rows into reversals and originals.
	IsReversal ReversalPredicate

	// MatchWindowDays is the maximum age, in days, of an original relative
	// to its reversal for the pair to match.
	MatchWindowDays int
}

// DefaultConfig returns the standard matching configuration: negative
// quantity marks a reversal and originals match within 30 days.
func DefaultConfig() *Config {
	return &Config{
		IsReversal:      NegativeQuantityReversal,
		MatchWindowDays: 30,
	}
}

// Validate checks the configuration for usable values.
func (c *Config) Validate() error {
	if c.IsReversal == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "reversal_predicate", nil, nil)
	}
	if c.MatchWindowDays < 0 {
		return errors.ConfigurationError(errors.CodeInvalidConfig, "match_window_days", c.MatchWindowDays, nil)
	}
	return nil
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
