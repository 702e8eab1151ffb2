package parsers

import (
	"regexp"
	"strings"

	"pharmacy-repricing-service/pkg/logger"
)

// DefaultOpportunityLabel is used when no label can be extracted from the
// primary extract.
const DefaultOpportunityLabel = "claims detail PCU"

// invalidLabelChars matches characters that are not safe in file names.
var invalidLabelChars = regexp.MustCompile(`[\\/*?:"<>|]`)

// OpportunityResolver derives a human-readable label for output artifacts
// from the primary claim extract. The label lives in the second column of the
// first data row by convention; the resolver depends on that position, not on
// any header name.
type OpportunityResolver struct {
	loader       *Loader
	defaultLabel string
	override     string
	logger       logger.Logger
}

// NewOpportunityResolver creates a resolver reading through the given loader.
func NewOpportunityResolver(loader *Loader, defaultLabel string) *OpportunityResolver {
	if defaultLabel == "" {
		defaultLabel = DefaultOpportunityLabel
	}
	return &OpportunityResolver{
		loader:       loader,
		defaultLabel: defaultLabel,
		logger:       logger.GetGlobalLogger().WithComponent("opportunity"),
	}
}

// SetOverride pins the label, bypassing positional extraction. The override
// is sanitized the same way as extracted labels.
func (r *OpportunityResolver) SetOverride(label string) {
	r.override = SanitizeLabel(label)
}

// Resolve extracts the opportunity label from the extract at path. Resolution
// never fails the run: any read problem, a missing second column, or an empty
// cell falls back to the default label with a warning.
func (r *OpportunityResolver) Resolve(path string) string {
	if r.override != "" {
		return r.override
	}
	rows, err := r.loader.readRows(path)
	if err != nil {
		r.logger.WithError(err).WithField("file_path", path).Warn("Could not read extract for opportunity label, using default")
		return r.defaultLabel
	}

	if len(rows) < 2 || len(rows[1]) < 2 {
		r.logger.WithField("file_path", path).Warn("No opportunity label cell found, using default")
		return r.defaultLabel
	}

	label := SanitizeLabel(rows[1][1])
	if label == "" {
		r.logger.WithField("file_path", path).Warn("Opportunity label empty after sanitizing, using default")
		return r.defaultLabel
	}

	r.logger.WithField("opportunity", label).Info("Resolved opportunity label")
	return label
}

// SanitizeLabel replaces characters unsafe for file names with underscores
// and trims surrounding whitespace.
func SanitizeLabel(raw string) string {
	return strings.TrimSpace(invalidLabelChars.ReplaceAllString(raw, "_"))
}
