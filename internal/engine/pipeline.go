package engine

import (
	"context"
	"fmt"
	"time"

	"pharmacy-repricing-service/internal/parsers"
	"pharmacy-repricing-service/internal/writer"
	"pharmacy-repricing-service/pkg/audit"
	"pharmacy-repricing-service/pkg/errors"
	"pharmacy-repricing-service/pkg/logger"
)

// Pipeline runs a complete repricing pass: load both extracts, merge and
// prepare, match reversals, and write the delivery artifacts.
type Pipeline struct {
	loader   *parsers.Loader
	resolver *parsers.OpportunityResolver
	engine   *Engine
	writer   *writer.Writer
	audit    audit.Logger
	logger   logger.Logger
}

// NewPipeline wires the pipeline stages together. A nil audit logger
// disables audit recording.
func NewPipeline(loader *parsers.Loader, resolver *parsers.OpportunityResolver, eng *Engine, w *writer.Writer, auditLogger audit.Logger) (*Pipeline, error) {
	if loader == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "loader", nil, nil)
	}
	if resolver == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "opportunity_resolver", nil, nil)
	}
	if eng == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "engine", nil, nil)
	}
	if w == nil {
		return nil, errors.ConfigurationError(errors.CodeMissingConfig, "writer", nil, nil)
	}
	if auditLogger == nil {
		auditLogger = audit.NopLogger{}
	}

	return &Pipeline{
		loader:   loader,
		resolver: resolver,
		engine:   eng,
		writer:   w,
		audit:    auditLogger,
		logger:   logger.GetGlobalLogger().WithComponent("pipeline"),
	}, nil
}

// RunSummary reports the outcome of a completed repricing run.
type RunSummary struct {
	OpportunityLabel   string
	InputRows          int
	MatchedPairs       int
	UnmatchedReversals int
	Workers            int
	Elapsed            time.Duration
	Artifacts          *writer.Artifacts
}

// Execute runs the full pipeline over the two claim extracts. The claims
// extract is the primary input; the repricing extract joins onto it by
// source record id.
func (p *Pipeline) Execute(ctx context.Context, claimsPath, repricingPath string) (*RunSummary, error) {
	start := time.Now()
	p.recordAudit("repricing run started", audit.StatusSuccess)

	p.logger.WithFields(logger.Fields{
		"claims_file":    claimsPath,
		"repricing_file": repricingPath,
	}).Info("Starting repricing run")

	label := p.resolver.Resolve(claimsPath)

	claims, err := p.loader.LoadTable(claimsPath)
	if err != nil {
		return nil, p.fail("load claims extract", err)
	}
	repricing, err := p.loader.LoadTable(repricingPath)
	if err != nil {
		return nil, p.fail("load repricing extract", err)
	}

	merged, err := p.loader.MergeTables(claims, repricing)
	if err != nil {
		return nil, p.fail("merge extracts", err)
	}
	if err := p.loader.Prepare(merged, claimsPath); err != nil {
		return nil, p.fail("prepare merged table", err)
	}

	result, err := p.engine.Run(ctx, merged)
	if err != nil {
		return nil, p.fail("match reversals", err)
	}

	artifacts, err := p.writer.WriteAll(merged, result.UnmatchedReversalIDs, label)
	if err != nil {
		return nil, p.fail("write artifacts", err)
	}

	summary := &RunSummary{
		OpportunityLabel:   label,
		InputRows:          merged.Len(),
		MatchedPairs:       result.MatchedPairs,
		UnmatchedReversals: len(result.UnmatchedReversalIDs),
		Workers:            result.Workers,
		Elapsed:            time.Since(start),
		Artifacts:          artifacts,
	}

	p.recordAudit("repricing run completed", audit.StatusSuccess)
	p.logger.WithFields(logger.Fields{
		"opportunity":         summary.OpportunityLabel,
		"rows":                summary.InputRows,
		"matched_pairs":       summary.MatchedPairs,
		"unmatched_reversals": summary.UnmatchedReversals,
		"workers":             summary.Workers,
		"elapsed":             summary.Elapsed.String(),
	}).Info("Repricing run completed")

	return summary, nil
}

func (p *Pipeline) fail(stage string, err error) error {
	p.recordAudit(fmt.Sprintf("repricing run failed at %s: %v", stage, err), audit.StatusFailure)
	return err
}

func (p *Pipeline) recordAudit(message, status string) {
	if err := p.audit.Record(audit.NewEvent(audit.ScriptName, message, status)); err != nil {
		p.logger.WithError(err).Warn("Audit record failed")
	}
}
