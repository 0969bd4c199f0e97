// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package compile joins the reconciled exploit table with EPSS scores and
// applies the reporting filters and policies.
package compile

import (
	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/bonial-oss/exploit-reconciler/internal/errors"
	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

// ScoreSource looks up EPSS scores.
type ScoreSource interface {
	Lookup(cveID string) *types.EPSSEntry
	ModelVersion() string
	ScoreDate() string
}

// CatalogSource looks up KEV catalog entries.
type CatalogSource interface {
	Lookup(cveID string) *types.KEVEntry
}

// Config holds filtering and policy options.
type Config struct {
	EPSSThreshold       float64
	KEVOnly             bool
	FailOnKEV           bool
	FailOnEPSSThreshold float64
}

// Result holds the compiled rows and policy violation status.
type Result struct {
	Records         []types.CompiledRecord
	Scored          int
	PolicyViolation bool
}

// Compiler left-joins reconciled records with EPSS scores.
type Compiler struct {
	epss   ScoreSource
	kev    CatalogSource
	logger zerolog.Logger
}

// New creates a Compiler. kev may be nil; it only refines the risk score.
func New(epss ScoreSource, kev CatalogSource, logger zerolog.Logger) *Compiler {
	return &Compiler{epss: epss, kev: kev, logger: logger}
}

// Compile joins every record with its EPSS score, keeping records the feed
// does not score, then filters and checks policies. The input must be keyed
// by cve_id.
func (c *Compiler) Compile(records []types.ReconciledRecord, cfg Config) (*Result, error) {
	dups := lo.FindDuplicatesBy(records, func(r types.ReconciledRecord) string { return r.CVEID })
	if len(dups) > 0 {
		keys := lo.Map(dups, func(r types.ReconciledRecord, _ int) string { return r.CVEID })
		return nil, &errors.DuplicateKeyError{Table: "exploits", Keys: keys}
	}

	res := &Result{Records: make([]types.CompiledRecord, 0, len(records))}
	for _, r := range records {
		out := types.CompiledRecord{
			CVEID:            r.CVEID,
			ExploitCount:     r.ExploitCount,
			ExploitationDate: r.EarliestDate,
			Origin:           r.Origin,
			EPSSModelVersion: c.epss.ModelVersion(),
			EPSSScoreDate:    c.epss.ScoreDate(),
		}

		entry := c.epss.Lookup(r.CVEID)
		if entry != nil {
			score, percentile := entry.Score, entry.Percentile
			out.EPSS = &score
			out.Percentile = &percentile
			res.Scored++
		}

		var kevEntry *types.KEVEntry
		if c.kev != nil {
			kevEntry = c.kev.Lookup(r.CVEID)
		}
		out.Risk = RiskScore(r.Origin, r.ExploitCount, entry, kevEntry)

		if !keep(out, cfg) {
			continue
		}
		if violates(out, cfg) {
			res.PolicyViolation = true
		}
		res.Records = append(res.Records, out)
	}

	c.logger.Debug().
		Int("input", len(records)).
		Int("scored", res.Scored).
		Int("kept", len(res.Records)).
		Msg("compiled exploit table")
	return res, nil
}

func keep(r types.CompiledRecord, cfg Config) bool {
	if cfg.EPSSThreshold > 0 && (r.EPSS == nil || *r.EPSS < cfg.EPSSThreshold) {
		return false
	}
	if cfg.KEVOnly && !r.Origin.InKEV() {
		return false
	}
	return true
}

// violates flags rows that break a policy. Violations do not remove rows.
func violates(r types.CompiledRecord, cfg Config) bool {
	if cfg.FailOnKEV && r.Origin.InKEV() {
		return true
	}
	return cfg.FailOnEPSSThreshold > 0 && r.EPSS != nil && *r.EPSS >= cfg.FailOnEPSSThreshold
}
