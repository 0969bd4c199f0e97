// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package reconcile merges the PoC-in-GitHub, ExploitDB and CISA KEV exploit
// tables into one row per CVE.
//
// The merge runs in two passes. The poc and xdb tables are outer-joined and
// grouped by cve_id, then the result is outer-joined with the KEV presence
// table. Column policies are declared once in the reducer table and origin
// labels come from the pair of join indicators.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/samber/lo"

	"github.com/bonial-oss/exploit-reconciler/internal/errors"
	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

const keyColumn = "cve_id"

// Input holds the three per-source tables.
type Input struct {
	PoC []types.ExploitRecord
	XDB []types.ExploitRecord
	KEV []types.KEVRecord
}

// Stats summarises a reconciliation run.
type Stats struct {
	PoCRows        int                  `yaml:"poc_rows" json:"poc_rows"`
	XDBRows        int                  `yaml:"xdb_rows" json:"xdb_rows"`
	KEVRows        int                  `yaml:"kev_rows" json:"kev_rows"`
	FirstPassRows  int                  `yaml:"first_pass_rows" json:"first_pass_rows"`
	ReconciledRows int                  `yaml:"reconciled_rows" json:"reconciled_rows"`
	Origins        map[types.Origin]int `yaml:"origins" json:"origins"`
}

// Result holds the reconciled table and the non-fatal coercion warnings
// raised while building it.
type Result struct {
	Records  []types.ReconciledRecord
	Warnings []types.CoercionWarning
	Stats    Stats
}

// Engine reconciles exploit tables.
type Engine struct {
	logger zerolog.Logger
}

// New creates an Engine that logs to logger.
func New(logger zerolog.Logger) *Engine {
	return &Engine{logger: logger}
}

// Reconcile merges the three input tables. The inputs are not modified.
// Records are returned sorted by cve_id.
func (e *Engine) Reconcile(in Input) (*Result, error) {
	var warnings []types.CoercionWarning

	poc, err := e.exploitRows("poc", in.PoC, &warnings)
	if err != nil {
		return nil, err
	}
	xdb, err := e.exploitRows("xdb", in.XDB, &warnings)
	if err != nil {
		return nil, err
	}
	for i, rec := range in.KEV {
		if rec.CVEID == "" {
			return nil, errors.NewNullKeyError("kev", keyColumn, i)
		}
	}
	kev := aggregate(in.KEV, kevKey, kevReducers)

	merged := mergeExploits(poc, xdb)
	e.logger.Debug().
		Int("poc", len(poc)).
		Int("xdb", len(xdb)).
		Int("merged", len(merged)).
		Msg("First pass merged poc and xdb")

	records := make([]types.ReconciledRecord, 0, len(merged)+len(kev))
	for _, row := range outerJoin(merged, kev, exploitKey, kevKey) {
		rec, err := e.finalize(row, &warnings)
		if err != nil {
			return nil, fmt.Errorf("reconciling %s: %w", row.Key, err)
		}
		records = append(records, rec)
	}

	if err := assertUnique(records); err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CVEID < records[j].CVEID
	})

	stats := Stats{
		PoCRows:        len(in.PoC),
		XDBRows:        len(in.XDB),
		KEVRows:        len(in.KEV),
		FirstPassRows:  len(merged),
		ReconciledRows: len(records),
		Origins:        lo.CountValuesBy(records, func(r types.ReconciledRecord) types.Origin { return r.Origin }),
	}
	e.logger.Info().
		Int("records", len(records)).
		Int("warnings", len(warnings)).
		Msg("Reconciled exploit tables")

	return &Result{Records: records, Warnings: warnings, Stats: stats}, nil
}

// Aggregate groups exploit records by cve_id using the declared column
// policies. Applying it to its own output returns an identical table.
func Aggregate(records []types.ExploitRecord) []types.ExploitRecord {
	rows := lo.Map(records, func(r types.ExploitRecord, _ int) exploitRow {
		return exploitRow{ExploitRecord: r}
	})
	return lo.Map(aggregate(rows, exploitKey, exploitReducers), func(r exploitRow, _ int) types.ExploitRecord {
		return r.ExploitRecord
	})
}

// exploitRows validates one exploit table and collapses duplicate cve_id
// rows so the first-pass join cannot multiply counts.
func (e *Engine) exploitRows(table string, records []types.ExploitRecord, warnings *[]types.CoercionWarning) ([]exploitRow, error) {
	rows := make([]exploitRow, 0, len(records))
	for i, rec := range records {
		if rec.CVEID == "" {
			return nil, errors.NewNullKeyError(table, keyColumn, i)
		}
		if rec.ExploitCount != nil && *rec.ExploitCount < 0 {
			e.warn(warnings, types.CoercionWarning{
				Table:  table,
				CVEID:  rec.CVEID,
				Column: "exploit_count",
				Value:  fmt.Sprint(*rec.ExploitCount),
				Reason: "negative count",
			})
			rec.ExploitCount = nil
		}
		row := exploitRow{ExploitRecord: rec}
		if rec.PoCCode != nil {
			row.pocCodeSource = table
		}
		rows = append(rows, row)
	}
	return aggregate(rows, exploitKey, exploitReducers), nil
}

// mergeExploits is the first pass: a full outer join of poc and xdb followed
// by a group-by on cve_id.
func mergeExploits(poc, xdb []exploitRow) []exploitRow {
	pairs := outerJoin(poc, xdb, exploitKey, exploitKey)
	out := make([]exploitRow, 0, len(pairs))
	for _, p := range pairs {
		var row exploitRow
		switch {
		case p.Indicator == IndicatorBoth:
			row = *p.Left
			reduceInto(&row, p.Right, exploitReducers)
		case p.Indicator.HasLeft():
			row = *p.Left
		default:
			row = *p.Right
		}
		row.indicator = p.Indicator
		out = append(out, row)
	}
	return aggregate(out, exploitKey, exploitReducers)
}

// finalize is the second pass for one joined row: date minimisation, the
// KEV-only count floor, origin labelling and poc_code normalisation.
func (e *Engine) finalize(row joined[exploitRow, types.KEVRecord], warnings *[]types.CoercionWarning) (types.ReconciledRecord, error) {
	base := exploitRow{ExploitRecord: types.ExploitRecord{CVEID: row.Key}}
	if row.Indicator.HasLeft() {
		base = *row.Left
	}

	origin, err := deriveOrigin(base.indicator, row.Indicator)
	if err != nil {
		return types.ReconciledRecord{}, err
	}

	rec := types.ReconciledRecord{
		CVEID:            row.Key,
		ExploitCount:     base.ExploitCount,
		EarliestDate:     base.EarliestDate,
		Origin:           origin,
		FirstPoCType:     base.FirstPoCType,
		FirstPoCPlatform: base.FirstPoCPlatform,
		FirstPoCPort:     base.FirstPoCPort,
		Verified:         base.Verified,
	}

	if row.Indicator.HasRight() {
		rec.EarliestDate = minDate(rec.EarliestDate, row.Right.KEVDatePublished)
	}

	// KEV lists no exploit artifacts; its presence counts as exactly one.
	if !row.Indicator.HasLeft() {
		rec.ExploitCount = lo.ToPtr(int64(1))
	}

	pocCode, ok := normalizePoCCode(base.PoCCode)
	if !ok {
		e.warn(warnings, types.CoercionWarning{
			Table:  base.pocCodeSource,
			CVEID:  row.Key,
			Column: "poc_code",
			Value:  *base.PoCCode,
			Reason: "expected YES or NO",
		})
	}
	rec.PoCCode = pocCode

	return rec, nil
}

func (e *Engine) warn(warnings *[]types.CoercionWarning, w types.CoercionWarning) {
	e.logger.Warn().
		Str("table", w.Table).
		Str("cve_id", w.CVEID).
		Str("column", w.Column).
		Str("value", w.Value).
		Msg(w.Reason)
	*warnings = append(*warnings, w)
}

func assertUnique(records []types.ReconciledRecord) error {
	dups := lo.FindDuplicatesBy(records, func(r types.ReconciledRecord) string { return r.CVEID })
	if len(dups) == 0 {
		return nil
	}
	return &errors.DuplicateKeyError{
		Table: "reconciled",
		Keys:  lo.Map(dups, func(r types.ReconciledRecord, _ int) string { return r.CVEID }),
	}
}
