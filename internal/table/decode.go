// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package table

import (
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/cast"

	"github.com/bonial-oss/exploit-reconciler/internal/errors"
	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

// Column names shared by every exploit table.
const (
	ColCVEID            = "cve_id"
	ColExploitCount     = "exploit_count"
	ColEarliestDate     = "earliest_date"
	ColPoCCode          = "poc_code"
	ColFirstPoCType     = "first_poc_type"
	ColFirstPoCPlatform = "first_poc_platform"
	ColFirstPoCPort     = "first_poc_port"
	ColVerified         = "verified"
	ColKEVDatePublished = "kev_date_published"
	ColOrigin           = "origin"

	ColExploitationDate = "exploitation_date"
	ColEPSS             = "epss"
	ColPercentile       = "percentile"
	ColEPSSModelVersion = "epss_model_version"
	ColEPSSScoreDate    = "epss_score_date"
	ColRisk             = "risk"
)

// ExploitColumns is the poc/xdb table schema.
var ExploitColumns = []string{
	ColCVEID, ColExploitCount, ColEarliestDate,
	ColPoCCode, ColFirstPoCType, ColFirstPoCPlatform, ColFirstPoCPort, ColVerified,
}

// DescriptiveColumns are the exploit columns only ExploitDB supplies.
var DescriptiveColumns = ExploitColumns[3:]

// KEVColumns is the KEV presence table schema.
var KEVColumns = []string{ColCVEID, ColKEVDatePublished}

// ReconciledColumns is the reconciled table schema.
var ReconciledColumns = []string{
	ColCVEID, ColExploitCount, ColEarliestDate, ColOrigin,
	ColPoCCode, ColFirstPoCType, ColFirstPoCPlatform, ColFirstPoCPort, ColVerified,
}

// CompiledColumns is the EPSS-enriched table schema.
var CompiledColumns = []string{
	ColCVEID, ColExploitCount, ColExploitationDate, ColOrigin,
	ColEPSS, ColPercentile, ColEPSSModelVersion, ColEPSSScoreDate, ColRisk,
}

// EPSSColumns is the EPSS score table schema.
var EPSSColumns = []string{ColCVEID, ColEPSS, ColPercentile}

// nullTokens are the cell spellings treated as missing data.
var nullTokens = []string{"", "n/a", "na", "none", "nan", "<na>", "nat", "null"}

// Decoder converts frames into typed records. Cells that cannot be cast
// become null and are recorded as coercion warnings.
type Decoder struct {
	logger   zerolog.Logger
	warnings []types.CoercionWarning
}

// NewDecoder creates a Decoder that logs coercion warnings to logger.
func NewDecoder(logger zerolog.Logger) *Decoder {
	return &Decoder{logger: logger}
}

// Warnings returns every coercion warning raised so far.
func (d *Decoder) Warnings() []types.CoercionWarning {
	return d.warnings
}

// Exploits decodes a poc or xdb table. The descriptive ExploitDB columns are
// required only when requireDescriptive is set; otherwise they are read
// when present.
func (d *Decoder) Exploits(table string, f *Frame, requireDescriptive bool) ([]types.ExploitRecord, error) {
	if err := f.Require(table, ColCVEID, ColExploitCount, ColEarliestDate); err != nil {
		return nil, err
	}
	if requireDescriptive {
		if err := f.Require(table, DescriptiveColumns...); err != nil {
			return nil, err
		}
	}

	records := make([]types.ExploitRecord, 0, f.Len())
	for i, row := range f.Rows {
		cve, ok := cell(row, ColCVEID)
		if !ok {
			return nil, errors.NewNullKeyError(table, ColCVEID, i)
		}
		c := cursor{d: d, table: table, cve: cve, row: row}
		records = append(records, types.ExploitRecord{
			CVEID:            cve,
			ExploitCount:     c.count(ColExploitCount),
			EarliestDate:     c.date(ColEarliestDate),
			PoCCode:          c.str(ColPoCCode),
			FirstPoCType:     c.str(ColFirstPoCType),
			FirstPoCPlatform: c.str(ColFirstPoCPlatform),
			FirstPoCPort:     c.count(ColFirstPoCPort),
			Verified:         c.boolean(ColVerified),
		})
	}
	return records, nil
}

// KEV decodes the KEV presence table. Columns other than cve_id and
// kev_date_published are ignored.
func (d *Decoder) KEV(f *Frame) ([]types.KEVRecord, error) {
	const table = "kev"
	if err := f.Require(table, KEVColumns...); err != nil {
		return nil, err
	}

	records := make([]types.KEVRecord, 0, f.Len())
	for i, row := range f.Rows {
		cve, ok := cell(row, ColCVEID)
		if !ok {
			return nil, errors.NewNullKeyError(table, ColCVEID, i)
		}
		c := cursor{d: d, table: table, cve: cve, row: row}
		records = append(records, types.KEVRecord{
			CVEID:            cve,
			KEVDatePublished: c.date(ColKEVDatePublished),
		})
	}
	return records, nil
}

// Reconciled decodes a previously written reconciled table.
func (d *Decoder) Reconciled(f *Frame) ([]types.ReconciledRecord, error) {
	const table = "exploits"
	if err := f.Require(table, ColCVEID, ColExploitCount, ColEarliestDate, ColOrigin); err != nil {
		return nil, err
	}

	records := make([]types.ReconciledRecord, 0, f.Len())
	for i, row := range f.Rows {
		cve, ok := cell(row, ColCVEID)
		if !ok {
			return nil, errors.NewNullKeyError(table, ColCVEID, i)
		}
		c := cursor{d: d, table: table, cve: cve, row: row}
		records = append(records, types.ReconciledRecord{
			CVEID:            cve,
			ExploitCount:     c.count(ColExploitCount),
			EarliestDate:     c.date(ColEarliestDate),
			Origin:           c.origin(ColOrigin),
			PoCCode:          c.boolean(ColPoCCode),
			FirstPoCType:     c.str(ColFirstPoCType),
			FirstPoCPlatform: c.str(ColFirstPoCPlatform),
			FirstPoCPort:     c.count(ColFirstPoCPort),
			Verified:         c.boolean(ColVerified),
		})
	}
	return records, nil
}

func (d *Decoder) warn(w types.CoercionWarning) {
	d.logger.Warn().
		Str("table", w.Table).
		Str("cve_id", w.CVEID).
		Str("column", w.Column).
		Str("value", w.Value).
		Msg(w.Reason)
	d.warnings = append(d.warnings, w)
}

// cell returns the trimmed text of a cell, or false when it is null.
func cell(row Row, col string) (string, bool) {
	v, ok := row[col]
	if !ok || v == nil {
		return "", false
	}
	s := strings.TrimSpace(cast.ToString(v))
	if lo.Contains(nullTokens, strings.ToLower(s)) {
		return "", false
	}
	return s, true
}

// cursor decodes the cells of one row.
type cursor struct {
	d     *Decoder
	table string
	cve   string
	row   Row
}

func (c cursor) warn(col, value, reason string) {
	c.d.warn(types.CoercionWarning{Table: c.table, CVEID: c.cve, Column: col, Value: value, Reason: reason})
}

func (c cursor) str(col string) *string {
	s, ok := cell(c.row, col)
	if !ok {
		return nil
	}
	return &s
}

// count decodes a non-negative base-10 integer. Tables exported from
// dataframes write nullable integers as "3.0", so a zero fraction is dropped.
// Leading zeros stay decimal: "010" is 10.
func (c cursor) count(col string) *int64 {
	s, ok := cell(c.row, col)
	if !ok {
		return nil
	}
	n, err := strconv.ParseInt(trimZeroFraction(s), 10, 64)
	if err != nil {
		c.warn(col, s, "not an integer")
		return nil
	}
	if n < 0 {
		c.warn(col, s, "negative count")
		return nil
	}
	return &n
}

// trimZeroFraction turns "3.0" or "3." into "3". Any other fraction is kept
// so that parsing fails.
func trimZeroFraction(s string) string {
	whole, frac, ok := strings.Cut(s, ".")
	if !ok || strings.Trim(frac, "0") != "" {
		return s
	}
	return whole
}

func (c cursor) date(col string) *time.Time {
	s, ok := cell(c.row, col)
	if !ok {
		return nil
	}
	// Zone-less dates are read as UTC.
	t, err := dateparse.ParseIn(s, time.UTC)
	if err != nil {
		c.warn(col, s, "not a date")
		return nil
	}
	t = t.UTC()
	return &t
}

func (c cursor) boolean(col string) *bool {
	s, ok := cell(c.row, col)
	if !ok {
		return nil
	}
	var b bool
	switch strings.ToLower(s) {
	case "yes", "y":
		b = true
	case "no", "n":
		b = false
	default:
		v, err := cast.ToBoolE(s)
		if err != nil {
			c.warn(col, s, "not a boolean")
			return nil
		}
		b = v
	}
	return &b
}

func (c cursor) origin(col string) types.Origin {
	s, ok := cell(c.row, col)
	if !ok {
		c.warn(col, "", "origin is missing")
		return ""
	}
	o := types.Origin(strings.ToLower(s))
	if !o.Valid() {
		c.warn(col, s, "unknown origin")
		return ""
	}
	return o
}
