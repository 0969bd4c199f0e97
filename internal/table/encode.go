// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package table

import (
	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

// EncodeExploits builds a poc/xdb frame from exploit records.
func EncodeExploits(records []types.ExploitRecord) *Frame {
	f := NewFrame(ExploitColumns...)
	for _, r := range records {
		f.Append(Row{
			ColCVEID:            r.CVEID,
			ColExploitCount:     deref(r.ExploitCount),
			ColEarliestDate:     deref(r.EarliestDate),
			ColPoCCode:          deref(r.PoCCode),
			ColFirstPoCType:     deref(r.FirstPoCType),
			ColFirstPoCPlatform: deref(r.FirstPoCPlatform),
			ColFirstPoCPort:     deref(r.FirstPoCPort),
			ColVerified:         deref(r.Verified),
		})
	}
	return f
}

// EncodeKEV builds a KEV presence frame.
func EncodeKEV(records []types.KEVRecord) *Frame {
	f := NewFrame(KEVColumns...)
	for _, r := range records {
		f.Append(Row{
			ColCVEID:            r.CVEID,
			ColKEVDatePublished: deref(r.KEVDatePublished),
		})
	}
	return f
}

// EncodeReconciled builds the reconciled exploit frame.
func EncodeReconciled(records []types.ReconciledRecord) *Frame {
	f := NewFrame(ReconciledColumns...)
	for _, r := range records {
		f.Append(Row{
			ColCVEID:            r.CVEID,
			ColExploitCount:     deref(r.ExploitCount),
			ColEarliestDate:     deref(r.EarliestDate),
			ColOrigin:           string(r.Origin),
			ColPoCCode:          deref(r.PoCCode),
			ColFirstPoCType:     deref(r.FirstPoCType),
			ColFirstPoCPlatform: deref(r.FirstPoCPlatform),
			ColFirstPoCPort:     deref(r.FirstPoCPort),
			ColVerified:         deref(r.Verified),
		})
	}
	return f
}

// EncodeCompiled builds the EPSS-enriched exploit frame.
func EncodeCompiled(records []types.CompiledRecord) *Frame {
	f := NewFrame(CompiledColumns...)
	for _, r := range records {
		f.Append(Row{
			ColCVEID:            r.CVEID,
			ColExploitCount:     deref(r.ExploitCount),
			ColExploitationDate: deref(r.ExploitationDate),
			ColOrigin:           string(r.Origin),
			ColEPSS:             deref(r.EPSS),
			ColPercentile:       deref(r.Percentile),
			ColEPSSModelVersion: r.EPSSModelVersion,
			ColEPSSScoreDate:    r.EPSSScoreDate,
			ColRisk:             r.Risk,
		})
	}
	return f
}

// EncodeEPSS builds an EPSS score frame.
func EncodeEPSS(entries []types.EPSSEntry) *Frame {
	f := NewFrame(EPSSColumns...)
	for _, e := range entries {
		f.Append(Row{
			ColCVEID:      e.CVE,
			ColEPSS:       e.Score,
			ColPercentile: e.Percentile,
		})
	}
	return f
}

// deref turns a nil pointer into a null cell.
func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}
