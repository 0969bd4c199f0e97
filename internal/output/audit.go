// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/bonial-oss/exploit-reconciler/internal/reconcile"
	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

// Audit is the machine-readable record of one reconciliation run: where the
// tables came from, how each column was merged and which cells were nulled.
type Audit struct {
	GeneratedAt string                   `yaml:"generated_at" json:"generated_at"`
	Version     string                   `yaml:"version,omitempty" json:"version,omitempty"`
	Inputs      AuditInputs              `yaml:"inputs" json:"inputs"`
	Stats       AuditStats               `yaml:"stats" json:"stats"`
	Origins     []OriginCount            `yaml:"origins" json:"origins"`
	Policies    []reconcile.ColumnPolicy `yaml:"column_policies" json:"column_policies"`
	Warnings    []types.CoercionWarning  `yaml:"warnings" json:"warnings"`
}

// AuditInputs names the input and output table files.
type AuditInputs struct {
	PoC    string `yaml:"poc" json:"poc"`
	XDB    string `yaml:"xdb" json:"xdb"`
	KEV    string `yaml:"kev" json:"kev"`
	Output string `yaml:"output,omitempty" json:"output,omitempty"`
}

// AuditStats are the row counts of a run.
type AuditStats struct {
	PoCRows        int `yaml:"poc_rows" json:"poc_rows"`
	XDBRows        int `yaml:"xdb_rows" json:"xdb_rows"`
	KEVRows        int `yaml:"kev_rows" json:"kev_rows"`
	FirstPassRows  int `yaml:"first_pass_rows" json:"first_pass_rows"`
	ReconciledRows int `yaml:"reconciled_rows" json:"reconciled_rows"`
	Warnings       int `yaml:"warnings" json:"warnings"`
}

// OriginCount is one bucket of the origin histogram.
type OriginCount struct {
	Origin types.Origin `yaml:"origin" json:"origin"`
	Count  int          `yaml:"count" json:"count"`
}

// NewAudit builds the audit record for a finished run. Origins are listed
// in their canonical order, including empty buckets.
func NewAudit(now time.Time, version string, inputs AuditInputs, res *reconcile.Result) Audit {
	origins := make([]OriginCount, 0, len(types.Origins))
	for _, o := range types.Origins {
		origins = append(origins, OriginCount{Origin: o, Count: res.Stats.Origins[o]})
	}
	warnings := res.Warnings
	if warnings == nil {
		warnings = []types.CoercionWarning{}
	}
	return Audit{
		GeneratedAt: now.UTC().Format(time.RFC3339),
		Version:     version,
		Inputs:      inputs,
		Stats: AuditStats{
			PoCRows:        res.Stats.PoCRows,
			XDBRows:        res.Stats.XDBRows,
			KEVRows:        res.Stats.KEVRows,
			FirstPassRows:  res.Stats.FirstPassRows,
			ReconciledRows: res.Stats.ReconciledRows,
			Warnings:       len(res.Warnings),
		},
		Origins:  origins,
		Policies: reconcile.ColumnPolicies(),
		Warnings: warnings,
	}
}

// WriteAudit writes the audit record as YAML.
func WriteAudit(w io.Writer, a Audit) error {
	data, err := yaml.MarshalWithOptions(a, yaml.Indent(2), yaml.IndentSequence(true))
	if err != nil {
		return fmt.Errorf("encoding audit report: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing audit report: %w", err)
	}
	return nil
}

// WriteAuditJSON writes the audit record as indented JSON. Cell values are
// not HTML-escaped.
func WriteAuditJSON(w io.Writer, a Audit) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(a); err != nil {
		return fmt.Errorf("encoding audit report: %w", err)
	}
	return nil
}
