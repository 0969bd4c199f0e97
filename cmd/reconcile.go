// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bonial-oss/exploit-reconciler/internal/output"
	"github.com/bonial-oss/exploit-reconciler/internal/reconcile"
	"github.com/bonial-oss/exploit-reconciler/internal/table"
	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

func newReconcileCommand(a *app) *cobra.Command {
	var sortBy string

	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Merge the PoC, ExploitDB and KEV tables into one row per CVE",
		Long: `reconcile reads the three per-source exploit tables (CSV or JSON),
collapses duplicate CVE rows inside each source, joins the sources and
labels every row with its origin. The result is written sorted by cve_id.

Exit codes: 1 duplicate cve_id after the merge, 2 usage or I/O error,
3 missing column or null cve_id.`,
		Args: cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command) error {
			return a.runReconcile(cmd.Context(), sortBy)
		}),
	}

	flags := cmd.Flags()
	flags.String("poc", "", "PoC-in-GitHub exploit table")
	flags.String("xdb", "", "ExploitDB exploit table")
	flags.String("kev", "", "KEV presence table")
	flags.StringP("output", "o", "", "Write to file instead of stdout")
	flags.String("format", "", "Output format: csv, json, table (default: from --output extension, else csv)")
	flags.String("audit", "", "Write an audit report to this file (YAML, or JSON for a .json path)")
	flags.StringVar(&sortBy, "sort-by", "", "Sort table output by: cve, count, date")

	return cmd
}

func (a *app) runReconcile(_ context.Context, sortBy string) error {
	in := a.cfg.Inputs
	if in.PoC == "" || in.XDB == "" || in.KEV == "" {
		return &ExitError{Code: ExitUsage, Message: "--poc, --xdb and --kev are required"}
	}
	format, err := resolveFormat(a.cfg.Format, a.cfg.Output)
	if err != nil {
		return err
	}
	if err := output.ValidateSortKey(sortBy); err != nil {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	store := table.NewStore(a.fs)
	dec := table.NewDecoder(a.logger)

	poc, err := readExploits(store, dec, "poc", in.PoC, false)
	if err != nil {
		return err
	}
	xdb, err := readExploits(store, dec, "xdb", in.XDB, true)
	if err != nil {
		return err
	}
	kevFrame, err := store.ReadFrame(in.KEV)
	if err != nil {
		return err
	}
	kevRecords, err := dec.KEV(kevFrame)
	if err != nil {
		return err
	}

	res, err := reconcile.New(a.logger).Reconcile(reconcile.Input{PoC: poc, XDB: xdb, KEV: kevRecords})
	if err != nil {
		return err
	}
	res.Warnings = append(dec.Warnings(), res.Warnings...)

	a.logger.Info().
		Int("poc_rows", res.Stats.PoCRows).
		Int("xdb_rows", res.Stats.XDBRows).
		Int("kev_rows", res.Stats.KEVRows).
		Int("reconciled_rows", res.Stats.ReconciledRows).
		Int("warnings", len(res.Warnings)).
		Msg("reconciled exploit tables")

	render := func(w io.Writer, isTerminal bool) error {
		cfg := output.TableConfig{Title: "Reconciled exploits", SortBy: sortBy, IsTerminal: isTerminal}
		return output.WriteReconciledTable(w, res.Records, cfg)
	}
	if err := a.writeResult(a.cfg.Output, format, table.EncodeReconciled(res.Records), render); err != nil {
		return err
	}

	if a.cfg.Audit != "" {
		inputs := output.AuditInputs{PoC: in.PoC, XDB: in.XDB, KEV: in.KEV, Output: a.cfg.Output}
		if err := a.writeAudit(a.cfg.Audit, output.NewAudit(a.now(), Version, inputs, res)); err != nil {
			return err
		}
		a.logger.Debug().Str("path", a.cfg.Audit).Msg("wrote audit report")
	}
	return nil
}

func readExploits(store *table.Store, dec *table.Decoder, name, path string, requireDescriptive bool) ([]types.ExploitRecord, error) {
	frame, err := store.ReadFrame(path)
	if err != nil {
		return nil, err
	}
	return dec.Exploits(name, frame, requireDescriptive)
}

func (a *app) writeAudit(path string, audit output.Audit) (err error) {
	w, closeFn, err := a.openOutput(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = fmt.Errorf("closing audit report: %w", cerr)
		}
	}()
	if f, ok := table.FormatFromPath(path); ok && f == table.FormatJSON {
		return output.WriteAuditJSON(w, audit)
	}
	return output.WriteAudit(w, audit)
}
