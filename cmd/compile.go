// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/bonial-oss/exploit-reconciler/internal/compile"
	"github.com/bonial-oss/exploit-reconciler/internal/datasource/epss"
	"github.com/bonial-oss/exploit-reconciler/internal/datasource/kev"
	"github.com/bonial-oss/exploit-reconciler/internal/output"
	"github.com/bonial-oss/exploit-reconciler/internal/table"
)

// compileOptions holds the flags that only the compile command reads.
type compileOptions struct {
	EPSSThreshold       float64
	KEVOnly             bool
	FailOnKEV           bool
	FailOnEPSSThreshold float64
	SortBy              string
}

func newCompileCommand(a *app) *cobra.Command {
	opts := &compileOptions{}

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Join a reconciled exploit table with EPSS scores",
		Long: `compile left-joins a reconciled exploit table against the FIRST EPSS feed.
CVEs the feed does not score are kept with empty scores. Each row gets a
risk score from its origin, exploit count and EPSS probability.

Usage:
  exploit-reconciler compile --exploits exploits.csv -o compiled.csv
  exploit-reconciler compile --exploits exploits.csv --format table --kev-only`,
		Args: cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command) error {
			return a.runCompile(cmd.Context(), opts)
		}),
	}

	flags := cmd.Flags()
	flags.String("exploits", "", "Reconciled exploit table")
	flags.StringP("output", "o", "", "Write to file instead of stdout")
	flags.String("format", "", "Output format: csv, json, table (default: from --output extension, else csv)")
	flags.Float64Var(&opts.EPSSThreshold, "epss-threshold", 0, "Only keep CVEs with EPSS score >= value")
	flags.BoolVar(&opts.KEVOnly, "kev-only", false, "Only keep CVEs confirmed by KEV")
	flags.BoolVar(&opts.FailOnKEV, "fail-on-kev", false, "Exit code 1 if any KEV-confirmed CVE is kept")
	flags.Float64Var(&opts.FailOnEPSSThreshold, "fail-on-epss-threshold", 0, "Exit code 1 if any kept CVE has EPSS >= value")
	flags.StringVar(&opts.SortBy, "sort-by", "risk", "Sort table output by: risk, epss, count, date, cve")

	return cmd
}

func (a *app) runCompile(ctx context.Context, opts *compileOptions) error {
	path := a.cfg.Inputs.Exploits
	if path == "" {
		return &ExitError{Code: ExitUsage, Message: "--exploits is required"}
	}
	format, err := resolveFormat(a.cfg.Format, a.cfg.Output)
	if err != nil {
		return err
	}
	if err := output.ValidateSortKey(opts.SortBy); err != nil {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	store := table.NewStore(a.fs)
	dec := table.NewDecoder(a.logger)
	frame, err := store.ReadFrame(path)
	if err != nil {
		return err
	}
	records, err := dec.Reconciled(frame)
	if err != nil {
		return err
	}

	epssSource := epss.NewSource(a.cfg.CacheDir,
		epss.WithFs(a.fs),
		epss.WithTTL(a.cfg.CacheTTL),
		epss.WithLogger(a.logger),
	)
	if err := epssSource.Load(ctx, a.cfg.SkipDBUpdate); err != nil {
		return fmt.Errorf("loading EPSS data: %w", err)
	}

	// The catalog only refines the risk score, so a KEV outage is not fatal.
	var catalog compile.CatalogSource
	kevSource := kev.NewSource(a.cfg.CacheDir,
		kev.WithFs(a.fs),
		kev.WithTTL(a.cfg.CacheTTL),
		kev.WithLogger(a.logger),
	)
	if err := kevSource.Load(ctx, a.cfg.SkipDBUpdate); err != nil {
		a.logger.Warn().Err(err).Msg("KEV catalog unavailable, risk scores use the plain KEV modifier")
	} else {
		catalog = kevSource
	}

	res, err := compile.New(epssSource, catalog, a.logger).Compile(records, compile.Config{
		EPSSThreshold:       opts.EPSSThreshold,
		KEVOnly:             opts.KEVOnly,
		FailOnKEV:           opts.FailOnKEV,
		FailOnEPSSThreshold: opts.FailOnEPSSThreshold,
	})
	if err != nil {
		return err
	}

	a.logger.Info().
		Int("rows", len(records)).
		Int("scored", res.Scored).
		Int("kept", len(res.Records)).
		Str("epss_model_version", epssSource.ModelVersion()).
		Msg("compiled exploit table")

	render := func(w io.Writer, isTerminal bool) error {
		cfg := output.TableConfig{Title: "Exploits by risk", SortBy: opts.SortBy, IsTerminal: isTerminal}
		return output.WriteCompiledTable(w, res.Records, cfg)
	}
	if err := a.writeResult(a.cfg.Output, format, table.EncodeCompiled(res.Records), render); err != nil {
		return err
	}

	if res.PolicyViolation {
		return &ExitError{Code: ExitViolation, Message: "policy violation detected"}
	}
	return nil
}
