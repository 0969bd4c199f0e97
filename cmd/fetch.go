// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bonial-oss/exploit-reconciler/internal/datasource/epss"
	"github.com/bonial-oss/exploit-reconciler/internal/datasource/kev"
	"github.com/bonial-oss/exploit-reconciler/internal/datasource/poc"
	"github.com/bonial-oss/exploit-reconciler/internal/table"
)

func newFetchCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Build per-source input tables from the upstream feeds",
	}
	cmd.AddCommand(
		newFetchKEVCommand(a),
		newFetchEPSSCommand(a),
		newFetchPoCCommand(a),
	)
	return cmd
}

// addTableOutputFlags adds the flags every fetch subcommand shares.
func addTableOutputFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("output", "o", "", "Write to file instead of stdout")
	cmd.Flags().String("format", "", "Table format: csv, json (default: from --output extension, else csv)")
}

func newFetchKEVCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "kev",
		Short: "Write the CISA KEV catalog as a KEV presence table",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command) error {
			return a.runFetchKEV(cmd.Context())
		}),
	}
	addTableOutputFlags(cmd)
	return cmd
}

func newFetchEPSSCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "epss",
		Short: "Write the FIRST EPSS feed as a score table",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command) error {
			return a.runFetchEPSS(cmd.Context())
		}),
	}
	addTableOutputFlags(cmd)
	return cmd
}

func newFetchPoCCommand(a *app) *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "poc",
		Short: "Extract a PoC exploit table from a PoC-in-GitHub clone",
		Args:  cobra.NoArgs,
		RunE: a.runE(func(cmd *cobra.Command) error {
			return a.runFetchPoC(cmd.Context(), dir)
		}),
	}
	cmd.Flags().StringVar(&dir, "dir", "", "Root of a local PoC-in-GitHub clone")
	addTableOutputFlags(cmd)
	return cmd
}

func (a *app) runFetchKEV(ctx context.Context) error {
	format, err := a.tableFormat()
	if err != nil {
		return err
	}

	src := kev.NewSource(a.cfg.CacheDir,
		kev.WithFs(a.fs),
		kev.WithTTL(a.cfg.CacheTTL),
		kev.WithLogger(a.logger),
	)
	if err := src.Load(ctx, a.cfg.SkipDBUpdate); err != nil {
		return fmt.Errorf("loading KEV data: %w", err)
	}

	records := src.Records()
	a.logger.Info().
		Str("catalog_version", src.Version()).
		Int("rows", len(records)).
		Msg("fetched KEV catalog")
	return a.writeResult(a.cfg.Output, format, table.EncodeKEV(records), nil)
}

func (a *app) runFetchEPSS(ctx context.Context) error {
	format, err := a.tableFormat()
	if err != nil {
		return err
	}

	src := epss.NewSource(a.cfg.CacheDir,
		epss.WithFs(a.fs),
		epss.WithTTL(a.cfg.CacheTTL),
		epss.WithLogger(a.logger),
	)
	if err := src.Load(ctx, a.cfg.SkipDBUpdate); err != nil {
		return fmt.Errorf("loading EPSS data: %w", err)
	}

	a.logger.Info().
		Str("model_version", src.ModelVersion()).
		Str("score_date", src.ScoreDate()).
		Int("rows", src.Len()).
		Msg("fetched EPSS scores")
	return a.writeResult(a.cfg.Output, format, table.EncodeEPSS(src.Entries()), nil)
}

func (a *app) runFetchPoC(ctx context.Context, dir string) error {
	if dir == "" {
		return &ExitError{Code: ExitUsage, Message: "--dir is required"}
	}
	format, err := a.tableFormat()
	if err != nil {
		return err
	}

	loader := poc.NewLoader(a.fs, poc.WithLogger(a.logger), poc.WithProgress(a.stderr))
	res, err := loader.Load(ctx, dir)
	if err != nil {
		return err
	}

	level := zerolog.InfoLevel
	if len(res.Dropped) > 0 {
		level = zerolog.WarnLevel
	}
	a.logger.WithLevel(level).
		Int("files", res.Files).
		Int("rows", len(res.Records)).
		Int("dropped", len(res.Dropped)).
		Msg("extracted PoC-in-GitHub exploits")
	return a.writeResult(a.cfg.Output, format, table.EncodeExploits(res.Records), nil)
}

// tableFormat resolves the format for commands that only write table files.
func (a *app) tableFormat() (outputFormat, error) {
	format, err := resolveFormat(a.cfg.Format, a.cfg.Output)
	if err != nil {
		return "", err
	}
	if format == formatTable {
		return "", &ExitError{Code: ExitUsage, Message: "fetch writes csv or json tables only"}
	}
	return format, nil
}
