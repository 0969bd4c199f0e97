// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/bonial-oss/exploit-reconciler/internal/config"
	"github.com/bonial-oss/exploit-reconciler/internal/errors"
	"github.com/bonial-oss/exploit-reconciler/internal/logging"
	"github.com/bonial-oss/exploit-reconciler/internal/output"
	"github.com/bonial-oss/exploit-reconciler/internal/table"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Exit codes.
const (
	ExitViolation = 1 // uniqueness violation, data error or policy violation
	ExitUsage     = 2 // bad flags, unreadable or unwritable files
	ExitSchema    = 3 // missing column or null join key
)

// ExitError signals a non-zero exit code with an optional message.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string { return e.Message }

// flagKeys maps command-line flags to the config keys they override.
var flagKeys = map[string]string{
	"poc":            config.KeyPoC,
	"xdb":            config.KeyXDB,
	"kev":            config.KeyKEV,
	"exploits":       config.KeyExploits,
	"output":         config.KeyOutput,
	"format":         config.KeyFormat,
	"audit":          config.KeyAudit,
	"cache-dir":      config.KeyCacheDir,
	"cache-ttl":      config.KeyCacheTTL,
	"skip-db-update": config.KeySkipDBUpdate,
	"log-level":      config.KeyLogLevel,
	"log-format":     config.KeyLogFormat,
	"log-output":     config.KeyLogOutput,
}

// app carries the state shared by every subcommand of one invocation.
type app struct {
	v      *viper.Viper
	fs     afero.Fs
	stdout io.Writer
	stderr io.Writer
	now    func() time.Time

	configFile string
	cfg        *config.Config
	logger     zerolog.Logger
	closer     io.Closer
}

// NewRootCommand creates the root cobra command with all subcommands.
func NewRootCommand() *cobra.Command {
	return newRootCommand(afero.NewOsFs(), os.Stdout, os.Stderr)
}

func newRootCommand(fs afero.Fs, stdout, stderr io.Writer) *cobra.Command {
	return newApp(fs, stdout, stderr).rootCommand()
}

func newApp(fs afero.Fs, stdout, stderr io.Writer) *app {
	return &app{
		v:      config.New(),
		fs:     fs,
		stdout: stdout,
		stderr: stderr,
		now:    time.Now,
		logger: zerolog.Nop(),
	}
}

func (a *app) rootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "exploit-reconciler",
		Short:   "Reconcile PoC-in-GitHub, ExploitDB and CISA KEV exploit tables",
		Version: Version,
		Long: `exploit-reconciler merges three per-source exploit tables into one table
keyed by CVE, with a single row per CVE and an origin label naming the
sources that reported it.

Usage:
  exploit-reconciler fetch poc --dir PoC-in-GitHub -o poc.csv
  exploit-reconciler fetch kev -o kev.csv
  exploit-reconciler reconcile --poc poc.csv --xdb xdb.csv --kev kev.csv -o exploits.csv
  exploit-reconciler compile --exploits exploits.csv --format table --sort-by risk`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
	}
	cmd.SetOut(a.stdout)
	cmd.SetErr(a.stderr)

	flags := cmd.PersistentFlags()
	flags.StringVar(&a.configFile, "config", "", "Config file (default: ./.exploit-reconciler.yaml or ~/.exploit-reconciler.yaml)")
	flags.String("cache-dir", "", "Override cache directory")
	flags.Duration("cache-ttl", config.DefaultCacheTTL, "How long downloaded feeds stay fresh")
	flags.Bool("skip-db-update", false, "Use cached data without update check")
	flags.String("log-level", "info", "Log level: trace, debug, info, warn, error, disabled")
	flags.String("log-format", "auto", "Log format: auto, console, json")
	flags.String("log-output", "stderr", "Log destination: stderr, stdout, discard or a file path")

	cmd.AddCommand(
		newReconcileCommand(a),
		newCompileCommand(a),
		newFetchCommand(a),
	)
	return cmd
}

// setup resolves configuration and the logger before any subcommand runs.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	config.LoadEnvFiles()

	if err := a.bindFlags(cmd.Flags()); err != nil {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	if err := config.ReadFile(a.v, a.configFile); err != nil {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	cfg, err := config.FromViper(a.v)
	if err != nil {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}

	logger, closer, err := logging.New(cfg.Log)
	if err != nil {
		return &ExitError{Code: ExitUsage, Message: err.Error()}
	}
	a.cfg, a.logger, a.closer = cfg, logger, closer

	cmd.SetContext(logging.WithLogger(cmd.Context(), logger))
	logger.Debug().
		Str("config_file", cfg.File).
		Str("cache_dir", cfg.CacheDir).
		Str("command", cmd.Name()).
		Msg("configuration resolved")
	return nil
}

// bindFlags binds the flags the running command defines to their config
// keys, so an explicit flag beats the environment and the config file.
func (a *app) bindFlags(flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		f := flags.Lookup(name)
		if f == nil {
			continue
		}
		if err := a.v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding flag --%s: %w", name, err)
		}
	}
	return nil
}

// runE adapts a subcommand body to cobra. The log output is closed whether
// or not the body fails, since cobra skips post-run hooks after an error.
func (a *app) runE(run func(cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) (err error) {
		defer func() {
			if cerr := a.close(); cerr != nil && err == nil {
				err = &ExitError{Code: ExitUsage, Message: fmt.Sprintf("closing log output: %v", cerr)}
			}
		}()
		return classify(run(cmd))
	}
}

func (a *app) close() error {
	if a.closer == nil {
		return nil
	}
	closer := a.closer
	a.closer = nil
	return closer.Close()
}

// classify maps an error to the exit code of its category.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return err
	}
	code := ExitUsage
	switch {
	case errors.IsSchemaMismatch(err):
		code = ExitSchema
	case errors.IsDuplicateKey(err):
		code = ExitViolation
	}
	return &ExitError{Code: code, Message: err.Error()}
}

// outputFormat is a table file format or the rendered terminal table.
type outputFormat string

const (
	formatCSV   outputFormat = "csv"
	formatJSON  outputFormat = "json"
	formatTable outputFormat = "table"
)

// resolveFormat picks the output format. Without an explicit format the
// output file extension decides, falling back to CSV.
func resolveFormat(name, path string) (outputFormat, error) {
	switch outputFormat(strings.ToLower(strings.TrimSpace(name))) {
	case formatCSV:
		return formatCSV, nil
	case formatJSON:
		return formatJSON, nil
	case formatTable:
		return formatTable, nil
	case "":
		if f, ok := table.FormatFromPath(path); ok && f == table.FormatJSON {
			return formatJSON, nil
		}
		return formatCSV, nil
	default:
		return "", &ExitError{
			Code:    ExitUsage,
			Message: fmt.Sprintf("unsupported output format: %s", name),
		}
	}
}

// openOutput returns the writer for path, or stdout for "" and "-". The
// returned function closes the file.
func (a *app) openOutput(path string) (io.Writer, func() error, error) {
	if path == "" || path == "-" {
		return a.stdout, func() error { return nil }, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := a.fs.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("creating output dir: %w", err)
		}
	}
	f, err := a.fs.Create(path)
	if err != nil {
		return nil, nil, fmt.Errorf("creating output file: %w", err)
	}
	return f, f.Close, nil
}

// renderFunc draws the table format. isTerminal enables ANSI styling.
type renderFunc func(w io.Writer, isTerminal bool) error

// writeResult writes frame as CSV or JSON, or calls render for the table
// format.
func (a *app) writeResult(path string, format outputFormat, frame *table.Frame, render renderFunc) (err error) {
	w, closeFn, err := a.openOutput(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil && err == nil {
			err = fmt.Errorf("closing output file: %w", cerr)
		}
	}()

	switch format {
	case formatJSON:
		return table.Encode(w, table.FormatJSON, frame)
	case formatTable:
		return render(w, output.IsOutputToTerminal(w))
	default:
		return table.Encode(w, table.FormatCSV, frame)
	}
}
