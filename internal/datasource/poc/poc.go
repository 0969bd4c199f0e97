// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package poc extracts per-CVE exploit counts from a local clone of the
// PoC-in-GitHub repository, laid out as <year>/<CVE-ID>.json where each file
// holds the GitHub repositories publishing code for that CVE.
package poc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/cheggaaa/pb/v3"
	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"

	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

// Repository is one entry of a PoC-in-GitHub file.
type Repository struct {
	ID        int64    `json:"id"`
	Name      string   `json:"name"`
	FullName  string   `json:"full_name"`
	HTMLURL   string   `json:"html_url"`
	CreatedAt string   `json:"created_at"`
	Topics    []string `json:"topics"`
}

// Result is the outcome of a directory walk.
type Result struct {
	Records []types.ExploitRecord
	// Files is the number of JSON files visited.
	Files int
	// Dropped lists files that were unreadable or had no recoverable CVE ID.
	Dropped []string
}

// Loader walks a PoC-in-GitHub tree.
type Loader struct {
	fs       afero.Fs
	logger   zerolog.Logger
	progress io.Writer
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithProgress draws a progress bar on w while files are processed.
func WithProgress(w io.Writer) Option {
	return func(l *Loader) { l.progress = w }
}

// NewLoader creates a Loader reading from fs.
func NewLoader(fs afero.Fs, opts ...Option) *Loader {
	l := &Loader{fs: fs, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load extracts one exploit record per file under root. exploit_count is the
// number of repositories and earliest_date the oldest created_at.
func (l *Loader) Load(ctx context.Context, root string) (*Result, error) {
	info, err := l.fs.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("reading PoC directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("PoC path %s is not a directory", root)
	}

	files, err := l.jsonFiles(root)
	if err != nil {
		return nil, err
	}
	l.logger.Debug().Int("files", len(files)).Str("root", root).Msg("walking PoC-in-GitHub tree")

	var bar *pb.ProgressBar
	if l.progress != nil {
		bar = pb.New(len(files))
		bar.SetWriter(l.progress)
		bar.Start()
		defer bar.Finish()
	}

	result := &Result{Files: len(files)}
	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec, err := l.extract(path)
		if err != nil {
			l.logger.Warn().Err(err).Str("file", path).Msg("dropping PoC file")
			result.Dropped = append(result.Dropped, path)
		} else {
			result.Records = append(result.Records, *rec)
		}
		if bar != nil {
			bar.Increment()
		}
	}

	if len(result.Dropped) > 0 {
		l.logger.Info().Int("dropped", len(result.Dropped)).Msg("PoC files without a usable CVE ID")
	}
	return result, nil
}

func (l *Loader) jsonFiles(root string) ([]string, error) {
	var files []string
	err := afero.Walk(l.fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if path != root && strings.HasPrefix(info.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".json") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking PoC directory: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (l *Loader) extract(path string) (*types.ExploitRecord, error) {
	data, err := afero.ReadFile(l.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	var repos []Repository
	if err := json.Unmarshal(data, &repos); err != nil {
		return nil, fmt.Errorf("decoding repositories: %w", err)
	}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	cve, ok := resolveCVEID(stem, repos)
	if !ok {
		return nil, fmt.Errorf("no CVE ID in file name, repository names or topics")
	}

	count := int64(len(repos))
	return &types.ExploitRecord{
		CVEID:        cve,
		ExploitCount: &count,
		EarliestDate: l.earliest(path, repos),
	}, nil
}

// earliest returns the oldest parsable created_at, or nil.
func (l *Loader) earliest(path string, repos []Repository) *time.Time {
	var oldest *time.Time
	for _, r := range repos {
		if strings.TrimSpace(r.CreatedAt) == "" {
			continue
		}
		t, err := dateparse.ParseIn(r.CreatedAt, time.UTC)
		if err != nil {
			l.logger.Debug().Str("file", path).Str("created_at", r.CreatedAt).Msg("unparsable created_at")
			continue
		}
		t = t.UTC()
		if oldest == nil || t.Before(*oldest) {
			oldest = &t
		}
	}
	return oldest
}

// resolveCVEID tries the file name, then repository names, then topics.
func resolveCVEID(stem string, repos []Repository) (string, bool) {
	if id, ok := NormalizeCVEID(stem); ok {
		return id, true
	}
	names := lo.Map(repos, func(r Repository, _ int) string { return r.Name })
	topics := lo.FlatMap(repos, func(r Repository, _ int) []string { return r.Topics })
	for _, candidate := range append(names, topics...) {
		if id, ok := NormalizeCVEID(candidate); ok {
			return id, true
		}
	}
	return "", false
}

var (
	cveIDPattern  = regexp.MustCompile(`(?i)CVE[\s_-]*(1999|20\d{2})[\s_-]+(\d{1,7})`)
	bareIDPattern = regexp.MustCompile(`^(1999|20\d{2})-(\d{1,7})$`)
)

// NormalizeCVEID extracts a CVE identifier from s and returns it as
// CVE-YYYY-NNNN, upper-cased with the ordinal zero-padded to four digits.
func NormalizeCVEID(s string) (string, bool) {
	s = strings.TrimSpace(s)
	m := cveIDPattern.FindStringSubmatch(s)
	if m == nil {
		m = bareIDPattern.FindStringSubmatch(s)
	}
	if m == nil {
		return "", false
	}
	ordinal := m[2]
	if len(ordinal) < 4 {
		ordinal = strings.Repeat("0", 4-len(ordinal)) + ordinal
	}
	return "CVE-" + m[1] + "-" + ordinal, true
}
