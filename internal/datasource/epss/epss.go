// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package epss loads the daily EPSS score feed.
package epss

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/bonial-oss/exploit-reconciler/internal/cache"
	"github.com/bonial-oss/exploit-reconciler/internal/datasource"
	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

const (
	cacheFilename       = "epss_scores.csv"
	defaultBaseURL      = "https://epss.empiricalsecurity.com"
	defaultTTL          = 24 * time.Hour
	maxDecompressedSize = 100 * 1024 * 1024 // 100 MB
)

// Source provides access to EPSS data with caching support.
type Source struct {
	fs      afero.Fs
	ttl     time.Duration
	baseURL string
	fetcher *datasource.Fetcher
	logger  zerolog.Logger
	now     func() time.Time

	cache        *cache.Cache
	entries      map[string]types.EPSSEntry
	modelVersion string
	scoreDate    string
}

// Option configures a Source.
type Option func(*Source)

// WithFs sets the filesystem holding the cache.
func WithFs(fs afero.Fs) Option {
	return func(s *Source) { s.fs = fs }
}

// WithTTL sets how long a cached feed stays fresh.
func WithTTL(ttl time.Duration) Option {
	return func(s *Source) { s.ttl = ttl }
}

// WithBaseURL sets the server the dated feed files are fetched from.
func WithBaseURL(url string) Option {
	return func(s *Source) { s.baseURL = strings.TrimRight(url, "/") }
}

// WithFetcher sets the HTTP fetcher.
func WithFetcher(f *datasource.Fetcher) Option {
	return func(s *Source) { s.fetcher = f }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Source) { s.logger = logger }
}

// NewSource creates an EPSS data source with its cache under cacheDir/epss/.
func NewSource(cacheDir string, opts ...Option) *Source {
	s := &Source{
		fs:      afero.NewOsFs(),
		ttl:     defaultTTL,
		baseURL: defaultBaseURL,
		logger:  zerolog.Nop(),
		now:     time.Now,
		entries: make(map[string]types.EPSSEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fetcher == nil {
		s.fetcher = datasource.NewFetcher(s.logger)
	}
	s.cache = cache.New(s.fs, filepath.Join(cacheDir, "epss"), s.ttl)
	return s
}

// Load fetches EPSS data, using cache when appropriate.
//
// Logic:
//  1. If skipUpdate and cache exists -> load from cache.
//  2. If cache is fresh -> load from cache.
//  3. Download today's feed, then yesterday's; store and parse on success.
//  4. If both downloads fail and cache exists -> warn, load stale cache.
//  5. Otherwise return the download error.
func (s *Source) Load(ctx context.Context, skipUpdate bool) error {
	if skipUpdate && s.cache.Exists(cacheFilename) {
		return s.loadFromCache()
	}

	if s.cache.IsFresh() {
		return s.loadFromCache()
	}

	data, url, err := s.download(ctx)
	if err == nil {
		if err := s.parseCSV(data); err != nil {
			return err
		}
		if err := s.cache.Store(cacheFilename, url, data); err != nil {
			return fmt.Errorf("storing EPSS data in cache: %w", err)
		}
		s.logger.Debug().Str("url", url).Int("entries", len(s.entries)).Msg("downloaded EPSS scores")
		return nil
	}

	if s.cache.Exists(cacheFilename) {
		s.logger.Warn().Err(err).Msg("failed to download EPSS data, using stale cache")
		return s.loadFromCache()
	}

	return fmt.Errorf("downloading EPSS data: %w", err)
}

// Lookup returns the EPSS entry for the given CVE ID, or nil if not found.
func (s *Source) Lookup(cveID string) *types.EPSSEntry {
	entry, ok := s.entries[cveID]
	if !ok {
		return nil
	}
	return &entry
}

// Entries returns every score, ordered by CVE ID.
func (s *Source) Entries() []types.EPSSEntry {
	out := make([]types.EPSSEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CVE < out[j].CVE })
	return out
}

// Len returns the number of scored CVEs.
func (s *Source) Len() int {
	return len(s.entries)
}

// ModelVersion returns the model version string from the EPSS CSV header.
func (s *Source) ModelVersion() string {
	return s.modelVersion
}

// ScoreDate returns the score date string from the EPSS CSV header.
func (s *Source) ScoreDate() string {
	return s.scoreDate
}

func (s *Source) loadFromCache() error {
	data, err := s.cache.Load(cacheFilename)
	if err != nil {
		return fmt.Errorf("loading EPSS data from cache: %w", err)
	}
	return s.parseCSV(data)
}

// download fetches the gzip-compressed EPSS CSV for today's date.
// If today's file is not available, it falls back to yesterday's date.
func (s *Source) download(ctx context.Context) ([]byte, string, error) {
	now := s.now().UTC()
	today := now.Format("2006-01-02")
	yesterday := now.AddDate(0, 0, -1).Format("2006-01-02")

	data, url, err := s.downloadForDate(ctx, today)
	if err == nil {
		return data, url, nil
	}

	data, url, err2 := s.downloadForDate(ctx, yesterday)
	if err2 == nil {
		return data, url, nil
	}

	return nil, "", fmt.Errorf("today (%s): %w; yesterday (%s): %v", today, err, yesterday, err2)
}

// downloadForDate downloads and decompresses the EPSS CSV for the given date.
func (s *Source) downloadForDate(ctx context.Context, date string) ([]byte, string, error) {
	url := fmt.Sprintf("%s/epss_scores-%s.csv.gz", s.baseURL, date)

	compressed, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, "", err
	}

	gz, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, "", fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gz.Close()

	data, err := io.ReadAll(io.LimitReader(gz, maxDecompressedSize))
	if err != nil {
		return nil, "", fmt.Errorf("reading gzip data: %w", err)
	}
	return data, url, nil
}

// parseCSV parses the EPSS CSV data and populates the entries map.
// It extracts model_version and score_date from the comment header line.
func (s *Source) parseCSV(data []byte) error {
	entries := make(map[string]types.EPSSEntry)
	s.modelVersion = ""
	s.scoreDate = ""

	lines := strings.Split(string(data), "\n")

	dataStart := 0
	for i, line := range lines {
		if !strings.HasPrefix(line, "#") {
			dataStart = i
			break
		}
		s.parseCommentLine(line)
	}

	reader := csv.NewReader(strings.NewReader(strings.Join(lines[dataStart:], "\n")))

	// Read and discard the CSV header line.
	if _, err := reader.Read(); err != nil {
		if err == io.EOF {
			s.entries = entries
			return nil
		}
		return fmt.Errorf("reading CSV header: %w", err)
	}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("reading CSV record: %w", err)
		}
		if len(record) < 3 {
			continue
		}

		score, err := strconv.ParseFloat(record[1], 64)
		if err != nil {
			return fmt.Errorf("parsing EPSS score for %s: %w", record[0], err)
		}
		percentile, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return fmt.Errorf("parsing EPSS percentile for %s: %w", record[0], err)
		}

		entries[record[0]] = types.EPSSEntry{
			CVE:        record[0],
			Score:      score,
			Percentile: percentile,
		}
	}

	s.entries = entries
	return nil
}

// parseCommentLine extracts metadata from a comment line like:
// #model_version:v2025.03.14,score_date:2026-02-12T00:00:00+0000
func (s *Source) parseCommentLine(line string) {
	for _, part := range strings.Split(strings.TrimPrefix(line, "#"), ",") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		value := strings.TrimSpace(kv[1])
		switch strings.TrimSpace(kv[0]) {
		case "model_version":
			s.modelVersion = value
		case "score_date":
			s.scoreDate = value
		}
	}
}
