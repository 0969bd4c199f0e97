// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package kev loads the CISA Known Exploited Vulnerabilities catalog and
// turns it into the KEV presence table.
package kev

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/bonial-oss/exploit-reconciler/internal/cache"
	"github.com/bonial-oss/exploit-reconciler/internal/datasource"
	"github.com/bonial-oss/exploit-reconciler/internal/errors"
	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

const (
	cacheFilename = "known_exploited_vulnerabilities.json"
	primaryURL    = "https://www.cisa.gov/sites/default/files/feeds/known_exploited_vulnerabilities.json"
	fallbackURL   = "https://raw.githubusercontent.com/cisagov/kev-data/main/known_exploited_vulnerabilities.json"
	defaultTTL    = 24 * time.Hour
)

// Source provides access to CISA KEV data with caching support.
type Source struct {
	fs      afero.Fs
	ttl     time.Duration
	urls    []string
	fetcher *datasource.Fetcher
	logger  zerolog.Logger

	cache   *cache.Cache
	catalog types.KEVCatalog
	entries map[string]types.KEVEntry
}

// Option configures a Source.
type Option func(*Source)

// WithFs sets the filesystem holding the cache.
func WithFs(fs afero.Fs) Option {
	return func(s *Source) { s.fs = fs }
}

// WithTTL sets how long a cached catalog stays fresh.
func WithTTL(ttl time.Duration) Option {
	return func(s *Source) { s.ttl = ttl }
}

// WithURLs replaces the download locations, tried in order.
func WithURLs(urls ...string) Option {
	return func(s *Source) { s.urls = urls }
}

// WithFetcher sets the HTTP fetcher.
func WithFetcher(f *datasource.Fetcher) Option {
	return func(s *Source) { s.fetcher = f }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Source) { s.logger = logger }
}

// NewSource creates a KEV data source with its cache under cacheDir/kev/.
func NewSource(cacheDir string, opts ...Option) *Source {
	s := &Source{
		fs:      afero.NewOsFs(),
		ttl:     defaultTTL,
		urls:    []string{primaryURL, fallbackURL},
		logger:  zerolog.Nop(),
		entries: make(map[string]types.KEVEntry),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.fetcher == nil {
		s.fetcher = datasource.NewFetcher(s.logger)
	}
	s.cache = cache.New(s.fs, filepath.Join(cacheDir, "kev"), s.ttl)
	return s
}

// Load fetches KEV data, using cache when appropriate.
//
// Logic:
//  1. If skipUpdate and cache exists -> load from cache.
//  2. If cache is fresh -> load from cache.
//  3. Download, trying each URL in turn; store and parse on success.
//  4. If every download fails and cache exists -> warn, load stale cache.
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
		if err := s.parseJSON(data); err != nil {
			return err
		}
		if err := s.cache.Store(cacheFilename, url, data); err != nil {
			return fmt.Errorf("storing KEV data in cache: %w", err)
		}
		s.logger.Debug().Str("url", url).Int("entries", len(s.entries)).Msg("downloaded KEV catalog")
		return nil
	}

	if s.cache.Exists(cacheFilename) {
		s.logger.Warn().Err(err).Msg("failed to download KEV data, using stale cache")
		return s.loadFromCache()
	}

	return fmt.Errorf("downloading KEV data: %w", err)
}

// Lookup returns the KEV entry for the given CVE ID, or nil if not found.
func (s *Source) Lookup(cveID string) *types.KEVEntry {
	entry, ok := s.entries[cveID]
	if !ok {
		return nil
	}
	return &entry
}

// Version returns the catalog version of the loaded data.
func (s *Source) Version() string {
	return s.catalog.CatalogVersion
}

// Len returns the number of catalog entries.
func (s *Source) Len() int {
	return len(s.catalog.Vulnerabilities)
}

// Records returns the KEV presence table in catalog order. dateAdded becomes
// kev_date_published; an unparsable date is logged and left null.
func (s *Source) Records() []types.KEVRecord {
	records := make([]types.KEVRecord, 0, len(s.catalog.Vulnerabilities))
	for _, v := range s.catalog.Vulnerabilities {
		rec := types.KEVRecord{CVEID: strings.TrimSpace(v.CVEID)}
		if added := strings.TrimSpace(v.DateAdded); added != "" {
			t, err := dateparse.ParseIn(added, time.UTC)
			if err != nil {
				s.logger.Warn().Str("cve_id", v.CVEID).Str("date_added", added).Msg("unparsable KEV date")
			} else {
				t = t.UTC()
				rec.KEVDatePublished = &t
			}
		}
		records = append(records, rec)
	}
	return records
}

func (s *Source) loadFromCache() error {
	data, err := s.cache.Load(cacheFilename)
	if err != nil {
		return fmt.Errorf("loading KEV data from cache: %w", err)
	}
	return s.parseJSON(data)
}

// download tries each URL in turn and returns the first body retrieved.
func (s *Source) download(ctx context.Context) ([]byte, string, error) {
	var errs []string
	for _, url := range s.urls {
		data, err := s.fetcher.Fetch(ctx, url)
		if err == nil {
			return data, url, nil
		}
		if ctx.Err() != nil {
			return nil, "", ctx.Err()
		}
		errs = append(errs, fmt.Sprintf("%s: %v", url, err))
	}
	return nil, "", fmt.Errorf("all KEV sources failed: %s", strings.Join(errs, "; "))
}

// parseJSON unmarshals the catalog and checks its declared count.
func (s *Source) parseJSON(data []byte) error {
	var catalog types.KEVCatalog
	if err := json.Unmarshal(data, &catalog); err != nil {
		return fmt.Errorf("unmarshaling KEV catalog: %w", err)
	}
	if catalog.Count != len(catalog.Vulnerabilities) {
		return fmt.Errorf("%w: KEV catalog declares %d entries but holds %d",
			errors.ErrInvalidInput, catalog.Count, len(catalog.Vulnerabilities))
	}

	s.catalog = catalog
	s.entries = make(map[string]types.KEVEntry, len(catalog.Vulnerabilities))
	for _, vuln := range catalog.Vulnerabilities {
		s.entries[vuln.CVEID] = vuln
	}
	return nil
}
