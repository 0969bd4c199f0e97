// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package cache keeps downloaded feeds on disk together with the time and
// location they were fetched from.
package cache

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

const metadataFile = "metadata.json"

// Metadata describes the last successful download.
type Metadata struct {
	DownloadedAt string `json:"downloaded_at"`
	Source       string `json:"source,omitempty"`
}

// Cache is a directory holding one feed file and its metadata.
type Cache struct {
	fs  afero.Fs
	dir string
	ttl time.Duration
	now func() time.Time
}

// New creates a cache rooted at dir on fs. Entries older than ttl are stale.
func New(fs afero.Fs, dir string, ttl time.Duration) *Cache {
	return &Cache{fs: fs, dir: dir, ttl: ttl, now: time.Now}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// IsFresh reports whether the last download is younger than the TTL.
func (c *Cache) IsFresh() bool {
	age, ok := c.Age()
	return ok && age < c.ttl
}

// Age returns the time since the last download, or false when the cache
// holds no readable metadata.
func (c *Cache) Age() (time.Duration, bool) {
	meta, err := c.Metadata()
	if err != nil {
		return 0, false
	}
	downloadedAt, err := time.Parse(time.RFC3339, meta.DownloadedAt)
	if err != nil {
		return 0, false
	}
	return c.now().Sub(downloadedAt), true
}

// Store writes data under filename and records source as its origin.
func (c *Cache) Store(filename, source string, data []byte) error {
	if err := c.fs.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	if err := afero.WriteFile(c.fs, filepath.Join(c.dir, filename), data, 0o644); err != nil {
		return fmt.Errorf("writing cache data: %w", err)
	}
	meta := Metadata{
		DownloadedAt: c.now().UTC().Format(time.RFC3339),
		Source:       source,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	if err := afero.WriteFile(c.fs, filepath.Join(c.dir, metadataFile), metaBytes, 0o644); err != nil {
		return fmt.Errorf("writing metadata: %w", err)
	}
	return nil
}

// Load reads a cached file.
func (c *Cache) Load(filename string) ([]byte, error) {
	return afero.ReadFile(c.fs, filepath.Join(c.dir, filename))
}

// Exists reports whether filename is cached.
func (c *Cache) Exists(filename string) bool {
	ok, err := afero.Exists(c.fs, filepath.Join(c.dir, filename))
	return err == nil && ok
}

// Metadata reads the metadata of the last download.
func (c *Cache) Metadata() (*Metadata, error) {
	data, err := afero.ReadFile(c.fs, filepath.Join(c.dir, metadataFile))
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}
