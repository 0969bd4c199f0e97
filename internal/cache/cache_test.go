// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package cache

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDir = "/cache/kev"

func writeMetadata(t *testing.T, fs afero.Fs, downloadedAt time.Time) {
	t.Helper()
	metaBytes, err := json.Marshal(Metadata{DownloadedAt: downloadedAt.UTC().Format(time.RFC3339)})
	require.NoError(t, err, "failed to marshal metadata")
	require.NoError(t, afero.WriteFile(fs, testDir+"/metadata.json", metaBytes, 0o644), "failed to write metadata")
}

func TestCache_IsFresh_NoMetadata(t *testing.T) {
	c := New(afero.NewMemMapFs(), testDir, 24*time.Hour)

	assert.False(t, c.IsFresh(), "IsFresh() = true, want false when no metadata file exists")
	_, ok := c.Age()
	assert.False(t, ok)
}

func TestCache_IsFresh_Stale(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := New(fs, testDir, 24*time.Hour)

	writeMetadata(t, fs, time.Now().Add(-25*time.Hour))

	assert.False(t, c.IsFresh(), "IsFresh() = true, want false when metadata is older than the TTL")
}

func TestCache_IsFresh_Fresh(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := New(fs, testDir, 24*time.Hour)

	writeMetadata(t, fs, time.Now().Add(-1*time.Hour))

	assert.True(t, c.IsFresh(), "IsFresh() = false, want true when metadata is younger than the TTL")
}

func TestCache_IsFresh_CustomTTL(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := New(fs, testDir, 30*time.Minute)

	writeMetadata(t, fs, time.Now().Add(-1*time.Hour))

	assert.False(t, c.IsFresh())
	age, ok := c.Age()
	require.True(t, ok)
	assert.InDelta(t, time.Hour.Seconds(), age.Seconds(), 60)
}

func TestCache_IsFresh_CorruptMetadata(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, testDir+"/metadata.json", []byte("{"), 0o644))

	assert.False(t, New(fs, testDir, time.Hour).IsFresh())
}

func TestCache_Store(t *testing.T) {
	fs := afero.NewMemMapFs()
	c := New(fs, testDir, 24*time.Hour)
	fixed := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return fixed }

	data := []byte("test data content")
	require.NoError(t, c.Store("testfile.csv", "https://example.test/feed.csv", data), "Store() error")

	got, err := afero.ReadFile(fs, testDir+"/testfile.csv")
	require.NoError(t, err, "failed to read stored data file")
	assert.Equal(t, string(data), string(got))

	meta, err := c.Metadata()
	require.NoError(t, err)
	assert.Equal(t, "2026-03-01T12:00:00Z", meta.DownloadedAt)
	assert.Equal(t, "https://example.test/feed.csv", meta.Source)
	assert.True(t, c.IsFresh())
}

func TestCache_Load(t *testing.T) {
	c := New(afero.NewMemMapFs(), testDir, 24*time.Hour)

	data := []byte("cached content here")
	require.NoError(t, c.Store("data.json", "", data), "Store() error")

	got, err := c.Load("data.json")
	require.NoError(t, err, "Load() error")
	assert.Equal(t, string(data), string(got))
}

func TestCache_Load_NoCachedFile(t *testing.T) {
	c := New(afero.NewMemMapFs(), testDir, 24*time.Hour)

	_, err := c.Load("nonexistent.csv")
	assert.Error(t, err, "Load() error = nil, want error when file does not exist")
}

func TestCache_Exists(t *testing.T) {
	c := New(afero.NewMemMapFs(), testDir, 24*time.Hour)

	assert.False(t, c.Exists("data.csv"), "Exists() = true before Store, want false")
	require.NoError(t, c.Store("data.csv", "", []byte("some data")), "Store() error")
	assert.True(t, c.Exists("data.csv"), "Exists() = false after Store, want true")
	assert.Equal(t, testDir, c.Dir())
}
