// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package kev

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/exploit-reconciler/internal/datasource"
	"github.com/bonial-oss/exploit-reconciler/internal/errors"
)

const sampleJSON = `{
  "catalogVersion": "2026.02.12",
  "dateReleased": "2026-02-12T00:00:00.000Z",
  "count": 2,
  "vulnerabilities": [
    {
      "cveID": "CVE-2024-1234",
      "vendorProject": "ExampleVendor",
      "product": "ExampleProduct",
      "vulnerabilityName": "Example Vulnerability",
      "dateAdded": "2024-01-15",
      "shortDescription": "An example vulnerability.",
      "requiredAction": "Apply updates per vendor instructions.",
      "dueDate": "2024-02-05",
      "knownRansomwareCampaignUse": "Known",
      "notes": "",
      "cwes": ["CWE-78"]
    },
    {
      "cveID": "CVE-2023-5678",
      "vendorProject": "AnotherVendor",
      "product": "AnotherProduct",
      "vulnerabilityName": "Another Vulnerability",
      "dateAdded": "not a date",
      "shortDescription": "Another example.",
      "requiredAction": "Apply updates per vendor instructions.",
      "dueDate": "2023-06-22",
      "knownRansomwareCampaignUse": "Unknown",
      "notes": "",
      "cwes": ["CWE-79"]
    }
  ]
}`

const cacheDir = "/cache"

func testFetcher() *datasource.Fetcher {
	f := datasource.NewFetcher(zerolog.Nop())
	f.Retries = 0
	f.InitialInterval = time.Millisecond
	return f
}

func writeCache(t *testing.T, fs afero.Fs, data string, downloadedAt time.Time) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, cacheDir+"/kev/"+cacheFilename, []byte(data), 0o644))
	meta, err := json.Marshal(map[string]string{"downloaded_at": downloadedAt.UTC().Format(time.RFC3339)})
	require.NoError(t, err)
	require.NoError(t, afero.WriteFile(fs, cacheDir+"/kev/metadata.json", meta, 0o644))
}

func TestParseJSON(t *testing.T) {
	s := NewSource(cacheDir, WithFs(afero.NewMemMapFs()))
	require.NoError(t, s.parseJSON([]byte(sampleJSON)))
	require.Len(t, s.entries, 2)

	assert.Equal(t, "2026.02.12", s.Version())
	assert.Equal(t, 2, s.Len())

	entry := s.Lookup("CVE-2024-1234")
	require.NotNil(t, entry)
	assert.Equal(t, "ExampleVendor", entry.VendorProject)
	assert.Equal(t, "Example Vulnerability", entry.VulnerabilityName)
	assert.Equal(t, "2024-01-15", entry.DateAdded)
	assert.Equal(t, "Known", entry.KnownRansomwareCampaignUse)

	assert.Nil(t, s.Lookup("CVE-9999-0000"))
}

func TestParseJSON_CountMismatch(t *testing.T) {
	s := NewSource(cacheDir, WithFs(afero.NewMemMapFs()))
	err := s.parseJSON([]byte(`{"count": 3, "vulnerabilities": [{"cveID": "CVE-2024-1234"}]}`))
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
}

func TestRecords(t *testing.T) {
	s := NewSource(cacheDir, WithFs(afero.NewMemMapFs()))
	require.NoError(t, s.parseJSON([]byte(sampleJSON)))

	records := s.Records()
	require.Len(t, records, 2)

	assert.Equal(t, "CVE-2024-1234", records[0].CVEID)
	require.NotNil(t, records[0].KEVDatePublished)
	assert.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), *records[0].KEVDatePublished)

	assert.Equal(t, "CVE-2023-5678", records[1].CVEID)
	assert.Nil(t, records[1].KEVDatePublished)
}

func TestSource_Load_FromCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeCache(t, fs, sampleJSON, time.Now())

	// No URLs: any network attempt would fail the load.
	s := NewSource(cacheDir, WithFs(fs), WithURLs(), WithFetcher(testFetcher()))
	require.NoError(t, s.Load(context.Background(), false))
	assert.Equal(t, 2, s.Len())
}

func TestSource_Load_SkipUpdateUsesStaleCache(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeCache(t, fs, sampleJSON, time.Now().Add(-72*time.Hour))

	s := NewSource(cacheDir, WithFs(fs), WithURLs(), WithFetcher(testFetcher()))
	require.NoError(t, s.Load(context.Background(), true))
	assert.Equal(t, 2, s.Len())
}

func TestSource_Load_DownloadFallback(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer primary.Close()
	mirror := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(sampleJSON))
	}))
	defer mirror.Close()

	fs := afero.NewMemMapFs()
	s := NewSource(cacheDir, WithFs(fs), WithURLs(primary.URL, mirror.URL), WithFetcher(testFetcher()))
	require.NoError(t, s.Load(context.Background(), false))
	assert.Equal(t, 2, s.Len())

	ok, err := afero.Exists(fs, cacheDir+"/kev/"+cacheFilename)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, s.cache.IsFresh())

	meta, err := s.cache.Metadata()
	require.NoError(t, err)
	assert.Equal(t, mirror.URL, meta.Source)
}

func TestSource_Load_StaleCacheOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	fs := afero.NewMemMapFs()
	writeCache(t, fs, sampleJSON, time.Now().Add(-48*time.Hour))

	s := NewSource(cacheDir, WithFs(fs), WithURLs(srv.URL), WithFetcher(testFetcher()))
	require.NoError(t, s.Load(context.Background(), false))
	assert.Equal(t, 2, s.Len())
}

func TestSource_Load_NoCacheNoNetwork(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	s := NewSource(cacheDir, WithFs(afero.NewMemMapFs()), WithURLs(srv.URL), WithFetcher(testFetcher()))
	err := s.Load(context.Background(), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "downloading KEV data")
}
