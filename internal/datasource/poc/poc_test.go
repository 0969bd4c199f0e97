// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package poc

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

const log4shellJSON = `[
  {"id": 1, "name": "log4j-scan", "full_name": "a/log4j-scan", "created_at": "2021-12-11T02:15:00Z", "topics": []},
  {"id": 2, "name": "CVE-2021-44228-poc", "full_name": "b/CVE-2021-44228-poc", "created_at": "2021-12-10T09:30:00Z", "topics": ["log4shell"]},
  {"id": 3, "name": "log4j-rce", "full_name": "c/log4j-rce", "created_at": "", "topics": []}
]`

const misnamedJSON = `[
  {"id": 4, "name": "exploit", "full_name": "d/exploit", "created_at": "2019-05-30T00:00:00Z", "topics": ["rdp", "cve-2019-708"]}
]`

func newTree(t *testing.T) afero.Fs {
	t.Helper()
	fs := afero.NewMemMapFs()
	files := map[string]string{
		"/poc/2021/CVE-2021-44228.json": log4shellJSON,
		"/poc/2019/bluekeep.json":       misnamedJSON,
		"/poc/2020/unknown.json":        `[{"id": 5, "name": "tool", "created_at": "2020-01-01T00:00:00Z"}]`,
		"/poc/2020/broken.json":         `{not json`,
		"/poc/README.md":                "# PoC in GitHub",
		"/poc/.git/config.json":         `[]`,
	}
	for path, content := range files {
		require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o644))
	}
	return fs
}

func TestLoad(t *testing.T) {
	res, err := NewLoader(newTree(t)).Load(context.Background(), "/poc")
	require.NoError(t, err)

	assert.Equal(t, 4, res.Files)
	assert.ElementsMatch(t, []string{"/poc/2020/broken.json", "/poc/2020/unknown.json"}, res.Dropped)
	require.Len(t, res.Records, 2)

	byCVE := lo.KeyBy(res.Records, func(r types.ExploitRecord) string { return r.CVEID })

	log4shell, ok := byCVE["CVE-2021-44228"]
	require.True(t, ok)
	require.NotNil(t, log4shell.ExploitCount)
	assert.Equal(t, int64(3), *log4shell.ExploitCount)
	require.NotNil(t, log4shell.EarliestDate)
	assert.Equal(t, time.Date(2021, time.December, 10, 9, 30, 0, 0, time.UTC), *log4shell.EarliestDate)

	bluekeep, ok := byCVE["CVE-2019-0708"]
	require.True(t, ok)
	assert.Equal(t, int64(1), *bluekeep.ExploitCount)
}

func TestLoad_EmptyFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/poc/2022/CVE-2022-0001.json", []byte(`[]`), 0o644))

	res, err := NewLoader(fs).Load(context.Background(), "/poc")
	require.NoError(t, err)
	require.Len(t, res.Records, 1)
	assert.Equal(t, int64(0), *res.Records[0].ExploitCount)
	assert.Nil(t, res.Records[0].EarliestDate)
}

func TestLoad_Progress(t *testing.T) {
	var buf bytes.Buffer
	res, err := NewLoader(newTree(t), WithProgress(&buf), WithLogger(zerolog.Nop())).Load(context.Background(), "/poc")
	require.NoError(t, err)
	assert.Len(t, res.Records, 2)
	assert.NotEmpty(t, buf.String())
}

func TestLoad_NotADirectory(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/poc.json", []byte(`[]`), 0o644))

	_, err := NewLoader(fs).Load(context.Background(), "/poc.json")
	assert.Error(t, err)

	_, err = NewLoader(fs).Load(context.Background(), "/missing")
	assert.Error(t, err)
}

func TestLoad_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewLoader(newTree(t)).Load(ctx, "/poc")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalizeCVEID(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"CVE-2021-44228", "CVE-2021-44228", true},
		{"cve-2021-44228", "CVE-2021-44228", true},
		{"CVE-2019-708", "CVE-2019-0708", true},
		{"CVE_2017_0144", "CVE-2017-0144", true},
		{"CVE-2021-44228-poc", "CVE-2021-44228", true},
		{"exploit-for-CVE-1999-0001", "CVE-1999-0001", true},
		{"2020-1472", "CVE-2020-1472", true},
		{"CVE-1998-0001", "", false},
		{"log4shell", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := NormalizeCVEID(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
