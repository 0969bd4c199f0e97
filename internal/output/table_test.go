// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bonial-oss/exploit-reconciler/internal/errors"
	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

func floatPtr(v float64) *float64 { return &v }

func intPtr(v int64) *int64 { return &v }

func boolPtr(v bool) *bool { return &v }

func strPtr(v string) *string { return &v }

func datePtr(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

// makeReconciled returns three rows in a deliberately unsorted order.
func makeReconciled() []types.ReconciledRecord {
	return []types.ReconciledRecord{
		{
			CVEID:        "CVE-2024-1234",
			ExploitCount: intPtr(1),
			EarliestDate: datePtr(2024, time.January, 15),
			Origin:       types.OriginKEV,
		},
		{
			CVEID:            "CVE-2019-0708",
			ExploitCount:     intPtr(12),
			EarliestDate:     datePtr(2019, time.May, 30),
			Origin:           types.OriginPoCXDBKEV,
			PoCCode:          boolPtr(true),
			FirstPoCType:     strPtr("remote"),
			FirstPoCPlatform: strPtr("windows"),
			FirstPoCPort:     intPtr(3389),
			Verified:         boolPtr(true),
		},
		{
			CVEID:        "CVE-2021-44228",
			ExploitCount: intPtr(40),
			Origin:       types.OriginPoC,
		},
	}
}

func makeCompiled() []types.CompiledRecord {
	return []types.CompiledRecord{
		{CVEID: "CVE-2023-5678", ExploitCount: intPtr(5), Origin: types.OriginPoC, EPSS: floatPtr(0.42), Percentile: floatPtr(0.873), Risk: 37.8},
		{CVEID: "CVE-2022-0001", Origin: types.OriginXDB, Risk: 8},
		{CVEID: "CVE-2024-1234", ExploitCount: intPtr(1), ExploitationDate: datePtr(2024, time.January, 15), Origin: types.OriginKEV, EPSS: floatPtr(0.97), Percentile: floatPtr(0.998), Risk: 90.2},
	}
}

func TestReconciledTable_AllColumns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReconciledTable(&buf, makeReconciled(), TableConfig{Title: "Reconciled exploits"}))
	output := buf.String()

	assert.Contains(t, output, "Reconciled exploits")
	assert.Contains(t, output, "===")
	assert.Contains(t, output, "Total: 3 (poc: 1, xdb: 0, poc_xdb: 0, kev: 1, poc_kev: 0, xdb_kev: 0, poc_xdb_kev: 1)")

	for _, ch := range []string{"┌", "┐", "└", "┘", "│"} {
		assert.Contains(t, output, ch)
	}
	for _, col := range []string{"CVE", "Exploits", "Earliest Date", "Origin", "PoC Code", "Type", "Platform", "Verified"} {
		assert.Contains(t, output, col)
	}
	for _, cell := range []string{"2019-05-30", "poc_xdb_kev", "remote", "windows", "YES", "12"} {
		assert.Contains(t, output, cell)
	}
}

func TestReconciledTable_NoTitle(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReconciledTable(&buf, makeReconciled(), TableConfig{}))
	output := buf.String()

	assert.NotContains(t, output, "===")
	assert.True(t, strings.HasPrefix(output, "Total: 3"))
}

func TestReconciledTable_Sorting(t *testing.T) {
	tests := []struct {
		sortBy string
		order  []string
	}{
		{"", []string{"CVE-2024-1234", "CVE-2019-0708", "CVE-2021-44228"}},
		{SortByCVE, []string{"CVE-2019-0708", "CVE-2021-44228", "CVE-2024-1234"}},
		{SortByCount, []string{"CVE-2021-44228", "CVE-2019-0708", "CVE-2024-1234"}},
		// Oldest first; the undated row goes last.
		{SortByDate, []string{"CVE-2019-0708", "CVE-2024-1234", "CVE-2021-44228"}},
	}
	for _, tt := range tests {
		t.Run("sort="+tt.sortBy, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteReconciledTable(&buf, makeReconciled(), TableConfig{SortBy: tt.sortBy}))
			assertOrder(t, buf.String(), tt.order...)
		})
	}
}

func TestReconciledTable_NullCells(t *testing.T) {
	records := []types.ReconciledRecord{{CVEID: "CVE-2020-0001", Origin: types.OriginXDB, PoCCode: boolPtr(false)}}

	var buf bytes.Buffer
	require.NoError(t, WriteReconciledTable(&buf, records, TableConfig{}))
	output := buf.String()

	assert.Contains(t, output, "CVE-2020-0001")
	assert.Contains(t, output, "NO")
	assert.Contains(t, output, "-")
}

func TestReconciledTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteReconciledTable(&buf, nil, TableConfig{}))
	output := buf.String()

	assert.Contains(t, output, "Total: 0")
	assert.Contains(t, output, "┌")
	assert.Contains(t, output, "Earliest Date")
}

func TestReconciledTable_InvalidSortKey(t *testing.T) {
	var buf bytes.Buffer
	err := WriteReconciledTable(&buf, makeReconciled(), TableConfig{SortBy: "severity"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInvalidInput)
	assert.Empty(t, buf.String())
}

func TestCompiledTable_AllColumns(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCompiledTable(&buf, makeCompiled(), TableConfig{}))
	output := buf.String()

	for _, col := range []string{"CVE", "Exploits", "Exploitation Date", "Origin", "Risk", "EPSS", "EPSS %ile"} {
		assert.Contains(t, output, col)
	}
	for _, cell := range []string{"37.8", "0.42", "87.3", "90.2", "0.97", "99.8", "8.0", "2024-01-15"} {
		assert.Contains(t, output, cell)
	}
}

func TestCompiledTable_Sorting(t *testing.T) {
	tests := []struct {
		sortBy string
		order  []string
	}{
		{SortByRisk, []string{"CVE-2024-1234", "CVE-2023-5678", "CVE-2022-0001"}},
		// EPSS: 0.97 > 0.42 > nil.
		{SortByEPSS, []string{"CVE-2024-1234", "CVE-2023-5678", "CVE-2022-0001"}},
		{SortByCount, []string{"CVE-2023-5678", "CVE-2024-1234", "CVE-2022-0001"}},
	}
	for _, tt := range tests {
		t.Run("sort="+tt.sortBy, func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, WriteCompiledTable(&buf, makeCompiled(), TableConfig{SortBy: tt.sortBy}))
			assertOrder(t, buf.String(), tt.order...)
		})
	}
}

func TestValidateSortKey(t *testing.T) {
	for _, key := range []string{"", "cve", "count", "date", "epss", "risk"} {
		assert.NoError(t, ValidateSortKey(key), key)
	}
	assert.Error(t, ValidateSortKey("severity"))
}

func TestFormatters(t *testing.T) {
	assert.Equal(t, "-", formatCount(nil))
	assert.Equal(t, "7", formatCount(intPtr(7)))
	assert.Equal(t, "-", formatDate(nil))
	assert.Equal(t, "2024-01-15", formatDate(datePtr(2024, time.January, 15)))
	assert.Equal(t, "-", formatBool(nil))
	assert.Equal(t, "YES", formatBool(boolPtr(true)))
	assert.Equal(t, "NO", formatBool(boolPtr(false)))
	assert.Equal(t, "-", formatString(strPtr("")))
	assert.Equal(t, "0.97", formatEPSSScore(floatPtr(0.97)))
	assert.Equal(t, "-", formatEPSSScore(nil))
	assert.Equal(t, "99.8", formatEPSSPercentile(floatPtr(0.998)))
	assert.Equal(t, "-", formatEPSSPercentile(nil))
}

func assertOrder(t *testing.T, output string, items ...string) {
	t.Helper()
	prev := -1
	for _, item := range items {
		idx := strings.Index(output, item)
		require.NotEqual(t, -1, idx, "missing %q in output", item)
		assert.Greater(t, idx, prev, "%q should appear after previous item", item)
		prev = idx
	}
}
