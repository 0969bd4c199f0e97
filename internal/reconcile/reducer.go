// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"time"

	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

// Policy names how a column collapses when two rows share a cve_id.
type Policy string

const (
	// PolicySum adds the values, treating null as zero. Two nulls stay null.
	PolicySum Policy = "sum"
	// PolicyMin keeps the earliest value, ignoring nulls.
	PolicyMin Policy = "min"
	// PolicyFirstNonNull keeps the first value that is not null.
	PolicyFirstNonNull Policy = "first_non_null"
	// PolicyUnion combines join indicators.
	PolicyUnion Policy = "union"
)

// ColumnPolicy describes the merge policy of one column of one table.
type ColumnPolicy struct {
	Table  string `yaml:"table" json:"table"`
	Column string `yaml:"column" json:"column"`
	Policy Policy `yaml:"policy" json:"policy"`
}

// exploitRow is an exploit record carrying the step-1 join indicator and
// the table that supplied its poc_code.
type exploitRow struct {
	types.ExploitRecord
	indicator     Indicator
	pocCodeSource string
}

func exploitKey(r exploitRow) string { return r.CVEID }

func kevKey(r types.KEVRecord) string { return r.CVEID }

// columnReducer folds the value of one column of next into acc.
type columnReducer[T any] struct {
	column string
	policy Policy
	reduce func(acc, next *T)
}

// exploitReducers is the merge policy of every column of the exploit tables.
// It serves both the step-1 combination of a poc row with an xdb row and the
// group-by that follows.
var exploitReducers = []columnReducer[exploitRow]{
	{"exploit_count", PolicySum, func(acc, next *exploitRow) {
		acc.ExploitCount = sumCounts(acc.ExploitCount, next.ExploitCount)
	}},
	{"earliest_date", PolicyMin, func(acc, next *exploitRow) {
		acc.EarliestDate = minDate(acc.EarliestDate, next.EarliestDate)
	}},
	{"poc_code", PolicyFirstNonNull, func(acc, next *exploitRow) {
		if acc.PoCCode == nil && next.PoCCode != nil {
			acc.PoCCode, acc.pocCodeSource = next.PoCCode, next.pocCodeSource
		}
	}},
	{"first_poc_type", PolicyFirstNonNull, func(acc, next *exploitRow) {
		acc.FirstPoCType = firstNonNull(acc.FirstPoCType, next.FirstPoCType)
	}},
	{"first_poc_platform", PolicyFirstNonNull, func(acc, next *exploitRow) {
		acc.FirstPoCPlatform = firstNonNull(acc.FirstPoCPlatform, next.FirstPoCPlatform)
	}},
	{"first_poc_port", PolicyFirstNonNull, func(acc, next *exploitRow) {
		acc.FirstPoCPort = firstNonNull(acc.FirstPoCPort, next.FirstPoCPort)
	}},
	{"verified", PolicyFirstNonNull, func(acc, next *exploitRow) {
		acc.Verified = firstNonNull(acc.Verified, next.Verified)
	}},
	{"_merge", PolicyUnion, func(acc, next *exploitRow) {
		acc.indicator = acc.indicator.Union(next.indicator)
	}},
}

// kevReducers is the merge policy of the KEV presence table.
var kevReducers = []columnReducer[types.KEVRecord]{
	{"kev_date_published", PolicyMin, func(acc, next *types.KEVRecord) {
		acc.KEVDatePublished = minDate(acc.KEVDatePublished, next.KEVDatePublished)
	}},
}

// ColumnPolicies lists the declared merge policy of every column.
func ColumnPolicies() []ColumnPolicy {
	policies := make([]ColumnPolicy, 0, len(exploitReducers)+len(kevReducers))
	for _, r := range exploitReducers {
		policies = append(policies, ColumnPolicy{Table: "exploits", Column: r.column, Policy: r.policy})
	}
	for _, r := range kevReducers {
		policies = append(policies, ColumnPolicy{Table: "kev", Column: r.column, Policy: r.policy})
	}
	return policies
}

// reduceInto applies every reducer of next into acc.
func reduceInto[T any](acc, next *T, reducers []columnReducer[T]) {
	for _, r := range reducers {
		r.reduce(acc, next)
	}
}

// aggregate groups rows by key and collapses each group with the reducers.
// Groups keep the position of their first row. A table that is already
// unique on the key is returned unchanged.
func aggregate[T any](rows []T, key func(T) string, reducers []columnReducer[T]) []T {
	index := make(map[string]int, len(rows))
	out := make([]T, 0, len(rows))
	for i := range rows {
		k := key(rows[i])
		if at, ok := index[k]; ok {
			reduceInto(&out[at], &rows[i], reducers)
			continue
		}
		index[k] = len(out)
		out = append(out, rows[i])
	}
	return out
}

func sumCounts(a, b *int64) *int64 {
	if a == nil && b == nil {
		return nil
	}
	var sum int64
	if a != nil {
		sum += *a
	}
	if b != nil {
		sum += *b
	}
	return &sum
}

func minDate(a, b *time.Time) *time.Time {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.Before(*a):
		return b
	default:
		return a
	}
}

func firstNonNull[T any](a, b *T) *T {
	if a != nil {
		return a
	}
	return b
}
