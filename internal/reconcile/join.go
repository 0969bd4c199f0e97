// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package reconcile

// joined is one output row of a full outer join. Exactly one of Left and
// Right may be nil, and Indicator says which.
type joined[L, R any] struct {
	Key       string
	Left      *L
	Right     *R
	Indicator Indicator
}

// outerJoin performs a full outer join of two tables on a string key. Both
// inputs must already be unique on the key. Rows keep left-table order,
// followed by right-only rows in right-table order.
func outerJoin[L, R any](left []L, right []R, leftKey func(L) string, rightKey func(R) string) []joined[L, R] {
	rightIndex := make(map[string]int, len(right))
	for i := range right {
		rightIndex[rightKey(right[i])] = i
	}

	matched := make([]bool, len(right))
	out := make([]joined[L, R], 0, len(left)+len(right))

	for i := range left {
		row := joined[L, R]{Key: leftKey(left[i]), Left: &left[i], Indicator: IndicatorLeftOnly}
		if j, ok := rightIndex[row.Key]; ok {
			row.Right = &right[j]
			row.Indicator = IndicatorBoth
			matched[j] = true
		}
		out = append(out, row)
	}

	for j := range right {
		if matched[j] {
			continue
		}
		out = append(out, joined[L, R]{Key: rightKey(right[j]), Right: &right[j], Indicator: IndicatorRightOnly})
	}

	return out
}
