// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package reconcile

// Indicator records which side of a full outer join produced a row. The
// values form a bit set so that collapsing rows can union them.
type Indicator uint8

const (
	// IndicatorNone marks a row that did not take part in the join.
	IndicatorNone Indicator = 0
	// IndicatorLeftOnly marks a row present only in the left table.
	IndicatorLeftOnly Indicator = 1
	// IndicatorRightOnly marks a row present only in the right table.
	IndicatorRightOnly Indicator = 2
	// IndicatorBoth marks a row present in both tables.
	IndicatorBoth = IndicatorLeftOnly | IndicatorRightOnly
)

// String returns the merge indicator label.
func (i Indicator) String() string {
	switch i {
	case IndicatorNone:
		return "none"
	case IndicatorLeftOnly:
		return "left_only"
	case IndicatorRightOnly:
		return "right_only"
	case IndicatorBoth:
		return "both"
	default:
		return "invalid"
	}
}

// Union combines the sides of two indicators.
func (i Indicator) Union(other Indicator) Indicator {
	return (i | other) & IndicatorBoth
}

// HasLeft reports whether the left table contributed.
func (i Indicator) HasLeft() bool { return i&IndicatorLeftOnly != 0 }

// HasRight reports whether the right table contributed.
func (i Indicator) HasRight() bool { return i&IndicatorRightOnly != 0 }
