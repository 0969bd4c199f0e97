// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package reconcile

import (
	"fmt"
	"strings"

	"github.com/bonial-oss/exploit-reconciler/internal/errors"
	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

// provenance is the pair of join indicators a reconciled row carries: the
// poc/xdb join first, the KEV join second.
type provenance struct {
	first  Indicator
	second Indicator
}

// originTable maps every reachable provenance to its origin label. A row
// that only KEV produced has no first-pass indicator.
var originTable = map[provenance]types.Origin{
	{IndicatorLeftOnly, IndicatorLeftOnly}:  types.OriginPoC,
	{IndicatorRightOnly, IndicatorLeftOnly}: types.OriginXDB,
	{IndicatorBoth, IndicatorLeftOnly}:      types.OriginPoCXDB,
	{IndicatorNone, IndicatorRightOnly}:     types.OriginKEV,
	{IndicatorLeftOnly, IndicatorBoth}:      types.OriginPoCKEV,
	{IndicatorRightOnly, IndicatorBoth}:     types.OriginXDBKEV,
	{IndicatorBoth, IndicatorBoth}:          types.OriginPoCXDBKEV,
}

// deriveOrigin returns the origin label for a pair of join indicators.
func deriveOrigin(first, second Indicator) (types.Origin, error) {
	origin, ok := originTable[provenance{first, second}]
	if !ok {
		return "", fmt.Errorf("%w: unreachable join provenance (first=%s, second=%s)", errors.ErrInvalidInput, first, second)
	}
	return origin, nil
}

// normalizePoCCode maps the descriptive poc_code string to a tri-state
// boolean. ok is false when the value is present but is neither yes nor no.
func normalizePoCCode(raw *string) (value *bool, ok bool) {
	if raw == nil {
		return nil, true
	}
	s := strings.TrimSpace(*raw)
	switch {
	case s == "":
		return nil, true
	case strings.EqualFold(s, "yes"):
		v := true
		return &v, true
	case strings.EqualFold(s, "no"):
		v := false
		return &v, true
	default:
		return nil, false
	}
}
