// SPDX-FileCopyrightText: 2025 Anchore, Inc.
// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Risk score calculation adapted from the threat and KEV terms of the
// formula in Grype (https://github.com/anchore/grype), licensed under
// Apache-2.0. The severity term is replaced by an exploit evidence term.

package compile

import (
	"math"
	"strings"

	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

const (
	// publicExploitFloor is the threat assumed for a CVE with published
	// exploit code but no EPSS score.
	publicExploitFloor = 0.1
	// evidenceSaturation is the exploit count at which the evidence term
	// reaches 1.0.
	evidenceSaturation = 10
)

// RiskScore computes a composite score (0.0-100.0) from the record's
// origin, exploit count, EPSS score and, when known, its KEV catalog entry.
func RiskScore(origin types.Origin, exploitCount *int64, epss *types.EPSSEntry, kev *types.KEVEntry) float64 {
	t := threat(origin, epss)
	e := evidence(exploitCount)
	k := kevModifier(origin, kev)
	return math.Round(math.Min(t*e*k, 1.0)*10000) / 100
}

func threat(origin types.Origin, epss *types.EPSSEntry) float64 {
	if origin.InKEV() {
		return 1.0
	}
	if epss != nil {
		return math.Max(epss.Score, publicExploitFloor)
	}
	return publicExploitFloor
}

// evidence grows linearly from 0.8 with no known exploits to 1.0 at
// evidenceSaturation exploits.
func evidence(count *int64) float64 {
	n := 0.0
	if count != nil {
		n = math.Min(float64(*count), evidenceSaturation)
	}
	return 0.8 + 0.2*n/evidenceSaturation
}

func kevModifier(origin types.Origin, kev *types.KEVEntry) float64 {
	if !origin.InKEV() {
		return 1.0
	}
	if kev != nil && strings.EqualFold(kev.KnownRansomwareCampaignUse, "known") {
		return 1.1
	}
	return 1.05
}
