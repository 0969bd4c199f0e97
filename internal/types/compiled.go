// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// CompiledRecord is a reconciled exploit row joined with its EPSS score.
// EPSS fields are nil for CVEs the feed does not score.
type CompiledRecord struct {
	CVEID            string     `json:"cve_id"`
	ExploitCount     *int64     `json:"exploit_count"`
	ExploitationDate *time.Time `json:"exploitation_date"`
	Origin           Origin     `json:"origin"`
	EPSS             *float64   `json:"epss"`
	Percentile       *float64   `json:"percentile"`
	EPSSModelVersion string     `json:"epss_model_version"`
	EPSSScoreDate    string     `json:"epss_score_date"`
	Risk             float64    `json:"risk"`
}
