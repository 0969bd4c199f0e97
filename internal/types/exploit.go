// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package types

import "time"

// ExploitRecord is one row of a per-source exploit table (PoC-in-GitHub or
// ExploitDB). CVEID is the join key and is not unique within a source.
// Nil pointers mean the source did not report the field.
type ExploitRecord struct {
	CVEID            string
	ExploitCount     *int64
	EarliestDate     *time.Time
	PoCCode          *string
	FirstPoCType     *string
	FirstPoCPlatform *string
	FirstPoCPort     *int64
	Verified         *bool
}

// KEVRecord is one row of the KEV presence table. Presence alone signals
// confirmed in-the-wild exploitation.
type KEVRecord struct {
	CVEID            string
	KEVDatePublished *time.Time
}

// ReconciledRecord is one row of the reconciled exploit table. CVEID is
// unique across the table.
type ReconciledRecord struct {
	CVEID            string     `json:"cve_id"`
	ExploitCount     *int64     `json:"exploit_count"`
	EarliestDate     *time.Time `json:"earliest_date"`
	Origin           Origin     `json:"origin"`
	PoCCode          *bool      `json:"poc_code"`
	FirstPoCType     *string    `json:"first_poc_type"`
	FirstPoCPlatform *string    `json:"first_poc_platform"`
	FirstPoCPort     *int64     `json:"first_poc_port"`
	Verified         *bool      `json:"verified"`
}

// Origin labels which sources contributed a reconciled record.
type Origin string

const (
	OriginPoC       Origin = "poc"
	OriginXDB       Origin = "xdb"
	OriginPoCXDB    Origin = "poc_xdb"
	OriginKEV       Origin = "kev"
	OriginPoCKEV    Origin = "poc_kev"
	OriginXDBKEV    Origin = "xdb_kev"
	OriginPoCXDBKEV Origin = "poc_xdb_kev"
)

// Origins lists every origin label in a stable order.
var Origins = []Origin{
	OriginPoC,
	OriginXDB,
	OriginPoCXDB,
	OriginKEV,
	OriginPoCKEV,
	OriginXDBKEV,
	OriginPoCXDBKEV,
}

// InKEV reports whether the KEV catalog contributed to the record.
func (o Origin) InKEV() bool {
	switch o {
	case OriginKEV, OriginPoCKEV, OriginXDBKEV, OriginPoCXDBKEV:
		return true
	}
	return false
}

// Valid reports whether o is one of the known origin labels.
func (o Origin) Valid() bool {
	for _, known := range Origins {
		if o == known {
			return true
		}
	}
	return false
}

// CoercionWarning records a cell that could not be cast to its target type.
// The field is set to null and processing continues.
type CoercionWarning struct {
	Table  string `yaml:"table" json:"table"`
	CVEID  string `yaml:"cve_id" json:"cve_id"`
	Column string `yaml:"column" json:"column"`
	Value  string `yaml:"value" json:"value"`
	Reason string `yaml:"reason" json:"reason"`
}
