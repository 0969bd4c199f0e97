// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package table reads and writes the tabular files exchanged between the
// pipeline stages and converts them to and from typed records.
package table

import (
	"github.com/samber/lo"

	"github.com/bonial-oss/exploit-reconciler/internal/errors"
)

// Row maps column names to cell values. A missing key and a nil value both
// mean null.
type Row map[string]any

// Frame is an in-memory table with an ordered column list.
type Frame struct {
	Columns []string
	Rows    []Row
}

// NewFrame creates an empty frame with the given columns.
func NewFrame(columns ...string) *Frame {
	return &Frame{Columns: columns}
}

// Append adds a row.
func (f *Frame) Append(row Row) {
	f.Rows = append(f.Rows, row)
}

// Len returns the number of rows.
func (f *Frame) Len() int {
	return len(f.Rows)
}

// HasColumn reports whether the frame declares the column.
func (f *Frame) HasColumn(name string) bool {
	return lo.Contains(f.Columns, name)
}

// Require returns a schema mismatch naming the first absent column.
func (f *Frame) Require(table string, columns ...string) error {
	for _, col := range columns {
		if !f.HasColumn(col) {
			return errors.NewMissingColumnError(table, col)
		}
	}
	return nil
}
