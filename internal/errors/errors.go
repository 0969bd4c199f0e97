// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

// Package errors provides the typed errors shared by the table decoder and the
// reconciliation engine. Callers check them with errors.Is against the
// sentinels below.
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// New, Is and As are the standard library functions, re-exported so callers
// need a single errors import.
var (
	New = errors.New
	Is  = errors.Is
	As  = errors.As
)

var (
	// ErrSchemaMismatch indicates a required column is absent from a table or
	// a join key is null.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrDuplicateKey indicates a table that must be keyed by cve_id holds
	// the same identifier more than once.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput indicates input that cannot be interpreted at all.
	ErrInvalidInput = errors.New("invalid input")
)

// SchemaError describes a schema mismatch in a named table. Row is the
// zero-based data row, or -1 when the whole column is missing.
type SchemaError struct {
	Table  string
	Column string
	Row    int
	Reason string
}

// Error implements the error interface.
func (e *SchemaError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("schema mismatch in table %s: column %s at row %d: %s", e.Table, e.Column, e.Row, e.Reason)
	}
	return fmt.Sprintf("schema mismatch in table %s: column %s: %s", e.Table, e.Column, e.Reason)
}

// Is implements errors.Is support.
func (e *SchemaError) Is(target error) bool {
	return target == ErrSchemaMismatch
}

// NewMissingColumnError reports a required column absent from a table.
func NewMissingColumnError(table, column string) *SchemaError {
	return &SchemaError{Table: table, Column: column, Row: -1, Reason: "required column is absent"}
}

// NewNullKeyError reports a null join key in a table row.
func NewNullKeyError(table, column string, row int) *SchemaError {
	return &SchemaError{Table: table, Column: column, Row: row, Reason: "join key is null"}
}

// DuplicateKeyError lists the identifiers that occur more than once in a
// table that must be unique.
type DuplicateKeyError struct {
	Table string
	Keys  []string
}

// Error implements the error interface.
func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("table %s holds duplicate keys: %s", e.Table, strings.Join(e.Keys, ", "))
}

// Is implements errors.Is support.
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// IsSchemaMismatch reports whether err is a schema mismatch.
func IsSchemaMismatch(err error) bool {
	return errors.Is(err, ErrSchemaMismatch)
}

// IsDuplicateKey reports whether err is a uniqueness violation.
func IsDuplicateKey(err error) bool {
	return errors.Is(err, ErrDuplicateKey)
}
