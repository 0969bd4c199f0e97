// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaError(t *testing.T) {
	missing := NewMissingColumnError("xdb", "poc_code")
	assert.Equal(t, "schema mismatch in table xdb: column poc_code: required column is absent", missing.Error())

	nullKey := NewNullKeyError("poc", "cve_id", 3)
	assert.Equal(t, "schema mismatch in table poc: column cve_id at row 3: join key is null", nullKey.Error())

	wrapped := fmt.Errorf("reading poc table: %w", nullKey)
	assert.True(t, IsSchemaMismatch(wrapped))
	assert.False(t, IsDuplicateKey(wrapped))

	var target *SchemaError
	assert.True(t, errors.As(wrapped, &target))
	assert.Equal(t, "poc", target.Table)
}

func TestDuplicateKeyError(t *testing.T) {
	err := &DuplicateKeyError{Table: "reconciled", Keys: []string{"CVE-2021-1", "CVE-2021-2"}}
	assert.Equal(t, "table reconciled holds duplicate keys: CVE-2021-1, CVE-2021-2", err.Error())
	assert.True(t, IsDuplicateKey(fmt.Errorf("reconciling: %w", err)))
	assert.False(t, IsSchemaMismatch(err))
}
