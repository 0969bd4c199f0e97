// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package table

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bonial-oss/exploit-reconciler/internal/errors"
)

// Format is an on-disk tabular serialization.
type Format int

const (
	FormatCSV Format = iota
	FormatJSON
)

func (f Format) String() string {
	switch f {
	case FormatCSV:
		return "csv"
	case FormatJSON:
		return "json"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat parses a format name as given on the command line.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "csv":
		return FormatCSV, nil
	case "json":
		return FormatJSON, nil
	default:
		return 0, fmt.Errorf("%w: unsupported table format %q", errors.ErrInvalidInput, name)
	}
}

// FormatFromPath returns the format implied by a file extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, true
	case ".json":
		return FormatJSON, true
	default:
		return 0, false
	}
}

// DetectFormat picks the format of a table file, trusting the extension
// first and probing the content otherwise.
func DetectFormat(path string, data []byte) (Format, error) {
	if f, ok := FormatFromPath(path); ok {
		return f, nil
	}

	// Probe the first significant byte.
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	if len(trimmed) == 0 {
		return 0, fmt.Errorf("%w: %s is empty", errors.ErrInvalidInput, path)
	}
	if trimmed[0] == '[' {
		return FormatJSON, nil
	}
	return FormatCSV, nil
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}
