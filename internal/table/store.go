// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package table

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cast"

	"github.com/bonial-oss/exploit-reconciler/internal/errors"
)

// Store reads and writes table files on a filesystem.
type Store struct {
	fs afero.Fs
}

// NewStore creates a Store over fs.
func NewStore(fs afero.Fs) *Store {
	return &Store{fs: fs}
}

// ReadFrame loads a CSV or JSON table file.
func (s *Store) ReadFrame(path string) (*Frame, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("reading table %s: %w", path, err)
	}

	format, err := DetectFormat(path, data)
	if err != nil {
		return nil, err
	}

	var frame *Frame
	switch format {
	case FormatJSON:
		frame, err = parseJSON(data)
	default:
		frame, err = parseCSV(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s table %s: %w", format, path, err)
	}
	return frame, nil
}

// WriteFrame writes a frame to path in the given format, creating parent
// directories as needed.
func (s *Store) WriteFrame(path string, format Format, frame *Frame) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating output dir: %w", err)
		}
	}

	f, err := s.fs.Create(path)
	if err != nil {
		return fmt.Errorf("creating table file: %w", err)
	}
	defer f.Close()

	return Encode(f, format, frame)
}

// Encode writes a frame to w in the given format.
func Encode(w io.Writer, format Format, frame *Frame) error {
	switch format {
	case FormatJSON:
		return encodeJSON(w, frame)
	default:
		return encodeCSV(w, frame)
	}
}

// parseCSV reads a CSV table with a header row.
func parseCSV(data []byte) (*Frame, error) {
	reader := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("%w: missing CSV header", errors.ErrInvalidInput)
	}
	if err != nil {
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	frame := NewFrame(header...)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV record: %w", err)
		}
		row := make(Row, len(header))
		for i, col := range header {
			row[col] = record[i]
		}
		frame.Append(row)
	}
	return frame, nil
}

// parseJSON reads a JSON array of row objects. Columns are the union of the
// object keys in sorted order.
func parseJSON(data []byte) (*Frame, error) {
	dec := json.NewDecoder(bytes.NewReader(bytes.TrimPrefix(data, utf8BOM)))
	dec.UseNumber()

	var rows []map[string]any
	if err := dec.Decode(&rows); err != nil {
		return nil, fmt.Errorf("%w: expected a JSON array of objects: %v", errors.ErrInvalidInput, err)
	}

	seen := make(map[string]struct{})
	frame := &Frame{Rows: make([]Row, 0, len(rows))}
	for _, r := range rows {
		for k := range r {
			seen[k] = struct{}{}
		}
		frame.Append(Row(r))
	}
	for k := range seen {
		frame.Columns = append(frame.Columns, k)
	}
	sort.Strings(frame.Columns)
	return frame, nil
}

func encodeCSV(w io.Writer, frame *Frame) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(frame.Columns); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	record := make([]string, len(frame.Columns))
	for _, row := range frame.Rows {
		for i, col := range frame.Columns {
			record[i] = cellString(row[col])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("writing CSV record: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV: %w", err)
	}
	return nil
}

// encodeJSON writes rows as objects whose keys follow the column order.
func encodeJSON(w io.Writer, frame *Frame) error {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i, row := range frame.Rows {
		if i > 0 {
			buf.WriteString(",")
		}
		buf.WriteString("\n  {")
		for j, col := range frame.Columns {
			if j > 0 {
				buf.WriteString(", ")
			}
			key, err := json.Marshal(col)
			if err != nil {
				return fmt.Errorf("encoding JSON key: %w", err)
			}
			val, err := json.Marshal(jsonValue(row[col]))
			if err != nil {
				return fmt.Errorf("encoding JSON value for %s: %w", col, err)
			}
			buf.Write(key)
			buf.WriteString(": ")
			buf.Write(val)
		}
		buf.WriteString("}")
	}
	if len(frame.Rows) > 0 {
		buf.WriteString("\n")
	}
	buf.WriteString("]\n")

	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing JSON table: %w", err)
	}
	return nil
}

func jsonValue(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.UTC().Format(time.RFC3339)
	}
	return v
}

func cellString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case time.Time:
		return val.UTC().Format(time.RFC3339)
	default:
		return cast.ToString(val)
	}
}
