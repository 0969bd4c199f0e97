// SPDX-FileCopyrightText: 2026 Bonial International GmbH
// SPDX-License-Identifier: Apache-2.0

package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	aqtable "github.com/aquasecurity/table"
	"github.com/aquasecurity/tml"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/bonial-oss/exploit-reconciler/internal/errors"
	"github.com/bonial-oss/exploit-reconciler/internal/types"
)

// Sort keys accepted by TableConfig.SortBy.
const (
	SortByCVE   = "cve"
	SortByCount = "count"
	SortByDate  = "date"
	SortByEPSS  = "epss"
	SortByRisk  = "risk"
)

// TableConfig controls how rows are sorted and styled.
type TableConfig struct {
	Title      string
	SortBy     string // "cve", "count", "date", "epss", "risk", "" (preserve order)
	IsTerminal bool   // true when output goes to a terminal (enables ANSI styling)
}

// ValidateSortKey rejects sort keys WriteTable does not understand.
func ValidateSortKey(key string) error {
	switch key {
	case "", SortByCVE, SortByCount, SortByDate, SortByEPSS, SortByRisk:
		return nil
	}
	return fmt.Errorf("%w: unsupported sort key %q", errors.ErrInvalidInput, key)
}

// IsOutputToTerminal returns true if the writer is stdout connected to a
// character device (TTY).
func IsOutputToTerminal(output io.Writer) bool {
	return output == os.Stdout && term.IsTerminal(int(os.Stdout.Fd()))
}

// tableRow is one rendered record plus the values it sorts by.
type tableRow struct {
	cve    string
	count  *int64
	date   *time.Time
	origin types.Origin
	epss   *float64
	risk   *float64
	extra  []string
}

// WriteReconciledTable writes the reconciled exploit table.
func WriteReconciledTable(w io.Writer, records []types.ReconciledRecord, cfg TableConfig) error {
	rows := make([]tableRow, len(records))
	for i, r := range records {
		rows[i] = tableRow{
			cve:    r.CVEID,
			count:  r.ExploitCount,
			date:   r.EarliestDate,
			origin: r.Origin,
			extra: []string{
				formatBool(r.PoCCode),
				formatString(r.FirstPoCType),
				formatString(r.FirstPoCPlatform),
				formatBool(r.Verified),
			},
		}
	}
	headers := []string{"CVE", "Exploits", "Earliest Date", "Origin", "PoC Code", "Type", "Platform", "Verified"}
	return writeTable(w, rows, headers, cfg)
}

// WriteCompiledTable writes the EPSS-enriched exploit table.
func WriteCompiledTable(w io.Writer, records []types.CompiledRecord, cfg TableConfig) error {
	rows := make([]tableRow, len(records))
	for i, r := range records {
		risk := r.Risk
		rows[i] = tableRow{
			cve:    r.CVEID,
			count:  r.ExploitCount,
			date:   r.ExploitationDate,
			origin: r.Origin,
			epss:   r.EPSS,
			risk:   &risk,
			extra: []string{
				fmt.Sprintf("%.1f", r.Risk),
				formatEPSSScore(r.EPSS),
				formatEPSSPercentile(r.Percentile),
			},
		}
	}
	headers := []string{"CVE", "Exploits", "Exploitation Date", "Origin", "Risk", "EPSS", "EPSS %ile"}
	return writeTable(w, rows, headers, cfg)
}

func writeTable(w io.Writer, rows []tableRow, headers []string, cfg TableConfig) error {
	if err := ValidateSortKey(cfg.SortBy); err != nil {
		return err
	}
	sortRows(rows, cfg.SortBy)

	if cfg.Title != "" {
		writeHeader(w, cfg.Title, cfg.IsTerminal)
	}
	fmt.Fprintln(w, originSummary(rows))
	fmt.Fprintln(w)

	tw := newTableWriter(w, cfg.IsTerminal)
	tw.SetHeaders(headers...)
	for _, row := range rows {
		origin := string(row.origin)
		if cfg.IsTerminal {
			origin = colorizeOrigin(row.origin)
		}
		cells := append([]string{row.cve, formatCount(row.count), formatDate(row.date), origin}, row.extra...)
		tw.AddRow(cells...)
	}
	tw.Render()
	return nil
}

func writeHeader(w io.Writer, title string, isTerminal bool) {
	if isTerminal {
		_ = tml.Fprintf(w, "<underline><bold>%s</bold></underline>\n", title)
		return
	}
	fmt.Fprintln(w, title)
	fmt.Fprintln(w, strings.Repeat("=", utf8.RuneCountInString(title)))
}

// newTableWriter creates a bordered table writer. When isTerminal is true,
// header and line styles use ANSI formatting.
func newTableWriter(w io.Writer, isTerminal bool) *aqtable.Table {
	tw := aqtable.New(w)
	if isTerminal {
		tw.SetHeaderStyle(aqtable.StyleBold)
		tw.SetLineStyle(aqtable.StyleDim)
	}
	tw.SetBorders(true)
	tw.SetRowLines(true)
	return tw
}

// originSummary returns a line like:
// Total: 5 (poc: 1, xdb: 0, poc_xdb: 2, kev: 1, poc_kev: 0, xdb_kev: 0, poc_xdb_kev: 1)
func originSummary(rows []tableRow) string {
	counts := make(map[types.Origin]int, len(types.Origins))
	for _, r := range rows {
		counts[r.origin]++
	}
	parts := make([]string, 0, len(types.Origins))
	for _, o := range types.Origins {
		parts = append(parts, fmt.Sprintf("%s: %d", o, counts[o]))
	}
	return fmt.Sprintf("Total: %d (%s)", len(rows), strings.Join(parts, ", "))
}

var (
	kevColor      = color.New(color.FgRed).SprintFunc()
	combinedColor = color.New(color.FgYellow).SprintFunc()
	singleColor   = color.New(color.FgCyan).SprintFunc()
)

// colorizeOrigin colors KEV-confirmed origins red and multi-source origins
// yellow.
func colorizeOrigin(o types.Origin) string {
	switch {
	case o.InKEV():
		return kevColor(string(o))
	case o == types.OriginPoCXDB:
		return combinedColor(string(o))
	default:
		return singleColor(string(o))
	}
}

// sortRows sorts rows by the given key. Numeric keys sort descending and
// dates ascending, with nulls last; ties keep their original order.
func sortRows(rows []tableRow, sortBy string) {
	switch sortBy {
	case SortByCVE:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].cve < rows[j].cve })
	case SortByCount:
		sort.SliceStable(rows, func(i, j int) bool {
			return nullsLast(rows[i].count, rows[j].count, func(a, b int64) bool { return a > b })
		})
	case SortByDate:
		sort.SliceStable(rows, func(i, j int) bool {
			return nullsLast(rows[i].date, rows[j].date, func(a, b time.Time) bool { return a.Before(b) })
		})
	case SortByEPSS:
		sort.SliceStable(rows, func(i, j int) bool {
			return nullsLast(rows[i].epss, rows[j].epss, func(a, b float64) bool { return a > b })
		})
	case SortByRisk:
		sort.SliceStable(rows, func(i, j int) bool {
			return nullsLast(rows[i].risk, rows[j].risk, func(a, b float64) bool { return a > b })
		})
	}
}

// nullsLast orders non-nil values by less and puts nil values last.
func nullsLast[T any](a, b *T, less func(a, b T) bool) bool {
	switch {
	case a == nil:
		return false
	case b == nil:
		return true
	default:
		return less(*a, *b)
	}
}

func formatCount(n *int64) string {
	if n == nil {
		return "-"
	}
	return strconv.FormatInt(*n, 10)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}

func formatBool(b *bool) string {
	switch {
	case b == nil:
		return "-"
	case *b:
		return "YES"
	default:
		return "NO"
	}
}

func formatString(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

// formatEPSSScore formats the EPSS score or returns "-" if nil.
func formatEPSSScore(score *float64) string {
	if score == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *score)
}

// formatEPSSPercentile formats the EPSS percentile (0-1 scaled to 0-100) or
// returns "-" if nil.
func formatEPSSPercentile(p *float64) string {
	if p == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f", *p*100)
}
