// Package reader extracts headers and rows from uploaded billing files. It
// handles CSV in several text encodings plus both Excel generations, and
// presents every format as the same header-plus-rows table.
package reader

import (
	"fmt"
	"path/filepath"
	"strings"
)

// UnreadableFileError reports a file that could not be parsed at all: corrupt
// content, an undecodable byte stream, or an unsupported extension. Row-level
// problems are not this error; those surface during processing.
type UnreadableFileError struct {
	Filename string
	Reason   string
}

func (e *UnreadableFileError) Error() string {
	return fmt.Sprintf("cannot read file %s: %s", e.Filename, e.Reason)
}

// Row is one data row with its 1-based position in the source file. The
// header occupies row 1, so the first data row is number 2. Fully blank rows
// are dropped during parsing, which leaves gaps in the numbering.
type Row struct {
	Number int
	Cells  []string
}

// Table is the parsed form of an upload. Headers are cleaned: trimmed, and
// blank headers replaced with positional names like "Column_3". When two
// headers share a name the rightmost column wins in RowMap.
type Table struct {
	Headers []string
	Rows    []Row
}

// Supported reports whether the filename carries a readable extension.
func Supported(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".xlsx", ".xls":
		return true
	}
	return false
}

// Read parses the full file. The format is chosen by extension: .csv, .xlsx
// and .xls are supported, anything else is an UnreadableFileError.
func Read(filename string, data []byte) (*Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSV(filename, data)
	case ".xlsx":
		return parseXLSX(filename, data)
	case ".xls":
		return parseXLS(filename, data)
	default:
		return nil, &UnreadableFileError{Filename: filename, Reason: "unsupported file format"}
	}
}

// ReadHeaders parses the file and returns only its cleaned header row.
func ReadHeaders(filename string, data []byte) ([]string, error) {
	t, err := Read(filename, data)
	if err != nil {
		return nil, err
	}
	return t.Headers, nil
}

// RowMap projects a row onto the table headers. Cells beyond the header
// width are ignored and missing trailing cells read as empty.
func (t *Table) RowMap(r Row) map[string]string {
	m := make(map[string]string, len(t.Headers))
	for i, h := range t.Headers {
		if i < len(r.Cells) {
			m[h] = r.Cells[i]
		} else {
			m[h] = ""
		}
	}
	return m
}

// Sample returns up to n leading rows as header-keyed maps, for mapping
// previews.
func (t *Table) Sample(n int) []map[string]string {
	if n > len(t.Rows) {
		n = len(t.Rows)
	}
	sample := make([]map[string]string, 0, n)
	for _, r := range t.Rows[:n] {
		sample = append(sample, t.RowMap(r))
	}
	return sample
}

// cleanHeaders trims each header and substitutes a positional name for blank
// ones.
func cleanHeaders(raw []string) []string {
	headers := make([]string, len(raw))
	for i, h := range raw {
		h = strings.TrimSpace(h)
		if h == "" {
			h = fmt.Sprintf("Column_%d", i+1)
		}
		headers[i] = h
	}
	return headers
}

func blankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// tableFromRows assembles a Table from raw sheet rows, applying header
// cleaning and blank-row dropping uniformly across formats.
func tableFromRows(filename string, rows [][]string) (*Table, error) {
	if len(rows) == 0 || blankRow(rows[0]) {
		return nil, &UnreadableFileError{Filename: filename, Reason: "file has no header row"}
	}

	t := &Table{Headers: cleanHeaders(rows[0])}
	for i, cells := range rows[1:] {
		if blankRow(cells) {
			continue
		}
		t.Rows = append(t.Rows, Row{Number: i + 2, Cells: cells})
	}
	return t, nil
}
