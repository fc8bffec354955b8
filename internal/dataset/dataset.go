// Package dataset loads tabular touch exports into header-keyed text rows.
package dataset

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/KaramelBytes/funnelscope/internal/funnel"
)

// Dataset is an ordered header list plus rows keyed by header.
type Dataset struct {
	Name    string
	Headers []string
	Rows    []funnel.Row
	// Total counts every data row seen, including rows past MaxRows.
	Total     int
	Truncated bool
}

// Sample returns the first n rows used for column detection.
func (d *Dataset) Sample(n int) []funnel.Row {
	return funnel.Sample(d.Rows, n)
}

// Options controls how a source is read.
type Options struct {
	// MaxRows limits rows kept; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, picked from the file extension.
	Delimiter rune
	// SheetName selects an XLSX sheet; SheetIndex (1-based) is used when empty.
	SheetName  string
	SheetIndex int
}

// DefaultOptions returns reasonable defaults for touch exports.
func DefaultOptions() Options {
	return Options{MaxRows: 500000}
}

// ParseDelimiter maps a flag value to a delimiter rune.
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case "":
		return 0, nil
	case ",":
		return ',', nil
	case "\t", "tab":
		return '\t', nil
	case ";":
		return ';', nil
	case "|", "pipe":
		return '|', nil
	default:
		return 0, eris.Errorf("unsupported delimiter: %q", s)
	}
}

// Load reads a file, choosing the reader by extension.
func Load(ctx context.Context, path string, opt Options) (*Dataset, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var (
		ds  *Dataset
		err error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		ds, err = LoadXLSX(path, opt)
	default:
		ds, err = LoadCSV(path, opt)
	}
	if err != nil {
		return nil, err
	}
	zap.L().Debug("dataset loaded",
		zap.String("name", ds.Name),
		zap.Int("headers", len(ds.Headers)),
		zap.Int("rows", len(ds.Rows)),
		zap.Bool("truncated", ds.Truncated),
	)
	return ds, nil
}

// builder accumulates records into a Dataset, enforcing MaxRows.
type builder struct {
	ds      *Dataset
	maxRows int
}

func newBuilder(name string, header []string, maxRows int) *builder {
	return &builder{
		ds:      &Dataset{Name: name, Headers: normalizeHeaders(header)},
		maxRows: maxRows,
	}
}

func (b *builder) add(rec []string) {
	if isBlank(rec) {
		return
	}
	b.ds.Total++
	if b.maxRows > 0 && len(b.ds.Rows) >= b.maxRows {
		b.ds.Truncated = true
		return
	}
	row := make(funnel.Row, len(b.ds.Headers))
	for i, h := range b.ds.Headers {
		if i < len(rec) {
			row[h] = strings.TrimSpace(rec[i])
		} else {
			row[h] = ""
		}
	}
	b.ds.Rows = append(b.ds.Rows, row)
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// normalizeHeaders trims names, strips a UTF-8 BOM, names empty headers by
// position and suffixes duplicates so every header is a unique row key.
func normalizeHeaders(header []string) []string {
	out := make([]string, len(header))
	seen := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if h == "" {
			h = "column_" + strconv.Itoa(i+1)
		}
		if n, ok := seen[h]; ok {
			seen[h] = n + 1
			h = h + "_" + strconv.Itoa(n)
		} else {
			seen[h] = 1
		}
		out[i] = h
	}
	return out
}
