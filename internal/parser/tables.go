package parser

import (
	"strings"
	"unicode/utf8"

	"github.com/dshills/datasheet-rag/pkg/types"
)

const (
	// minTableColumns is the number of cells a row needs to count as a table row
	minTableColumns = 3
	// minTableRows is the number of consecutive table rows that form a table
	minTableRows = 2

	// estimated glyph width when the pdf package reports none
	defaultCharWidth = 5.0
	// gaps narrower than this join fragments without a space
	wordGap = 1.0
)

// Fragment is a run of text at a horizontal position
type Fragment struct {
	X float64
	W float64
	S string
}

func (f Fragment) width() float64 {
	if f.W > 0 {
		return f.W
	}
	return float64(utf8.RuneCountInString(f.S)) * defaultCharWidth
}

// Row is a line of positioned fragments sharing a baseline
type Row struct {
	Y         float64
	Fragments []Fragment
}

// Cells splits the row wherever the gap between fragments exceeds minCellGap.
// Fragments must be sorted by X.
func (r Row) Cells(minCellGap float64) []string {
	cells := make([]string, 0, len(r.Fragments))
	var cur strings.Builder
	end := 0.0

	flush := func() {
		if s := strings.TrimSpace(cur.String()); s != "" {
			cells = append(cells, s)
		}
		cur.Reset()
	}

	for i, f := range r.Fragments {
		if i > 0 {
			gap := f.X - end
			switch {
			case gap > minCellGap:
				flush()
			case gap > wordGap:
				cur.WriteByte(' ')
			}
		}
		cur.WriteString(f.S)
		end = f.X + f.width()
	}
	flush()
	return cells
}

// DetectTables finds runs of consecutive rows that each have at least three
// cells. A run of two or more such rows becomes a table.
func DetectTables(rows []Row, page int, minCellGap float64) []types.Table {
	tables := make([]types.Table, 0)
	var current [][]string

	closeTable := func() {
		if len(current) >= minTableRows {
			tables = append(tables, types.Table{Page: page, Rows: current})
		}
		current = nil
	}

	for _, row := range rows {
		cells := row.Cells(minCellGap)
		if len(cells) >= minTableColumns {
			current = append(current, cells)
			continue
		}
		closeTable()
	}
	closeTable()

	return tables
}
