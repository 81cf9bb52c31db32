package parser

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/internal/testutil"
)

func textLine(x, y int, s string) string {
	return testutil.TextLine(x, y, s)
}

func buildPDF(title string, pages ...string) []byte {
	return testutil.BuildPDF(title, pages...)
}

func writePDF(t *testing.T, data []byte) string {
	t.Helper()
	return testutil.WritePDF(t, "datasheet.pdf", data)
}

func TestNew(t *testing.T) {
	p := New(nil)
	assert.NotNil(t, p.logger)
	assert.Equal(t, DefaultMinCellGap, p.minCellGap)

	p = New(zap.NewNop(), WithMinCellGap(30))
	assert.Equal(t, 30.0, p.minCellGap)

	p = New(zap.NewNop(), WithMinCellGap(-1))
	assert.Equal(t, DefaultMinCellGap, p.minCellGap)
}

func TestParseFile_ValidPDF(t *testing.T) {
	page1 := textLine(72, 720, "Overview") + textLine(72, 700, "DDR5 memory module")
	page2 := textLine(72, 720, "Operating voltage 1.1V")
	path := writePDF(t, buildPDF("DDR5 Datasheet", page1, page2))

	p := New(zap.NewNop())
	result, err := p.ParseFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, result.PageCount)
	require.Len(t, result.Pages, 2)
	assert.Equal(t, 1, result.Pages[0].Number)
	assert.Equal(t, 2, result.Pages[1].Number)
	assert.Contains(t, result.Pages[0].Text, "Overview")
	assert.Contains(t, result.Pages[0].Text, "DDR5 memory module")
	assert.Contains(t, result.Pages[1].Text, "Operating voltage 1.1V")
	assert.Equal(t, "DDR5 Datasheet", result.Metadata["title"])
	assert.False(t, result.HasErrors())
	assert.Greater(t, result.TextLength(), 0)
}

func TestParseFile_SkipsEmptyPages(t *testing.T) {
	path := writePDF(t, buildPDF("Mixed",
		"BT /F1 12 Tf ET",
		textLine(72, 720, "Refresh interval tREFI"),
	))

	result, err := New(zap.NewNop()).ParseFile(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, 2, result.PageCount)
	require.Len(t, result.Pages, 1)
	// Page numbers keep referring to the source page
	assert.Equal(t, 2, result.Pages[0].Number)
}

func TestParseFile_NoText(t *testing.T) {
	path := writePDF(t, buildPDF("Scanned", "BT /F1 12 Tf ET"))

	_, err := New(zap.NewNop()).ParseFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrNoText)
}

func TestParseFile_NonExistentFile(t *testing.T) {
	_, err := New(zap.NewNop()).ParseFile(context.Background(), "/nonexistent/file.pdf")
	assert.ErrorIs(t, err, ErrInvalidPDF)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseFile_NotAPDF(t *testing.T) {
	path := writePDF(t, []byte("this is plain text, not a pdf"))

	_, err := New(zap.NewNop()).ParseFile(context.Background(), path)
	assert.ErrorIs(t, err, ErrInvalidPDF)
}

func TestParseFile_Cancelled(t *testing.T) {
	path := writePDF(t, buildPDF("Cancelled", textLine(72, 720, "text")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(zap.NewNop()).ParseFile(ctx, path)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name  string
		input string
		want  string
	}{
		{name: "ligatures", input: "eﬃcient ﬁlter ﬂow", want: "efficient filter flow"},
		{name: "hyphenated line break", input: "tempera-\n ture range", want: "temperature range"},
		{name: "hyphen without break kept", input: "DDR5-4800", want: "DDR5-4800"},
		{name: "horizontal whitespace", input: "VDD \t  1.1V", want: "VDD 1.1V"},
		{name: "blank lines squeezed", input: "line one\n\n\n  \nline two", want: "line one\nline two"},
		{name: "newlines preserved", input: "Overview\nDDR5 module", want: "Overview\nDDR5 module"},
		{name: "crlf", input: "a\r\nb", want: "a\nb"},
		{name: "trimmed", input: "  \n text \n ", want: "text"},
		{name: "empty", input: "", want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.input))
		})
	}
}

func TestRowCells(t *testing.T) {
	row := Row{Fragments: []Fragment{
		{X: 72, W: 40, S: "Parameter"},
		{X: 200, W: 20, S: "Min"},
		{X: 300, W: 20, S: "Max"},
	}}
	assert.Equal(t, []string{"Parameter", "Min", "Max"}, row.Cells(DefaultMinCellGap))

	// Close fragments stay in one cell, separated by a space when there is a small gap
	words := Row{Fragments: []Fragment{
		{X: 72, W: 30, S: "Supply"},
		{X: 105, W: 35, S: "voltage"},
	}}
	assert.Equal(t, []string{"Supply voltage"}, words.Cells(DefaultMinCellGap))

	// Adjacent glyphs are joined without a space
	glyphs := Row{Fragments: []Fragment{
		{X: 72, W: 6, S: "V"},
		{X: 78, W: 6, S: "D"},
		{X: 84, W: 6, S: "D"},
	}}
	assert.Equal(t, []string{"VDD"}, glyphs.Cells(DefaultMinCellGap))

	// Missing widths are estimated from the rune count
	estimated := Row{Fragments: []Fragment{{X: 0, S: "abcd"}, {X: 22, S: "e"}}}
	assert.Equal(t, []string{"abcd e"}, estimated.Cells(DefaultMinCellGap))

	assert.Empty(t, Row{}.Cells(DefaultMinCellGap))
}

func TestDetectTables(t *testing.T) {
	cellRow := func(y float64, cells ...string) Row {
		row := Row{Y: y}
		for i, c := range cells {
			row.Fragments = append(row.Fragments, Fragment{X: float64(72 + i*120), W: 30, S: c})
		}
		return row
	}

	rows := []Row{
		cellRow(740, "Electrical Characteristics"),
		cellRow(720, "Parameter", "Min", "Max"),
		cellRow(700, "VDD", "1.067", "1.166"),
		cellRow(680, "VDDQ", "1.067", "1.166"),
		cellRow(660, "Notes follow"),
		cellRow(640, "a", "b", "c"), // a single row is not a table
		cellRow(620, "end"),
		cellRow(600, "Temp", "0", "95"),
		cellRow(580, "Humidity", "10", "90"),
	}

	tables := DetectTables(rows, 3, DefaultMinCellGap)
	require.Len(t, tables, 2)

	assert.Equal(t, 3, tables[0].Page)
	assert.Equal(t, [][]string{
		{"Parameter", "Min", "Max"},
		{"VDD", "1.067", "1.166"},
		{"VDDQ", "1.067", "1.166"},
	}, tables[0].Rows)
	assert.Len(t, tables[1].Rows, 2)

	assert.Empty(t, DetectTables(nil, 1, DefaultMinCellGap))
}

func TestDetectStructure(t *testing.T) {
	text := "1. Overview\n" +
		"DDR5 registered DIMM for servers.\n" +
		"3.1 Electrical Characteristics\n" +
		"1.1V typical supply\n" +
		"ABSOLUTE MAXIMUM RATINGS\n" +
		"Features\n" +
		"12345 67890 11111\n" +
		"2. 제품 개요\n" +
		"The module operates at 4800 MT/s.\n"

	sections := DetectStructure(text, 4)
	titles := make([]string, 0, len(sections))
	for _, s := range sections {
		titles = append(titles, s.Title)
		assert.Equal(t, 4, s.Page)
		assert.Equal(t, s.Title, text[s.Offset:s.Offset+len(s.Title)])
	}
	assert.Equal(t, []string{
		"1. Overview",
		"3.1 Electrical Characteristics",
		"ABSOLUTE MAXIMUM RATINGS",
		"Features",
		"2. 제품 개요",
	}, titles)

	assert.Empty(t, DetectStructure("", 1))
}

func TestDetectNavigation(t *testing.T) {
	toc, index := detectNavigation("Table of Contents\n1. Overview")
	assert.True(t, toc)
	assert.False(t, index)

	toc, index = detectNavigation("목차 ... 색인")
	assert.True(t, toc)
	assert.True(t, index)

	toc, index = detectNavigation("plain text")
	assert.False(t, toc)
	assert.False(t, index)
}
