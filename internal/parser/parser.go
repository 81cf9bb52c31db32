package parser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"

	"github.com/dshills/datasheet-rag/pkg/types"
)

var (
	// ErrInvalidPDF is returned when a file cannot be opened or parsed as a PDF
	ErrInvalidPDF = errors.New("invalid pdf")
	// ErrNoText is returned when no page yields text, usually a scanned document
	ErrNoText = errors.New("no extractable text")
)

// DefaultMinCellGap is the horizontal gap, in points, that separates table cells
const DefaultMinCellGap = 15.0

// Parser extracts normalized page text, tables and section headings from PDF files
type Parser struct {
	logger     *zap.Logger
	minCellGap float64
}

// Option configures a Parser
type Option func(*Parser)

// WithMinCellGap overrides the gap used to split table cells
func WithMinCellGap(gap float64) Option {
	return func(p *Parser) {
		if gap > 0 {
			p.minCellGap = gap
		}
	}
}

// New creates a new Parser instance
func New(logger *zap.Logger, opts ...Option) *Parser {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Parser{
		logger:     logger.Named("parser"),
		minCellGap: DefaultMinCellGap,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseFile reads a PDF page by page. Pages that fail are recorded in the
// result and skipped; the call only fails when the file is unreadable or no
// page produced any text.
func (p *Parser) ParseFile(ctx context.Context, filePath string) (*types.ExtractResult, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPDF, err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPDF, err)
	}

	reader, err := openReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidPDF, err)
	}

	result := &types.ExtractResult{
		PageCount: reader.NumPage(),
		Metadata:  readMetadata(reader),
	}
	name := filepath.Base(filePath)

	var fullText strings.Builder
	for i := 1; i <= result.PageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page, err := p.readPage(reader, i)
		if err != nil {
			p.logger.Warn("failed to read page",
				zap.String("file", name), zap.Int("page", i), zap.Error(err))
			result.AddError(name, i, err.Error())
			continue
		}
		if page.Text == "" && len(page.Tables) == 0 {
			continue
		}

		result.Pages = append(result.Pages, page)
		result.Sections = append(result.Sections, DetectStructure(page.Text, page.Number)...)
		fullText.WriteString(page.Text)
		fullText.WriteByte('\n')
	}

	if len(result.Pages) == 0 {
		return nil, ErrNoText
	}

	result.HasTOC, result.HasIndex = detectNavigation(fullText.String())

	p.logger.Debug("parsed pdf",
		zap.String("file", name),
		zap.Int("pages", result.PageCount),
		zap.Int("text_pages", len(result.Pages)),
		zap.Int("sections", len(result.Sections)),
		zap.Int("page_errors", len(result.Errors)))

	return result, nil
}

// openReader guards against the panics the pdf package raises on malformed input
func openReader(f *os.File, size int64) (reader *pdf.Reader, err error) {
	defer func() {
		if r := recover(); r != nil {
			reader, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()
	return pdf.NewReader(f, size)
}

// readPage extracts one page. Positioned rows are preferred because they keep
// line structure and allow table detection; plain text is the fallback.
func (p *Parser) readPage(reader *pdf.Reader, number int) (page types.Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", number, r)
		}
	}()

	page.Number = number
	pg := reader.Page(number)
	if pg.V.IsNull() {
		return page, nil
	}

	pdfRows, rowErr := pg.GetTextByRow()
	rows := convertRows(pdfRows)
	if rowErr == nil && len(rows) > 0 {
		page.Text = Normalize(renderRows(rows, p.minCellGap))
		page.Tables = DetectTables(rows, number, p.minCellGap)
		if page.Text != "" {
			return page, nil
		}
	}

	text, err := pg.GetPlainText(nil)
	if err != nil {
		if rowErr != nil {
			return page, rowErr
		}
		return page, err
	}
	page.Text = Normalize(text)
	return page, nil
}

// convertRows orders rows top to bottom and fragments left to right
func convertRows(pdfRows pdf.Rows) []Row {
	rows := make([]Row, 0, len(pdfRows))
	for _, r := range pdfRows {
		if r == nil || len(r.Content) == 0 {
			continue
		}
		row := Row{Y: float64(r.Position), Fragments: make([]Fragment, 0, len(r.Content))}
		for _, t := range r.Content {
			if t.S == "" {
				continue
			}
			row.Fragments = append(row.Fragments, Fragment{X: t.X, W: t.W, S: t.S})
		}
		sort.SliceStable(row.Fragments, func(i, j int) bool {
			return row.Fragments[i].X < row.Fragments[j].X
		})
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Y > rows[j].Y })
	return rows
}

func renderRows(rows []Row, minCellGap float64) string {
	var b strings.Builder
	for _, row := range rows {
		b.WriteString(strings.Join(row.Cells(minCellGap), " "))
		b.WriteByte('\n')
	}
	return b.String()
}

// readMetadata copies the document information dictionary
func readMetadata(reader *pdf.Reader) map[string]string {
	meta := make(map[string]string)
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return meta
	}
	for _, key := range []string{"Title", "Author", "Subject", "Keywords", "Creator", "Producer"} {
		if v := strings.TrimSpace(info.Key(key).Text()); v != "" {
			meta[strings.ToLower(key)] = v
		}
	}
	return meta
}
