// Package parser extracts text, tables and section headings from PDF datasheets.
//
// Pages are read with github.com/ledongthuc/pdf as rows of positioned text.
// Rows keep the line structure of the page and give the horizontal positions
// needed to recognise tables. Plain text extraction is the fallback when a page
// has no positioned text.
//
// # Basic Usage
//
//	p := parser.New(logger)
//	result, err := p.ParseFile(ctx, "/data/uploads/ddr5.pdf")
//	if errors.Is(err, parser.ErrNoText) {
//	    // likely a scanned document
//	}
//
//	for _, page := range result.Pages {
//	    fmt.Printf("page %d: %d chars, %d tables\n", page.Number, len(page.Text), len(page.Tables))
//	}
//
// # Normalization
//
// Normalize expands ligatures, joins words hyphenated across a line break and
// collapses whitespace. Line breaks are kept for the text splitter and for
// heading detection.
//
// # Structure Detection
//
// DetectStructure marks a line as a heading when it is:
//   - numbered, e.g. "3.1 Electrical Characteristics"
//   - all capitals and at least 10 characters long
//   - a well-known heading such as "Overview" or "Features"
//
// # Error Handling
//
// A page that fails to parse is recorded in result.Errors and skipped:
//
//	if result.HasErrors() {
//	    for _, pageErr := range result.Errors {
//	        fmt.Printf("page %d: %v\n", pageErr.Page, pageErr.Message)
//	    }
//	}
//
// ErrInvalidPDF is returned when the file cannot be opened at all.
package parser
