package types

import "strings"

// Page is the normalized text of one PDF page
type Page struct {
	Number int // 1-based
	Text   string
	Tables []Table
}

// Table is a grid of cells detected from positioned text on a page
type Table struct {
	Page int
	Rows [][]string
}

// Render formats the table as one " | "-joined line per row
func (t Table) Render() string {
	lines := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		lines = append(lines, strings.Join(row, " | "))
	}
	return strings.Join(lines, "\n")
}

// Section is a heading detected in document text
type Section struct {
	Title  string
	Page   int
	Offset int // byte offset of the heading within the page text
}

// ExtractResult represents the output of parsing a PDF file
type ExtractResult struct {
	// Extracted data
	Pages     []Page
	Sections  []Section
	PageCount int
	Metadata  map[string]string
	HasTOC    bool
	HasIndex  bool

	// Errors encountered on individual pages
	Errors []PageError
}

// PageError represents an error that occurred while reading one page
type PageError struct {
	File    string
	Page    int
	Message string
}

// Error implements the error interface
func (pe *PageError) Error() string {
	return pe.Message
}

// HasErrors returns true if any page failed to extract
func (er *ExtractResult) HasErrors() bool {
	return len(er.Errors) > 0
}

// AddError records a page extraction failure
func (er *ExtractResult) AddError(file string, page int, msg string) {
	er.Errors = append(er.Errors, PageError{
		File:    file,
		Page:    page,
		Message: msg,
	})
}

// TextLength returns the total number of bytes of page text
func (er *ExtractResult) TextLength() int {
	n := 0
	for _, p := range er.Pages {
		n += len(p.Text)
	}
	return n
}

// SectionAt returns the title of the last section at or before offset on page,
// falling back to the last section of earlier pages. Sections are expected in
// page then offset order, as the parser emits them.
func (er *ExtractResult) SectionAt(page, offset int) string {
	title := ""
	for _, s := range er.Sections {
		if s.Page > page || (s.Page == page && s.Offset > offset) {
			break
		}
		title = s.Title
	}
	return title
}
