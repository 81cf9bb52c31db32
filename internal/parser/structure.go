package parser

import (
	"regexp"
	"strings"

	"github.com/dshills/datasheet-rag/pkg/types"
)

const maxHeadingLength = 100

var (
	// "3.1 Electrical Characteristics", "2. 제품 개요"
	numberedHeading = regexp.MustCompile(`^(\d+(?:\.\d+)*\.?)\s+(\p{Lu}|\p{Lo}).{2,}$`)
	// "ABSOLUTE MAXIMUM RATINGS"
	capsHeading = regexp.MustCompile(`^\p{Lu}[^\p{Ll}]{9,}$`)
	// Well-known single-word headings
	knownHeading = regexp.MustCompile(`(?i)^(introduction|abstract|conclusions?|references?|specifications?|features?|overview)\s*:?$`)
)

// DetectStructure returns the section headings found in a page of text.
// Offsets are byte offsets of the heading line within text.
func DetectStructure(text string, page int) []types.Section {
	sections := make([]types.Section, 0)

	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		lineStart := offset
		offset += len(line)

		trimmed := strings.TrimSpace(line)
		if !isHeading(trimmed) {
			continue
		}
		sections = append(sections, types.Section{
			Title:  trimmed,
			Page:   page,
			Offset: lineStart + strings.Index(line, trimmed),
		})
	}

	return sections
}

func isHeading(line string) bool {
	if line == "" || len(line) > maxHeadingLength {
		return false
	}
	return checkNumbered(line) || checkCaps(line) || checkKnown(line)
}

func checkNumbered(line string) bool {
	if !numberedHeading.MatchString(line) {
		return false
	}
	// Sentences and measurements are not headings
	return !strings.HasSuffix(line, ".") && !strings.Contains(line, ", ")
}

func checkCaps(line string) bool {
	if !capsHeading.MatchString(line) {
		return false
	}
	// Require some letters so rows of numbers or symbols are not headings
	letters := 0
	for _, r := range line {
		if r >= 'A' && r <= 'Z' {
			letters++
		}
	}
	return letters >= 5
}

func checkKnown(line string) bool {
	return knownHeading.MatchString(line)
}

// detectNavigation reports whether the text carries a table of contents or an index
func detectNavigation(text string) (hasTOC, hasIndex bool) {
	lower := strings.ToLower(text)
	hasTOC = strings.Contains(lower, "table of contents") || strings.Contains(lower, "목차")
	hasIndex = strings.Contains(lower, "index") || strings.Contains(lower, "색인")
	return hasTOC, hasIndex
}
