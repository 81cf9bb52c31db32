package parser

import (
	"regexp"
	"strings"
)

var ligatures = strings.NewReplacer(
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
)

var (
	hyphenBreak     = regexp.MustCompile(`(\w)-[ \t]*\n[ \t]*(\w)`)
	horizontalSpace = regexp.MustCompile(`[ \t\f\v\r\x{00a0}]+`)
	spaceAroundLF   = regexp.MustCompile(` ?\n ?`)
	blankLines      = regexp.MustCompile(`\n{2,}`)
)

// Normalize cleans extracted page text. Ligatures are expanded, words split by
// a hyphenated line break are joined, whitespace runs are collapsed and blank
// lines are squeezed to a single newline. Line breaks themselves are kept.
func Normalize(text string) string {
	text = ligatures.Replace(text)
	text = hyphenBreak.ReplaceAllString(text, "$1$2")
	text = horizontalSpace.ReplaceAllString(text, " ")
	text = spaceAroundLF.ReplaceAllString(text, "\n")
	text = blankLines.ReplaceAllString(text, "\n")
	return strings.TrimSpace(text)
}
