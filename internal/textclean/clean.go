// Package textclean filters OCR output down to the lines worth grading.
package textclean

import (
	"regexp"
	"strings"
)

// MinAlnumPerLine is the number of ASCII letters and digits a line needs to be kept.
const MinAlnumPerLine = 5

var (
	lineBreaks  = regexp.MustCompile("\r\n|[\n\r\v\f\x1c\x1d\x1e\u0085\u2028\u2029]")
	boilerplate = regexp.MustCompile(`(?i)(page \p{Nd}+|scan|copyright|school name)`)
)

// Clean drops near-empty and boilerplate lines, trims the rest and rejoins
// them with newlines. Clean(Clean(s)) == Clean(s) for every s.
func Clean(text string) string {
	lines := lineBreaks.Split(text, -1)
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if alnumCount(line) < MinAlnumPerLine {
			continue
		}
		if boilerplate.MatchString(line) {
			continue
		}
		kept = append(kept, strings.TrimSpace(line))
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

func alnumCount(line string) int {
	n := 0
	for i := 0; i < len(line); i++ {
		c := line[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') {
			n++
		}
	}
	return n
}
