package hybrid

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// cleanText normalises extracted page text so the field patterns see one
// canonical form: NFC accents, LF line endings, no invisible characters and
// at most two consecutive blank lines.
func cleanText(text string) string {
	text = norm.NFC.String(text)

	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.ReplaceAll(text, "\f", "\n")

	text = strings.Map(func(r rune) rune {
		switch r {
		case '\u200B', '\u200C', '\u200D', '\uFEFF', '\u00AD', '\u2060':
			return -1
		case '\u00A0', '\u202F':
			return ' '
		default:
			return r
		}
	}, text)

	lines := strings.Split(text, "\n")
	cleaned := make([]string, 0, len(lines))
	consecutiveEmpty := 0

	for _, line := range lines {
		line = strings.TrimRight(line, " \t")

		if strings.TrimSpace(line) == "" {
			consecutiveEmpty++
			if consecutiveEmpty <= 2 {
				cleaned = append(cleaned, "")
			}
			continue
		}
		consecutiveEmpty = 0

		leadingSpaces := len(line) - len(strings.TrimLeft(line, " \t"))
		normalized := strings.Join(strings.Fields(line), " ")
		if leadingSpaces > 0 {
			line = strings.Repeat(" ", leadingSpaces) + normalized
		} else {
			line = normalized
		}
		cleaned = append(cleaned, line)
	}

	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}

func countWords(text string) int {
	return len(strings.Fields(text))
}
