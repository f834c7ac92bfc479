package fields

import (
	"fmt"
	"regexp"
	"strings"
)

// BoundedSpec describes a "value until the next known label" candidate.
type BoundedSpec struct {
	// Label is a regex for the label that precedes the value, e.g. `Placa\s*:`.
	Label string
	// Stops are regexes for labels that may follow the value, in any order.
	Stops []string
	// Line also ends the value at the first line break.
	Line bool
	// NotAfter rejects label occurrences directly preceded by one of these
	// words ("do" in "CEP de Pernoite do Veículo:" for the label "Veículo:").
	NotAfter []string
}

// Bounded compiles a bounded-label candidate. The value starts at the first
// non-blank character after the first acceptable label match, so a value
// printed on the line below its label is still found. It runs up to the
// earliest stop label, the end of that line when Line is set, or the end of
// the text.
func Bounded(spec BoundedSpec) (Candidate, error) {
	label, err := regexp.Compile("(?i)" + spec.Label)
	if err != nil {
		return nil, fmt.Errorf("label %q: %w", spec.Label, err)
	}

	var stop *regexp.Regexp
	if len(spec.Stops) > 0 {
		parts := make([]string, len(spec.Stops))
		for i, s := range spec.Stops {
			if _, err := regexp.Compile(s); err != nil {
				return nil, fmt.Errorf("stop label %q: %w", s, err)
			}
			parts[i] = "(?:" + s + ")"
		}
		stop = regexp.MustCompile("(?i)" + strings.Join(parts, "|"))
	}

	notAfter := make([]string, 0, len(spec.NotAfter))
	for _, w := range spec.NotAfter {
		notAfter = append(notAfter, strings.ToLower(w))
	}

	return func(text string) (string, bool) {
		start := -1
		for _, loc := range label.FindAllStringIndex(text, -1) {
			if precededBy(text[:loc[0]], notAfter) {
				continue
			}
			start = loc[1]
			break
		}
		if start < 0 {
			return "", false
		}

		rest := strings.TrimLeft(text[start:], " \t\r\n:")
		end := len(rest)
		if spec.Line {
			if i := strings.IndexByte(rest, '\n'); i >= 0 {
				end = i
			}
		}
		if stop != nil {
			if loc := stop.FindStringIndex(rest[:end]); loc != nil {
				end = loc[0]
			}
		}

		return strings.TrimSpace(rest[:end]), true
	}, nil
}

// precededBy reports whether the last word of before is one of words.
func precededBy(before string, words []string) bool {
	if len(words) == 0 {
		return false
	}
	trimmed := strings.TrimRight(before, " \t")
	if trimmed == "" {
		return false
	}
	i := strings.LastIndexAny(trimmed, " \t\n")
	last := strings.ToLower(trimmed[i+1:])
	for _, w := range words {
		if last == w {
			return true
		}
	}
	return false
}
