// Package fields pulls single values out of free-form policy text. A field is
// described by an ordered list of candidates; the first candidate that matches
// wins and later ones are never consulted.
package fields

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// NotFound is written in place of any value no candidate could match.
const NotFound = "Não encontrado"

// Candidate is one extraction strategy: it returns the raw captured value and
// whether it matched.
type Candidate func(text string) (string, bool)

// Value is an extracted field value. Text always holds something printable,
// NotFound included; Number is only meaningful when Numeric is set.
type Value struct {
	Text    string
	Number  float64
	Numeric bool
	Found   bool
}

// Missing is the Value used for fields that matched nothing.
func Missing() Value {
	return Value{Text: NotFound}
}

// Cell returns what belongs in a spreadsheet cell: the number for normalised
// money values, the text otherwise.
func (v Value) Cell() any {
	if v.Numeric {
		return v.Number
	}
	return v.Text
}

// Extract evaluates candidates in order against text and returns the first
// match, whitespace-collapsed. A candidate whose capture is blank after
// collapsing counts as no match.
func Extract(cands []Candidate, text string) Value {
	for _, c := range cands {
		raw, ok := c(text)
		if !ok {
			continue
		}
		if v := collapse(raw); v != "" {
			return Value{Text: v, Found: true}
		}
	}
	return Missing()
}

// ExtractMoney is Extract followed by NormalizeMoney on a found value.
func ExtractMoney(cands []Candidate, text string) Value {
	v := Extract(cands, text)
	if !v.Found {
		return v
	}
	if n, ok := NormalizeMoney(v.Text); ok {
		v.Number = n
		v.Numeric = true
	}
	return v
}

// NormalizeMoney parses a Brazilian-formatted amount ("R$ 1.234,56") into a
// float. On failure it reports false and the caller keeps the raw string.
func NormalizeMoney(raw string) (float64, bool) {
	s := strings.ReplaceAll(raw, "R$", "")
	s = strings.Join(strings.Fields(s), "")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	if s == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Regex builds a case-insensitive pattern candidate. The value is the first
// capturing group when the pattern has one, else the whole match. With
// multiline set, '.' also matches newlines.
func Regex(pattern string, multiline bool) (Candidate, error) {
	flags := "(?i)"
	if multiline {
		flags = "(?is)"
	}
	re, err := regexp.Compile(flags + pattern)
	if err != nil {
		return nil, fmt.Errorf("regex %q: %w", pattern, err)
	}
	return fromRegexp(re), nil
}

// MustRegex is Regex for patterns known at compile time.
func MustRegex(pattern string, multiline bool) Candidate {
	c, err := Regex(pattern, multiline)
	if err != nil {
		panic(err)
	}
	return c
}

func fromRegexp(re *regexp.Regexp) Candidate {
	return func(text string) (string, bool) {
		m := re.FindStringSubmatch(text)
		if m == nil {
			return "", false
		}
		if len(m) > 1 {
			return m[1], true
		}
		return m[0], true
	}
}

// Fixed always yields value, regardless of the text.
func Fixed(value string) Candidate {
	return func(string) (string, bool) {
		return value, true
	}
}
