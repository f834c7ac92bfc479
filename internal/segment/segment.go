// Package segment splits policy text into one span per insured vehicle.
package segment

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/toricodesthings/policy-extraction-service/internal/fields"
)

// Span is the text attributed to one vehicle.
type Span struct {
	Item string
	Text string
}

// Strategy names the heuristic that produced the spans.
type Strategy string

const (
	StrategyItemHeader Strategy = "item-header"
	StrategyCEP        Strategy = "cep-pernoite"
	StrategyBrand      Strategy = "brand"
	StrategyPlate      Strategy = "plate"
	StrategyNone       Strategy = "none"
)

var (
	itemHeader = regexp.MustCompile(`(?i)Descri[çc][ãa]o\s+do\s+Item\s*-\s*(\d+)\s*-\s*Produto\s+Auto\s+Frota`)
	cepMarker  = regexp.MustCompile(`(?i)CEP\s+de\s+Pernoite`)

	// Sections that follow the vehicle listing. Only matched at line start so
	// clauses that merely mention them ("conforme Condições Gerais") do not cut
	// a vehicle short.
	endMarker = regexp.MustCompile(`(?im)^[ \t]*(?:Cl[áa]usulas\s+Particulares|Condi[çc][õo]es\s+Gerais|Dados\s+do\s+Corretor|Forma\s+de\s+Pagamento|Demonstrativo\s+de\s+Parcelas)`)
)

// Split runs the fallback ladder: item headers, then garaging postal code
// labels, then manufacturer names, then plates. The first heuristic that
// yields spans wins. Empty text or no match yields no spans.
func Split(text string) ([]Span, Strategy) {
	if strings.TrimSpace(text) == "" {
		return nil, StrategyNone
	}
	if spans := byItemHeader(text); len(spans) > 0 {
		return spans, StrategyItemHeader
	}
	if spans := byMarker(text, cepMarker); len(spans) > 0 {
		return spans, StrategyCEP
	}
	if spans := byLine(text, brandOnLine, false); len(spans) > 0 {
		return spans, StrategyBrand
	}
	if spans := byLine(text, plateOnLine, true); len(spans) > 0 {
		return spans, StrategyPlate
	}
	return nil, StrategyNone
}

// cut returns text[start:end] shortened at the first end marker after the
// opening line.
func cut(text string, start, end int) string {
	body := text[start:end]
	first := strings.IndexByte(body, '\n')
	if first < 0 {
		return strings.TrimSpace(body)
	}
	if loc := endMarker.FindStringIndex(body[first:]); loc != nil {
		body = body[:first+loc[0]]
	}
	return strings.TrimSpace(body)
}

func byItemHeader(text string) []Span {
	matches := itemHeader.FindAllStringSubmatchIndex(text, -1)
	spans := make([]Span, 0, len(matches))

	for i, m := range matches {
		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		item := normalizeItem(text[m[2]:m[3]])
		body := cut(text, m[0], end)

		// a header repeated after a page break continues the same vehicle
		if n := len(spans); n > 0 && spans[n-1].Item == item {
			spans[n-1].Text += "\n" + body
			continue
		}
		spans = append(spans, Span{Item: item, Text: body})
	}
	return spans
}

func normalizeItem(s string) string {
	n, err := strconv.Atoi(s)
	if err != nil {
		return s
	}
	return strconv.Itoa(n)
}

// byMarker starts a new span at every occurrence of marker; text before the
// first occurrence belongs to no vehicle.
func byMarker(text string, marker *regexp.Regexp) []Span {
	locs := marker.FindAllStringIndex(text, -1)
	spans := make([]Span, 0, len(locs))
	for i, loc := range locs {
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		spans = append(spans, Span{Item: strconv.Itoa(i + 1), Text: cut(text, loc[0], end)})
	}
	return spans
}

type lineMatcher func(line string) (string, bool)

// brandOnLine accepts an upper-case brand anywhere on the line, or a brand in
// any case at the start of the line.
func brandOnLine(line string) (string, bool) {
	if m := fields.BrandPattern.FindString(line); m != "" {
		return m, true
	}
	if m := fields.BrandLinePattern.FindStringSubmatch(line); m != nil {
		return strings.ToUpper(m[1]), true
	}
	return "", false
}

func plateOnLine(line string) (string, bool) {
	loc, ok := fields.FindPlate(line)
	if !ok {
		return "", false
	}
	return line[loc[0]:loc[1]], true
}

// byLine opens a span at the start of every line where match succeeds, at
// most one boundary per line. With mergeSame, consecutive boundaries carrying
// the same value (a plate printed twice for one vehicle) stay in one span.
func byLine(text string, match lineMatcher, mergeSame bool) []Span {
	type boundary struct {
		offset int
		value  string
	}

	var bounds []boundary
	offset := 0
	for _, line := range strings.SplitAfter(text, "\n") {
		if v, ok := match(line); ok {
			if !mergeSame || len(bounds) == 0 || bounds[len(bounds)-1].value != v {
				bounds = append(bounds, boundary{offset: offset, value: v})
			}
		}
		offset += len(line)
	}

	spans := make([]Span, 0, len(bounds))
	for i, b := range bounds {
		end := len(text)
		if i+1 < len(bounds) {
			end = bounds[i+1].offset
		}
		spans = append(spans, Span{Item: strconv.Itoa(i + 1), Text: cut(text, b.offset, end)})
	}
	return spans
}
