package ocr

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TesseractConfig configures the tesseract CLI engine.
type TesseractConfig struct {
	Binary        string
	Languages     string  // tesseract -l value, e.g. "por+eng"
	MinConfidence float64 // 0..1; tokens below are discarded
	PSM           int     // page segmentation mode, 0 = tesseract default
	Timeout       time.Duration
}

func (c TesseractConfig) withDefaults() TesseractConfig {
	out := c
	if out.Binary == "" {
		out.Binary = "tesseract"
	}
	if out.Languages == "" {
		out.Languages = "por"
	}
	if out.MinConfidence <= 0 || out.MinConfidence > 1 {
		out.MinConfidence = 0.6
	}
	if out.Timeout <= 0 {
		out.Timeout = 90 * time.Second
	}
	return out
}

// Tesseract runs the tesseract CLI in TSV mode so every token carries a
// confidence score.
type Tesseract struct {
	cfg    TesseractConfig
	runner Runner
}

func NewTesseract(cfg TesseractConfig, runner Runner) *Tesseract {
	if runner == nil {
		runner = NewExecRunner(nil)
	}
	return &Tesseract{cfg: cfg.withDefaults(), runner: runner}
}

func (t *Tesseract) Name() string { return "tesseract" }

func (t *Tesseract) Recognize(ctx context.Context, imagePath string) (Page, error) {
	ctx, cancel := context.WithTimeout(ctx, t.cfg.Timeout)
	defer cancel()

	// tesseract <img> stdout -l por+eng [--psm N] tsv
	args := []string{imagePath, "stdout", "-l", t.cfg.Languages}
	if t.cfg.PSM > 0 {
		args = append(args, "--psm", strconv.Itoa(t.cfg.PSM))
	}
	args = append(args, "tsv")

	out, errb, err := t.runner.Run(ctx, t.cfg.Binary, args...)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return Page{}, fmt.Errorf("tesseract timeout")
		}
		if msg := strings.TrimSpace(string(errb)); msg != "" {
			return Page{}, fmt.Errorf("tesseract: %s", truncate(msg, 300))
		}
		return Page{}, fmt.Errorf("tesseract: %w", err)
	}

	tokens, err := ParseTSV(out)
	if err != nil {
		return Page{}, err
	}
	return Assemble(tokens, t.cfg.MinConfidence), nil
}

// ParseTSV reads tesseract TSV output and returns word-level tokens.
// Confidence is rescaled from tesseract's 0..100 to 0..1.
func ParseTSV(data []byte) ([]Token, error) {
	var tokens []Token

	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)

	first := true
	for sc.Scan() {
		line := sc.Text()
		if first {
			first = false
			if strings.HasPrefix(line, "level") {
				continue
			}
		}
		if line == "" {
			continue
		}

		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		// level 5 rows are words
		if cols[0] != "5" {
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		conf, err := strconv.ParseFloat(strings.TrimSpace(cols[10]), 64)
		if err != nil || conf < 0 {
			continue
		}

		tokens = append(tokens, Token{
			Text:       text,
			Confidence: conf / 100,
			Block:      atoi(cols[2]),
			Paragraph:  atoi(cols[3]),
			Line:       atoi(cols[4]),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("tesseract tsv: %w", err)
	}
	return tokens, nil
}

// Assemble rebuilds page text from tokens, dropping those below minConfidence.
// Tokens on the same block/paragraph/line are space-joined; a new block starts
// after a blank line.
func Assemble(tokens []Token, minConfidence float64) Page {
	var (
		b       strings.Builder
		page    Page
		started bool
		lineHas bool
		prev    Token
	)

	for _, tok := range tokens {
		if tok.Confidence < minConfidence {
			page.Dropped++
			continue
		}
		page.Kept++

		switch {
		case !started:
			started = true
		case tok.Block != prev.Block:
			b.WriteString("\n\n")
			lineHas = false
		case tok.Paragraph != prev.Paragraph || tok.Line != prev.Line:
			b.WriteString("\n")
			lineHas = false
		}

		if lineHas {
			b.WriteByte(' ')
		}
		b.WriteString(tok.Text)
		lineHas = true
		prev = tok
	}

	page.Text = b.String()
	return page
}

func atoi(s string) int {
	n, _ := strconv.Atoi(strings.TrimSpace(s))
	return n
}
