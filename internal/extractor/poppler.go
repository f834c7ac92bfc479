package extractor

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

type ExtractorConfig struct {
	PDFInfoBinary   string
	PDFToTextBinary string
	PDFToPPMBinary  string

	PDFInfoTimeout   time.Duration
	PDFToTextTimeout time.Duration
	PDFToPPMTimeout  time.Duration
}

// Sensible defaults if you pass zeros.
func (c ExtractorConfig) withDefaults() ExtractorConfig {
	out := c
	if out.PDFInfoBinary == "" {
		out.PDFInfoBinary = "pdfinfo"
	}
	if out.PDFToTextBinary == "" {
		out.PDFToTextBinary = "pdftotext"
	}
	if out.PDFToPPMBinary == "" {
		out.PDFToPPMBinary = "pdftoppm"
	}
	if out.PDFInfoTimeout <= 0 {
		out.PDFInfoTimeout = 3 * time.Second
	}
	if out.PDFToTextTimeout <= 0 {
		out.PDFToTextTimeout = 10 * time.Second
	}
	if out.PDFToPPMTimeout <= 0 {
		out.PDFToPPMTimeout = 120 * time.Second
	}
	return out
}

// Available reports whether the named binary resolves on PATH.
func Available(binary string) bool {
	if strings.TrimSpace(binary) == "" {
		return false
	}
	_, err := exec.LookPath(binary)
	return err == nil
}

type PDFInfo struct {
	Pages     int
	Encrypted bool
	Raw       string
}

var (
	pageCountRegex = regexp.MustCompile(`(?m)^Pages:\s+(\d+)\s*$`)
	encryptedRegex = regexp.MustCompile(`(?mi)^Encrypted:\s+yes\s*$`)
	pageImageRegex = regexp.MustCompile(`-(\d+)\.png$`)
)

// GetPDFInfo runs pdfinfo once and extracts page count + encryption flag.
func GetPDFInfo(ctx context.Context, pdfPath string, cfg ExtractorConfig) (PDFInfo, error) {
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, cfg.PDFInfoTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, cfg.PDFInfoBinary, pdfPath)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return PDFInfo{}, classifyPopplerErr("pdfinfo", err, ctx, stderr.String(), 0)
	}

	out := stdout.String()
	pages, err := parsePages(out)
	if err != nil {
		return PDFInfo{}, err
	}

	return PDFInfo{
		Pages:     pages,
		Encrypted: encryptedRegex.MatchString(out),
		Raw:       out,
	}, nil
}

// PageCount extracts total pages using pdfinfo.
func PageCount(ctx context.Context, pdfPath string, cfg ExtractorConfig) (int, error) {
	info, err := GetPDFInfo(ctx, pdfPath, cfg)
	if err != nil {
		return 0, err
	}
	return info.Pages, nil
}

// TextForPage extracts text for one page using pdftotext.
// Output is capped to 10 MiB per page to avoid OOM.
func TextForPage(ctx context.Context, pdfPath string, page int, cfg ExtractorConfig) (string, error) {
	cfg = cfg.withDefaults()

	if page < 1 {
		return "", fmt.Errorf("invalid page number: %d (must be >= 1)", page)
	}

	const maxPerPageBytes = 10<<20 + 1

	ctx, cancel := context.WithTimeout(ctx, cfg.PDFToTextTimeout)
	defer cancel()

	// No -layout: the field patterns expect label/value pairs in reading
	// order, not column-aligned layout.
	cmd := exec.CommandContext(ctx,
		cfg.PDFToTextBinary,
		"-f", strconv.Itoa(page),
		"-l", strconv.Itoa(page),
		"-nopgbrk",
		"-enc", "UTF-8",
		pdfPath,
		"-",
	)

	text, stderrStr, err := runCommandCaptureLimited(cmd, maxPerPageBytes)
	if err != nil {
		return "", classifyPopplerErr("pdftotext", err, ctx, stderrStr, page)
	}
	return text, nil
}

// RasterizePages renders every page of pdfPath to PNG files inside outDir at
// the given resolution and returns their paths in page order.
func RasterizePages(ctx context.Context, pdfPath, outDir string, dpi int, cfg ExtractorConfig) ([]string, error) {
	cfg = cfg.withDefaults()

	if dpi <= 0 {
		dpi = 300
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.PDFToPPMTimeout)
	defer cancel()

	prefix := filepath.Join(outDir, "page")
	cmd := exec.CommandContext(ctx,
		cfg.PDFToPPMBinary,
		"-r", strconv.Itoa(dpi),
		"-png",
		pdfPath,
		prefix,
	)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, classifyPopplerErr("pdftoppm", err, ctx, stderr.String(), 0)
	}

	matches, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("pdftoppm: glob: %w", err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("pdftoppm produced no images")
	}
	SortPageImages(matches)
	return matches, nil
}

// SortPageImages orders pdftoppm output (page-1.png, page-02.png, ...) by the
// numeric page suffix; a plain string sort puts page-10 before page-2.
func SortPageImages(paths []string) {
	num := func(p string) int {
		m := pageImageRegex.FindStringSubmatch(filepath.Base(p))
		if len(m) != 2 {
			return 0
		}
		n, _ := strconv.Atoi(m[1])
		return n
	}
	sort.SliceStable(paths, func(i, j int) bool {
		return num(paths[i]) < num(paths[j])
	})
}

// --- internals ---

func parsePages(pdfinfoOut string) (int, error) {
	matches := pageCountRegex.FindStringSubmatch(pdfinfoOut)
	if len(matches) == 2 {
		n, err := strconv.Atoi(matches[1])
		if err != nil {
			return 0, fmt.Errorf("pdfinfo: invalid page count: %w", err)
		}
		return validatePages(n)
	}

	// Fallback: scan lines to handle formatting variations
	sc := bufio.NewScanner(strings.NewReader(pdfinfoOut))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if strings.HasPrefix(strings.ToLower(line), "pages:") {
			fields := strings.Fields(line[len("Pages:"):])
			if len(fields) == 0 {
				break
			}
			n, err := strconv.Atoi(fields[0])
			if err != nil {
				return 0, fmt.Errorf("pdfinfo: invalid page count: %w", err)
			}
			return validatePages(n)
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("pdfinfo: scan failed: %w", err)
	}

	return 0, fmt.Errorf("pdfinfo: pages field not found in output")
}

func validatePages(count int) (int, error) {
	if count <= 0 || count > 50000 {
		return 0, fmt.Errorf("pdfinfo: unreasonable page count: %d", count)
	}
	return count, nil
}

// runCommandCaptureLimited runs cmd and captures stdout up to maxBytes (inclusive of sentinel).
// It captures stderr fully (usually small) for error reporting.
func runCommandCaptureLimited(cmd *exec.Cmd, maxBytes int64) (stdoutText string, stderrText string, err error) {
	stdoutPipe, err := cmd.StdoutPipe()
	if err != nil {
		return "", "", fmt.Errorf("stdout pipe: %w", err)
	}

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return "", "", fmt.Errorf("start: %w", err)
	}

	lr := io.LimitReader(stdoutPipe, maxBytes)
	outBytes, readErr := io.ReadAll(lr)
	if int64(len(outBytes)) >= maxBytes {
		_ = cmd.Process.Kill()
	}

	waitErr := cmd.Wait()
	stderrStr := strings.TrimSpace(stderr.String())

	if readErr != nil {
		return "", stderrStr, fmt.Errorf("read stdout: %w", readErr)
	}
	if int64(len(outBytes)) >= maxBytes {
		return "", stderrStr, errOutputLimit
	}
	if waitErr != nil {
		return "", stderrStr, waitErr
	}

	return string(outBytes), stderrStr, nil
}

var errOutputLimit = errors.New("output exceeds limit")

// isHelpOrUsageOutput returns true when stderr looks like a poppler
// usage / help dump rather than an actual processing error.
func isHelpOrUsageOutput(stderr string) bool {
	return strings.Contains(stderr, "version ") && strings.Contains(stderr, "Usage:")
}

func classifyPopplerErr(tool string, err error, ctx context.Context, stderr string, page int) error {
	where := tool
	if page > 0 {
		where = fmt.Sprintf("%s page %d", tool, page)
	}

	if ctx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("%s timeout", where)
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: binary not found: %w", tool, err)
	}
	if errors.Is(err, errOutputLimit) {
		return fmt.Errorf("%s: extracted text too large", where)
	}

	stderr = strings.TrimSpace(stderr)
	if stderr != "" {
		if isHelpOrUsageOutput(stderr) {
			return fmt.Errorf("%s failed (bad invocation)", where)
		}
		if containsAny(stderr, "Incorrect password", "Command Line Error: Incorrect password") {
			return fmt.Errorf("PDF is password protected")
		}
		if containsAny(stderr,
			"PDF file is damaged",
			"Syntax Error",
			"Couldn't find trailer dictionary",
			"May not be a PDF file",
		) {
			return fmt.Errorf("PDF appears to be damaged or invalid")
		}
		if strings.Contains(stderr, "I/O Error") && strings.Contains(stderr, "Couldn't open file") {
			return fmt.Errorf("unable to open PDF")
		}
		return fmt.Errorf("%s failed: %s", where, truncate(stderr, 300))
	}
	return fmt.Errorf("%s failed: %w", where, err)
}

func containsAny(s string, needles ...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
