package hybrid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/toricodesthings/policy-extraction-service/internal/config"
	"github.com/toricodesthings/policy-extraction-service/internal/extractor"
	"github.com/toricodesthings/policy-extraction-service/internal/ocr"
	"github.com/toricodesthings/policy-extraction-service/internal/types"
)

// Rasterizer renders every page of a PDF to an image file for OCR.
type Rasterizer interface {
	Name() string
	Rasterize(ctx context.Context, pdfPath, outDir string, dpi int) ([]string, error)
}

// Processor turns PDF bytes into plain text: native text layer first, OCR of
// rasterised pages only when every native source comes back blank.
type Processor struct {
	sources    []PageSource
	rasterizer Rasterizer
	ocr        ocr.Provider
	dpi        int
	pageSep    string
	logger     *zap.Logger
}

type Option func(*Processor)

// WithPageSources replaces the native text-layer sources, tried in order.
func WithPageSources(sources ...PageSource) Option {
	return func(p *Processor) { p.sources = sources }
}

func WithRasterizer(r Rasterizer) Option {
	return func(p *Processor) { p.rasterizer = r }
}

func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) {
		if l != nil {
			p.logger = l
		}
	}
}

// New builds a Processor from server configuration. Poppler's pdftotext is
// preferred when installed; the in-process parser is always available.
func New(cfg config.Config, provider ocr.Provider, opts ...Option) *Processor {
	extractCfg := extractor.ExtractorConfig{
		PDFInfoBinary:    cfg.PDFInfoBinary,
		PDFToTextBinary:  cfg.PDFToTextBinary,
		PDFToPPMBinary:   cfg.PDFToPPMBinary,
		PDFInfoTimeout:   cfg.PDFInfoTimeout,
		PDFToTextTimeout: cfg.PDFToTextTimeout,
		PDFToPPMTimeout:  cfg.PDFToPPMTimeout,
	}

	var sources []PageSource
	if extractor.Available(cfg.PDFInfoBinary) && extractor.Available(cfg.PDFToTextBinary) {
		sources = append(sources, PopplerSource{Cfg: extractCfg})
	}
	sources = append(sources, GoPDFSource{})

	var raster Rasterizer = extractor.PopplerRasterizer{Cfg: extractCfg}
	if cfg.OCRRasterizer == config.RasterizerFitz {
		raster = extractor.FitzRasterizer{}
	}

	if provider == nil {
		provider = ocr.Static{}
	}

	p := &Processor{
		sources:    sources,
		rasterizer: raster,
		ocr:        provider,
		dpi:        cfg.OCRDPI,
		pageSep:    "\n",
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Acquire extracts plain text from raw PDF bytes. Unreadable documents are not
// an error: they produce a result whose Text is empty. Only infrastructure
// faults (temp file handling) are returned as errors.
func (p *Processor) Acquire(ctx context.Context, data []byte, opts types.AcquisitionOptions) (types.AcquisitionResult, error) {
	result := types.AcquisitionResult{Method: types.MethodNone}

	sep := opts.PageSeparator
	if sep == "" {
		sep = p.pageSep
	}

	tmpDir, err := os.MkdirTemp("", "policy-*")
	if err != nil {
		return result, fmt.Errorf("temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			p.logger.Warn("temp cleanup failed", zap.String("dir", tmpDir), zap.Error(err))
		}
	}()

	pdfPath := filepath.Join(tmpDir, "input.pdf")
	if err := os.WriteFile(pdfPath, data, 0o600); err != nil {
		return result, fmt.Errorf("write temp pdf: %w", err)
	}

	// Phase 1: native text layer
	for _, src := range p.sources {
		pages, err := src.Pages(ctx, pdfPath)
		if err != nil {
			p.logger.Debug("text layer source failed", zap.String("source", src.Name()), zap.Error(err))
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %v", src.Name(), err))
			continue
		}

		pageResults, text := combinePages(pages, src.Name(), sep)
		if result.TotalPages == 0 {
			result.TotalPages = len(pages)
		}
		if strings.TrimSpace(text) == "" {
			p.logger.Debug("text layer empty", zap.String("source", src.Name()), zap.Int("pages", len(pages)))
			continue
		}

		result.Text = text
		result.Method = src.Name()
		result.Pages = pageResults
		return result, nil
	}

	if opts.DisableOCR {
		return result, nil
	}

	// Phase 2: OCR fallback for image-only documents
	engine, err := p.ocr.Engine(ctx)
	if err != nil {
		if !errors.Is(err, ocr.ErrUnavailable) {
			result.Warnings = append(result.Warnings, fmt.Sprintf("ocr: %v", err))
		}
		return result, nil
	}
	result.OCRAvailable = true

	ocrPages, err := p.runOCR(ctx, engine, pdfPath, tmpDir)
	if err != nil {
		p.logger.Warn("ocr failed", zap.Error(err))
		result.Warnings = append(result.Warnings, fmt.Sprintf("ocr: %v", err))
		return result, nil
	}

	texts := make([]string, len(ocrPages))
	for i, pg := range ocrPages {
		texts[i] = pg.Text
		result.DroppedTokens += pg.Dropped
	}
	pageResults, text := combinePages(texts, types.MethodOCR, sep)
	for i := range pageResults {
		pageResults[i].DroppedTokens = ocrPages[pageResults[i].PageNumber-1].Dropped
	}
	if result.TotalPages == 0 {
		result.TotalPages = len(ocrPages)
	}
	if strings.TrimSpace(text) == "" {
		return result, nil
	}

	result.Text = text
	result.Method = types.MethodOCR
	result.Pages = pageResults
	return result, nil
}

// runOCR rasterises the document and recognises pages in order. A page that
// fails recognition contributes no text; the others are kept.
func (p *Processor) runOCR(ctx context.Context, engine ocr.Engine, pdfPath, tmpDir string) ([]ocr.Page, error) {
	imgDir := filepath.Join(tmpDir, "pages")
	if err := os.MkdirAll(imgDir, 0o700); err != nil {
		return nil, fmt.Errorf("page dir: %w", err)
	}

	images, err := p.rasterizer.Rasterize(ctx, pdfPath, imgDir, p.dpi)
	if err != nil {
		return nil, fmt.Errorf("rasterize (%s): %w", p.rasterizer.Name(), err)
	}

	pages := make([]ocr.Page, len(images))
	for i, img := range images {
		pg, err := engine.Recognize(ctx, img)
		if err != nil {
			p.logger.Warn("ocr page failed", zap.Int("page", i+1), zap.Error(err))
			continue
		}
		pages[i] = pg
	}
	return pages, nil
}

// combinePages cleans each page and joins the non-blank ones with sep.
func combinePages(pages []string, method, sep string) ([]types.PageExtractionResult, string) {
	results := make([]types.PageExtractionResult, 0, len(pages))
	parts := make([]string, 0, len(pages))

	for i, raw := range pages {
		text := cleanText(raw)
		if text == "" {
			continue
		}
		results = append(results, types.PageExtractionResult{
			PageNumber: i + 1,
			Text:       text,
			Method:     method,
			WordCount:  countWords(text),
		})
		parts = append(parts, text)
	}
	return results, strings.Join(parts, sep)
}
