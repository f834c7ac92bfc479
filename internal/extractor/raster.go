package extractor

import (
	"context"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"github.com/gen2brain/go-fitz"
)

// PopplerRasterizer renders pages with pdftoppm.
type PopplerRasterizer struct {
	Cfg ExtractorConfig
}

func (r PopplerRasterizer) Name() string { return "pdftoppm" }

func (r PopplerRasterizer) Rasterize(ctx context.Context, pdfPath, outDir string, dpi int) ([]string, error) {
	return RasterizePages(ctx, pdfPath, outDir, dpi, r.Cfg)
}

// FitzRasterizer renders pages in-process with MuPDF, for hosts without poppler.
type FitzRasterizer struct{}

func (FitzRasterizer) Name() string { return "fitz" }

func (FitzRasterizer) Rasterize(ctx context.Context, pdfPath, outDir string, dpi int) (paths []string, err error) {
	if dpi <= 0 {
		dpi = 300
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("fitz: open: %w", err)
	}
	defer doc.Close()

	// MuPDF can panic on some broken xref tables
	defer func() {
		if r := recover(); r != nil {
			paths = nil
			err = fmt.Errorf("fitz: render panic: %v", r)
		}
	}()

	n := doc.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("fitz: document has no pages")
	}

	for i := 0; i < n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := doc.ImageDPI(i, float64(dpi))
		if err != nil {
			return nil, fmt.Errorf("fitz: render page %d: %w", i+1, err)
		}

		out := filepath.Join(outDir, fmt.Sprintf("page-%d.png", i+1))
		if err := writePNG(out, img); err != nil {
			return nil, fmt.Errorf("fitz: page %d: %w", i+1, err)
		}
		paths = append(paths, out)
	}
	return paths, nil
}

func writePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
