package hybrid

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/toricodesthings/policy-extraction-service/internal/config"
	"github.com/toricodesthings/policy-extraction-service/internal/ocr"
	"github.com/toricodesthings/policy-extraction-service/internal/types"
)

type stubSource struct {
	name    string
	pages   []string
	err     error
	seen    string
	present bool
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Pages(ctx context.Context, pdfPath string) ([]string, error) {
	s.seen = pdfPath
	_, statErr := os.Stat(pdfPath)
	s.present = statErr == nil
	return s.pages, s.err
}

type stubRasterizer struct {
	pages int
	err   error
}

func (r stubRasterizer) Name() string { return "stub" }

func (r stubRasterizer) Rasterize(ctx context.Context, pdfPath, outDir string, dpi int) ([]string, error) {
	if r.err != nil {
		return nil, r.err
	}
	var out []string
	for i := 1; i <= r.pages; i++ {
		p := filepath.Join(outDir, fmt.Sprintf("page-%d.png", i))
		if err := os.WriteFile(p, []byte("png"), 0o600); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type stubEngine struct {
	byPage map[string]ocr.Page
	fail   map[string]bool
	calls  []string
}

func (e *stubEngine) Name() string { return "stub" }

func (e *stubEngine) Recognize(ctx context.Context, imagePath string) (ocr.Page, error) {
	base := filepath.Base(imagePath)
	e.calls = append(e.calls, base)
	if e.fail[base] {
		return ocr.Page{}, errors.New("recognition failed")
	}
	return e.byPage[base], nil
}

func newProcessor(t *testing.T, provider ocr.Provider, raster Rasterizer, sources ...PageSource) *Processor {
	t.Helper()
	return New(config.Load(), provider,
		WithPageSources(sources...),
		WithRasterizer(raster),
		WithLogger(zaptest.NewLogger(t)),
	)
}

func TestAcquireUsesTextLayerAndSkipsBlankPages(t *testing.T) {
	src := &stubSource{name: types.MethodTextLayer, pages: []string{"Página um", "   ", "Página três"}}
	engine := &stubEngine{}
	p := newProcessor(t, ocr.Static{E: engine}, stubRasterizer{pages: 3}, src)

	res, err := p.Acquire(context.Background(), []byte("%PDF-1.4"), types.AcquisitionOptions{})
	require.NoError(t, err)

	assert.Equal(t, "Página um\nPágina três", res.Text)
	assert.Equal(t, types.MethodTextLayer, res.Method)
	assert.Equal(t, 3, res.TotalPages)
	require.Len(t, res.Pages, 2)
	assert.Equal(t, 3, res.Pages[1].PageNumber)
	assert.Empty(t, engine.calls, "OCR must not run when the text layer has content")
}

func TestAcquireFallsThroughFailingSource(t *testing.T) {
	broken := &stubSource{name: types.MethodPdftotext, err: errors.New("PDF appears to be damaged or invalid")}
	good := &stubSource{name: types.MethodTextLayer, pages: []string{"Nr Apólice: 123"}}
	p := newProcessor(t, ocr.Static{}, stubRasterizer{}, broken, good)

	res, err := p.Acquire(context.Background(), []byte("%PDF"), types.AcquisitionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "Nr Apólice: 123", res.Text)
	assert.Equal(t, types.MethodTextLayer, res.Method)
	assert.NotEmpty(t, res.Warnings)
}

func TestAcquireFallsBackToOCRInPageOrder(t *testing.T) {
	src := &stubSource{name: types.MethodTextLayer, pages: []string{"", ""}}
	engine := &stubEngine{
		byPage: map[string]ocr.Page{
			"page-1.png":  {Text: "Proprietário: ACME LTDA", Dropped: 2},
			"page-2.png":  {Text: "Placa: ABC1234", Dropped: 1},
			"page-10.png": {Text: "Placa: XYZ9876"},
		},
		fail: map[string]bool{"page-3.png": true},
	}
	p := newProcessor(t, ocr.Static{E: engine}, stubRasterizer{pages: 10}, src)

	res, err := p.Acquire(context.Background(), []byte("%PDF"), types.AcquisitionOptions{})
	require.NoError(t, err)

	assert.Equal(t, types.MethodOCR, res.Method)
	assert.True(t, res.OCRAvailable)
	assert.Equal(t, "Proprietário: ACME LTDA\nPlaca: ABC1234\nPlaca: XYZ9876", res.Text)
	assert.Equal(t, 3, res.DroppedTokens)
	assert.Equal(t, "page-1.png", engine.calls[0])
	assert.Equal(t, "page-10.png", engine.calls[9])
	assert.Equal(t, 2, res.Pages[0].DroppedTokens)
}

func TestAcquireWithoutOCRReturnsEmptyText(t *testing.T) {
	src := &stubSource{name: types.MethodTextLayer, pages: []string{" \n "}}
	p := newProcessor(t, ocr.Static{}, stubRasterizer{pages: 1}, src)

	res, err := p.Acquire(context.Background(), []byte("%PDF"), types.AcquisitionOptions{})
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.Equal(t, types.MethodNone, res.Method)
	assert.False(t, res.OCRAvailable)
}

func TestAcquireRasterFailureDegradesToEmpty(t *testing.T) {
	src := &stubSource{name: types.MethodTextLayer, err: errors.New("open pdf: malformed")}
	p := newProcessor(t, ocr.Static{E: &stubEngine{}}, stubRasterizer{err: errors.New("pdftoppm failed")}, src)

	res, err := p.Acquire(context.Background(), []byte("not really a pdf"), types.AcquisitionOptions{})
	require.NoError(t, err)
	assert.True(t, res.Empty())
	assert.True(t, res.OCRAvailable)
	assert.Len(t, res.Warnings, 2)
}

func TestAcquireRemovesTempCopy(t *testing.T) {
	src := &stubSource{name: types.MethodTextLayer, pages: []string{"texto"}}
	p := newProcessor(t, ocr.Static{}, stubRasterizer{}, src)

	_, err := p.Acquire(context.Background(), []byte("%PDF"), types.AcquisitionOptions{})
	require.NoError(t, err)

	assert.True(t, src.present, "source should see the temp copy while running")
	_, statErr := os.Stat(src.seen)
	assert.True(t, os.IsNotExist(statErr), "temp copy should be removed after Acquire")
}

func TestAcquireUsesUniqueTempPaths(t *testing.T) {
	a := &stubSource{name: types.MethodTextLayer, pages: []string{"a"}}
	b := &stubSource{name: types.MethodTextLayer, pages: []string{"b"}}

	_, err := newProcessor(t, ocr.Static{}, stubRasterizer{}, a).Acquire(context.Background(), []byte("%PDF"), types.AcquisitionOptions{})
	require.NoError(t, err)
	_, err = newProcessor(t, ocr.Static{}, stubRasterizer{}, b).Acquire(context.Background(), []byte("%PDF"), types.AcquisitionOptions{})
	require.NoError(t, err)

	assert.NotEqual(t, a.seen, b.seen)
}

func TestCleanTextNormalisesAccentsAndWhitespace(t *testing.T) {
	// "Descrição" written with combining marks, NBSP and CRLF
	in := "Descric\u0327a\u0303o do\u00a0  Item\r\n\r\n\r\n\r\n\r\nPlaca:\u200b ABC1234  \f"
	out := cleanText(in)
	assert.Equal(t, "Descri\u00e7\u00e3o do Item\n\n\nPlaca: ABC1234", out)
}

func TestGoPDFSourceRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.pdf")
	require.NoError(t, os.WriteFile(path, []byte("this is not a pdf"), 0o600))

	_, err := GoPDFSource{}.Pages(context.Background(), path)
	assert.Error(t, err)
}
