package hybrid

import (
	"context"
	"fmt"

	"github.com/ledongthuc/pdf"

	"github.com/toricodesthings/policy-extraction-service/internal/extractor"
	"github.com/toricodesthings/policy-extraction-service/internal/types"
)

// PageSource reads the native text layer of a PDF, one string per page in
// document order. A page that cannot be read yields "" rather than an error;
// an error means the whole document could not be opened by this source.
type PageSource interface {
	Name() string
	Pages(ctx context.Context, pdfPath string) ([]string, error)
}

// GoPDFSource parses the text layer in-process with ledongthuc/pdf.
type GoPDFSource struct{}

func (GoPDFSource) Name() string { return types.MethodTextLayer }

func (GoPDFSource) Pages(ctx context.Context, pdfPath string) (pages []string, err error) {
	// the parser panics on some malformed xref tables
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("pdf parser panic: %v", r)
		}
	}()

	f, reader, err := pdf.Open(pdfPath)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	n := reader.NumPage()
	if n == 0 {
		return nil, fmt.Errorf("pdf has no pages")
	}

	pages = make([]string, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pages = append(pages, goPDFPageText(reader, i))
	}
	return pages, nil
}

func goPDFPageText(reader *pdf.Reader, num int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
		}
	}()

	page := reader.Page(num)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		return ""
	}
	return text
}

// PopplerSource reads the text layer page by page with pdfinfo + pdftotext.
type PopplerSource struct {
	Cfg extractor.ExtractorConfig
}

func (PopplerSource) Name() string { return types.MethodPdftotext }

func (s PopplerSource) Pages(ctx context.Context, pdfPath string) ([]string, error) {
	total, err := extractor.PageCount(ctx, pdfPath, s.Cfg)
	if err != nil {
		return nil, err
	}

	pages := make([]string, 0, total)
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		text, err := extractor.TextForPage(ctx, pdfPath, i, s.Cfg)
		if err != nil {
			pages = append(pages, "")
			continue
		}
		pages = append(pages, text)
	}
	return pages, nil
}
