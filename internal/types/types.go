package types

// Acquisition methods reported in AcquisitionResult.Method and PageExtractionResult.Method.
const (
	MethodTextLayer = "text-layer"
	MethodPdftotext = "pdftotext"
	MethodOCR       = "ocr"
	MethodNone      = "none"
)

// AcquisitionOptions tunes a single acquisition. Zero values are replaced by
// Processor defaults.
type AcquisitionOptions struct {
	PageSeparator string
	DisableOCR    bool
}

type PageExtractionResult struct {
	PageNumber    int    `json:"pageNumber"`
	Text          string `json:"text"`
	Method        string `json:"method"`
	WordCount     int    `json:"wordCount"`
	DroppedTokens int    `json:"droppedTokens,omitempty"`
}

// AcquisitionResult is the outcome of turning PDF bytes into plain text.
// An empty Text with a nil error means every tier came back empty.
type AcquisitionResult struct {
	Text          string                 `json:"text"`
	Method        string                 `json:"method"`
	TotalPages    int                    `json:"totalPages"`
	Pages         []PageExtractionResult `json:"pages,omitempty"`
	OCRAvailable  bool                   `json:"ocrAvailable"`
	DroppedTokens int                    `json:"droppedTokens"`
	Warnings      []string               `json:"warnings,omitempty"`
}

// Empty reports whether the acquisition produced no usable text.
func (r AcquisitionResult) Empty() bool {
	for _, c := range r.Text {
		if c != ' ' && c != '\n' && c != '\t' && c != '\r' && c != '\f' {
			return false
		}
	}
	return true
}
