package convert

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/toricodesthings/policy-extraction-service/internal/config"
	"github.com/toricodesthings/policy-extraction-service/internal/hybrid"
	"github.com/toricodesthings/policy-extraction-service/internal/metrics"
	"github.com/toricodesthings/policy-extraction-service/internal/ocr"
	"github.com/toricodesthings/policy-extraction-service/internal/policy"
)

// FromConfig wires the production pipeline: poppler/ledongthuc text layer,
// lazily probed tesseract OCR and the schema named by SCHEMA_PATH (embedded
// default when unset).
func FromConfig(cfg config.Config, logger *zap.Logger, rec *metrics.Recorder, opts ...Option) (*Converter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	schema, err := policy.Load(cfg.SchemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema: %w", err)
	}

	provider := ocr.NewLazyTesseract(ocr.TesseractConfig{
		Binary:        cfg.TesseractBinary,
		Languages:     cfg.OCRLanguages(),
		MinConfidence: cfg.OCRMinConfidence,
		Timeout:       cfg.TesseractTimeout,
	}, cfg.MaxOCRConcurrent, nil, logger.Named("ocr"))

	proc := hybrid.New(cfg, provider, hybrid.WithLogger(logger.Named("acquire")))

	base := []Option{WithLogger(logger), WithMetrics(rec)}
	return New(proc, policy.NewParser(schema), append(base, opts...)...), nil
}
