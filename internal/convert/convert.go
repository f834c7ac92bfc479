// Package convert runs the whole policy pipeline: PDF bytes in, parsed
// document and xlsx workbook out.
package convert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/toricodesthings/policy-extraction-service/internal/export"
	"github.com/toricodesthings/policy-extraction-service/internal/metrics"
	"github.com/toricodesthings/policy-extraction-service/internal/policy"
	"github.com/toricodesthings/policy-extraction-service/internal/segment"
	"github.com/toricodesthings/policy-extraction-service/internal/types"
)

var (
	// ErrNoText means neither the text layer nor OCR produced any text.
	ErrNoText = errors.New("não foi possível extrair texto do PDF")
	// ErrNotPDF means the input bytes are not a PDF document.
	ErrNotPDF = errors.New("o arquivo enviado não é um PDF")
)

// User-facing warnings attached to a successful conversion.
const (
	WarnNoVehicles     = "nenhum veículo encontrado no documento"
	WarnNoPolicyNumber = "número da apólice não encontrado"
	WarnOCR            = "texto obtido por OCR; confira os valores extraídos"
)

// Acquirer produces plain text from PDF bytes.
type Acquirer interface {
	Acquire(ctx context.Context, data []byte, opts types.AcquisitionOptions) (types.AcquisitionResult, error)
}

// Outcome is everything a conversion produced.
type Outcome struct {
	RequestID   string
	Document    policy.Document
	Workbook    []byte
	Acquisition types.AcquisitionResult
	Strategy    segment.Strategy
	Warnings    []string
	Duration    time.Duration
}

type Converter struct {
	acquirer Acquirer
	parser   *policy.Parser
	metrics  *metrics.Recorder
	logger   *zap.Logger
	acqOpts  types.AcquisitionOptions
}

type Option func(*Converter)

func WithLogger(l *zap.Logger) Option {
	return func(c *Converter) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithMetrics(m *metrics.Recorder) Option {
	return func(c *Converter) { c.metrics = m }
}

// WithAcquisitionOptions sets the options passed to every Acquire call.
func WithAcquisitionOptions(o types.AcquisitionOptions) Option {
	return func(c *Converter) { c.acqOpts = o }
}

func New(acq Acquirer, parser *policy.Parser, opts ...Option) *Converter {
	c := &Converter{
		acquirer: acq,
		parser:   parser,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Converter) Schema() *policy.Schema { return c.parser.Schema() }

type requestIDKey struct{}

// WithRequestID tags ctx so the conversion logs under the caller's id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// Convert runs acquisition, segmentation, parsing and workbook generation.
// Errors are ErrNotPDF, ErrNoText or an infrastructure fault; missing fields
// and zero vehicles are reported as warnings on a successful Outcome.
func (c *Converter) Convert(ctx context.Context, data []byte) (out Outcome, err error) {
	start := time.Now()
	out.RequestID = RequestID(ctx)
	if out.RequestID == "" {
		out.RequestID = uuid.NewString()
	}
	log := c.logger.With(zap.String("request_id", out.RequestID))

	result := metrics.ResultError
	defer func() {
		out.Duration = time.Since(start)
		c.metrics.Conversion(result, out.Duration)
	}()

	if !IsPDF(data) {
		result = metrics.ResultNotPDF
		log.Info("rejected non-pdf input", zap.String("mime", SniffMIME(data)))
		return out, ErrNotPDF
	}

	acq, err := c.acquirer.Acquire(ctx, data, c.acqOpts)
	if err != nil {
		log.Error("text acquisition failed", zap.Error(err))
		return out, fmt.Errorf("acquire text: %w", err)
	}
	out.Acquisition = acq
	c.metrics.Acquisition(acq.Method, acq.DroppedTokens)

	if acq.Empty() {
		result = metrics.ResultNoText
		log.Warn("no text extracted",
			zap.Int("pages", acq.TotalPages),
			zap.Bool("ocr_available", acq.OCRAvailable),
			zap.Strings("acquisition_warnings", acq.Warnings),
		)
		return out, ErrNoText
	}

	spans, strategy := segment.Split(acq.Text)
	out.Strategy = strategy
	out.Document = c.parser.Parse(acq.Text, spans)
	c.metrics.Segmentation(string(strategy), len(spans))

	if acq.Method == types.MethodOCR {
		out.Warnings = append(out.Warnings, WarnOCR)
	}
	if out.Document.PolicyNumber() == "" {
		out.Warnings = append(out.Warnings, WarnNoPolicyNumber)
	}
	if len(out.Document.Vehicles) == 0 {
		out.Warnings = append(out.Warnings, WarnNoVehicles)
	}

	wb, err := export.Bytes(c.parser.Schema(), out.Document)
	if err != nil {
		log.Error("workbook generation failed", zap.Error(err))
		return out, fmt.Errorf("build workbook: %w", err)
	}
	out.Workbook = wb
	result = metrics.ResultOK

	log.Info("policy converted",
		zap.String("method", acq.Method),
		zap.Int("pages", acq.TotalPages),
		zap.String("strategy", string(strategy)),
		zap.Int("vehicles", len(out.Document.Vehicles)),
		zap.String("policy_number", out.Document.PolicyNumber()),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return out, nil
}

// Text runs only the acquisition stage. It fails the same way Convert does
// for non-PDF input and blank documents.
func (c *Converter) Text(ctx context.Context, data []byte) (types.AcquisitionResult, error) {
	if !IsPDF(data) {
		return types.AcquisitionResult{}, ErrNotPDF
	}
	res, err := c.acquirer.Acquire(ctx, data, c.acqOpts)
	if err != nil {
		return res, fmt.Errorf("acquire text: %w", err)
	}
	if res.Empty() {
		return res, ErrNoText
	}
	return res, nil
}
