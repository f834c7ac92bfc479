package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Provider hands out the OCR engine. Implementations may initialise lazily;
// ErrUnavailable means the OCR tier must be skipped.
type Provider interface {
	Engine(ctx context.Context) (Engine, error)
}

// Static is a Provider around an already constructed engine. A nil engine
// reports ErrUnavailable.
type Static struct {
	E Engine
}

func (s Static) Engine(context.Context) (Engine, error) {
	if s.E == nil {
		return nil, ErrUnavailable
	}
	return s.E, nil
}

// LazyTesseract probes the tesseract binary and its language data on first
// use and caches the outcome for the life of the process.
type LazyTesseract struct {
	cfg           TesseractConfig
	runner        Runner
	logger        *zap.Logger
	maxConcurrent int64

	once   sync.Once
	engine Engine
	err    error
}

func NewLazyTesseract(cfg TesseractConfig, maxConcurrent int64, runner Runner, logger *zap.Logger) *LazyTesseract {
	if logger == nil {
		logger = zap.NewNop()
	}
	if runner == nil {
		runner = NewExecRunner(logger)
	}
	return &LazyTesseract{
		cfg:           cfg.withDefaults(),
		runner:        runner,
		logger:        logger,
		maxConcurrent: maxConcurrent,
	}
}

func (p *LazyTesseract) Engine(ctx context.Context) (Engine, error) {
	p.once.Do(func() {
		p.engine, p.err = p.init(ctx)
		if p.err != nil {
			p.logger.Warn("ocr disabled", zap.Error(p.err))
			return
		}
		p.logger.Info("ocr ready",
			zap.String("engine", p.engine.Name()),
			zap.String("languages", p.cfg.Languages),
			zap.Float64("min_confidence", p.cfg.MinConfidence),
		)
	})
	return p.engine, p.err
}

func (p *LazyTesseract) init(ctx context.Context) (Engine, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	stdout, stderr, err := p.runner.Run(ctx, p.cfg.Binary, "--list-langs")
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, p.cfg.Binary, err)
	}

	// Older releases print the list on stderr.
	installed := parseLangList(string(stdout) + "\n" + string(stderr))

	wanted := strings.Split(p.cfg.Languages, "+")
	var usable []string
	for i, lang := range wanted {
		lang = strings.TrimSpace(lang)
		if lang == "" {
			continue
		}
		if installed[lang] {
			usable = append(usable, lang)
			continue
		}
		if i == 0 {
			return nil, fmt.Errorf("%w: language %q not installed", ErrUnavailable, lang)
		}
		p.logger.Warn("secondary ocr language not installed, skipping", zap.String("lang", lang))
	}

	cfg := p.cfg
	cfg.Languages = strings.Join(usable, "+")

	var engine Engine = NewTesseract(cfg, p.runner)
	if p.maxConcurrent > 0 {
		engine = WithConcurrencyLimit(engine, p.maxConcurrent)
	}
	return engine, nil
}

func parseLangList(out string) map[string]bool {
	langs := make(map[string]bool)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.Contains(line, " ") || strings.HasSuffix(line, ":") {
			continue
		}
		langs[line] = true
	}
	return langs
}
