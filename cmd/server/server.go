package main

import (
	"context"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/toricodesthings/policy-extraction-service/internal/config"
	"github.com/toricodesthings/policy-extraction-service/internal/convert"
	"github.com/toricodesthings/policy-extraction-service/internal/metrics"
)

const (
	version = "1.0.0"

	// multipart framing allowance on top of MaxUploadBytes
	multipartOverhead = 1 << 20
	maxFormMemory     = 32 << 20
	uploadField       = "file"
)

type server struct {
	cfg      config.Config
	conv     *convert.Converter
	metrics  *metrics.Recorder
	gatherer prometheus.Gatherer
	logger   *zap.Logger

	requestSem *semaphore.Weighted
	limiters   sync.Map // client ip -> *clientLimiter

	active atomic.Int64
	total  atomic.Int64
}

func newServer(cfg config.Config, conv *convert.Converter, rec *metrics.Recorder, gatherer prometheus.Gatherer, logger *zap.Logger) *server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	maxReq := cfg.MaxConcurrentRequests
	if maxReq <= 0 {
		maxReq = 1
	}
	return &server{
		cfg:        cfg,
		conv:       conv,
		metrics:    rec,
		gatherer:   gatherer,
		logger:     logger,
		requestSem: semaphore.NewWeighted(maxReq),
	}
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", s.handleHome)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/upload",
		s.withRateLimit(
			withMethod(http.MethodPost,
				s.withConcurrencyLimit(s.handleUpload))))

	return s.withLogging(s.withRecovery(mux))
}

// cleanupRateLimiters logs process stats and drops per-IP limiters unused for
// a whole CLEANUP_INTERVAL, until ctx is done.
func (s *server) cleanupRateLimiters(ctx context.Context) {
	interval := s.cfg.CleanupInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		evicted := s.evictIdleLimiters(time.Now(), interval)

		var m runtime.MemStats
		runtime.ReadMemStats(&m)
		s.logger.Info("stats",
			zap.Int64("active", s.active.Load()),
			zap.Int64("total", s.total.Load()),
			zap.Int("goroutines", runtime.NumGoroutine()),
			zap.Uint64("mem_mb", m.Alloc/(1<<20)),
			zap.Int("limiters_evicted", evicted),
		)
	}
}

// ---------- Handlers ----------

func (s *server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeErr(w, http.StatusNotFound, "not_found", "Rota não encontrada")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("API está funcionando!"))
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := s.active.Load()
	status := "healthy"
	code := http.StatusOK

	if s.cfg.MaxConcurrentRequests > 0 && active >= s.cfg.MaxConcurrentRequests {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	writeJSON(w, code, map[string]any{
		"status":  status,
		"active":  active,
		"total":   s.total.Load(),
		"version": version,
	})
}

type uploadResponse struct {
	Message   string   `json:"message"`
	ExcelPath string   `json:"excel_path"`
	Vehicles  int      `json:"vehicles"`
	Warnings  []string `json:"warnings"`
	RequestID string   `json:"request_id"`
	Method    string   `json:"method"`
}

func (s *server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes+multipartOverhead)
	if err := r.ParseMultipartForm(maxFormMemory); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeErr(w, http.StatusBadRequest, "too_large", convert.ErrTooLarge.Error())
			return
		}
		writeErr(w, http.StatusBadRequest, "no_file", "Nenhum arquivo enviado")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	file, header, err := r.FormFile(uploadField)
	if err != nil {
		// a part named "file" without a filename is parsed as a plain value
		if _, ok := r.MultipartForm.Value[uploadField]; ok {
			writeErr(w, http.StatusBadRequest, "empty_filename", "Nome do arquivo vazio")
			return
		}
		writeErr(w, http.StatusBadRequest, "no_file", "Nenhum arquivo enviado")
		return
	}
	defer file.Close()

	if strings.TrimSpace(header.Filename) == "" {
		writeErr(w, http.StatusBadRequest, "empty_filename", "Nome do arquivo vazio")
		return
	}

	data, err := convert.ReadLimited(file, s.cfg.MaxUploadBytes)
	if err != nil {
		if errors.Is(err, convert.ErrTooLarge) {
			writeErr(w, http.StatusBadRequest, "too_large", sanitizeError(err))
			return
		}
		writeErr(w, http.StatusBadRequest, "bad_request", sanitizeError(err))
		return
	}

	reqID := uuid.NewString()
	w.Header().Set("X-Request-ID", reqID)

	// the conversion is allowed to finish when the client goes away so the
	// workbook still lands in the output dir
	ctx := convert.WithRequestID(context.WithoutCancel(r.Context()), reqID)

	s.logger.Info("upload received",
		zap.String("request_id", reqID),
		zap.String("filename", sanitizeLogString(header.Filename)),
		zap.Int("bytes", len(data)),
	)

	out, err := s.conv.Convert(ctx, data)
	switch {
	case errors.Is(err, convert.ErrNotPDF):
		writeErr(w, http.StatusBadRequest, "not_pdf", err.Error())
		return
	case errors.Is(err, convert.ErrNoText):
		writeErr(w, http.StatusUnprocessableEntity, "no_text", err.Error())
		return
	case err != nil:
		writeErr(w, http.StatusInternalServerError, "processing_failed", sanitizeError(err))
		return
	}

	path, err := convert.WriteOutput(s.cfg.OutputDir, out)
	if err != nil {
		s.logger.Error("write workbook", zap.String("request_id", reqID), zap.Error(err))
		writeErr(w, http.StatusInternalServerError, "write_failed", sanitizeError(err))
		return
	}

	warnings := out.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	writeJSON(w, http.StatusOK, uploadResponse{
		Message:   "Arquivo processado com sucesso",
		ExcelPath: path,
		Vehicles:  len(out.Document.Vehicles),
		Warnings:  warnings,
		RequestID: reqID,
		Method:    out.Acquisition.Method,
	})
}
