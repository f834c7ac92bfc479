package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Server
	Port      string
	OutputDir string
	LogLevel  string

	// Limits
	MaxUploadBytes int64

	// Concurrency
	MaxConcurrentRequests int64
	MaxOCRConcurrent      int64

	// Server timeouts
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration

	// Poppler / tesseract timeouts
	PDFInfoTimeout   time.Duration
	PDFToTextTimeout time.Duration
	PDFToPPMTimeout  time.Duration
	TesseractTimeout time.Duration

	// rate limiting (per IP)
	RateLimitEvery time.Duration
	RateLimitBurst int

	// housekeeping
	CleanupInterval time.Duration

	// http
	MaxHeaderBytes int
	MaxConnections int

	// OCR
	OCRLang          string
	OCRSecondaryLang string
	OCRDPI           int
	OCRMinConfidence float64
	OCRRasterizer    string

	// External binaries
	PDFInfoBinary   string
	PDFToTextBinary string
	PDFToPPMBinary  string
	TesseractBinary string

	// Optional YAML file replacing the embedded extraction schema
	SchemaPath string
}

const (
	RasterizerPdftoppm = "pdftoppm"
	RasterizerFitz     = "fitz"
)

func Load() Config {
	return Config{
		Port:      envStr("PORT", "8080"),
		OutputDir: envStr("OUTPUT_DIR", "output"),
		LogLevel:  envStr("LOG_LEVEL", "info"),

		MaxUploadBytes: int64(envInt("MAX_UPLOAD_BYTES", int(50<<20))),

		MaxConcurrentRequests: int64(envInt("MAX_CONCURRENT_REQUESTS", 4)),
		MaxOCRConcurrent:      int64(envInt("MAX_OCR_CONCURRENT", 1)),

		ReadHeaderTimeout: envDur("READ_HEADER_TIMEOUT", 10*time.Second),
		ReadTimeout:       envDur("READ_TIMEOUT", 60*time.Second),
		WriteTimeout:      envDur("WRITE_TIMEOUT", 600*time.Second),
		IdleTimeout:       envDur("IDLE_TIMEOUT", 60*time.Second),

		PDFInfoTimeout:   envDur("PDFINFO_TIMEOUT", 5*time.Second),
		PDFToTextTimeout: envDur("PDFTOTEXT_TIMEOUT", 10*time.Second),
		PDFToPPMTimeout:  envDur("PDFTOPPM_TIMEOUT", 120*time.Second),
		TesseractTimeout: envDur("TESSERACT_TIMEOUT", 90*time.Second),

		RateLimitEvery: envDur("RATE_LIMIT_EVERY", 2*time.Second),
		RateLimitBurst: envInt("RATE_LIMIT_BURST", 10),

		CleanupInterval: envDur("CLEANUP_INTERVAL", 5*time.Minute),

		MaxHeaderBytes: envInt("MAX_HEADER_BYTES", 1<<20),
		MaxConnections: envInt("MAX_CONNECTIONS", 256),

		OCRLang:          envStr("OCR_LANG", "por"),
		OCRSecondaryLang: envStrAllowEmpty("OCR_SECONDARY_LANG", "eng"),
		OCRDPI:           envInt("OCR_DPI", 300),
		OCRMinConfidence: envFloat("OCR_MIN_CONFIDENCE", 0.6),
		OCRRasterizer:    strings.ToLower(envStr("OCR_RASTERIZER", RasterizerPdftoppm)),

		PDFInfoBinary:   envStr("PDFINFO_BINARY", "pdfinfo"),
		PDFToTextBinary: envStr("PDFTOTEXT_BINARY", "pdftotext"),
		PDFToPPMBinary:  envStr("PDFTOPPM_BINARY", "pdftoppm"),
		TesseractBinary: envStr("TESSERACT_BINARY", "tesseract"),

		SchemaPath: envStr("SCHEMA_PATH", ""),
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("OUTPUT_DIR must not be empty")
	}
	if c.OCRDPI < 72 || c.OCRDPI > 600 {
		return fmt.Errorf("OCR_DPI must be between 72 and 600, got %d", c.OCRDPI)
	}
	if c.OCRMinConfidence <= 0 || c.OCRMinConfidence > 1 {
		return fmt.Errorf("OCR_MIN_CONFIDENCE must be in (0, 1], got %g", c.OCRMinConfidence)
	}
	switch c.OCRRasterizer {
	case RasterizerPdftoppm, RasterizerFitz:
	default:
		return fmt.Errorf("OCR_RASTERIZER must be %q or %q, got %q", RasterizerPdftoppm, RasterizerFitz, c.OCRRasterizer)
	}
	if strings.TrimSpace(c.OCRLang) == "" {
		return fmt.Errorf("OCR_LANG must not be empty")
	}
	return nil
}

// OCRLanguages returns the tesseract -l argument, e.g. "por+eng".
func (c Config) OCRLanguages() string {
	lang := strings.TrimSpace(c.OCRLang)
	if sec := strings.TrimSpace(c.OCRSecondaryLang); sec != "" && sec != lang {
		return lang + "+" + sec
	}
	return lang
}

func envStr(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// envStrAllowEmpty distinguishes "unset" from "set to empty" so a default
// can be switched off, e.g. OCR_SECONDARY_LANG="".
func envStrAllowEmpty(key, fallback string) string {
	v, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	return strings.TrimSpace(v)
}

func envInt(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}

func envFloat(key string, fallback float64) float64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil || f <= 0 {
		return fallback
	}
	return f
}

func envDur(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
