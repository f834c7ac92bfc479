package ocr

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrUnavailable is returned by providers when no OCR backend can be used on
// this host. Callers treat it as "skip the OCR tier", not as a failure.
var ErrUnavailable = errors.New("ocr backend unavailable")

// Token is one recognised word with its confidence in 0..1.
type Token struct {
	Text       string
	Confidence float64
	Block      int
	Paragraph  int
	Line       int
}

// Page is the OCR output for one rasterised page.
type Page struct {
	Text    string
	Kept    int
	Dropped int
}

// Engine recognises text on a single page image.
type Engine interface {
	Recognize(ctx context.Context, imagePath string) (Page, error)
	Name() string
}

// Runner lets us stub external commands in tests.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

type execRunner struct {
	logger *zap.Logger
}

// NewExecRunner returns a Runner backed by os/exec that logs every invocation.
func NewExecRunner(logger *zap.Logger) Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return execRunner{logger: logger}
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	var out, errb bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &errb

	err := cmd.Run()
	dur := time.Since(start)

	if err != nil {
		r.logger.Warn("exec failed",
			zap.String("cmd", name),
			zap.String("args", strings.Join(args, " ")),
			zap.Int64("duration_ms", dur.Milliseconds()),
			zap.Error(err),
			zap.String("stderr", truncate(errb.String(), 8<<10)),
		)
	} else {
		r.logger.Debug("exec ok",
			zap.String("cmd", name),
			zap.Int64("duration_ms", dur.Milliseconds()),
			zap.Int("stdout_bytes", out.Len()),
		)
	}

	return out.Bytes(), errb.Bytes(), err
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}
