package convert

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrTooLarge is returned by ReadLimited when the input exceeds the cap.
var ErrTooLarge = errors.New("arquivo excede o tamanho máximo permitido")

const pdfMIME = "application/pdf"

// ReadLimited reads at most maxBytes from r. Larger inputs fail with
// ErrTooLarge instead of being truncated.
func ReadLimited(r io.Reader, maxBytes int64) ([]byte, error) {
	lr := &io.LimitedReader{R: r, N: maxBytes + 1}
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, fmt.Errorf("read: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("%w (%dMB)", ErrTooLarge, maxBytes/(1<<20))
	}
	return data, nil
}

// ReadFile reads a local PDF with the same size cap as uploads.
func ReadFile(path string, maxBytes int64) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadLimited(f, maxBytes)
}

// SniffMIME detects the content type from the leading bytes.
func SniffMIME(data []byte) string {
	m := mimetype.Detect(data)
	if m == nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(m.String()))
}

func IsPDF(data []byte) bool {
	return mimetype.Detect(data).Is(pdfMIME)
}
