package convert

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const fallbackName = "apolice_sem_numero.xlsx"

// OutputName is the workbook file name for a policy number. Characters other
// than letters, digits, '-' and '_' are replaced so the number cannot escape
// the output directory.
func OutputName(policyNumber string) string {
	n := strings.TrimSpace(policyNumber)
	if n == "" {
		return fallbackName
	}
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, n)
	if strings.Trim(safe, "_") == "" {
		return fallbackName
	}
	return "apolice_" + safe + ".xlsx"
}

// WriteOutput stores the outcome's workbook under dir and returns its path.
// The file is written to a temp name and renamed, so readers never see a
// partial workbook.
func WriteOutput(dir string, out Outcome) (string, error) {
	if len(out.Workbook) == 0 {
		return "", errors.New("no workbook to write")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("output dir: %w", err)
	}

	final := filepath.Join(dir, OutputName(out.Document.PolicyNumber()))

	tmp, err := os.CreateTemp(dir, ".apolice-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp output: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(out.Workbook); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write output: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("sync output: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close output: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return "", fmt.Errorf("chmod output: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		return "", fmt.Errorf("rename output: %w", err)
	}
	return final, nil
}
