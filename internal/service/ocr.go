package service

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// OCR extracts text from an image on disk.
type OCR interface {
	ExtractText(ctx context.Context, imagePath string) (string, error)
}

// TesseractOCR shells out to the tesseract binary.
type TesseractOCR struct {
	Binary string
}

func NewTesseractOCR(binary string) *TesseractOCR {
	if binary == "" {
		binary = "tesseract"
	}
	return &TesseractOCR{Binary: binary}
}

func (t *TesseractOCR) ExtractText(ctx context.Context, imagePath string) (string, error) {
	cmd := exec.CommandContext(ctx, t.Binary, imagePath, "stdout")
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tesseract: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(out.String()), nil
}
