package service

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/jpeg" // jpg uploads decode through image.Decode
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"anuj-bot/internal/llm"
)

// ErrNoTextInImage means OCR found nothing worth solving.
var ErrNoTextInImage = fmt.Errorf("no readable text found in image")

const solverSystemPrompt = "You are Anuj, a friendly study helper. Solve the problem in the text below step by step, in short lines. Keep the whole solution under 12 lines."

// DoubtSolver reads a question out of a photo, solves it with the LLM
// and hands back both the text answer and an annotated copy of the
// image with the solution written onto it.
type DoubtSolver struct {
	ocr OCR
	llm llm.Client
	log *zap.Logger
}

func NewDoubtSolver(ocr OCR, client llm.Client, log *zap.Logger) *DoubtSolver {
	return &DoubtSolver{ocr: ocr, llm: client, log: log}
}

// Solve returns the solution text and the path of the annotated image.
// The annotated path is empty when compositing fails; the caller still
// has the text answer in that case.
func (s *DoubtSolver) Solve(ctx context.Context, imagePath string) (string, string, error) {
	extracted, err := s.ocr.ExtractText(ctx, imagePath)
	if err != nil {
		return "", "", fmt.Errorf("ocr: %w", err)
	}
	if strings.TrimSpace(extracted) == "" {
		return "", "", ErrNoTextInImage
	}

	solution, err := s.llm.Complete(ctx, solverSystemPrompt, extracted)
	if err != nil {
		return "", "", fmt.Errorf("solve: %w", err)
	}

	annotated, err := annotateImage(imagePath, solution)
	if err != nil {
		s.log.Warn("image annotation failed", zap.String("image", imagePath), zap.Error(err))
		annotated = ""
	}
	return solution, annotated, nil
}

// annotateImage writes the solution in red on a white strip appended
// below the original image and saves the result as PNG.
func annotateImage(imagePath, solution string) (string, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return "", err
	}
	src, _, err := image.Decode(f)
	f.Close()
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	face := basicfont.Face7x13
	lineHeight := face.Metrics().Height.Ceil() + 4
	bounds := src.Bounds()
	maxChars := bounds.Dx() / 7
	if maxChars < 20 {
		maxChars = 20
	}
	lines := wrapLines(solution, maxChars)

	stripHeight := lineHeight*len(lines) + 20
	out := image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()+stripHeight))
	draw.Draw(out, out.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(out, bounds.Sub(bounds.Min), src, bounds.Min, draw.Src)

	drawer := &font.Drawer{
		Dst:  out,
		Src:  image.NewUniform(color.RGBA{R: 200, A: 255}),
		Face: face,
	}
	y := bounds.Dy() + lineHeight
	for _, line := range lines {
		drawer.Dot = fixed.P(10, y)
		drawer.DrawString(line)
		y += lineHeight
	}

	ext := filepath.Ext(imagePath)
	outPath := strings.TrimSuffix(imagePath, ext) + "_solved.png"
	dst, err := os.Create(outPath)
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if err := png.Encode(dst, out); err != nil {
		os.Remove(outPath)
		return "", fmt.Errorf("encode annotated image: %w", err)
	}
	return outPath, nil
}

// wrapLines breaks text into lines of at most width characters,
// preserving existing newlines.
func wrapLines(text string, width int) []string {
	var lines []string
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimRight(raw, " ")
		if raw == "" {
			lines = append(lines, "")
			continue
		}
		words := strings.Fields(raw)
		current := ""
		for _, word := range words {
			if current == "" {
				current = word
				continue
			}
			if len(current)+1+len(word) > width {
				lines = append(lines, current)
				current = word
				continue
			}
			current += " " + word
		}
		if current != "" {
			lines = append(lines, current)
		}
	}
	return lines
}
