// Package tesseract recognizes plate text locally with the Tesseract engine.
package tesseract

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"os"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
)

// plateWhitelist restricts recognition to characters found on plates.
const plateWhitelist = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789- "

// Engine runs Tesseract through gosseract on preprocessed images.
type Engine struct {
	language string
	logger   *slog.Logger
}

// New returns an Engine for the given Tesseract language code (e.g. "eng").
func New(language string, logger *slog.Logger) *Engine {
	if language == "" {
		language = "eng"
	}
	return &Engine{language: language, logger: logger}
}

// Recognize preprocesses the image and runs a global-threshold pass; when that
// yields nothing it retries on an adaptive-threshold rendition.
func (e *Engine) Recognize(ctx context.Context, path string) (string, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	gray := prepare(img)

	passes := []struct {
		name string
		img  image.Image
	}{
		{"binary", binarize(gray, 140)},
		{"adaptive", adaptiveThreshold(gray, 25, 10)},
	}
	for _, p := range passes {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		text, err := e.run(p.img)
		if err != nil {
			return "", err
		}
		text = cleanPlate(text)
		e.logger.Debug("tesseract pass", "pass", p.name, "file", path, "text", text)
		if text != "" {
			return text, nil
		}
	}
	return "", nil
}

func (e *Engine) run(img image.Image) (string, error) {
	tmpFile, err := os.CreateTemp("", "plate-*.png")
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	tmp := tmpFile.Name()
	_ = tmpFile.Close()
	defer os.Remove(tmp)
	if err := imaging.Save(img, tmp); err != nil {
		return "", fmt.Errorf("save temp image: %w", err)
	}

	client := gosseract.NewClient()
	defer client.Close()
	if err := client.SetLanguage(e.language); err != nil {
		return "", fmt.Errorf("tesseract language: %w", err)
	}
	_ = client.SetWhitelist(plateWhitelist)
	_ = client.SetPageSegMode(gosseract.PSM_SINGLE_LINE)
	if err := client.SetImage(tmp); err != nil {
		return "", fmt.Errorf("tesseract image: %w", err)
	}
	text, err := client.Text()
	if err != nil {
		return "", fmt.Errorf("ocr error: %w", err)
	}
	return text, nil
}

// cleanPlate upper-cases the text, collapses whitespace and drops stray
// punctuation at the edges.
func cleanPlate(t string) string {
	t = strings.ToUpper(strings.Join(strings.Fields(t), " "))
	return strings.Trim(t, "-. ")
}
