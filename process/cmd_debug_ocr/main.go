package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"platelog/pkg/app"
	"platelog/pkg/config"
)

func main() {
	f := flag.String("file", "", "image file to OCR")
	engine := flag.String("engine", "", "ocrspace or tesseract (default OCR_ENGINE)")
	flag.Parse()
	if *f == "" {
		log.Fatalf("-file required")
	}
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if *engine != "" {
		cfg.OCR.Engine = *engine
	}
	logger := config.NewLogger("debug", os.Stderr)
	text, err := app.NewRecognizer(cfg.OCR, logger).Recognize(context.Background(), *f)
	if err != nil {
		log.Fatalf("ocr error: %v", err)
	}
	fmt.Printf("engine=%s text=%q\n", cfg.OCR.Engine, text)
}
