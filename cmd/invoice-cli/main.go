// invoice-cli processes a single invoice file from the command line and
// prints the extraction result as JSON. Useful for smoke tests without
// the HTTP daemon.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"

	"github.com/facturai/invoice-engine/constants"
	"github.com/facturai/invoice-engine/internal/common"
	"github.com/facturai/invoice-engine/internal/extract"
	"github.com/facturai/invoice-engine/internal/extract/llama"
	"github.com/facturai/invoice-engine/internal/extract/ocrlocal"
	"github.com/facturai/invoice-engine/internal/extract/openai"
	"github.com/facturai/invoice-engine/internal/metrics"
	"github.com/facturai/invoice-engine/internal/ocr"
	"github.com/facturai/invoice-engine/internal/orchestrator"
	"github.com/facturai/invoice-engine/internal/rubro"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		logger.Error("usage: invoice-cli <file> [provider]")
		os.Exit(2)
	}
	path := os.Args[1]
	preferred := ""
	if len(os.Args) >= 3 {
		preferred = os.Args[2]
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Error("read file", "path", path, "error", err)
		os.Exit(1)
	}
	ext := constants.NormalizeExt(filepath.Ext(path))
	if constants.MapExtToFormat(ext) == "" {
		logger.Error("unsupported file extension", "ext", ext)
		os.Exit(2)
	}

	cfg := common.LoadConfig()

	ocrx := ocr.NewExtractor(ocr.Config{
		Pdftotext:     cfg.OCR.Pdftotext,
		Pdftoppm:      cfg.OCR.Pdftoppm,
		Tesseract:     cfg.OCR.Tesseract,
		TesseractLang: cfg.OCR.TesseractLang,
		TessdataDir:   cfg.OCR.TessdataDir,
		DPI:           cfg.OCR.DPI,
		MaxPages:      cfg.OCR.MaxPages,
	}, logger)

	registry := extract.NewRegistry(
		llama.New(llama.Config{
			APIKey:       cfg.Llama.APIKey,
			BaseURL:      cfg.Llama.BaseURL,
			AgentName:    cfg.Llama.AgentName,
			PollInterval: cfg.Llama.PollInterval,
			Timeout:      cfg.Llama.Timeout,
		}, logger),
		openai.New(openai.Config{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.BaseURL,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.OpenAI.Temperature,
			Timeout:     cfg.OpenAI.Timeout,
		}, ocrx, logger),
		ocrlocal.New(ocrx, logger),
	)

	var normalizer orchestrator.Normalizer
	if cfg.Rubro.NomenclatorPath != "" {
		n, err := rubro.Load(cfg.Rubro.NomenclatorPath, logger)
		if err != nil {
			logger.Error("load rubro nomenclator", "error", err)
			os.Exit(1)
		}
		normalizer = n
	}

	collector := metrics.NewCollector(nil, cfg.Metrics.RecentLimit)
	orch := orchestrator.New(registry, collector, normalizer, cfg.Server.AttemptTimeout, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	doc := extract.Document{
		Bytes:    data,
		Filename: filepath.Base(path),
		Format:   constants.MapExtToFormat(ext),
	}
	res, err := orch.Process(ctx, doc, preferred)
	if err != nil {
		logger.Error("processing failed", "error", err)
		os.Exit(1)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		logger.Error("encode result", "error", err)
		os.Exit(1)
	}
}
