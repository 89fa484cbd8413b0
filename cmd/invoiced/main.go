// invoiced is the HTTP daemon: extraction orchestration, validation,
// metrics, and exports behind a REST API.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/facturai/invoice-engine/internal/common"
	"github.com/facturai/invoice-engine/internal/export"
	"github.com/facturai/invoice-engine/internal/extract"
	"github.com/facturai/invoice-engine/internal/extract/llama"
	"github.com/facturai/invoice-engine/internal/extract/ocrlocal"
	"github.com/facturai/invoice-engine/internal/extract/openai"
	"github.com/facturai/invoice-engine/internal/metrics"
	"github.com/facturai/invoice-engine/internal/ocr"
	"github.com/facturai/invoice-engine/internal/orchestrator"
	"github.com/facturai/invoice-engine/internal/rubro"
	"github.com/facturai/invoice-engine/internal/server"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig()
	if err := cfg.Validate(); err != nil {
		logger.Error("config invalid", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

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
	logger.Info("backends registered",
		"registered", registry.Names(),
		"available", registry.Available(),
	)

	promReg := prometheus.NewRegistry()
	collector := metrics.NewCollector(promReg, cfg.Metrics.RecentLimit)

	if cfg.Metrics.ArchiveDSN != "" {
		archive, err := metrics.OpenArchive(ctx, cfg.Metrics.ArchiveDSN, logger)
		if err != nil {
			logger.Error("open metrics archive", "error", err)
			os.Exit(1)
		}
		defer func() {
			if cerr := archive.Close(); cerr != nil {
				logger.Error("close metrics archive", "error", cerr)
			}
		}()
		go archive.Run(ctx, collector, cfg.Metrics.ArchiveInterval)
	}

	var normalizer orchestrator.Normalizer
	if cfg.Rubro.NomenclatorPath != "" {
		n, err := rubro.Load(cfg.Rubro.NomenclatorPath, logger)
		if err != nil {
			logger.Error("load rubro nomenclator", "error", err)
			os.Exit(1)
		}
		normalizer = n
	}

	orch := orchestrator.New(registry, collector, normalizer, cfg.Server.AttemptTimeout, logger)
	srv := server.New(orch, registry, collector, export.NewService(collector, logger), logger)

	httpServer := &http.Server{
		Addr:              cfg.Server.HTTPAddr,
		Handler:           srv.Router(promReg),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("http serving", "addr", cfg.Server.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "error", err)
	}
	logger.Info("stopped")
}
