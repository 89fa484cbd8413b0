// Package ocr turns invoice documents (PDF or image bytes) into plain
// text using external poppler/tesseract binaries. It is pure
// infrastructure: no invoice semantics live here.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/facturai/invoice-engine/constants"
)

type Config struct {
	Pdftotext string // binary name or absolute path; if empty -> "pdftotext"
	Pdftoppm  string // binary name or absolute path; if empty -> "pdftoppm"
	Tesseract string // binary name or absolute path; if empty -> "tesseract"

	TesseractLang string // default "spa"
	TessdataDir   string
	DPI           int // rasterization DPI for scanned PDFs, default 300
	MaxPages      int // 0 = no limit

	EnableTSVConfidence bool
}

type Result struct {
	Text       string
	Pages      int
	SourceType string // constants.PDF | constants.IMAGE
	Method     string // "pdf-text" | "pdf-ocr" | "image-ocr"
	Language   string
	Duration   time.Duration
	Warnings   []string
	Confidence float32
}

type Extractor struct {
	cfg    Config
	runner Runner
	logger *slog.Logger
}

func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	if cfg.Pdftoppm == "" {
		cfg.Pdftoppm = "pdftoppm"
	}
	if cfg.Tesseract == "" {
		cfg.Tesseract = "tesseract"
	}
	if cfg.TesseractLang == "" {
		cfg.TesseractLang = "spa"
	}
	if cfg.DPI <= 0 {
		cfg.DPI = 300
	}
	return &Extractor{cfg: cfg, runner: execRunner{}, logger: logger}
}

// ToolsPresent reports whether the tesseract binary is resolvable,
// without running it. Used as the local backend's availability check.
func (e *Extractor) ToolsPresent() bool {
	_, err := exec.LookPath(e.cfg.Tesseract)
	return err == nil
}

// ExtractBytes stages the document in a temp file and extracts its text.
// The engine receives raw bytes from the API layer, never paths.
func (e *Extractor) ExtractBytes(ctx context.Context, data []byte, filename string) (Result, error) {
	ext := constants.NormalizeExt(filepath.Ext(filename))
	if constants.MapExtToFormat(ext) == "" {
		return Result{}, fmt.Errorf("unsupported extension: %q", ext)
	}

	tmpDir, err := os.MkdirTemp("", "inveng-doc-*")
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if rmErr := os.RemoveAll(tmpDir); rmErr != nil {
			e.logger.Warn("ocr.tmp.cleanup_failed", "dir", tmpDir, "error", rmErr)
		}
	}()

	path := filepath.Join(tmpDir, "doc."+ext)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return Result{}, err
	}
	return e.Extract(ctx, path)
}

// Extract picks a strategy based on file extension.
func (e *Extractor) Extract(ctx context.Context, path string) (Result, error) {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	e.logger.Debug("ocr.extract.start", "path", path, "ext", ext)
	switch constants.MapExtToFormat(ext) {
	case constants.PDF:
		res, err := e.extractPDF(ctx, path)
		res.Duration = time.Since(start)
		return res, err
	case constants.IMAGE:
		res, err := e.extractImage(ctx, path)
		res.Duration = time.Since(start)
		return res, err
	default:
		e.logger.Error("ocr.extract.unsupported_ext", "extension", ext)
		return Result{}, fmt.Errorf("unsupported extension: %q", ext)
	}
}

// extractPDF tries the embedded text layer first and falls back to
// rasterize+OCR when the layer is missing or too thin (scanned PDFs).
func (e *Extractor) extractPDF(ctx context.Context, path string) (Result, error) {
	txt, pages, warns, err := e.pdfToText(ctx, path)
	if err == nil && meaningfulText(txt) {
		return Result{
			Text:       Normalize(txt),
			Pages:      pages,
			SourceType: constants.PDF,
			Method:     "pdf-text",
			Language:   e.cfg.TesseractLang,
			Warnings:   warns,
			Confidence: heuristicConfidence(txt),
		}, nil
	}
	if err != nil {
		warns = append(warns, fmt.Sprintf("pdftotext failed: %v", err))
	} else {
		warns = append(warns, "pdf text layer too thin, falling back to OCR")
	}

	txt, pages, w2, err := e.pdfToOCR(ctx, path)
	warns = append(warns, w2...)
	if err != nil {
		return Result{SourceType: constants.PDF, Warnings: warns}, err
	}
	txt = Normalize(txt)
	return Result{
		Text:       txt,
		Pages:      pages,
		SourceType: constants.PDF,
		Method:     "pdf-ocr",
		Language:   e.cfg.TesseractLang,
		Warnings:   warns,
		Confidence: heuristicConfidence(txt),
	}, nil
}

// meaningfulText filters out PDFs whose text layer is whitespace or a
// handful of stray glyphs.
func meaningfulText(s string) bool {
	n := 0
	for _, r := range s {
		if r > ' ' {
			n++
			if n >= 32 {
				return true
			}
		}
	}
	return false
}
