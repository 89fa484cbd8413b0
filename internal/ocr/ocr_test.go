package ocr

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubRunner fakes the external binaries. For pdftoppm it materializes
// page images so the glob in pdfToOCR finds something.
type stubRunner struct {
	pdftotextOut string
	pdftotextErr error
	tesseractOut string
}

func (s *stubRunner) Run(_ context.Context, name string, args ...string) ([]byte, []byte, error) {
	switch {
	case strings.Contains(name, "pdftotext"):
		return []byte(s.pdftotextOut), nil, s.pdftotextErr
	case strings.Contains(name, "pdftoppm"):
		prefix := args[len(args)-1]
		if err := os.WriteFile(prefix+"-1.png", []byte("png"), 0o600); err != nil {
			return nil, nil, err
		}
		return nil, nil, nil
	case strings.Contains(name, "tesseract"):
		return []byte(s.tesseractOut), nil, nil
	}
	return nil, nil, nil
}

func writeTempDoc(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte("dummy"), 0o600))
	return path
}

func TestExtractUsesPDFTextLayer(t *testing.T) {
	text := "FACTURA\nACME SA\nRUT: 12.345.678-9\nSUBTOTAL $1000\nIVA $190\nTOTAL $1190\n"
	e := NewExtractor(Config{}, nil)
	e.runner = &stubRunner{pdftotextOut: text}

	res, err := e.Extract(context.Background(), writeTempDoc(t, "inv.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "pdf-text", res.Method)
	assert.Contains(t, res.Text, "RUT: 12.345.678-9")
	assert.Greater(t, res.Confidence, float32(0.5))
}

func TestExtractFallsBackToOCRForScannedPDF(t *testing.T) {
	e := NewExtractor(Config{}, nil)
	e.runner = &stubRunner{pdftotextOut: "  \n ", tesseractOut: "TOTAL $500"}

	res, err := e.Extract(context.Background(), writeTempDoc(t, "scan.pdf"))
	require.NoError(t, err)
	assert.Equal(t, "pdf-ocr", res.Method)
	assert.Equal(t, 1, res.Pages)
	assert.Contains(t, res.Text, "TOTAL $500")
}

func TestExtractImage(t *testing.T) {
	e := NewExtractor(Config{}, nil)
	e.runner = &stubRunner{tesseractOut: "IVA $19\nTOTAL $119"}

	res, err := e.Extract(context.Background(), writeTempDoc(t, "photo.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "image-ocr", res.Method)
	assert.Equal(t, 1, res.Pages)
}

func TestExtractBytesRejectsUnknownExtension(t *testing.T) {
	e := NewExtractor(Config{}, nil)
	_, err := e.ExtractBytes(context.Background(), []byte("x"), "doc.docx")
	assert.Error(t, err)
}

func TestNormalizeCollapsesNoise(t *testing.T) {
	in := "a\r\n\r\n\r\n\r\nb\t\tc   d  \n----\ne"
	out := Normalize(in)
	assert.NotContains(t, out, "\r")
	assert.NotContains(t, out, "\n\n\n")
	assert.Contains(t, out, "b c d")
}
