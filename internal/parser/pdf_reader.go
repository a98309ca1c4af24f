package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// PDFReader extracts the text layer of municipal statement PDFs using mupdf.
// Council statements are generated documents, so the text layer is reliable
// and no OCR pass is needed.
type PDFReader struct {
	logger *zap.Logger
}

// NewPDFReader creates a new PDF reader.
func NewPDFReader(logger *zap.Logger) *PDFReader {
	return &PDFReader{logger: logger}
}

// ExtractText returns the statement's full text, pages joined in order. Pages
// that fail to render are skipped with a warning; the parser downstream
// tolerates partial text.
func (r *PDFReader) ExtractText(pdfPath string) (string, error) {
	if _, err := os.Stat(pdfPath); os.IsNotExist(err) {
		return "", fmt.Errorf("statement file not found: %s", pdfPath)
	}
	if ext := strings.ToLower(filepath.Ext(pdfPath)); ext != ".pdf" {
		return "", fmt.Errorf("unsupported file type: %s", ext)
	}

	doc, err := fitz.New(pdfPath)
	if err != nil {
		return "", fmt.Errorf("failed to open PDF: %w", err)
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	r.logger.Debug("Extracting statement text", zap.String("path", pdfPath), zap.Int("pages", pageCount))

	var pages []string
	for pageNum := 0; pageNum < pageCount; pageNum++ {
		text, err := doc.Text(pageNum)
		if err != nil {
			r.logger.Warn("Failed to extract page text",
				zap.Int("page", pageNum),
				zap.Error(err))
			continue
		}
		pages = append(pages, text)
	}

	if len(pages) == 0 {
		return "", fmt.Errorf("no text extracted from %s", pdfPath)
	}

	return strings.Join(pages, "\n"), nil
}
