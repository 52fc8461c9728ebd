package readers

import (
	"fmt"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv/v2"
)

type PdfFileReader struct {
}

func (r *PdfFileReader) CanRead(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

func (r *PdfFileReader) ReadPages(path string) ([]string, error) {
	res, err := docconv.ConvertPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pdf document: %w", err)
	}

	return splitPages(res.Body), nil
}

// splitPages cuts extracted text at form feeds, which pdftotext emits between
// pages. Text without form feeds is a single page.
func splitPages(body string) []string {
	pages := strings.Split(body, "\f")
	if len(pages) > 1 && strings.TrimSpace(pages[len(pages)-1]) == "" {
		pages = pages[:len(pages)-1]
	}

	return pages
}
