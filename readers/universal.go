package readers

import (
	"fmt"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv/v2"
)

// UniversalFileReader handles office formats through docconv. These formats
// carry no page breaks, so each document comes back as one page. PDFs go
// through PdfFileReader.
type UniversalFileReader struct {
}

func (r *UniversalFileReader) CanRead(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx", ".odt", ".xml", ".rtf":
		return true
	}

	return false
}

func (r *UniversalFileReader) ReadPages(path string) ([]string, error) {
	res, err := docconv.ConvertPath(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	return splitPages(res.Body), nil
}
