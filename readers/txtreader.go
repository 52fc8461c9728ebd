package readers

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// TxtFileReader reads plain text and markdown. Form feeds split pages, so text
// exported from a paginated source keeps its page numbers.
type TxtFileReader struct{}

func (r *TxtFileReader) CanRead(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txt", ".md":
		return true
	}

	return false
}

func (r *TxtFileReader) ReadPages(path string) ([]string, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}

	buf = bytes.TrimPrefix(buf, utf8BOM)
	buf = bytes.ReplaceAll(buf, []byte("\r\n"), []byte("\n"))
	return splitPages(string(buf)), nil
}
