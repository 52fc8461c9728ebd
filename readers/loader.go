package readers

import (
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/gamma-omg/legal-rag/ragerr"
)

type Page struct {
	Document string
	Index    int
	Text     string
}

type Document struct {
	Source string
	Path   string
	Pages  []Page
}

type FileReader interface {
	CanRead(path string) bool
	ReadPages(path string) ([]string, error)
}

// Loader turns one or many sources into documents. A source is either a file
// or a directory walked recursively; a single file and a directory holding
// only that file load identically.
type Loader struct {
	log     *slog.Logger
	readers []FileReader
}

func NewLoader(log *slog.Logger, readers ...FileReader) *Loader {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if len(readers) == 0 {
		readers = []FileReader{&TxtFileReader{}, &PdfFileReader{}, &UniversalFileReader{}}
	}

	return &Loader{log: log, readers: readers}
}

func (l *Loader) Load(sources ...string) ([]Document, error) {
	files, err := l.collectFiles(sources)
	if err != nil {
		return nil, err
	}

	docs := make([]Document, 0, len(files))
	for _, f := range files {
		raw, err := f.reader.ReadPages(f.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read document %s: %w", f.name, err)
		}

		doc := Document{
			Source: f.name,
			Path:   f.path,
			Pages:  make([]Page, 0, len(raw)),
		}
		for i, text := range raw {
			doc.Pages = append(doc.Pages, Page{
				Document: f.name,
				Index:    i,
				Text:     normalize(text),
			})
		}

		l.log.Debug("loaded document", "file", f.name, "pages", len(doc.Pages))
		docs = append(docs, doc)
	}

	return docs, nil
}

// Fingerprint hashes names and raw bytes of every readable source file. It is
// cheap next to text extraction and changes whenever the corpus does.
func (l *Loader) Fingerprint(sources ...string) (uint32, error) {
	files, err := l.collectFiles(sources)
	if err != nil {
		return 0, err
	}

	h := crc32.NewIEEE()
	for _, f := range files {
		buf, err := os.ReadFile(f.path)
		if err != nil {
			return 0, fmt.Errorf("failed to fingerprint %s: %w", f.name, err)
		}

		h.Write([]byte(f.name))
		h.Write([]byte{0})
		h.Write(buf)
	}

	return h.Sum32(), nil
}

type sourceFile struct {
	name   string
	path   string
	reader FileReader
}

func (l *Loader) collectFiles(sources []string) ([]sourceFile, error) {
	var files []sourceFile
	seen := make(map[string]struct{})

	add := func(name, path string) {
		reader, ok := l.findReader(path)
		if !ok {
			l.log.Warn(fmt.Sprintf("unsupported file: %s", path))
			return
		}
		if _, dup := seen[name]; dup {
			l.log.Warn(fmt.Sprintf("duplicate document name skipped: %s", path))
			return
		}

		seen[name] = struct{}{}
		files = append(files, sourceFile{name: name, path: path, reader: reader})
	}

	for _, src := range sources {
		info, err := os.Stat(src)
		if err != nil {
			return nil, fmt.Errorf("%w: document source %s: %v", ragerr.ErrConfiguration, src, err)
		}

		if !info.IsDir() {
			add(filepath.Base(src), src)
			continue
		}

		err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != src && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}

			rel, err := filepath.Rel(src, path)
			if err != nil {
				return err
			}

			add(filepath.ToSlash(rel), path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", src, err)
		}
	}

	return files, nil
}

func (l *Loader) findReader(path string) (FileReader, bool) {
	for _, r := range l.readers {
		if r.CanRead(path) {
			return r, true
		}
	}

	return nil, false
}

func normalize(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\x00", "")
	return strings.TrimSpace(text)
}
