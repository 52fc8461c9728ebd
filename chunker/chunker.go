// Package chunker splits page text into overlapping passages sized for
// embedding.
package chunker

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/gamma-omg/legal-rag/readers"
	"github.com/gamma-omg/legal-rag/ragerr"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100

	// PageSeparator joins the pages of one document before splitting.
	PageSeparator = "\n\n"
)

// separators are tried in order; raw character cuts come after the last one.
var separators = []string{"\n\n", "\n", " "}

type Passage struct {
	Text string
	// Overlap counts the leading characters repeated from the previous
	// passage of the same document.
	Overlap  int
	Document string
	Page     int
	Index    int
}

// NewText returns the part of the passage not shared with its predecessor.
func (p Passage) NewText() string {
	if p.Overlap == 0 {
		return p.Text
	}

	return string([]rune(p.Text)[p.Overlap:])
}

type Chunker struct {
	chunkSize    int
	chunkOverlap int
}

func New(chunkSize, chunkOverlap int) (*Chunker, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", ragerr.ErrConfiguration, chunkSize)
	}
	if chunkOverlap < 0 {
		return nil, fmt.Errorf("%w: chunk overlap must not be negative, got %d", ragerr.ErrConfiguration, chunkOverlap)
	}
	if chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			ragerr.ErrConfiguration, chunkOverlap, chunkSize)
	}

	return &Chunker{chunkSize: chunkSize, chunkOverlap: chunkOverlap}, nil
}

// Chunk is a one-shot form of New(maxSize, overlap).Chunk(pages).
func Chunk(pages []readers.Page, maxSize, overlap int) ([]Passage, error) {
	c, err := New(maxSize, overlap)
	if err != nil {
		return nil, err
	}

	return c.Chunk(pages), nil
}

// Chunk splits pages into passages. Pages are grouped by document in input
// order; the chunk index restarts at zero for every document.
func (c *Chunker) Chunk(pages []readers.Page) []Passage {
	var res []Passage

	start := 0
	for start < len(pages) {
		end := start + 1
		for end < len(pages) && pages[end].Document == pages[start].Document {
			end++
		}

		res = append(res, c.chunkDocument(pages[start:end])...)
		start = end
	}

	return res
}

// JoinPages returns the text passages of one document are cut from. Empty
// pages are left out.
func JoinPages(pages []readers.Page) string {
	var sb strings.Builder
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(PageSeparator)
		}
		sb.WriteString(p.Text)
	}

	return sb.String()
}

func (c *Chunker) chunkDocument(pages []readers.Page) []Passage {
	text := JoinPages(pages)
	if text == "" {
		return nil
	}

	bounds := pageBounds(pages)
	segments := split(text, separators, c.chunkSize-c.chunkOverlap)

	var res []Passage
	var prev string
	pos := 0

	for i := 0; i < len(segments); {
		prefix := tail(prev, c.chunkOverlap)
		prefixLen := utf8.RuneCountInString(prefix)

		var sb strings.Builder
		size := prefixLen
		for i < len(segments) {
			n := utf8.RuneCountInString(segments[i])
			if sb.Len() > 0 && size+n > c.chunkSize {
				break
			}
			sb.WriteString(segments[i])
			size += n
			i++
		}

		body := sb.String()
		p := Passage{
			Text:     prefix + body,
			Overlap:  prefixLen,
			Document: pages[0].Document,
			Page:     pageAt(bounds, pos),
			Index:    len(res),
		}

		res = append(res, p)
		prev = p.Text
		pos += utf8.RuneCountInString(body)
	}

	return res
}

// split cuts text into pieces of at most limit characters whose concatenation
// is text. Separators stay attached to the piece they end.
func split(text string, seps []string, limit int) []string {
	if utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	if len(seps) == 0 {
		return cutRunes(text, limit)
	}

	var res []string
	for _, part := range strings.SplitAfter(text, seps[0]) {
		if part == "" {
			continue
		}
		res = append(res, split(part, seps[1:], limit)...)
	}

	return res
}

func cutRunes(text string, limit int) []string {
	runes := []rune(text)
	res := make([]string, 0, len(runes)/limit+1)
	for start := 0; start < len(runes); start += limit {
		end := min(start+limit, len(runes))
		res = append(res, string(runes[start:end]))
	}

	return res
}

func tail(s string, n int) string {
	if n == 0 || s == "" {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= n {
		return s
	}

	return string(runes[len(runes)-n:])
}

type pageBound struct {
	start int
	page  int
}

// pageBounds maps character offsets of the joined text to page indexes.
func pageBounds(pages []readers.Page) []pageBound {
	var res []pageBound
	offset := 0
	for _, p := range pages {
		if p.Text == "" {
			continue
		}
		if len(res) > 0 {
			offset += utf8.RuneCountInString(PageSeparator)
		}
		res = append(res, pageBound{start: offset, page: p.Index})
		offset += utf8.RuneCountInString(p.Text)
	}

	return res
}

func pageAt(bounds []pageBound, pos int) int {
	page := 0
	for _, b := range bounds {
		if b.start > pos {
			break
		}
		page = b.page
	}

	return page
}
