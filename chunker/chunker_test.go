package chunker

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/gamma-omg/legal-rag/readers"
	"github.com/gamma-omg/legal-rag/ragerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pagesOf(doc string, texts ...string) []readers.Page {
	pages := make([]readers.Page, 0, len(texts))
	for i, t := range texts {
		pages = append(pages, readers.Page{Document: doc, Index: i, Text: t})
	}
	return pages
}

func texts(passages []Passage) []string {
	res := make([]string, 0, len(passages))
	for _, p := range passages {
		res = append(res, p.Text)
	}
	return res
}

func reconstruct(passages []Passage) string {
	var sb strings.Builder
	for _, p := range passages {
		sb.WriteString(p.NewText())
	}
	return sb.String()
}

func Test_Chunk(t *testing.T) {
	var cases = []struct {
		input   string
		size    int
		overlap int
		output  []string
	}{
		{input: "abcdefg", size: 3, overlap: 0, output: []string{"abc", "def", "g"}},
		{input: "abcdefg", size: 3, overlap: 1, output: []string{"ab", "bcd", "def", "fg"}},
		{input: "abcdefg", size: 9, overlap: 5, output: []string{"abcdefg"}},
		{input: "aaa bbb ccc", size: 8, overlap: 2, output: []string{"aaa bbb ", "b ccc"}},
		{input: "para one.\n\npara two is here.", size: 20, overlap: 0, output: []string{"para one.\n\n", "para two is here."}},
		{input: "line one\nline two", size: 12, overlap: 0, output: []string{"line one\n", "line two"}},
		{input: "", size: 9, overlap: 5, output: nil},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			out, err := Chunk(pagesOf("doc.pdf", c.input), c.size, c.overlap)
			require.NoError(t, err)
			if c.output == nil {
				assert.Empty(t, out)
				return
			}
			assert.Equal(t, c.output, texts(out))
		})
	}
}

func Test_Chunk_InvalidConfiguration(t *testing.T) {
	var cases = []struct {
		size    int
		overlap int
	}{
		{size: 10, overlap: 10},
		{size: 10, overlap: 11},
		{size: 0, overlap: 0},
		{size: 10, overlap: -1},
	}

	for i, c := range cases {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			_, err := Chunk(pagesOf("doc.pdf", "text"), c.size, c.overlap)
			assert.ErrorIs(t, err, ragerr.ErrConfiguration)
		})
	}
}

func Test_Chunk_OverlapIsPredecessorTail(t *testing.T) {
	text := strings.Repeat("word ", 200)
	out, err := Chunk(pagesOf("doc.pdf", text), 100, 10)
	require.NoError(t, err)
	require.Greater(t, len(out), 1)

	assert.Equal(t, 0, out[0].Overlap)
	for i := 1; i < len(out); i++ {
		prev := []rune(out[i-1].Text)
		assert.Equal(t, 10, out[i].Overlap)
		assert.Equal(t, string(prev[len(prev)-10:]), string([]rune(out[i].Text)[:10]))
	}
}

func Test_Chunk_EmptyPagesProduceNothing(t *testing.T) {
	out, err := Chunk(pagesOf("doc.pdf", "", "", ""), 10, 2)
	require.NoError(t, err)
	assert.Empty(t, out)

	out, err = Chunk(pagesOf("doc.pdf", "", "content", ""), 10, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"content"}, texts(out))
	assert.Equal(t, 1, out[0].Page)
}

func Test_Chunk_IndexRestartsPerDocument(t *testing.T) {
	pages := append(pagesOf("a.pdf", "one two three four"), pagesOf("b.pdf", "five six seven eight")...)
	out, err := Chunk(pages, 10, 0)
	require.NoError(t, err)

	var a, b []Passage
	for _, p := range out {
		switch p.Document {
		case "a.pdf":
			a = append(a, p)
		case "b.pdf":
			b = append(b, p)
		}
	}

	require.NotEmpty(t, a)
	require.NotEmpty(t, b)
	assert.Equal(t, "a.pdf", out[0].Document)
	for i, p := range a {
		assert.Equal(t, i, p.Index)
	}
	for i, p := range b {
		assert.Equal(t, i, p.Index)
	}
}

func Test_Chunk_PageAttribution(t *testing.T) {
	out, err := Chunk(pagesOf("doc.pdf", "aaaa", "bbbb"), 6, 0)
	require.NoError(t, err)

	require.Len(t, out, 2)
	assert.Equal(t, "aaaa\n\n", out[0].Text)
	assert.Equal(t, 0, out[0].Page)
	assert.Equal(t, "bbbb", out[1].Text)
	assert.Equal(t, 1, out[1].Page)
}

func Test_Chunk_Multibyte(t *testing.T) {
	text := strings.Repeat("é", 25)
	out, err := Chunk(pagesOf("doc.pdf", text), 10, 3)
	require.NoError(t, err)

	for _, p := range out {
		assert.True(t, utf8.ValidString(p.Text))
		assert.LessOrEqual(t, utf8.RuneCountInString(p.Text), 10)
	}
	assert.Equal(t, text, reconstruct(out))
}

func Test_Chunk_ReconstructsAndBoundsSize(t *testing.T) {
	rnd := rand.New(rand.NewSource(42))
	words := []string{"court", "order", "section", "s.76", "harassment", "protection", "a", "victim", "the"}
	seps := []string{" ", " ", " ", " ", "\n", "\n\n", "  "}

	randomText := func(n int) string {
		var sb strings.Builder
		for i := 0; i < n; i++ {
			sb.WriteString(words[rnd.Intn(len(words))])
			sb.WriteString(seps[rnd.Intn(len(seps))])
		}
		sb.WriteString(strings.Repeat("x", rnd.Intn(300)))
		return strings.TrimSpace(sb.String())
	}

	for i := 0; i < 50; i++ {
		t.Run(fmt.Sprintf("case_%d", i), func(t *testing.T) {
			size := 20 + rnd.Intn(200)
			overlap := rnd.Intn(size)
			pages := pagesOf("doc.pdf", randomText(50+rnd.Intn(300)), "", randomText(rnd.Intn(100)))

			out, err := Chunk(pages, size, overlap)
			require.NoError(t, err)

			assert.Equal(t, JoinPages(pages), reconstruct(out))
			for j, p := range out {
				assert.LessOrEqual(t, utf8.RuneCountInString(p.Text), size)
				assert.NotEmpty(t, p.NewText())
				assert.Equal(t, j, p.Index)
			}
		})
	}
}

func Test_Chunk_TwoLoremPages(t *testing.T) {
	lorem := "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore et dolore magna aliqua. "
	page := strings.TrimSpace(strings.Repeat(lorem, 13))[:1500]
	pages := pagesOf("lorem.pdf", page, page)

	out, err := Chunk(pages, 1000, 100)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, len(out), 3)
	assert.LessOrEqual(t, len(out), 4)
	assert.Equal(t, JoinPages(pages), reconstruct(out))
	for _, p := range out {
		assert.Equal(t, "lorem.pdf", p.Document)
		assert.LessOrEqual(t, utf8.RuneCountInString(p.Text), 1000)
	}
}

func Test_JoinPages(t *testing.T) {
	assert.Equal(t, "a\n\nb", JoinPages(pagesOf("d", "a", "", "b")))
	assert.Equal(t, "", JoinPages(pagesOf("d", "", "")))
}
