package parser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"document-qa/internal/models"
)

func mustChunker(t *testing.T, size, overlap int) *Chunker {
	t.Helper()
	c, err := NewChunker(size, overlap)
	if err != nil {
		t.Fatalf("NewChunker(%d, %d) failed: %v", size, overlap, err)
	}
	return c
}

// pattern returns n distinct-looking characters so overlap checks are meaningful.
func pattern(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(alphabet[(i*7+i/36)%len(alphabet)])
	}
	return sb.String()
}

func TestNewChunker_InvalidArguments(t *testing.T) {
	for _, tt := range []struct{ size, overlap int }{{0, 0}, {-1, 0}, {100, 100}, {100, 150}, {100, -1}} {
		if _, err := NewChunker(tt.size, tt.overlap); err == nil {
			t.Errorf("NewChunker(%d, %d) = nil error, want error", tt.size, tt.overlap)
		}
	}
}

func TestChunk_CountSizeAndOverlap(t *testing.T) {
	tests := []struct {
		length, size, overlap int
	}{
		{2000, 1000, 200},
		{1500, 1000, 200},
		{999, 1000, 200},
		{5000, 700, 0},
		{3333, 512, 100},
	}
	for _, tt := range tests {
		c := mustChunker(t, tt.size, tt.overlap)
		chunks := c.Chunk([]models.Page{{PageNumber: 1, Text: pattern(tt.length)}})

		// windows start every step chars until the start passes the end
		step := tt.size - tt.overlap
		want := (tt.length + step - 1) / step
		if len(chunks) != want {
			t.Errorf("L=%d S=%d O=%d: got %d chunks, want %d", tt.length, tt.size, tt.overlap, len(chunks), want)
		}
		for i, ch := range chunks {
			if n := utf8.RuneCountInString(ch.Content); n > tt.size {
				t.Errorf("chunk %d has %d chars, want <= %d", i, n, tt.size)
			}
			if ch.ChunkIndex != i {
				t.Errorf("chunk %d has ChunkIndex %d", i, ch.ChunkIndex)
			}
		}
		for i := 0; i+1 < len(chunks) && tt.overlap > 0; i++ {
			a, b := chunks[i].Content, chunks[i+1].Content
			if len(a) != tt.size || len(b) != tt.size {
				continue
			}
			if a[len(a)-tt.overlap:] != b[:tt.overlap] {
				t.Errorf("chunks %d/%d do not overlap by %d chars", i, i+1, tt.overlap)
			}
		}
	}
}

func TestChunk_OverlapWithPartialTail(t *testing.T) {
	chunks := mustChunker(t, 1000, 200).Chunk([]models.Page{{PageNumber: 1, Text: pattern(2000)}})
	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want 3", len(chunks))
	}
	if chunks[0].Content[800:] != chunks[1].Content[:200] {
		t.Errorf("second chunk should start 800 chars into the first")
	}
	if len(chunks[2].Content) != 400 {
		t.Errorf("tail chunk has %d chars, want 400", len(chunks[2].Content))
	}
}

func TestChunk_BlankPages(t *testing.T) {
	c := mustChunker(t, 10, 2)
	pages := []models.Page{
		{PageNumber: 1, Text: ""},
		{PageNumber: 2, Text: "   \n\t  \n   "},
	}
	if chunks := c.Chunk(pages); len(chunks) != 0 {
		t.Errorf("got %d chunks for blank pages, want 0", len(chunks))
	}
}

func TestChunk_SkipsBlankWindowsWithoutGaps(t *testing.T) {
	c := mustChunker(t, 4, 0)
	chunks := c.Chunk([]models.Page{{PageNumber: 7, Text: "abcd        efgh"}})
	if len(chunks) != 2 {
		t.Fatalf("got %d chunks, want 2", len(chunks))
	}
	if chunks[0].ChunkIndex != 0 || chunks[1].ChunkIndex != 1 {
		t.Errorf("indexes = %d,%d, want 0,1", chunks[0].ChunkIndex, chunks[1].ChunkIndex)
	}
	if chunks[1].Content != "efgh" || chunks[1].PageNumber != 7 {
		t.Errorf("second chunk = %+v", chunks[1])
	}
}

func TestChunk_IndexResetsPerPage(t *testing.T) {
	c := mustChunker(t, 300, 50)
	pages := []models.Page{
		{PageNumber: 1, Text: pattern(700)},
		{PageNumber: 2, Text: pattern(400)},
	}
	chunks := c.Chunk(pages)
	var perPage = map[int][]int{}
	for _, ch := range chunks {
		perPage[ch.PageNumber] = append(perPage[ch.PageNumber], ch.ChunkIndex)
	}
	for page, idx := range perPage {
		for i, v := range idx {
			if v != i {
				t.Errorf("page %d: chunk_index sequence %v is not 0-based sequential", page, idx)
				break
			}
		}
	}
	if len(perPage[1]) != 3 || len(perPage[2]) != 2 {
		t.Errorf("chunks per page = %d/%d, want 3/2", len(perPage[1]), len(perPage[2]))
	}
}

func TestChunk_MultiByteRunes(t *testing.T) {
	text := strings.Repeat("héllo wörld ", 50)
	chunks := mustChunker(t, 100, 20).Chunk([]models.Page{{PageNumber: 1, Text: text}})
	for i, ch := range chunks {
		if !utf8.ValidString(ch.Content) {
			t.Fatalf("chunk %d is not valid UTF-8", i)
		}
		if n := utf8.RuneCountInString(ch.Content); n > 100 {
			t.Errorf("chunk %d has %d runes", i, n)
		}
	}
}
