package parser

import (
	"fmt"
	"strings"

	"document-qa/internal/models"
)

// Chunker splits page text into fixed-size, overlapping character windows.
// Sizes are counted in runes.
type Chunker struct {
	size    int
	overlap int
}

func NewChunker(size, overlap int) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: chunk size must be positive, got %d", models.ErrInvalidArgument, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, %d), got %d", models.ErrInvalidArgument, size, overlap)
	}
	return &Chunker{size: size, overlap: overlap}, nil
}

// Chunk windows every page independently. ChunkIndex restarts at 0 for each
// page and only counts emitted (non-blank) chunks.
func (c *Chunker) Chunk(pages []models.Page) []models.Chunk {
	var chunks []models.Chunk
	step := c.size - c.overlap
	for _, page := range pages {
		runes := []rune(page.Text)
		index := 0
		for start := 0; start < len(runes); start += step {
			end := min(start+c.size, len(runes))
			content := string(runes[start:end])
			if strings.TrimSpace(content) == "" {
				continue
			}
			chunks = append(chunks, models.Chunk{
				Content:    content,
				PageNumber: page.PageNumber,
				ChunkIndex: index,
			})
			index++
		}
	}
	return chunks
}
