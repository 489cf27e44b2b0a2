package models

import "time"

// Page is the extracted text of one source page. PageNumber is 1-based.
type Page struct {
	PageNumber int
	Text       string
}

// Chunk represents a parsed chunk with metadata
type Chunk struct {
	Content    string
	PageNumber int
	ChunkIndex int // 0-based, restarts for every page
}

// Entry is a stored chunk as returned from a vector store query. The raw
// vector is not part of the projection.
type Entry struct {
	// ID is tenant:filename:page:chunk in every backend.
	ID         string
	TenantID   int64
	Filename   string
	PageNumber int
	ChunkIndex int
	Content    string
	Similarity float32
}

// Turn is one question/answer exchange of a conversation.
type Turn struct {
	Question  string
	Answer    string
	CreatedAt time.Time
}

// Source is a citation returned alongside an answer.
type Source struct {
	Filename   string `json:"filename"`
	PageNumber int    `json:"page"`
	Content    string `json:"text"`
}

type Answer struct {
	Question string   `json:"question"`
	Text     string   `json:"answer"`
	Sources  []Source `json:"sources"`
}

type IngestResult struct {
	Filename     string `json:"filename"`
	Pages        int    `json:"pages"`
	ChunksStored int    `json:"chunks_stored"`
}
