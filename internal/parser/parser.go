package parser

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/rs/zerolog/log"

	"document-qa/internal/models"
)

// Extractor turns raw document bytes into per-page text.
type Extractor interface {
	Extract(filename string, data []byte) ([]models.Page, error)
}

// Parser is the default Extractor. It dispatches on the filename extension,
// treating anything carrying a PDF header as PDF.
type Parser struct{}

func New() *Parser { return &Parser{} }

var pdfMagic = []byte("%PDF-")

// Extract returns the non-empty pages of the document, 1-indexed. An empty
// result is valid and means the document has no extractable content.
func (p *Parser) Extract(filename string, data []byte) ([]models.Page, error) {
	if len(data) == 0 {
		return nil, models.ErrEmptyUpload
	}

	ext := strings.ToLower(filepath.Ext(filename))
	if ext != ".pdf" && bytes.HasPrefix(data, pdfMagic) {
		ext = ".pdf"
	}

	var (
		pages []models.Page
		err   error
	)
	switch ext {
	case ".pdf":
		pages, err = parsePDF(data)
	case ".docx":
		pages, err = parseDOCX(data)
	case ".pptx":
		pages, err = parsePPTX(data)
	case ".xlsx":
		pages, err = parseXLSX(data)
	case ".md", ".markdown":
		pages, err = parseMarkdown(data)
	case ".txt":
		pages = singlePage(string(data))
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}

	log.Debug().Str("filename", filename).Int("pages", len(pages)).Msg("Extracted document")
	return pages, nil
}

func parsePDF(data []byte) (pages []models.Page, err error) {
	// the pdf package panics on some malformed object streams
	defer func() {
		if r := recover(); r != nil {
			pages = nil
			err = fmt.Errorf("%w: %v", models.ErrDocumentParse, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDocumentParse, err)
	}

	numPages := reader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %v", models.ErrDocumentParse, i, err)
		}

		if combined := combinePage(pageText, pageTables(page, i)); combined != "" {
			pages = append(pages, models.Page{PageNumber: i, Text: combined})
		}
	}
	return pages, nil
}

// pageTables renders the tables found on a page. Table detection is best
// effort: any failure leaves the page with its linear text only.
func pageTables(page pdf.Page, pageNum int) (tables []string) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug().Interface("panic", r).Int("page", pageNum).Msg("Skipping table detection")
			tables = nil
		}
	}()

	rows, err := page.GetTextByRow()
	if err != nil {
		log.Debug().Err(err).Int("page", pageNum).Msg("Skipping table detection")
		return nil
	}
	for _, table := range detectTables(pdfLines(rows)) {
		if md := renderMarkdownTable(table); md != "" {
			tables = append(tables, md)
		}
	}
	return tables
}

func pdfLines(rows pdf.Rows) [][]textRun {
	lines := make([][]textRun, 0, len(rows))
	for _, row := range rows {
		line := make([]textRun, 0, len(row.Content))
		for _, t := range row.Content {
			line = append(line, textRun{X: t.X, W: t.W, FontSize: t.FontSize, S: t.S})
		}
		lines = append(lines, line)
	}
	return lines
}

// combinePage joins the linear text and the rendered tables of a page with a
// blank line. It returns "" when the page has no content at all.
func combinePage(text string, tables []string) string {
	parts := make([]string, 0, len(tables)+1)
	if t := strings.TrimSpace(text); t != "" {
		parts = append(parts, t)
	}
	for _, table := range tables {
		if t := strings.TrimSpace(table); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n\n")
}

func singlePage(text string) []models.Page {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return []models.Page{{PageNumber: 1, Text: text}}
}
