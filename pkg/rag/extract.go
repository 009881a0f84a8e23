package rag

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/xuri/excelize/v2"
)

// Extracted is the text pulled out of a source file, plus whatever the
// format revealed about it (page counts, sheet names, titles).
type Extracted struct {
	Content  string
	Metadata map[string]any
}

// Extractor converts one file format to indexable text.
type Extractor interface {
	// Name identifies the extractor in logs.
	Name() string

	// Extensions lists the lower-case file extensions handled,
	// including the dot.
	Extensions() []string

	// Extract reads the file at path and returns its text.
	Extract(ctx context.Context, path string) (*Extracted, error)
}

// ExtractorSet dispatches files to extractors by extension. Unknown
// extensions fall back to plain-text extraction.
type ExtractorSet struct {
	byExt    map[string]Extractor
	fallback Extractor
}

// NewExtractorSet returns a set covering plain text, Markdown, PDF, DOCX,
// and XLSX.
func NewExtractorSet() *ExtractorSet {
	s := &ExtractorSet{
		byExt:    make(map[string]Extractor),
		fallback: textExtractor{},
	}
	s.Register(textExtractor{})
	s.Register(pdfExtractor{})
	s.Register(docxExtractor{})
	s.Register(xlsxExtractor{})
	return s
}

// Register adds an extractor, replacing any previous claim on its
// extensions.
func (s *ExtractorSet) Register(e Extractor) {
	for _, ext := range e.Extensions() {
		s.byExt[strings.ToLower(ext)] = e
	}
}

// ExtractorFor returns the extractor that will handle path.
func (s *ExtractorSet) ExtractorFor(path string) Extractor {
	if e, ok := s.byExt[strings.ToLower(filepath.Ext(path))]; ok {
		return e
	}
	return s.fallback
}

// Extract converts the file at path to text using the extension-matched
// extractor.
func (s *ExtractorSet) Extract(ctx context.Context, path string) (*Extracted, error) {
	return s.ExtractorFor(path).Extract(ctx, path)
}

// textExtractor reads a file verbatim. It refuses content that is not
// valid UTF-8 rather than index binary garbage.
type textExtractor struct{}

func (textExtractor) Name() string { return "text" }

func (textExtractor) Extensions() []string {
	return []string{".txt", ".md", ".markdown", ".log", ".csv", ".json", ".yaml", ".yml"}
}

func (textExtractor) Extract(_ context.Context, path string) (*Extracted, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("%s: content is not valid UTF-8", path)
	}
	return &Extracted{
		Content: string(raw),
		Metadata: map[string]any{
			"file_name": filepath.Base(path),
			"format":    "text",
		},
	}, nil
}

// pdfExtractor pulls plain text from PDFs page by page. Pages that fail
// to decode are skipped, not fatal.
type pdfExtractor struct{}

func (pdfExtractor) Name() string { return "pdf" }

func (pdfExtractor) Extensions() []string { return []string{".pdf"} }

func (pdfExtractor) Extract(ctx context.Context, path string) (*Extracted, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	reader, err := pdf.NewReader(f, info.Size())
	if err != nil {
		return nil, fmt.Errorf("parse pdf %s: %w", path, err)
	}

	var pages []string
	total := reader.NumPage()
	for n := 1; n <= total; n++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(n)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			pages = append(pages, text)
		}
	}

	return &Extracted{
		Content: strings.Join(pages, "\n\n"),
		Metadata: map[string]any{
			"file_name": filepath.Base(path),
			"format":    "pdf",
			"pages":     total,
		},
	}, nil
}

// docxExtractor reads the main document part of a Word file. The library
// hands back raw document XML, so tags are stripped and paragraph ends
// become newlines before the text is returned.
type docxExtractor struct{}

var (
	docxParaEnd = regexp.MustCompile(`</w:p>`)
	docxTags    = regexp.MustCompile(`<[^>]+>`)
)

func (docxExtractor) Name() string { return "docx" }

func (docxExtractor) Extensions() []string { return []string{".docx"} }

func (docxExtractor) Extract(_ context.Context, path string) (*Extracted, error) {
	doc, err := docx.ReadDocxFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse docx %s: %w", path, err)
	}
	defer doc.Close()

	raw := doc.Editable().GetContent()
	text := docxParaEnd.ReplaceAllString(raw, "\n")
	text = docxTags.ReplaceAllString(text, "")
	text = html.UnescapeString(text)
	text = strings.TrimSpace(text)

	return &Extracted{
		Content: text,
		Metadata: map[string]any{
			"file_name": filepath.Base(path),
			"format":    "docx",
		},
	}, nil
}

// maxSheetCells caps how many non-empty cells one sheet contributes.
const maxSheetCells = 1000

// xlsxExtractor flattens spreadsheet rows into pipe-separated lines, one
// titled block per sheet.
type xlsxExtractor struct{}

func (xlsxExtractor) Name() string { return "xlsx" }

func (xlsxExtractor) Extensions() []string { return []string{".xlsx"} }

func (xlsxExtractor) Extract(ctx context.Context, path string) (*Extracted, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("parse xlsx %s: %w", path, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	var blocks []string
	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}

		var b strings.Builder
		b.WriteString("Sheet: " + sheet)
		cells := 0
		for _, row := range rows {
			if cells >= maxSheetCells {
				b.WriteString("\n...")
				break
			}
			var fields []string
			for _, cell := range row {
				if cell = strings.TrimSpace(cell); cell != "" {
					fields = append(fields, cell)
					cells++
				}
			}
			if len(fields) > 0 {
				b.WriteString("\n" + strings.Join(fields, " | "))
			}
		}
		blocks = append(blocks, b.String())
	}

	return &Extracted{
		Content: strings.Join(blocks, "\n\n"),
		Metadata: map[string]any{
			"file_name": filepath.Base(path),
			"format":    "xlsx",
			"sheets":    len(sheets),
		},
	}, nil
}
