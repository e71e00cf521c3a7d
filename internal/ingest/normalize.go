package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

// ErrNormalization indicates the raw input had no extractable text content
// (empty page, corrupt file, blank manual entry). Normalization failures
// are caller-visible and terminal for the ingestion unit.
var ErrNormalization = errors.New("no extractable text content")

// minParagraphLength filters boilerplate fragments when falling back to
// paragraph extraction (matches the scraper's original behavior).
const minParagraphLength = 20

// Normalized is the source-independent form every ingestion unit is
// reduced to before embedding and storage.
type Normalized struct {
	Title           string
	Content         string
	MetaDescription string // URL sources only
	Metadata        map[string]any
}

// NormalizeHTML reduces a scraped page to {title, content, metadata}.
//
// Main-content extraction goes through go-readability; when readability
// cannot isolate an article the page's paragraphs are collected directly,
// skipping fragments shorter than minParagraphLength. The meta description
// is extracted separately and recorded both for the scrape tracker and as
// entry metadata.
func NormalizeHTML(rawHTML []byte, sourceURL string) (Normalized, error) {
	pageURL, err := url.Parse(sourceURL)
	if err != nil {
		return Normalized{}, fmt.Errorf("invalid source url %q: %w", sourceURL, err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(rawHTML))
	if err != nil {
		return Normalized{}, fmt.Errorf("%w: unparseable HTML: %v", ErrNormalization, err)
	}

	title := strings.TrimSpace(doc.Find("title").First().Text())
	metaDescription, _ := doc.Find(`meta[name="description"]`).Attr("content")
	metaDescription = strings.TrimSpace(metaDescription)

	var content string
	article, err := readability.FromReader(bytes.NewReader(rawHTML), pageURL)
	if err == nil {
		content = strings.TrimSpace(article.TextContent)
		if title == "" {
			title = strings.TrimSpace(article.Title)
		}
	}

	if content == "" {
		content = extractParagraphs(doc)
	}

	if content == "" {
		return Normalized{}, fmt.Errorf("%w: page %q has no text body", ErrNormalization, sourceURL)
	}
	if title == "" {
		title = sourceURL
	}

	metadata := map[string]any{
		"source_host": pageURL.Host,
	}
	if metaDescription != "" {
		metadata["meta_description"] = metaDescription
	}

	return Normalized{
		Title:           title,
		Content:         content,
		MetaDescription: metaDescription,
		Metadata:        metadata,
	}, nil
}

// extractParagraphs collects paragraph text from the document, skipping
// short fragments (navigation labels, cookie notices).
func extractParagraphs(doc *goquery.Document) string {
	var paragraphs []string
	doc.Find("h1, h2, h3, h4, h5, h6, p").Each(func(_ int, sel *goquery.Selection) {
		text := strings.TrimSpace(sel.Text())
		if goquery.NodeName(sel) == "p" && len(text) < minParagraphLength {
			return
		}
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(paragraphs, "\n")
}

// NormalizeDocument reduces uploaded file bytes to {title, content,
// metadata}. The bytes must already be extracted text (the file parsers
// are external collaborators); binary or empty payloads fail.
func NormalizeDocument(raw []byte, filename string) (Normalized, error) {
	if !utf8.Valid(raw) {
		return Normalized{}, fmt.Errorf("%w: file %q is not text", ErrNormalization, filename)
	}

	content := strings.TrimSpace(string(raw))
	if content == "" {
		return Normalized{}, fmt.Errorf("%w: file %q is empty", ErrNormalization, filename)
	}

	return Normalized{
		Title:   filename,
		Content: content,
		Metadata: map[string]any{
			"filename":  filename,
			"file_type": strings.TrimPrefix(filepath.Ext(filename), "."),
		},
	}, nil
}

// NormalizeManual validates manually entered text.
func NormalizeManual(title, content string) (Normalized, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)

	if title == "" {
		return Normalized{}, fmt.Errorf("%w: manual entry requires a title", ErrNormalization)
	}
	if content == "" {
		return Normalized{}, fmt.Errorf("%w: manual entry %q has no content", ErrNormalization, title)
	}

	return Normalized{
		Title:    title,
		Content:  content,
		Metadata: map[string]any{},
	}, nil
}
