// Package extract turns uploaded documents into plain text.
package extract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"golang.org/x/net/html"
)

var (
	ErrNoFilename      = errors.New("no filename provided")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrTooLarge        = errors.New("file too large")
)

// Limits bounds what Validate accepts.
type Limits struct {
	MaxBytes          int64
	AllowedExtensions []string
}

// DefaultLimits mirrors the service defaults: 30 MB and every format Text
// understands.
func DefaultLimits() Limits {
	return Limits{
		MaxBytes:          30 << 20,
		AllowedExtensions: []string{".pdf", ".docx", ".txt", ".md", ".html", ".htm"},
	}
}

// Ext returns the lower-cased extension of filename, including the dot.
func Ext(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

// Validate checks an upload's name and size before any bytes are parsed.
func Validate(filename string, size int64, l Limits) error {
	if strings.TrimSpace(filename) == "" {
		return ErrNoFilename
	}
	ext := Ext(filename)
	if !slices.Contains(l.AllowedExtensions, ext) {
		return fmt.Errorf("%w: %q (allowed: %s)", ErrUnsupportedType, ext, strings.Join(l.AllowedExtensions, ", "))
	}
	if l.MaxBytes > 0 && size > l.MaxBytes {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d MB", ErrTooLarge, size, l.MaxBytes>>20)
	}
	return nil
}

// ReadLimited reads at most max bytes from r and fails with ErrTooLarge if
// more are available.
func ReadLimited(r io.Reader, max int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("reading upload: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: exceeds limit of %d MB", ErrTooLarge, max>>20)
	}
	return data, nil
}

// Text extracts plain text from data, choosing the parser by the extension
// of filename. Empty output is not an error.
func Text(filename string, data []byte) (string, error) {
	switch ext := Ext(filename); ext {
	case ".pdf":
		return pdfText(data)
	case ".docx":
		return docxText(data)
	case ".html", ".htm":
		return htmlText(data)
	case ".txt", ".md":
		return normalizeWhitespace(string(data)), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, ext)
	}
}

func pdfText(data []byte) (text string, err error) {
	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("reading pdf: malformed document: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("reading pdf: %w", err)
	}

	var sb strings.Builder
	for i := 1; i <= r.NumPage(); i++ {
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		pt, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("reading pdf page %d: %w", i, err)
		}
		sb.WriteString(pt)
		sb.WriteString("\n")
	}
	return normalizeWhitespace(sb.String()), nil
}

var xmlTag = regexp.MustCompile(`<[^>]+>`)

func docxText(data []byte) (string, error) {
	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("reading docx: %w", err)
	}
	defer doc.Close()

	content := doc.Editable().GetContent()
	content = strings.ReplaceAll(content, "</w:p>", "\n")
	content = strings.ReplaceAll(content, "<w:tab/>", "\t")
	content = xmlTag.ReplaceAllString(content, " ")
	return normalizeWhitespace(html.UnescapeString(content)), nil
}

var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true,
}

func htmlText(data []byte) (string, error) {
	z := html.NewTokenizer(bytes.NewReader(data))
	var sb strings.Builder
	skip := 0
	for {
		switch tt := z.Next(); tt {
		case html.ErrorToken:
			if err := z.Err(); err != io.EOF {
				return "", fmt.Errorf("reading html: %w", err)
			}
			return normalizeWhitespace(sb.String()), nil
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				if tt == html.StartTagToken {
					skip++
				}
			case blockElements[tag]:
				sb.WriteString("\n")
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch tag := string(name); {
			case tag == "script" || tag == "style":
				if skip > 0 {
					skip--
				}
			case blockElements[tag]:
				sb.WriteString("\n")
			}
		case html.TextToken:
			if skip == 0 {
				sb.Write(z.Text())
				sb.WriteString(" ")
			}
		}
	}
}

var (
	inlineSpace = regexp.MustCompile(`[ \t\r\f\v]+`)
	blankLines  = regexp.MustCompile(`\s*\n\s*`)
)

func normalizeWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = inlineSpace.ReplaceAllString(s, " ")
	s = blankLines.ReplaceAllString(s, "\n")
	return strings.TrimSpace(s)
}
