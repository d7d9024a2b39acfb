package content

import (
	"bytes"
	"errors"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

var (
	errEmptyPDFContent = errors.New("pdf content is empty")
	errNilPDFDocument  = errors.New("pdf document is nil")
)

// IsPDF reports whether a payload carries the PDF magic header.
func IsPDF(raw string) bool {
	return strings.HasPrefix(raw, "%PDF-")
}

// ExtractTextFromPDFBytes extracts plain text from an in-memory PDF, such as a fetched
// response body.
func ExtractTextFromPDFBytes(data []byte) (string, error) {
	if len(data) == 0 {
		return "", errEmptyPDFContent
	}

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", err
	}
	return extractTextFromPDFDocument(doc)
}

func extractTextFromPDFDocument(doc *pdf.Reader) (text string, err error) {
	if doc == nil {
		return "", errNilPDFDocument
	}

	// The pdf package panics on some malformed content streams.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", errors.New("malformed pdf content")
		}
	}()

	textReader, err := doc.GetPlainText()
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, textReader); err != nil {
		return "", err
	}
	return buf.String(), nil
}
