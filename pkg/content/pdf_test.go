package content

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"testing"
)

// buildPDF writes a one-page PDF that shows text in Helvetica, with a correct xref table.
func buildPDF(text string) []byte {
	stream := fmt.Sprintf("BT /F1 24 Tf 72 712 Td (%s) Tj ET", text)
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Contents 4 0 R /Resources << /Font << /F1 5 0 R >> >> >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func TestIsPDF(t *testing.T) {
	if !IsPDF("%PDF-1.7\n...") {
		t.Error("expected PDF header to be detected")
	}
	if IsPDF("<html>%PDF-</html>") {
		t.Error("HTML should not be detected as PDF")
	}
}

func TestExtractTextFromPDFBytes(t *testing.T) {
	text, err := ExtractTextFromPDFBytes(buildPDF("Hello PDF world"))
	if err != nil {
		t.Fatalf("ExtractTextFromPDFBytes returned error: %v", err)
	}
	if !strings.Contains(text, "Hello") {
		t.Fatalf("expected extracted text to contain %q, got %q", "Hello", text)
	}
}

func TestExtractTextFromPDFBytesErrors(t *testing.T) {
	if _, err := ExtractTextFromPDFBytes(nil); !errors.Is(err, errEmptyPDFContent) {
		t.Errorf("expected errEmptyPDFContent, got %v", err)
	}
	if _, err := ExtractTextFromPDFBytes([]byte("%PDF-1.4\ngarbage without xref")); err == nil {
		t.Error("expected error for corrupt PDF")
	}
}

func TestPDFStrategyNotApplicableToHTML(t *testing.T) {
	_, err := PDFStrategy{}.Extract(nil, "<html><body>hi</body></html>")
	if !errors.Is(err, ErrNotApplicable) {
		t.Errorf("expected ErrNotApplicable, got %v", err)
	}
}

func TestExtractorHandlesCorruptPDF(t *testing.T) {
	doc := NewExtractor(nil, nil).Extract("https://example.com/broken.pdf", "%PDF-1.4\nnot really")
	if doc.Text != "" {
		t.Errorf("expected empty text, got %q", doc.Text)
	}
	if len(doc.OutboundLinks) != 0 || doc.IsArticleLike {
		t.Error("PDF payloads should not be treated as HTML")
	}
}
