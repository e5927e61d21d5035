// Package extract pulls plain text out of uploaded CV documents.
package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Supported MIME types.
const (
	MimePDF  = "application/pdf"
	MimeDOC  = "application/msword"
	MimeDOCX = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
)

// MaxPDFPages caps how many pages are read from a PDF.
const MaxPDFPages = 50

// Supported reports whether mime can be extracted.
func Supported(mime string) bool {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case MimePDF, MimeDOC, MimeDOCX:
		return true
	}
	return false
}

// Result is extracted, cleaned text.  PageCount is set for PDFs.
type Result struct {
	Text      string
	PageCount int
}

// Error is an extraction failure with a message suitable for end users.
type Error struct{ Msg string }

func (e *Error) Error() string { return e.Msg }

func fail(format string, args ...any) error { return &Error{Msg: fmt.Sprintf(format, args...)} }

// Extract dispatches on MIME type.
func Extract(data []byte, mime string) (Result, error) {
	if data == nil {
		return Result{}, fail("No file buffer provided")
	}
	if mime == "" {
		return Result{}, fail("No MIME type provided")
	}
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case MimePDF:
		return PDF(data)
	case MimeDOCX:
		return DOCX(data)
	case MimeDOC:
		return DOC(data)
	}
	return Result{}, fail("Unsupported file type: %s. Supported types: PDF, DOCX, DOC", mime)
}

// PDF extracts the text layer of up to MaxPDFPages pages.
func PDF(data []byte) (res Result, err error) {
	if len(data) == 0 {
		return Result{}, fail("Empty or invalid PDF buffer")
	}
	if !bytes.HasPrefix(data, []byte("%PDF")) {
		return Result{}, fail("Invalid PDF file format. The file may be corrupted or not a valid PDF.")
	}
	// the pdf reader panics on some malformed cross-reference tables
	defer func() {
		if r := recover(); r != nil {
			res, err = Result{}, fail("PDF parsing failed: The PDF file appears to be corrupted or in an unsupported format. Please try converting it to a newer PDF version or upload a DOCX file instead.")
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		msg := err.Error()
		if errors.Is(err, pdf.ErrInvalidPassword) || strings.Contains(msg, "encrypt") || strings.Contains(msg, "password") {
			return Result{}, fail("PDF is password-protected or encrypted. Please remove the password and try again.")
		}
		return Result{}, fail("PDF extraction failed: %s. The file may be corrupted or in an unsupported format.", msg)
	}

	pages := r.NumPage()
	var b strings.Builder
	for i := 1; i <= pages && i <= MaxPDFPages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			// keep what other pages yield
			continue
		}
		b.WriteString(txt)
		b.WriteString("\n")
	}
	if strings.TrimSpace(b.String()) == "" {
		return Result{}, fail("No text content found in PDF. The file may be image-based or empty. Please try a PDF with selectable text.")
	}
	return Result{Text: CleanText(b.String()), PageCount: pages}, nil
}

// DOCX extracts paragraph text from word/document.xml.
func DOCX(data []byte) (Result, error) {
	if len(data) == 0 {
		return Result{}, fail("Empty or invalid DOCX buffer")
	}
	text, err := docxText(data)
	if err != nil {
		return Result{}, fail("DOCX extraction failed: %s", err)
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, fail("No text content found in DOCX file.")
	}
	return Result{Text: CleanText(text)}, nil
}

// DOC tries the legacy Word format as if it were DOCX, which succeeds for
// files that were merely renamed.
func DOC(data []byte) (Result, error) {
	text, err := docxText(data)
	if err != nil {
		return Result{}, fail("DOC extraction failed: %s. Consider converting to DOCX or PDF.", err)
	}
	if strings.TrimSpace(text) == "" {
		return Result{}, fail("No text content found in DOC file. Consider converting to DOCX or PDF.")
	}
	return Result{Text: CleanText(text)}, nil
}

func docxText(data []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", errors.New("could not open document archive")
	}
	var doc *zip.File
	for _, f := range zr.File {
		if f.Name == "word/document.xml" {
			doc = f
			break
		}
	}
	if doc == nil {
		return "", errors.New("word/document.xml not found")
	}
	rc, err := doc.Open()
	if err != nil {
		return "", err
	}
	defer rc.Close()

	dec := xml.NewDecoder(io.LimitReader(rc, 32<<20))
	var b strings.Builder
	inText := false
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "t":
				inText = true
			case "tab":
				b.WriteString("\t")
			case "br", "cr":
				b.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				b.WriteString("\n\n")
			}
		case xml.CharData:
			if inText {
				b.Write(t)
			}
		}
	}
	return b.String(), nil
}
