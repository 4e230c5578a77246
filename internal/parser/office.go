package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"
)

// officeToHTML produces a minimal HTML document from the text content of an
// office file, which htmltomarkdown then converts to markdown. .pptx and
// .xlsx are OOXML (ZIP+XML), handled natively here the same way docx.go
// handles .docx. .xls is the legacy OLE2 binary format; no library in the
// retrieval pack parses OLE2 (it predates the OOXML formats every pack
// dependency targets), so it is not supported and fails closed with a
// dependency-failure error — documented in DESIGN.md.
func officeToHTML(ext string, data []byte) (string, error) {
	switch ext {
	case ".pptx":
		return pptxToHTML(data)
	case ".xlsx":
		return xlsxToHTML(data)
	case ".xls":
		return "", fmt.Errorf("legacy .xls (OLE2) format is not supported; re-save as .xlsx")
	default:
		return "", fmt.Errorf("unsupported office format: %s", ext)
	}
}

func pptxToHTML(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pptx zip: %w", err)
	}

	var slideFiles []string
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "ppt/slides/slide") && strings.HasSuffix(f.Name, ".xml") {
			slideFiles = append(slideFiles, f.Name)
		}
	}
	sort.Strings(slideFiles)

	var b strings.Builder
	for i, name := range slideFiles {
		data, err := readZipMember(r, name)
		if err != nil {
			continue
		}
		text, err := extractRunText(data, "a:t")
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&b, "<h2>Slide %d</h2>\n<p>%s</p>\n", i+1, text)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no slide text found")
	}
	return b.String(), nil
}

func xlsxToHTML(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open xlsx zip: %w", err)
	}

	var sheetFiles []string
	for _, f := range r.File {
		if strings.HasPrefix(f.Name, "xl/worksheets/sheet") && strings.HasSuffix(f.Name, ".xml") {
			sheetFiles = append(sheetFiles, f.Name)
		}
	}
	sort.Strings(sheetFiles)

	var b strings.Builder
	for i, name := range sheetFiles {
		data, err := readZipMember(r, name)
		if err != nil {
			continue
		}
		text, err := extractRunText(data, "t")
		if err != nil || strings.TrimSpace(text) == "" {
			continue
		}
		fmt.Fprintf(&b, "<h2>Sheet %d</h2>\n<p>%s</p>\n", i+1, text)
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("no sheet text found")
	}
	return b.String(), nil
}

// extractRunText collects the character data of every element named
// localName in data, space-joined. Used for both pptx's <a:t> text runs and
// xlsx's inline <t> cell values.
func extractRunText(data []byte, localName string) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose

	var parts []string
	var inRun bool
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			if t.Name.Local == localName {
				inRun = true
			}
		case xml.EndElement:
			if t.Name.Local == localName {
				inRun = false
			}
		case xml.CharData:
			if inRun && len(t) > 0 {
				parts = append(parts, string(t))
			}
		}
	}
	return strings.Join(parts, " "), nil
}
