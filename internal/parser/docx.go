package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// extractDocxText extracts plain text from .docx file bytes. A .docx file is
// a ZIP archive containing XML; the main body text lives in
// word/document.xml as <w:t> elements. Adapted from the teacher's
// internal/service/docx.go, which already implemented this correctly.
func extractDocxText(data []byte) (string, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open docx zip: %w", err)
	}

	xmlData, err := readZipMember(r, "word/document.xml")
	if err != nil {
		return "", err
	}

	return parseWordprocessingXML(xmlData)
}

func readZipMember(r *zip.Reader, name string) ([]byte, error) {
	var f *zip.File
	for _, zf := range r.File {
		if zf.Name == name {
			f = zf
			break
		}
	}
	if f == nil {
		return nil, fmt.Errorf("%s not found in archive", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// parseWordprocessingXML walks the OOXML body and extracts text runs,
// inserting newlines at paragraph boundaries.
func parseWordprocessingXML(data []byte) (string, error) {
	decoder := xml.NewDecoder(bytes.NewReader(data))
	decoder.Strict = false
	decoder.AutoClose = xml.HTMLAutoClose

	var (
		buf         strings.Builder
		inText      bool
		paraHasText bool
	)

	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse document xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "p":
				if paraHasText {
					buf.WriteByte('\n')
				}
				paraHasText = false
			case "t":
				inText = true
			case "tab":
				buf.WriteByte('\t')
			case "br":
				buf.WriteByte('\n')
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if paraHasText {
					buf.WriteByte('\n')
				}
			}
		case xml.CharData:
			if inText && len(t) > 0 {
				buf.Write(t)
				paraHasText = true
			}
		}
	}

	result := strings.TrimSpace(buf.String())
	if result == "" {
		return "", fmt.Errorf("no text content found in docx")
	}
	return result, nil
}
