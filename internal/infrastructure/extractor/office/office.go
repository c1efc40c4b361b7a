// Package office reads text from Office Open XML packages (.docx, .pptx).
package office

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"strings"
)

// textCollector gathers character data of textElement nodes and breaks lines
// at the end of every paragraphElement.
type textCollector struct {
	textElement      string
	paragraphElement string
}

func (c textCollector) collect(r io.Reader) (string, error) {
	decoder := xml.NewDecoder(r)
	var out strings.Builder
	var line strings.Builder
	inText := false
	for {
		tok, err := decoder.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("decode xml: %w", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case c.textElement:
				inText = true
			case "tab":
				line.WriteString("\t")
			case "br":
				line.WriteString("\n")
			}
		case xml.EndElement:
			switch t.Name.Local {
			case c.textElement:
				inText = false
			case c.paragraphElement:
				if text := strings.TrimSpace(line.String()); text != "" {
					out.WriteString(text)
					out.WriteString("\n")
				}
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	if text := strings.TrimSpace(line.String()); text != "" {
		out.WriteString(text)
	}
	return strings.TrimSpace(out.String()), nil
}

func readZipEntry(file *zip.File, collector textCollector) (string, error) {
	rc, err := file.Open()
	if err != nil {
		return "", fmt.Errorf("open %s: %w", file.Name, err)
	}
	defer rc.Close()
	return collector.collect(rc)
}
