package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// odpContentPath is the path to the main content inside an .odp zip (OpenDocument Presentation).
const odpContentPath = "content.xml"

var (
	// odpPage matches the start of each slide.
	odpPage = regexp.MustCompile(`<draw:page[\s>]`)
	// odpText matches paragraph, heading and span text in document order.
	odpText = regexp.MustCompile(`<text:(?:p|h|span)(?:\s[^>]*)?>([^<]*)</text:(?:p|h|span)>`)
)

// extractODP returns the text of each draw:page in content.xml, in slide order.
func extractODP(content []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract ODP: not a zip: %w", err)
	}
	var contentXML []byte
	for _, f := range zr.File {
		if f.Name != odpContentPath {
			continue
		}
		contentXML, err = readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("extract ODP: %w", err)
		}
		break
	}
	if contentXML == nil {
		return nil, fmt.Errorf("extract ODP: %s not found", odpContentPath)
	}

	s := string(contentXML)
	starts := odpPage.FindAllStringIndex(s, -1)
	texts := make([]string, len(starts))
	for i, loc := range starts {
		end := len(s)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		var b strings.Builder
		for _, p := range odpText.FindAllStringSubmatch(s[loc[0]:end], -1) {
			part := strings.TrimSpace(p[1])
			if part == "" {
				continue
			}
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(part)
		}
		texts[i] = b.String()
	}
	return texts, nil
}
