package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// pptxSlidePathPrefix is the path prefix for slide XML files inside a .pptx zip.
const pptxSlidePathPrefix = "ppt/slides/slide"

// atTag matches <a:t>text</a:t> or <a:t xml:space="preserve">text</a:t> (and any other attributes).
var atTag = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)

// extractPPTX returns the text of each slide, indexed by slide number minus one.
// PPTX is a ZIP containing ppt/slides/slideN.xml; zip order is not slide order.
func extractPPTX(content []byte) ([]string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	slides := make(map[int]string)
	last := 0
	for _, f := range zr.File {
		n, ok := slideNumber(f.Name)
		if !ok {
			continue
		}
		raw, err := readZipFile(f)
		if err != nil {
			return nil, fmt.Errorf("extract PPTX: %w", err)
		}
		var buf strings.Builder
		for _, p := range atTag.FindAllStringSubmatch(string(raw), -1) {
			if buf.Len() > 0 {
				buf.WriteByte(' ')
			}
			buf.WriteString(strings.TrimSpace(p[1]))
		}
		slides[n] = strings.TrimSpace(buf.String())
		if n > last {
			last = n
		}
	}
	texts := make([]string, last)
	for n, text := range slides {
		texts[n-1] = text
	}
	return texts, nil
}

// slideNumber parses N from ppt/slides/slideN.xml.
func slideNumber(name string) (int, bool) {
	if !strings.HasPrefix(name, pptxSlidePathPrefix) || !strings.HasSuffix(name, ".xml") {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, pptxSlidePathPrefix), ".xml"))
	if err != nil || n < 1 {
		return 0, false
	}
	return n, true
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.Name, err)
	}
	defer rc.Close()
	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", f.Name, err)
	}
	return raw, nil
}
