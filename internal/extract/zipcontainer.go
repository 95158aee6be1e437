package extract

// OOXML (.docx, .pptx) and OpenDocument (.odt, .odp, .ods) are zip archives
// holding XML parts. The text-bearing tags never nest, so their inner text is
// pulled with regexes instead of a streaming XML parse.

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

var (
	// <w:t>, <a:t>, <text:p> etc. may carry attributes (xml:space, rsid noise),
	// hence the [^>]* before the closing bracket.
	wordText    = regexp.MustCompile(`<w:t[^>]*>([^<]*)</w:t>`)
	drawingText = regexp.MustCompile(`<a:t[^>]*>([^<]*)</a:t>`)
	odfPara     = regexp.MustCompile(`<text:p[^>]*>([^<]*)</text:p>`)
	odfSpan     = regexp.MustCompile(`<text:span[^>]*>([^<]*)</text:span>`)
	odfHeading  = regexp.MustCompile(`<text:h[^>]*>([^<]*)</text:h>`)
)

const (
	docxDefaultPart  = "word/document.xml"
	pptxSlidePrefix  = "ppt/slides/slide"
	odfContentEntry  = "content.xml"
	contentTypesPart = "[Content_Types].xml"
	docxContentType  = "application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"
)

// The Override element in [Content_Types].xml names the main document part.
// Attribute order is not fixed, so both are tried.
var (
	docxPartFirst = regexp.MustCompile(`<Override[^>]+PartName="([^"]+)"[^>]+ContentType="` + regexp.QuoteMeta(docxContentType) + `"`)
	docxTypeFirst = regexp.MustCompile(`<Override[^>]+ContentType="` + regexp.QuoteMeta(docxContentType) + `"[^>]+PartName="([^"]+)"`)
)

func extractDOCX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract DOCX: not a zip: %w", err)
	}
	part := docxMainPart(zr)
	data, err := zipEntry(zr, part)
	if err != nil {
		return "", fmt.Errorf("extract DOCX: %w", err)
	}
	var b strings.Builder
	appendInnerText(&b, string(data), wordText)
	return strings.TrimSpace(b.String()), nil
}

// docxMainPart resolves the main document part from [Content_Types].xml,
// falling back to the conventional path when the manifest is absent or silent.
func docxMainPart(zr *zip.Reader) string {
	data, err := zipEntry(zr, contentTypesPart)
	if err != nil {
		return docxDefaultPart
	}
	s := string(data)
	for _, re := range []*regexp.Regexp{docxPartFirst, docxTypeFirst} {
		if m := re.FindStringSubmatch(s); len(m) > 1 {
			return strings.TrimPrefix(m[1], "/")
		}
	}
	return docxDefaultPart
}

func extractPPTX(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract PPTX: not a zip: %w", err)
	}
	var b strings.Builder
	for _, f := range zr.File {
		if !strings.HasPrefix(f.Name, pptxSlidePrefix) || !strings.HasSuffix(f.Name, ".xml") {
			continue
		}
		data, err := zipEntry(zr, f.Name)
		if err != nil {
			return "", fmt.Errorf("extract PPTX: %w", err)
		}
		appendInnerText(&b, string(data), drawingText)
	}
	return strings.TrimSpace(b.String()), nil
}

func extractODT(content []byte) (string, error) {
	return extractODF(content, "ODT", odfPara, odfSpan, odfHeading)
}

func extractODP(content []byte) (string, error) {
	return extractODF(content, "ODP", odfPara, odfSpan, odfHeading)
}

func extractODS(content []byte) (string, error) {
	return extractODF(content, "ODS", odfPara, odfSpan)
}

// extractODF pulls text from an OpenDocument content.xml, grouped by tag kind.
func extractODF(content []byte, format string, patterns ...*regexp.Regexp) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract %s: not a zip: %w", format, err)
	}
	data, err := zipEntry(zr, odfContentEntry)
	if err != nil {
		return "", fmt.Errorf("extract %s: %w", format, err)
	}
	var b strings.Builder
	appendInnerText(&b, string(data), patterns...)
	return strings.TrimSpace(b.String()), nil
}

// zipEntry reads one named entry in full.
func zipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer rc.Close()
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("%s not found", name)
}

// appendInnerText space-joins the trimmed capture groups of each pattern.
func appendInnerText(b *strings.Builder, xml string, patterns ...*regexp.Regexp) {
	for _, re := range patterns {
		for _, m := range re.FindAllStringSubmatch(xml, -1) {
			if b.Len() > 0 {
				b.WriteByte(' ')
			}
			b.WriteString(strings.TrimSpace(m[1]))
		}
	}
}
