package e2e

import (
	"archive/zip"
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// FixtureExtensions lists the file types the file-based tests generate.
// PDF is excluded: there is no minimal hand-written PDF with extractable
// text, and the PDF path is covered by the extract package's own tests.
var FixtureExtensions = []string{
	".txt", ".md", ".docx", ".xlsx", ".pptx", ".odp", ".ods",
}

// FixtureBytes returns file content of the given type carrying the text.
func FixtureBytes(ext, text string) ([]byte, error) {
	switch ext {
	case ".txt", ".md":
		return []byte(text), nil
	case ".docx":
		return zipWith("word/document.xml",
			`<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"><w:body><w:p><w:r><w:t>`+text+`</w:t></w:r></w:p></w:body></w:document>`), nil
	case ".pptx":
		return zipWith("ppt/slides/slide1.xml",
			`<p:sld xmlns:p="a" xmlns:a="b"><p:cSld><p:spTree><p:sp><p:txBody><a:p><a:r><a:t>`+text+`</a:t></a:r></a:p></p:txBody></p:sp></p:spTree></p:cSld></p:sld>`), nil
	case ".odp":
		return zipWith("content.xml",
			`<office:document><office:body><draw:page><draw:text-box><text:p>`+text+`</text:p></draw:text-box></draw:page></office:body></office:document>`), nil
	case ".ods":
		return zipWith("content.xml",
			`<office:document><office:body><table:table><table:table-row><table:table-cell><text:p>`+text+`</text:p></table:table-cell></table:table-row></table:table></office:body></office:document>`), nil
	case ".xlsx":
		f := excelize.NewFile()
		defer f.Close()
		if err := f.SetCellValue("Sheet1", "A1", text); err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		if _, err := f.WriteTo(&buf); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("no fixture for %s", ext)
	}
}

// zipWith builds a one-entry zip archive, the shape shared by the OOXML and
// OpenDocument container formats.
func zipWith(name, payload string) []byte {
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, _ := w.Create(name)
	_, _ = fw.Write([]byte(payload))
	_ = w.Close()
	return buf.Bytes()
}
