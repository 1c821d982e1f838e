// Package pdftest builds small well-formed PDFs for adapter tests.
package pdftest

import (
	"fmt"
	"strings"
)

// Page describes one generated page. An empty MediaBox inherits the
// 612x792 box set on the page tree.
type Page struct {
	MediaBox [4]float64
	Text     string
}

// Build returns a PDF with one Helvetica text line per page.
func Build(pages ...Page) []byte {
	var b strings.Builder
	offsets := make([]int, 0, 3+2*len(pages))
	obj := func(body string) {
		offsets = append(offsets, b.Len())
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", len(offsets), body)
	}

	b.WriteString("%PDF-1.4\n")
	obj("<< /Type /Catalog /Pages 2 0 R >>")

	kids := make([]string, len(pages))
	for i := range pages {
		kids[i] = fmt.Sprintf("%d 0 R", 4+2*i)
	}
	obj(fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>", strings.Join(kids, " "), len(pages)))
	obj("<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica >>")

	for i, p := range pages {
		box := ""
		if p.MediaBox != [4]float64{} {
			box = fmt.Sprintf(" /MediaBox [%g %g %g %g]", p.MediaBox[0], p.MediaBox[1], p.MediaBox[2], p.MediaBox[3])
		}
		obj(fmt.Sprintf("<< /Type /Page /Parent 2 0 R%s /Contents %d 0 R /Resources << /Font << /F1 3 0 R >> >> >>", box, 5+2*i))
		content := fmt.Sprintf("BT\n/F1 12 Tf\n72 700 Td\n(%s) Tj\nET\n", p.Text)
		obj(fmt.Sprintf("<< /Length %d >>\nstream\n%sendstream", len(content), content))
	}

	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n0000000000 65535 f \n", len(offsets)+1)
	for _, off := range offsets {
		fmt.Fprintf(&b, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(offsets)+1, xref)
	return []byte(b.String())
}
