package textreader

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

const (
	letterWidth  = 612.0
	letterHeight = 792.0
	// Page trees deeper than this are treated as malformed.
	maxTreeDepth = 32
)

// Reader reads page geometry and plain text with ledongthuc/pdf.
type Reader struct{}

func New() *Reader {
	return &Reader{}
}

func (r *Reader) Inspect(_ context.Context, data []byte) (info domain.PageInfo, err error) {
	defer recoverParse(&err)

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.PageInfo{}, fmt.Errorf("open pdf: %w", err)
	}

	count := doc.NumPage()
	if count < 1 {
		return domain.PageInfo{}, fmt.Errorf("pdf has no pages")
	}
	info = domain.PageInfo{
		PageCount:   count,
		PageHeights: make([]float64, 0, count),
		PageWidths:  make([]float64, 0, count),
	}
	for i := 1; i <= count; i++ {
		page := doc.Page(i)
		if page.V.IsNull() {
			return domain.PageInfo{}, fmt.Errorf("page %d missing", i)
		}
		w, h := pageSize(page)
		info.PageWidths = append(info.PageWidths, w)
		info.PageHeights = append(info.PageHeights, h)
	}
	return info, nil
}

func (r *Reader) PageText(_ context.Context, data []byte, page int) (text string, err error) {
	defer recoverParse(&err)

	doc, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	if page < 1 || page > doc.NumPage() {
		return "", domain.NewError(domain.ErrNotFound, "page text", fmt.Sprintf("page %d of %d", page, doc.NumPage()))
	}
	p := doc.Page(page)
	if p.V.IsNull() {
		return "", domain.NewError(domain.ErrNotFound, "page text", fmt.Sprintf("page %d missing", page))
	}
	text, err = p.GetPlainText(nil)
	if err != nil {
		return "", fmt.Errorf("extract page %d text: %w", page, err)
	}
	return strings.TrimSpace(text), nil
}

// pageSize resolves MediaBox through the page tree and falls back to US
// Letter when none is declared.
func pageSize(page pdf.Page) (float64, float64) {
	v := page.V
	for depth := 0; depth < maxTreeDepth && !v.IsNull(); depth++ {
		box := v.Key("MediaBox")
		if w, h, ok := boxSize(box); ok {
			return w, h
		}
		v = v.Key("Parent")
	}
	return letterWidth, letterHeight
}

func boxSize(box pdf.Value) (float64, float64, bool) {
	if box.IsNull() || box.Kind() != pdf.Array || box.Len() != 4 {
		return 0, 0, false
	}
	coords := [4]float64{}
	for i := 0; i < 4; i++ {
		val := box.Index(i)
		switch val.Kind() {
		case pdf.Integer:
			coords[i] = float64(val.Int64())
		case pdf.Real:
			coords[i] = val.Float64()
		default:
			return 0, 0, false
		}
	}
	w := coords[2] - coords[0]
	h := coords[3] - coords[1]
	if w < 0 {
		w = -w
	}
	if h < 0 {
		h = -h
	}
	if w == 0 || h == 0 {
		return 0, 0, false
	}
	return w, h, true
}

// ledongthuc/pdf panics on some malformed inputs.
func recoverParse(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("malformed pdf: %v", r)
	}
}
