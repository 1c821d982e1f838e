package pdfcpu

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

const (
	textFont = "Helvetica"
	// ZapfDingbats "4" renders a check mark.
	checkFont  = "ZapfDingbats"
	checkGlyph = "4"
)

// Stamper draws answer marks as opaque page stamps. Existing page content is
// kept, so repeated stamping accumulates layers.
type Stamper struct {
	conf *model.Configuration
}

func New() *Stamper {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &Stamper{conf: conf}
}

func (s *Stamper) Stamp(ctx context.Context, data []byte, marks []domain.Mark) ([]byte, error) {
	if len(marks) == 0 {
		return data, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	byPage := make(map[int][]*model.Watermark)
	for _, m := range marks {
		wm, err := watermarkFor(m)
		if err != nil {
			return nil, fmt.Errorf("page %d mark: %w", m.Page, err)
		}
		byPage[m.Page] = append(byPage[m.Page], wm)
	}

	var out bytes.Buffer
	if err := api.AddWatermarksSliceMap(bytes.NewReader(data), &out, byPage, s.conf); err != nil {
		return nil, fmt.Errorf("stamp pdf: %w", err)
	}
	return out.Bytes(), nil
}

// PageCount is used by tooling to sanity check stamped output.
func (s *Stamper) PageCount(data []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(data), s.conf)
	if err != nil {
		return 0, fmt.Errorf("page count: %w", err)
	}
	return n, nil
}

func watermarkFor(m domain.Mark) (*model.Watermark, error) {
	font, text := textFont, m.Text
	if m.Checkmark {
		font, text = checkFont, checkGlyph
	}
	return api.TextWatermark(text, describe(font, m), true, false, types.POINTS)
}

func describe(font string, m domain.Mark) string {
	points := int(math.Round(m.FontSize))
	if points < 1 {
		points = 1
	}
	return fmt.Sprintf(
		"font:%s, points:%d, pos:bl, off:%.2f %.2f, scale:1 abs, rot:0, fillcolor:#000000, opacity:1",
		font, points, m.X, m.Y,
	)
}
