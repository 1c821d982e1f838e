package xlsx

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/kirillkom/property-desk/internal/core/domain"
)

const sheetName = "Answers"

var header = []any{"Question ID", "Question", "Answer", "Option", "Answered At"}

// Exporter writes recorded answers as a single-sheet workbook.
type Exporter struct{}

func New() *Exporter {
	return &Exporter{}
}

func (e *Exporter) ExportAnswers(ctx context.Context, doc *domain.WorkingDocument, answers []domain.RecordedAnswer, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetDocProps(&excelize.DocProperties{
		Title:   doc.Name,
		Subject: doc.TemplateID,
		Creator: "property-desk",
	}); err != nil {
		return fmt.Errorf("set properties: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(sheetName, "A1", "E1", bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	for i, a := range answers {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{a.QuestionID, a.QuestionText, a.Value, a.Option, a.AnsweredAt.UTC().Format(time.RFC3339)}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return fmt.Errorf("write answer %s: %w", a.QuestionID, err)
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 18); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "B", "B", 48); err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "C", "E", 24); err != nil {
		return err
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"}); err != nil {
		return fmt.Errorf("freeze header: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
