package export

import (
	"io"

	"github.com/xuri/excelize/v2"

	"riskaccept/internal/acceptance/models"
)

const sheetName = "Risk Acceptances"

// WriteXLSX writes the register as a single-sheet workbook.
func WriteXLSX(w io.Writer, views []*models.View) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}
	if err := writeHeader(f, Headers); err != nil {
		return err
	}
	for i, v := range views {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := Row(v)
		values := make([]any, len(row))
		for j, field := range row {
			values[j] = field
		}
		if v.Breach != nil && v.RiskID != nil {
			// Keep the score numeric so spreadsheets can sort and filter on it.
			values[7] = v.Breach.Score
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return err
		}
	}
	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}

func writeHeader(f *excelize.File, headers []string) error {
	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, "A1", last, style); err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(headers))
	if err != nil {
		return err
	}
	if err := f.SetColWidth(sheetName, "A", lastCol, 22); err != nil {
		return err
	}
	values := make([]any, len(headers))
	for i, h := range headers {
		values[i] = h
	}
	return f.SetSheetRow(sheetName, "A1", &values)
}
