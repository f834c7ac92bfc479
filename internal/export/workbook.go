// Package export writes a parsed policy to an xlsx workbook.
package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/toricodesthings/policy-extraction-service/internal/policy"
)

const (
	SheetHeader     = "Dados Gerais"
	SheetVehicles   = "Veículos"
	SheetFinancial  = "Financeiro"
	SheetDeductible = "Franquias"
	SheetSummary    = "Resumo"

	ColumnItem  = "ITEM"
	TotalsLabel = "TOTAL"
)

// Build lays the document out as a workbook. The vehicle sheet is always
// present; the derived sheets only when there is at least one vehicle.
func Build(schema *policy.Schema, doc policy.Document) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := f.SetSheetName("Sheet1", SheetHeader); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, fmt.Errorf("header style: %w", err)
	}
	w := &sheetWriter{f: f, bold: bold}

	headerRow := make([]any, len(schema.Header))
	for i, fld := range schema.Header {
		headerRow[i] = doc.Header.Get(fld.Name).Cell()
	}
	w.table(SheetHeader, schema.HeaderNames(), [][]any{headerRow})

	w.vehicles(SheetVehicles, schema.Vehicle, doc.Vehicles, false)

	if len(doc.Vehicles) > 0 {
		w.vehicles(SheetFinancial, schema.VehicleFields(func(f policy.Field) bool { return f.Money }), doc.Vehicles, false)
		w.vehicles(SheetDeductible, schema.VehicleFields(func(f policy.Field) bool { return f.Group == policy.GroupDeductible }), doc.Vehicles, false)
		w.vehicles(SheetSummary, schema.VehicleFields(func(f policy.Field) bool { return f.Summary }), doc.Vehicles, true)
	}

	if w.err != nil {
		return nil, w.err
	}
	if idx, err := f.GetSheetIndex(SheetHeader); err == nil {
		f.SetActiveSheet(idx)
	}
	return f, nil
}

// Bytes builds the workbook and serialises it.
func Bytes(schema *policy.Schema, doc policy.Document) ([]byte, error) {
	f, err := Build(schema, doc)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}

// sheetWriter keeps the first error so the layout code reads straight through.
type sheetWriter struct {
	f    *excelize.File
	bold int
	err  error
}

func (w *sheetWriter) vehicles(sheet string, cols []policy.Field, recs []policy.Record, totals bool) {
	header := make([]string, 0, len(cols)+1)
	header = append(header, ColumnItem)
	for _, c := range cols {
		header = append(header, c.Name)
	}

	rows := make([][]any, 0, len(recs)+1)
	for _, r := range recs {
		row := make([]any, 0, len(cols)+1)
		row = append(row, r.Item)
		for _, c := range cols {
			row = append(row, r.Get(c.Name).Cell())
		}
		rows = append(rows, row)
	}

	if totals && len(recs) > 0 {
		rows = append(rows, totalsRow(cols, recs))
	}
	w.table(sheet, header, rows)
}

// totalsRow sums numeric premium columns. Coverage limits and non-money
// columns stay blank.
func totalsRow(cols []policy.Field, recs []policy.Record) []any {
	row := make([]any, len(cols)+1)
	row[0] = TotalsLabel
	for i, c := range cols {
		if !c.Money || c.Group != policy.GroupPremium {
			row[i+1] = ""
			continue
		}
		var sum float64
		for _, r := range recs {
			if v := r.Get(c.Name); v.Numeric {
				sum += v.Number
			}
		}
		row[i+1] = sum
	}
	return row
}

func (w *sheetWriter) table(sheet string, header []string, rows [][]any) {
	if w.err != nil {
		return
	}
	if idx, _ := w.f.GetSheetIndex(sheet); idx == -1 {
		if _, err := w.f.NewSheet(sheet); err != nil {
			w.err = fmt.Errorf("new sheet %s: %w", sheet, err)
			return
		}
	}

	hdr := make([]any, len(header))
	for i, h := range header {
		hdr[i] = h
	}
	if err := w.f.SetSheetRow(sheet, "A1", &hdr); err != nil {
		w.err = fmt.Errorf("%s header: %w", sheet, err)
		return
	}
	if len(header) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(header), 1)
		if err := w.f.SetCellStyle(sheet, "A1", last, w.bold); err != nil {
			w.err = fmt.Errorf("%s header style: %w", sheet, err)
			return
		}
		lastCol, _ := excelize.ColumnNumberToName(len(header))
		_ = w.f.SetColWidth(sheet, "A", lastCol, 20)
	}

	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := w.f.SetSheetRow(sheet, cell, &row); err != nil {
			w.err = fmt.Errorf("%s row %d: %w", sheet, i+1, err)
			return
		}
	}
}
