package xlsx

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/DanielNoblero/consultorios-app/internal/app/closing"
)

const (
	SheetName     = "Reporte Mensual"
	defaultSheet  = "Sheet1"
	lastColumn    = "E"
	columnWidth   = 16
	sectionColor  = "4169E1"
	headerColor   = "E0E0E0"
	subtotalColor = "CCFFCC"
	totalColor    = "228B22"
)

var header = []any{"Consultorio", "Fecha", "Hora Inicio", "Hora Fin", "Precio"}

// Renderer writes a closing report as a single sheet workbook: one block
// per owner with its lines and subtotal, then the grand total.
type Renderer struct{}

type styles struct {
	title, section, header, subtotal, total int
}

func (Renderer) Render(ctx context.Context, report closing.Report) (closing.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return closing.Artifact{}, err
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName(defaultSheet, SheetName); err != nil {
		return closing.Artifact{}, fmt.Errorf("xlsx: sheet: %w", err)
	}
	if err := f.SetColWidth(SheetName, "A", lastColumn, columnWidth); err != nil {
		return closing.Artifact{}, fmt.Errorf("xlsx: widths: %w", err)
	}
	st, err := newStyles(f)
	if err != nil {
		return closing.Artifact{}, err
	}

	w := &sheetWriter{f: f}
	w.row(st.title, fmt.Sprintf("Reporte %s", report.Period))
	if report.Empty() {
		w.blank()
		w.row(st.title, closing.NoPaidBookings)
	}
	for _, section := range report.Sections {
		w.blank()
		w.row(st.section, fmt.Sprintf("=== %s ===", section.OwnerName))
		w.row(st.header, header...)
		for _, line := range section.Lines {
			w.row(0, line.Room, line.Date.String(), line.StartTime, line.EndTime, line.Price.Int64())
		}
		w.row(st.subtotal, fmt.Sprintf("TOTAL PROFESIONAL: %d", section.Subtotal.Int64()))
	}
	w.blank()
	w.row(st.total, fmt.Sprintf("TOTAL GENERAL GENERADO: %d", report.GrandTotal.Int64()))
	if w.err != nil {
		return closing.Artifact{}, fmt.Errorf("xlsx: write: %w", w.err)
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return closing.Artifact{}, fmt.Errorf("xlsx: encode: %w", err)
	}
	return closing.Artifact{
		Body:        buf.Bytes(),
		ContentType: closing.SpreadsheetContentType,
		Filename:    closing.Filename(report.Period),
	}, nil
}

func newStyles(f *excelize.File) (styles, error) {
	var st styles
	defs := []struct {
		dst  *int
		font excelize.Font
		fill string
	}{
		{&st.title, excelize.Font{Bold: true, Size: 13}, ""},
		{&st.section, excelize.Font{Bold: true, Color: "FFFFFF"}, sectionColor},
		{&st.header, excelize.Font{Bold: true}, headerColor},
		{&st.subtotal, excelize.Font{Bold: true, Color: "006400"}, subtotalColor},
		{&st.total, excelize.Font{Bold: true, Color: "FFFFFF"}, totalColor},
	}
	for _, d := range defs {
		font := d.font
		style := &excelize.Style{Font: &font}
		if d.fill != "" {
			style.Fill = excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{d.fill}}
		}
		id, err := f.NewStyle(style)
		if err != nil {
			return styles{}, fmt.Errorf("xlsx: style: %w", err)
		}
		*d.dst = id
	}
	return st, nil
}

// sheetWriter appends rows and keeps the first error.
type sheetWriter struct {
	f   *excelize.File
	n   int
	err error
}

func (w *sheetWriter) blank() {
	w.n++
}

func (w *sheetWriter) row(style int, values ...any) {
	if w.err != nil {
		return
	}
	w.n++
	first, err := excelize.CoordinatesToCellName(1, w.n)
	if err != nil {
		w.err = err
		return
	}
	if err := w.f.SetSheetRow(SheetName, first, &values); err != nil {
		w.err = err
		return
	}
	if style == 0 {
		return
	}
	last := fmt.Sprintf("%s%d", lastColumn, w.n)
	w.err = w.f.SetCellStyle(SheetName, first, last, style)
}
