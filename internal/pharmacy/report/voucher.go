// Package report renders printable documents of the pharmacy ledger.
package report

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/pkg/i18n"
)

// Voucher renders a committed dispense as an A4 voucher listing every line
// and the lots it was drawn from
type Voucher struct {
	title string
	loc   *time.Location
}

// NewVoucher creates a voucher renderer. title is printed as the letterhead.
func NewVoucher(title string, loc *time.Location) *Voucher {
	if loc == nil {
		loc = time.UTC
	}
	return &Voucher{title: title, loc: loc}
}

// column widths in mm, summing to the printable width
const (
	colMedication = 80.0
	colQuantity   = 20.0
	colUnitPrice  = 40.0
	colSubtotal   = 40.0
	pageWidth     = colMedication + colQuantity + colUnitPrice + colSubtotal
)

// Render writes the voucher PDF to w. Labels follow the locale in ctx.
func (v *Voucher) Render(ctx context.Context, w io.Writer, d *repository.Dispense, lines []repository.DispenseLine) error {
	l := i18n.LocalizerFromContext(ctx)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle(fmt.Sprintf("%s %s", l.T("voucher.number"), d.ID), true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(pageWidth, 8, tr(v.title), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(pageWidth, 6, tr(l.T("voucher.title")), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	field := func(label, value string) {
		pdf.SetFont("Helvetica", "B", 9)
		pdf.CellFormat(35, 5, tr(label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(pageWidth-35, 5, tr(value), "", 1, "L", false, 0, "")
	}
	field(l.T("voucher.number"), d.ID)
	field(l.T("voucher.date"), d.IssueDate.In(v.loc).Format("02/01/2006 15:04"))
	field(l.T("voucher.patient"), d.PatientID)
	field(l.T("voucher.operator"), d.OperatorID)
	if d.CashRegisterID != nil {
		field(l.T("voucher.cash_register"), *d.CashRegisterID)
	}
	pdf.Ln(3)

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(colMedication, 6, tr(l.T("voucher.medication")), "B", 0, "L", false, 0, "")
	pdf.CellFormat(colQuantity, 6, tr(l.T("voucher.quantity")), "B", 0, "C", false, 0, "")
	pdf.CellFormat(colUnitPrice, 6, tr(l.T("voucher.unit_price")), "B", 0, "R", false, 0, "")
	pdf.CellFormat(colSubtotal, 6, tr(l.T("voucher.subtotal")), "B", 1, "R", false, 0, "")

	for _, line := range lines {
		name := line.MedicationID
		if line.MedicationName != nil && *line.MedicationName != "" {
			name = *line.MedicationName
		}

		pdf.SetFont("Helvetica", "", 9)
		pdf.CellFormat(colMedication, 6, tr(name), "", 0, "L", false, 0, "")
		pdf.CellFormat(colQuantity, 6, fmt.Sprintf("%d", line.Quantity), "", 0, "C", false, 0, "")
		pdf.CellFormat(colUnitPrice, 6, "$"+line.UnitPrice.StringFixed(2), "", 0, "R", false, 0, "")
		pdf.CellFormat(colSubtotal, 6, "$"+line.Subtotal.StringFixed(2), "", 1, "R", false, 0, "")

		pdf.SetFont("Helvetica", "I", 8)
		for _, a := range line.Allocations {
			lot := fmt.Sprintf("   %s %s, %s %s: %d",
				l.T("voucher.lot"), a.LotCode, l.T("voucher.expiry"), a.ExpiryDate.String(), a.Quantity)
			pdf.CellFormat(pageWidth, 5, tr(lot), "", 1, "L", false, 0, "")
		}
	}

	pdf.Ln(2)
	pdf.Line(15, pdf.GetY(), 15+pageWidth, pdf.GetY())
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(colMedication+colQuantity+colUnitPrice, 7, tr(l.T("voucher.total")), "", 0, "L", false, 0, "")
	pdf.CellFormat(colSubtotal, 7, "$"+d.TotalValue.StringFixed(2), "", 1, "R", false, 0, "")

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("render voucher %s: %w", d.ID, err)
	}
	return nil
}
