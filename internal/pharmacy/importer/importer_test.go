package importer_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/importer"
	"github.com/saludmunicipal/farmacia-backend/pkg/config"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseExpiry(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		order  string
		want   string
		wantOK bool
	}{
		{name: "excel serial", raw: "45667", order: config.DateOrderDMY, want: "2025-01-10", wantOK: true},
		{name: "excel serial with time fraction", raw: "45667.75", order: config.DateOrderDMY, want: "2025-01-10", wantOK: true},
		{name: "dmy slash", raw: "10/01/2025", order: config.DateOrderDMY, want: "2025-01-10", wantOK: true},
		{name: "dmy dots two digit year", raw: "10.01.25", order: config.DateOrderDMY, want: "2025-01-10", wantOK: true},
		{name: "dmy swapped when month field exceeds 12", raw: "01/13/2025", order: config.DateOrderDMY, want: "2025-01-13", wantOK: true},
		{name: "mdy", raw: "01/10/2025", order: config.DateOrderMDY, want: "2025-01-10", wantOK: true},
		{name: "mdy swapped when month field exceeds 12", raw: "25/01/2025", order: config.DateOrderMDY, want: "2025-01-25", wantOK: true},
		{name: "iso", raw: "2025-01-10", order: config.DateOrderDMY, want: "2025-01-10", wantOK: true},
		{name: "iso with time", raw: "2025-01-10T13:45:00", order: config.DateOrderDMY, want: "2025-01-10", wantOK: true},
		{name: "ymd slash", raw: "2025/1/9", order: config.DateOrderDMY, want: "2025-01-09", wantOK: true},
		{name: "dmy dashes with time", raw: "10-01-2025 00:00", order: config.DateOrderDMY, want: "2025-01-10", wantOK: true},
		{name: "impossible day", raw: "31/02/2025", order: config.DateOrderDMY, wantOK: false},
		{name: "both fields above 12", raw: "13/13/2025", order: config.DateOrderDMY, wantOK: false},
		{name: "text", raw: "sin fecha", order: config.DateOrderDMY, wantOK: false},
		{name: "empty", raw: "  ", order: config.DateOrderDMY, wantOK: false},
		{name: "zero serial", raw: "0", order: config.DateOrderDMY, wantOK: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := importer.ParseExpiry(tt.raw, tt.order)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got.String())
			}
		})
	}
}

func TestParseQuantity(t *testing.T) {
	assert.Equal(t, 12, importer.ParseQuantity("12"))
	assert.Equal(t, 3, importer.ParseQuantity(" 3.0 "))
	assert.Equal(t, 1, importer.ParseQuantity(""))
	assert.Equal(t, 1, importer.ParseQuantity("abc"))
	assert.Equal(t, 1, importer.ParseQuantity("0"))
	assert.Equal(t, 1, importer.ParseQuantity("-4"))
	assert.Equal(t, importer.MaxQuantity, importer.ParseQuantity("2147483647"))
	assert.Equal(t, importer.MaxQuantity+1, importer.ParseQuantity("9e30"))
	assert.Equal(t, importer.MaxQuantity+1, importer.ParseQuantity("+Inf"))
}

func TestRead_CSV(t *testing.T) {
	content := "\ufeffCod. Producto;Producto;Principio Activo;Proveedor;Lote;Fecha Venc;Cantidad\n" +
		"AMOX;Amoxicilina 500mg;amoxicilina;Cenabast;L1;10/01/2025;5\n" +
		";;;;;;\n" +
		"PARA;Paracetamol;;;P1;2026-03-01;\n"

	rows, err := importer.Read(strings.NewReader(content), "stock.csv", importer.Options{DateOrder: config.DateOrderDMY})

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, importer.Row{
		Line:             2,
		MedicationID:     "AMOX",
		Name:             "Amoxicilina 500mg",
		ActiveIngredient: "amoxicilina",
		Provider:         "Cenabast",
		LotCode:          "L1",
		Expiry:           rows[0].Expiry,
		Quantity:         5,
	}, rows[0])
	assert.Equal(t, "2025-01-10", rows[0].Expiry.String())
	assert.Equal(t, 4, rows[1].Line)
	assert.Equal(t, 1, rows[1].Quantity)
}

func TestRead_CSVAliasesAndCase(t *testing.T) {
	content := "sku , NOMBRE,Partida / Talla,Vencimiento,Qty,Extra\n" +
		"IBU,Ibuprofeno,X-9,01/02/2027,7,ignored\n"

	rows, err := importer.Read(strings.NewReader(content), "stock.CSV", importer.Options{DateOrder: config.DateOrderDMY})

	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "IBU", rows[0].MedicationID)
	assert.Equal(t, "X-9", rows[0].LotCode)
	assert.Equal(t, "2027-02-01", rows[0].Expiry.String())
	assert.Equal(t, 7, rows[0].Quantity)
}

func TestRead_XLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]interface{}{"Código", "Nombre", "Lote", "Fecha Venc", "Cantidad"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]interface{}{"AMOX", "Amoxicilina", "L1", 45667, 5}))
	require.NoError(t, f.SetSheetRow(sheet, "A3", &[]interface{}{"AMOX", "Amoxicilina", "L2", "01/02/2025", 10}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	// no extension: detected from the zip signature
	rows, err := importer.Read(bytes.NewReader(buf.Bytes()), "upload", importer.Options{DateOrder: config.DateOrderDMY})

	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "2025-01-10", rows[0].Expiry.String())
	assert.Equal(t, 5, rows[0].Quantity)
	assert.Equal(t, "2025-02-01", rows[1].Expiry.String())
	assert.Equal(t, 10, rows[1].Quantity)
}

func TestRead_UnsupportedFormat(t *testing.T) {
	_, err := importer.Read(strings.NewReader("%PDF-1.4"), "stock.pdf", importer.Options{})
	assert.Equal(t, errors.CodeBadRequest, errors.CodeOf(err))
}

func TestGroupRows(t *testing.T) {
	jan10, _ := importer.ParseExpiry("2025-01-10", config.DateOrderDMY)
	feb01, _ := importer.ParseExpiry("2025-02-01", config.DateOrderDMY)

	rows := []importer.Row{
		{MedicationID: "AMOX", LotCode: "L1", Expiry: jan10, Quantity: 5},
		{MedicationID: "AMOX", Name: "Amoxicilina", LotCode: "L1", Expiry: jan10, Quantity: 3, Provider: "Cenabast"},
		{MedicationID: "AMOX", LotCode: "L1", Expiry: feb01, Quantity: 2},
		{MedicationID: "PARA", LotCode: "P1", Expiry: feb01, Quantity: 1},
		{MedicationID: "", LotCode: "X", Expiry: jan10, Quantity: 1},
		{MedicationID: "IBU", LotCode: "", Expiry: jan10, Quantity: 1},
		{MedicationID: "IBU", LotCode: "I1", Quantity: 1},
	}

	batch, err := importer.GroupRows(rows)
	require.NoError(t, err)

	assert.Equal(t, 7, batch.RowsTotal)
	assert.Equal(t, 3, batch.Skipped)
	require.Len(t, batch.Groups, 3)
	assert.Equal(t, 8, batch.Groups[0].Quantity)
	assert.Equal(t, "Amoxicilina", batch.Groups[0].Name)
	assert.Equal(t, "Cenabast", batch.Groups[0].Provider)
	assert.Equal(t, 2, batch.Groups[1].Quantity)
	assert.Equal(t, "PARA", batch.Groups[2].MedicationID)
	assert.Equal(t, []string{"AMOX", "PARA"}, batch.MedicationIDs())
}

func TestGroupRows_RejectsQuantityAboveColumnRange(t *testing.T) {
	jan10, _ := importer.ParseExpiry("2025-01-10", config.DateOrderDMY)

	tests := []struct {
		name string
		rows []importer.Row
	}{
		{
			name: "single row",
			rows: []importer.Row{
				{Line: 2, MedicationID: "AMOX", LotCode: "L1", Expiry: jan10, Quantity: importer.ParseQuantity("1e12")},
			},
		},
		{
			name: "group sum",
			rows: []importer.Row{
				{Line: 2, MedicationID: "AMOX", LotCode: "L1", Expiry: jan10, Quantity: importer.MaxQuantity},
				{Line: 3, MedicationID: "AMOX", LotCode: "L1", Expiry: jan10, Quantity: 1},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := importer.GroupRows(tt.rows)

			var appErr *errors.AppError
			require.True(t, errors.As(err, &appErr))
			assert.Equal(t, errors.CodeValidation, appErr.Code)
			assert.Equal(t, "errors.quantity_too_large", appErr.MessageKey)
			assert.Contains(t, appErr.Details, "quantity")
		})
	}
}
