// Package importer turns inventory spreadsheets into ledger rows.
package importer

import "strings"

// Field is a logical column of an inventory sheet
type Field int

const (
	FieldMedicationID Field = iota
	FieldName
	FieldActiveIngredient
	FieldProvider
	FieldLotCode
	FieldExpiryDate
	FieldQuantity
)

// columnAliases lists the header texts accepted for each field. Matching
// ignores case and surrounding spaces.
var columnAliases = map[Field][]string{
	FieldMedicationID:     {"Cod. Producto", "Código", "Codigo", "ID", "SKU"},
	FieldName:             {"Producto", "Nombre"},
	FieldActiveIngredient: {"Principio Activo", "Principio_Activo"},
	FieldProvider:         {"Proveedor"},
	FieldLotCode:          {"Partida / Talla", "Lote", "Partida", "Talla"},
	FieldExpiryDate:       {"Fecha Venc", "Vence", "Vencimiento", "Fecha de Vencimiento"},
	FieldQuantity:         {"Cantidad", "Qty", "Q"},
}

var aliasIndex = buildAliasIndex()

func buildAliasIndex() map[string]Field {
	idx := make(map[string]Field)
	for field, names := range columnAliases {
		for _, name := range names {
			idx[normalizeHeader(name)] = field
		}
	}
	return idx
}

func normalizeHeader(s string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(s, "\ufeff")))
}

// columns maps each recognised field to its position in the header row
type columns map[Field]int

// resolveColumns reads a header row once. When several headers alias the
// same field the leftmost wins.
func resolveColumns(header []string) columns {
	cols := make(columns)
	for i, h := range header {
		field, ok := aliasIndex[normalizeHeader(h)]
		if !ok {
			continue
		}
		if _, seen := cols[field]; !seen {
			cols[field] = i
		}
	}
	return cols
}

// get returns the trimmed cell of field f, or "" when the column is absent
// or the row is short.
func (c columns) get(row []string, f Field) string {
	i, ok := c[f]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
