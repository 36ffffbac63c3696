package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/saludmunicipal/farmacia-backend/internal/pharmacy/repository"
	"github.com/saludmunicipal/farmacia-backend/pkg/errors"
	"github.com/xuri/excelize/v2"
)

// Format of an uploaded sheet
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
)

// Row is one data row of a sheet after column resolution. Expiry is zero
// when the cell is missing or unparseable.
type Row struct {
	Line             int
	MedicationID     string
	Name             string
	ActiveIngredient string
	Provider         string
	LotCode          string
	Expiry           repository.Date
	Quantity         int
}

// Options tunes how cells are interpreted
type Options struct {
	DateOrder string
}

// DetectFormat picks the reader from the file name, falling back to the
// zip signature of xlsx files.
func DetectFormat(filename string, head []byte) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatXLSX, nil
	case ".csv", ".txt":
		return FormatCSV, nil
	}
	if bytes.HasPrefix(head, []byte("PK\x03\x04")) {
		return FormatXLSX, nil
	}
	return "", errors.BadRequest(fmt.Sprintf("unsupported file type %q: upload an .xlsx or .csv file", filepath.Ext(filename)))
}

// Read parses the first sheet of an xlsx workbook or a CSV file
func Read(r io.Reader, filename string, opts Options) ([]Row, error) {
	br := bufio.NewReader(r)
	head, _ := br.Peek(4)

	format, err := DetectFormat(filename, head)
	if err != nil {
		return nil, err
	}

	var cells [][]string
	switch format {
	case FormatXLSX:
		cells, err = readXLSX(br)
	default:
		cells, err = readCSV(br)
	}
	if err != nil {
		return nil, err
	}

	return toRows(cells, opts), nil
}

func readXLSX(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, errors.BadRequest("the file is not a readable xlsx workbook").WithCause(err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.BadRequest("the workbook has no sheets")
	}

	// raw values keep date cells as Excel serial numbers
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, errors.BadRequest("failed to read the first sheet").WithCause(err)
	}
	return rows, nil
}

func readCSV(r *bufio.Reader) ([][]string, error) {
	first, _ := r.Peek(4096)
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true
	// spreadsheets exported with a Spanish locale use ";"
	if line, _, _ := bytes.Cut(first, []byte("\n")); bytes.Count(line, []byte(";")) > bytes.Count(line, []byte(",")) {
		cr.Comma = ';'
	}

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, errors.BadRequest("the file is not valid CSV").WithCause(err)
	}
	return rows, nil
}

// toRows resolves the header once, then maps every non-blank row
func toRows(cells [][]string, opts Options) []Row {
	headerAt := -1
	for i, row := range cells {
		if !blank(row) {
			headerAt = i
			break
		}
	}
	if headerAt < 0 {
		return nil
	}

	cols := resolveColumns(cells[headerAt])
	rows := make([]Row, 0, len(cells)-headerAt-1)
	for i := headerAt + 1; i < len(cells); i++ {
		raw := cells[i]
		if blank(raw) {
			continue
		}

		row := Row{
			Line:             i + 1,
			MedicationID:     cols.get(raw, FieldMedicationID),
			Name:             cols.get(raw, FieldName),
			ActiveIngredient: cols.get(raw, FieldActiveIngredient),
			Provider:         cols.get(raw, FieldProvider),
			LotCode:          cols.get(raw, FieldLotCode),
			Quantity:         ParseQuantity(cols.get(raw, FieldQuantity)),
		}
		if expiry, ok := ParseExpiry(cols.get(raw, FieldExpiryDate), opts.DateOrder); ok {
			row.Expiry = expiry
		}
		rows = append(rows, row)
	}
	return rows
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
