package tableio

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"klineforge/internal/domain"
)

// SaveRawRows writes exchange rows as CSV with the raw field names as header.
// Cells are written as received, so LoadRawRows followed by ingestion yields
// the same bars.
func SaveRawRows(rows []domain.RawRow, path string) error {
	return writeFile(path, func(w io.Writer) error { return writeRawRows(w, rows) })
}

func writeRawRows(w io.Writer, rows []domain.RawRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(domain.RawFieldNames[:]); err != nil {
		return err
	}
	for i, row := range rows {
		if len(row) != domain.RawFieldCount {
			return fmt.Errorf("row %d: expected %d fields, got %d: %w", i, domain.RawFieldCount, len(row), domain.ErrSchema)
		}
		record := make([]string, len(row))
		for j, cell := range row {
			record[j] = cellStr(cell)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// LoadRawRows reads a file written by SaveRawRows. Every cell comes back as a
// string.
func LoadRawRows(path string) ([]domain.RawRow, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = domain.RawFieldCount
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %v: %w", err, domain.ErrSchema)
	}
	for j, name := range domain.RawFieldNames {
		if header[j] != name {
			return nil, fmt.Errorf("header column %d is %q, expected %q: %w", j, header[j], name, domain.ErrSchema)
		}
	}

	var rows []domain.RawRow
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %v: %w", line, err, domain.ErrSchema)
		}
		row := make(domain.RawRow, len(record))
		for j, cell := range record {
			row[j] = cell
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func cellStr(cell any) string {
	switch v := cell.(type) {
	case nil:
		return ""
	case string:
		return v
	case json.Number:
		return v.String()
	case int64:
		return strconv.FormatInt(v, 10)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprint(v)
	}
}
