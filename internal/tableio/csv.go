package tableio

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"time"

	"klineforge/internal/domain"
)

// CSVCodec writes one header row followed by one row per bar. Base bar
// fields come first, then feature columns in insertion order. Undefined
// values are written as empty cells.
type CSVCodec struct{}

func (CSVCodec) Extension() string { return "csv" }

func (CSVCodec) Save(s *domain.Series, path string) error {
	return writeFile(path, func(w io.Writer) error { return writeSeriesCSV(w, s) })
}

func writeSeriesCSV(w io.Writer, s *domain.Series) error {
	writer := csv.NewWriter(w)

	features := s.Columns()
	header := append(append([]string{}, domain.BaseColumns...), features...)
	if err := writer.Write(header); err != nil {
		return err
	}

	cols := make([][]float64, len(features))
	for j, name := range features {
		cols[j], _ = s.Column(name)
	}

	record := make([]string, len(header))
	for i, b := range s.Bars {
		record[0] = b.OpenTime.UTC().Format(time.RFC3339Nano)
		record[1] = b.CloseTime.UTC().Format(time.RFC3339Nano)
		record[2] = floatStr(b.Open)
		record[3] = floatStr(b.High)
		record[4] = floatStr(b.Low)
		record[5] = floatStr(b.Close)
		record[6] = floatStr(b.Volume)
		record[7] = floatStr(b.QuoteAssetVolume)
		record[8] = ""
		if n, ok := b.Trades(); ok {
			record[8] = strconv.FormatInt(n, 10)
		}
		record[9] = floatStr(b.TakerBuyBase)
		record[10] = floatStr(b.TakerBuyQuote)
		for j, col := range cols {
			record[len(domain.BaseColumns)+j] = floatStr(col[i])
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func (CSVCodec) Load(path string) (*domain.Series, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < len(domain.BaseColumns) {
		return nil, fmt.Errorf("header has %d columns, need at least %d: %w", len(header), len(domain.BaseColumns), domain.ErrSchema)
	}
	for j, name := range domain.BaseColumns {
		if header[j] != name {
			return nil, fmt.Errorf("header column %d is %q, expected %q: %w", j, header[j], name, domain.ErrSchema)
		}
	}
	features := header[len(domain.BaseColumns):]
	cols := make([][]float64, len(features))

	var bars []domain.Bar
	for line := 2; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %v: %w", line, err, domain.ErrSchema)
		}
		bar, err := parseBarRecord(record)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		bars = append(bars, bar)
		for j := range features {
			cols[j] = append(cols[j], parseFloat(record[len(domain.BaseColumns)+j]))
		}
	}

	s := domain.NewSeries("", "", bars)
	for j, name := range features {
		if cols[j] == nil {
			cols[j] = []float64{}
		}
		if err := s.SetColumn(name, cols[j]); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func parseBarRecord(record []string) (domain.Bar, error) {
	openTime, err := time.Parse(time.RFC3339Nano, record[0])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("column open_time: %v: %w", err, domain.ErrTimeParse)
	}
	closeTime, err := time.Parse(time.RFC3339Nano, record[1])
	if err != nil {
		return domain.Bar{}, fmt.Errorf("column close_time: %v: %w", err, domain.ErrTimeParse)
	}
	bar := domain.Bar{
		OpenTime:         openTime.UTC(),
		CloseTime:        closeTime.UTC(),
		Open:             parseFloat(record[2]),
		High:             parseFloat(record[3]),
		Low:              parseFloat(record[4]),
		Close:            parseFloat(record[5]),
		Volume:           parseFloat(record[6]),
		QuoteAssetVolume: parseFloat(record[7]),
		TakerBuyBase:     parseFloat(record[9]),
		TakerBuyQuote:    parseFloat(record[10]),
	}
	if record[8] != "" {
		n, err := strconv.ParseInt(record[8], 10, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("column number_of_trades: %v: %w", err, domain.ErrSchema)
		}
		bar.NumberOfTrades = &n
	}
	return bar, nil
}

func floatStr(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloat(cell string) float64 {
	if cell == "" {
		return domain.Undefined()
	}
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return domain.Undefined()
	}
	return f
}
