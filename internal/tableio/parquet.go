package tableio

import (
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"

	"klineforge/internal/domain"
)

// featureValue is one named feature cell; Value is null when undefined.
type featureValue struct {
	Name  string   `parquet:"name"`
	Value *float64 `parquet:"value,optional"`
}

// barRow is the on-disk layout of one bar and its features.
type barRow struct {
	Symbol           string         `parquet:"symbol"`
	Interval         string         `parquet:"interval"`
	OpenTime         int64          `parquet:"open_time"` // Unix milliseconds
	CloseTime        int64          `parquet:"close_time"`
	Open             float64        `parquet:"open"`
	High             float64        `parquet:"high"`
	Low              float64        `parquet:"low"`
	Close            float64        `parquet:"close"`
	Volume           float64        `parquet:"volume"`
	QuoteAssetVolume float64        `parquet:"quote_asset_volume"`
	NumberOfTrades   *int64         `parquet:"number_of_trades,optional"`
	TakerBuyBase     float64        `parquet:"taker_buy_base"`
	TakerBuyQuote    float64        `parquet:"taker_buy_quote"`
	Features         []featureValue `parquet:"features"`
}

// ParquetCodec stores one row per bar with the features as a repeated group,
// so the column set survives a round trip unchanged.
type ParquetCodec struct{}

func (ParquetCodec) Extension() string { return "parquet" }

func (ParquetCodec) Save(s *domain.Series, path string) error {
	features := s.Columns()
	cols := make([][]float64, len(features))
	for j, name := range features {
		cols[j], _ = s.Column(name)
	}

	rows := make([]barRow, len(s.Bars))
	for i, b := range s.Bars {
		row := barRow{
			Symbol:           s.Symbol,
			Interval:         s.Interval,
			OpenTime:         b.OpenTime.UnixMilli(),
			CloseTime:        b.CloseTime.UnixMilli(),
			Open:             b.Open,
			High:             b.High,
			Low:              b.Low,
			Close:            b.Close,
			Volume:           b.Volume,
			QuoteAssetVolume: b.QuoteAssetVolume,
			NumberOfTrades:   b.NumberOfTrades,
			TakerBuyBase:     b.TakerBuyBase,
			TakerBuyQuote:    b.TakerBuyQuote,
			Features:         make([]featureValue, len(features)),
		}
		for j, name := range features {
			row.Features[j].Name = name
			if v := cols[j][i]; !domain.IsUndefined(v) {
				row.Features[j].Value = &v
			}
		}
		rows[i] = row
	}
	return writeFile(path, func(w io.Writer) error { return parquet.Write(w, rows) })
}

func (ParquetCodec) Load(path string) (*domain.Series, error) {
	rows, err := parquet.ReadFile[barRow](path)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return domain.NewSeries("", "", nil), nil
	}

	features := make([]string, len(rows[0].Features))
	for j, f := range rows[0].Features {
		features[j] = f.Name
	}
	cols := make([][]float64, len(features))
	for j := range cols {
		cols[j] = make([]float64, len(rows))
	}

	bars := make([]domain.Bar, len(rows))
	for i, row := range rows {
		if len(row.Features) != len(features) {
			return nil, fmt.Errorf("row %d has %d features, expected %d: %w", i, len(row.Features), len(features), domain.ErrSchema)
		}
		bars[i] = domain.Bar{
			OpenTime:         time.UnixMilli(row.OpenTime).UTC(),
			CloseTime:        time.UnixMilli(row.CloseTime).UTC(),
			Open:             row.Open,
			High:             row.High,
			Low:              row.Low,
			Close:            row.Close,
			Volume:           row.Volume,
			QuoteAssetVolume: row.QuoteAssetVolume,
			NumberOfTrades:   row.NumberOfTrades,
			TakerBuyBase:     row.TakerBuyBase,
			TakerBuyQuote:    row.TakerBuyQuote,
		}
		for j, f := range row.Features {
			if f.Name != features[j] {
				return nil, fmt.Errorf("row %d feature %d is %q, expected %q: %w", i, j, f.Name, features[j], domain.ErrSchema)
			}
			cols[j][i] = domain.Undefined()
			if f.Value != nil {
				cols[j][i] = *f.Value
			}
		}
	}

	s := domain.NewSeries(rows[0].Symbol, rows[0].Interval, bars)
	for j, name := range features {
		if err := s.SetColumn(name, cols[j]); err != nil {
			return nil, err
		}
	}
	return s, nil
}
