// Package export writes index series to columnar files.
package export

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/seenimoa/moexidx/pkg/models"
	"github.com/seenimoa/moexidx/pkg/utils"
)

// SeriesRow is one parquet row of an exported index series.
type SeriesRow struct {
	IndexID   int64    `parquet:"name=index_id, type=INT64, encoding=PLAIN_DICTIONARY"`
	Date      string   `parquet:"name=date, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	Year      int32    `parquet:"name=year, type=INT32, encoding=PLAIN_DICTIONARY"`
	Value     float64  `parquet:"name=value, type=DOUBLE, encoding=PLAIN"`
	Benchmark *float64 `parquet:"name=benchmark, type=DOUBLE, repetitiontype=OPTIONAL"`
}

// WriteSeries writes the series of an index to a GZIP-compressed parquet
// file at path.
func WriteSeries(path string, indexID int64, pts []models.IndexPoint) error {
	fw, err := local.NewLocalFileWriter(path)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewParquetWriter(fw, new(SeriesRow), 4)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_GZIP
	pw.PageSize = 8 * 1024

	for _, p := range pts {
		row := SeriesRow{
			IndexID:   indexID,
			Date:      utils.FormatDate(p.Date),
			Year:      int32(p.Date.Year()),
			Value:     p.Value,
			Benchmark: p.Benchmark,
		}
		if err := pw.Write(row); err != nil {
			return fmt.Errorf("write parquet row: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet file: %w", err)
	}

	log.Info().Int64("index", indexID).Int("rows", len(pts)).Str("path", path).Msg("export: series written")
	return nil
}
