package extract

import (
	"fmt"
	"io"
	"time"

	"github.com/jackc/pgx/v5/pgtype"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go-source/writerfile"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/writer"
)

// WriteParquet streams rows as a snappy-compressed parquet file. T must carry
// parquet struct tags.
func WriteParquet[T any](w io.Writer, rows []T) error {
	fw := writerfile.NewWriterFile(w)
	pw, err := writer.NewParquetWriter(fw, new(T), 1)
	if err != nil {
		return fmt.Errorf("extract: parquet schema: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY
	for i := range rows {
		if err := pw.Write(&rows[i]); err != nil {
			_ = pw.WriteStop()
			return fmt.Errorf("extract: parquet write: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("extract: parquet flush: %w", err)
	}
	return nil
}

// ReadParquet loads every row of a parquet file written with the T layout.
func ReadParquet[T any](path string) ([]T, error) {
	fr, err := local.NewLocalFileReader(path)
	if err != nil {
		return nil, openError(path, err)
	}
	defer fr.Close()

	pr, err := reader.NewParquetReader(fr, new(T), 4)
	if err != nil {
		return nil, fmt.Errorf("extract: parquet open %s: %w", path, err)
	}
	defer pr.ReadStop()

	rows := make([]T, int(pr.GetNumRows()))
	if len(rows) == 0 {
		return rows, nil
	}
	if err := pr.Read(&rows); err != nil {
		return nil, fmt.Errorf("extract: parquet read %s: %w", path, err)
	}
	return rows, nil
}

const secondsPerDay = 24 * 60 * 60

// EpochDays converts a date to the parquet DATE encoding, days since the Unix
// epoch. Invalid dates are null.
func EpochDays(d pgtype.Date) *int32 {
	if !d.Valid {
		return nil
	}
	days := int32(d.Time.Unix() / secondsPerDay)
	return &days
}

// EpochDate is the inverse of EpochDays.
func EpochDate(days *int32) pgtype.Date {
	if days == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: time.Unix(int64(*days)*secondsPerDay, 0).UTC(), Valid: true}
}
