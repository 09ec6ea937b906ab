package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/katalvlaran/lvlake/predict"
)

// WriteTable writes tbl as CSV: Header() then Rows(). Month and year are
// written as integers, everything else in shortest float form.
func WriteTable(w io.Writer, tbl *predict.Table) error {
	cw := csv.NewWriter(w)
	header := tbl.Header()
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("ingest: write header: %w", err)
	}
	record := make([]string, len(header))
	for _, row := range tbl.Rows() {
		for j, v := range row {
			if header[j] == "month" || header[j] == "year" {
				record[j] = strconv.Itoa(int(v))
				continue
			}
			record[j] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("ingest: write row: %w", err)
		}
	}
	cw.Flush()

	return cw.Error()
}

// WriteTableFile creates path and writes tbl to it.
func WriteTableFile(path string, tbl *predict.Table) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	return WriteTable(f, tbl)
}
