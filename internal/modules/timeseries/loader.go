package timeseries

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
)

// LoadCSV reads a return panel from a CSV file. The first column is the
// date, the remaining column headers are symbols, and every cell must be
// a finite float.
func LoadCSV(path string) (Panel, error) {
	f, err := os.Open(path)
	if err != nil {
		return Panel{}, fmt.Errorf("failed to open returns file: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	rows, err := reader.ReadAll()
	if err != nil {
		return Panel{}, fmt.Errorf("failed to parse returns file: %w", err)
	}
	if len(rows) < 2 {
		return Panel{}, fmt.Errorf("returns file %s has no data rows", path)
	}

	header := rows[0]
	if len(header) < 2 {
		return Panel{}, fmt.Errorf("returns file %s needs a date column and at least one symbol", path)
	}
	symbols := header[1:]

	dates := make([]string, 0, len(rows)-1)
	data := make(map[string][]float64, len(symbols))
	for _, symbol := range symbols {
		data[symbol] = make([]float64, 0, len(rows)-1)
	}

	for rowIdx, row := range rows[1:] {
		if len(row) != len(header) {
			return Panel{}, fmt.Errorf("row %d has %d columns, expected %d", rowIdx+2, len(row), len(header))
		}
		dates = append(dates, row[0])
		for i, symbol := range symbols {
			v, err := strconv.ParseFloat(row[i+1], 64)
			if err != nil {
				return Panel{}, fmt.Errorf("row %d, column %s: %w", rowIdx+2, symbol, err)
			}
			data[symbol] = append(data[symbol], v)
		}
	}

	return New(dates, symbols, data)
}
