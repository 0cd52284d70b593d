package metrics

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// read1D parses an AFNI .1D text file: one row of whitespace-separated
// floats per line, '#' lines ignored.
func read1D(path string) ([][]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows [][]float64
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		row := make([]float64, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("%s: bad value %q: %w", path, field, err)
			}
			row[i] = v
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

// column flattens single-column rows into one series.
func column(rows [][]float64, idx int) ([]float64, error) {
	out := make([]float64, len(rows))
	for i, row := range rows {
		if idx >= len(row) {
			return nil, fmt.Errorf("row %d has %d columns, need %d", i, len(row), idx+1)
		}
		out[i] = row[idx]
	}
	return out, nil
}

// write1D writes one float per line.
func write1D(path string, vals []float64) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, v := range vals {
		fmt.Fprintf(w, "%.6f\n", v)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
