package explain

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Background supplies reference rows in preprocessed feature space.
type Background interface {
	Reference(ctx context.Context) ([][]float64, error)
}

// ReferenceKind records which reference the attribution was measured against.
type ReferenceKind string

const (
	ReferenceSample ReferenceKind = "reference"
	ReferenceInput  ReferenceKind = "input"
	ReferenceZeros  ReferenceKind = "zeros"
)

// NoBackground is used when no reference artifact is configured.
type NoBackground struct{}

func (NoBackground) Reference(context.Context) ([][]float64, error) { return nil, nil }

// StaticBackground serves a fixed set of rows.
type StaticBackground [][]float64

func (s StaticBackground) Reference(context.Context) ([][]float64, error) { return s, nil }

// LoadFileBackground reads a numeric array file. JSON files hold an array of
// rows; CSV files hold one row per line and may start with a header line.
func LoadFileBackground(path string) (StaticBackground, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open background %s: %w", path, err)
	}
	defer f.Close()

	var rows [][]float64
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		rows, err = readJSONRows(f)
	case ".csv":
		rows, err = readCSVRows(f)
	default:
		return nil, fmt.Errorf("background %s: unsupported extension (want .json or .csv)", path)
	}
	if err != nil {
		return nil, fmt.Errorf("background %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("background %s: no rows", path)
	}
	return StaticBackground(rows), nil
}

func readJSONRows(r io.Reader) ([][]float64, error) {
	var rows [][]float64
	if err := json.NewDecoder(r).Decode(&rows); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	return rows, nil
}

func readCSVRows(r io.Reader) ([][]float64, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	var rows [][]float64
	for line := 1; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		row, err := parseRow(record)
		if err != nil {
			if line == 1 && isHeader(record) {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// isHeader reports whether no cell of record is a number.
func isHeader(record []string) bool {
	for _, cell := range record {
		if _, err := strconv.ParseFloat(cell, 64); err == nil {
			return false
		}
	}
	return true
}

func parseRow(record []string) ([]float64, error) {
	row := make([]float64, len(record))
	for i, cell := range record {
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, err
		}
		row[i] = v
	}
	return row, nil
}

// resolveReference picks the rows attributions are measured against:
// background rows of the right width, else the configured fallback. Problems
// are returned as warnings; resolution itself never fails.
func resolveReference(ctx context.Context, bg Background, x []float64, width int, fallback ReferenceKind) ([][]float64, ReferenceKind, []string) {
	var warnings []string

	if bg != nil {
		rows, err := bg.Reference(ctx)
		switch {
		case err != nil:
			warnings = append(warnings, fmt.Sprintf("background reference unavailable: %v", err))
		case len(rows) > 0:
			usable := make([][]float64, 0, len(rows))
			for _, r := range rows {
				if len(r) == width && finite(r) {
					usable = append(usable, r)
				}
			}
			if len(usable) > 0 {
				if len(usable) < len(rows) {
					warnings = append(warnings, fmt.Sprintf("ignored %d background rows that do not match the %d feature columns", len(rows)-len(usable), width))
				}
				return usable, ReferenceSample, warnings
			}
			warnings = append(warnings, fmt.Sprintf("no background row matches the %d feature columns", width))
		}
	}

	warnings = append(warnings, "no background reference available; explanation is approximate")

	if fallback == ReferenceInput && len(x) == width && finite(x) {
		return [][]float64{append([]float64(nil), x...)}, ReferenceInput, warnings
	}
	return [][]float64{make([]float64, width)}, ReferenceZeros, warnings
}

func finite(row []float64) bool {
	for _, v := range row {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
