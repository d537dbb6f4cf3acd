package explain

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileBackground(t *testing.T) {
	testCases := []struct {
		name    string
		file    string
		content string
		rows    int
	}{
		{"json", "bg.json", `[[0,1,2],[3,4,5]]`, 2},
		{"csv", "bg.csv", "0,1,2\n3,4,5\n6,7,8\n", 3},
		{"csv with header", "bg.csv", "num__age,cat__x,der__y\n0,1,2\n", 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			bg, err := LoadFileBackground(writeFile(t, tc.file, tc.content))
			if err != nil {
				t.Fatalf("LoadFileBackground() failed: %v", err)
			}
			if len(bg) != tc.rows {
				t.Errorf("got %d rows, want %d", len(bg), tc.rows)
			}
		})
	}
}

func TestLoadFileBackground_Errors(t *testing.T) {
	testCases := []struct {
		name string
		path func(t *testing.T) string
	}{
		{"missing file", func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.json") }},
		{"bad extension", func(t *testing.T) string { return writeFile(t, "bg.npy", "xx") }},
		{"corrupt json", func(t *testing.T) string { return writeFile(t, "bg.json", "[[1,") }},
		{"empty json", func(t *testing.T) string { return writeFile(t, "bg.json", "[]") }},
		{"bad csv cell", func(t *testing.T) string { return writeFile(t, "bg.csv", "1,2\n3,x\n") }},
		{"malformed first csv row", func(t *testing.T) string { return writeFile(t, "bg.csv", "1,x\n3,4\n") }},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := LoadFileBackground(tc.path(t)); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

type errBackground struct{}

func (errBackground) Reference(context.Context) ([][]float64, error) {
	return nil, errors.New("store offline")
}

func TestResolveReference(t *testing.T) {
	x := []float64{1, 2}

	testCases := []struct {
		name     string
		bg       Background
		x        []float64
		fallback ReferenceKind
		want     ReferenceKind
		rows     int
		warnings int
	}{
		{"background rows", StaticBackground{{0, 0}, {1, 1}}, x, ReferenceInput, ReferenceSample, 2, 0},
		{"drops bad rows", StaticBackground{{0, 0}, {1}, {math.NaN(), 0}}, x, ReferenceInput, ReferenceSample, 1, 1},
		{"no usable rows", StaticBackground{{0, 0, 0}}, x, ReferenceInput, ReferenceInput, 1, 2},
		{"nil background", nil, x, ReferenceInput, ReferenceInput, 1, 1},
		{"empty background", NoBackground{}, x, ReferenceInput, ReferenceInput, 1, 1},
		{"store error", errBackground{}, x, ReferenceInput, ReferenceInput, 1, 2},
		{"zeros configured", nil, x, ReferenceZeros, ReferenceZeros, 1, 1},
		{"unusable input", nil, []float64{math.Inf(1), 0}, ReferenceInput, ReferenceZeros, 1, 1},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			rows, kind, warnings := resolveReference(context.Background(), tc.bg, tc.x, 2, tc.fallback)
			if kind != tc.want {
				t.Errorf("kind = %s, want %s", kind, tc.want)
			}
			if len(rows) != tc.rows {
				t.Errorf("rows = %d, want %d", len(rows), tc.rows)
			}
			if len(warnings) != tc.warnings {
				t.Errorf("warnings = %v, want %d", warnings, tc.warnings)
			}
			for _, r := range rows {
				if len(r) != 2 {
					t.Errorf("row width %d, want 2", len(r))
				}
			}
		})
	}
}

func TestResolveReference_InputRowIsCopied(t *testing.T) {
	x := []float64{1, 2}
	rows, _, _ := resolveReference(context.Background(), nil, x, 2, ReferenceInput)
	rows[0][0] = 99
	if x[0] != 1 {
		t.Error("reference row aliases the input vector")
	}
}
