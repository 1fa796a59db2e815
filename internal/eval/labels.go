package eval

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ReadLabelsFile reads a single-column label file such as y_test.csv.
func ReadLabelsFile(path string) ([]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open labels %s: %w", path, err)
	}
	defer f.Close()
	labels, err := ReadLabels(f)
	if err != nil {
		return nil, fmt.Errorf("read labels %s: %w", path, err)
	}
	return labels, nil
}

// ReadLabels parses labels from the first column of CSV input. A leading
// non-numeric row is taken as a header. Integral floats ("1.0") are accepted.
func ReadLabels(r io.Reader) ([]int, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	var labels []int
	for row := 0; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) == 0 || strings.TrimSpace(rec[0]) == "" {
			continue
		}
		v, err := parseLabel(rec[0])
		if err != nil {
			if row == 0 {
				continue // header
			}
			return nil, fmt.Errorf("row %d: %w", row+1, err)
		}
		labels = append(labels, v)
	}
	return labels, nil
}

func parseLabel(s string) (int, error) {
	s = strings.TrimSpace(s)
	if v, err := strconv.Atoi(s); err == nil {
		return v, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("label %q is not numeric", s)
	}
	if math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, fmt.Errorf("label %q is not integral", s)
	}
	if f < math.MinInt || f >= -math.MinInt {
		return 0, fmt.Errorf("label %q is out of range", s)
	}
	return int(f), nil
}
