package classifier

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"
)

// ErrDimensionMismatch is returned when a row does not match the fitted width.
var ErrDimensionMismatch = errors.New("feature dimension mismatch")

// StandardScaler centers each column on its training mean and divides by the
// population standard deviation. Constant columns keep a scale of 1.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// FitStandardScaler computes per-column statistics over rows.
func FitStandardScaler(rows [][]float64) (*StandardScaler, error) {
	if len(rows) == 0 {
		return nil, errors.New("cannot fit scaler on empty data")
	}
	width := len(rows[0])
	s := &StandardScaler{
		Mean:  make([]float64, width),
		Scale: make([]float64, width),
	}
	column := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), width)
			}
			column[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		s.Mean[j] = mean
		if std == 0 {
			std = 1
		}
		s.Scale[j] = std
	}
	return s, nil
}

// Transform returns a scaled copy of row.
func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("%w: got %d columns, want %d", ErrDimensionMismatch, len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// TransformAll scales every row.
func (s *StandardScaler) TransformAll(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, err
		}
		out[i] = scaled
	}
	return out, nil
}
