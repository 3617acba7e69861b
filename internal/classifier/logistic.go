package classifier

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

// ErrSingleClass is returned when the training labels contain only one class.
var ErrSingleClass = errors.New("training labels contain a single class")

// TrainOptions tunes gradient descent.
type TrainOptions struct {
	LearningRate float64
	Epochs       int
	L2           float64
	// BalanceClasses weights each sample by n / (2 * n_class).
	BalanceClasses bool
}

// DefaultTrainOptions returns the settings used for conversion models.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		LearningRate:   0.1,
		Epochs:         500,
		L2:             0.001,
		BalanceClasses: true,
	}
}

// LogisticRegression is a binary classifier producing P(class=1).
type LogisticRegression struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

// FitLogisticRegression trains on rows with 0/1 labels using full-batch
// gradient descent.
func FitLogisticRegression(rows [][]float64, labels []int, opts TrainOptions) (*LogisticRegression, error) {
	if len(rows) == 0 {
		return nil, errors.New("cannot fit classifier on empty data")
	}
	if len(rows) != len(labels) {
		return nil, fmt.Errorf("%w: %d rows, %d labels", ErrDimensionMismatch, len(rows), len(labels))
	}
	if opts.Epochs <= 0 {
		opts.Epochs = DefaultTrainOptions().Epochs
	}
	if opts.LearningRate <= 0 {
		opts.LearningRate = DefaultTrainOptions().LearningRate
	}

	var positives int
	for _, y := range labels {
		if y != 0 && y != 1 {
			return nil, fmt.Errorf("label %d is not binary", y)
		}
		positives += y
	}
	if positives == 0 || positives == len(labels) {
		return nil, ErrSingleClass
	}

	n := float64(len(rows))
	sampleWeight := [2]float64{1, 1}
	if opts.BalanceClasses {
		sampleWeight[0] = n / (2 * float64(len(labels)-positives))
		sampleWeight[1] = n / (2 * float64(positives))
	}

	width := len(rows[0])
	m := &LogisticRegression{Weights: make([]float64, width)}
	grad := make([]float64, width)
	var totalWeight float64
	for _, y := range labels {
		totalWeight += sampleWeight[y]
	}

	for epoch := 0; epoch < opts.Epochs; epoch++ {
		for j := range grad {
			grad[j] = 0
		}
		var gradBias float64
		for i, row := range rows {
			if len(row) != width {
				return nil, fmt.Errorf("%w: row %d has %d columns, want %d", ErrDimensionMismatch, i, len(row), width)
			}
			p := sigmoid(floats.Dot(m.Weights, row) + m.Bias)
			e := (p - float64(labels[i])) * sampleWeight[labels[i]]
			floats.AddScaled(grad, e, row)
			gradBias += e
		}
		floats.Scale(1/totalWeight, grad)
		floats.AddScaled(grad, opts.L2, m.Weights)
		floats.AddScaled(m.Weights, -opts.LearningRate, grad)
		m.Bias -= opts.LearningRate * gradBias / totalWeight
	}
	return m, nil
}

// PredictProba returns P(class=1) for a scaled row.
func (m *LogisticRegression) PredictProba(row []float64) (float64, error) {
	if len(row) != len(m.Weights) {
		return 0, fmt.Errorf("%w: got %d columns, want %d", ErrDimensionMismatch, len(row), len(m.Weights))
	}
	p := sigmoid(floats.Dot(m.Weights, row) + m.Bias)
	if math.IsNaN(p) {
		return 0, errors.New("classifier produced NaN probability")
	}
	return p, nil
}

// Predict thresholds PredictProba at 0.5.
func (m *LogisticRegression) Predict(row []float64) (int, error) {
	p, err := m.PredictProba(row)
	if err != nil {
		return 0, err
	}
	if p >= 0.5 {
		return 1, nil
	}
	return 0, nil
}

// Accuracy is the share of rows whose predicted label matches.
func (m *LogisticRegression) Accuracy(rows [][]float64, labels []int) (float64, error) {
	if len(rows) == 0 {
		return 0, errors.New("cannot evaluate on empty data")
	}
	var correct int
	for i, row := range rows {
		y, err := m.Predict(row)
		if err != nil {
			return 0, err
		}
		if y == labels[i] {
			correct++
		}
	}
	return float64(correct) / float64(len(rows)), nil
}

// FeatureImportance returns |w_j| normalized to sum to 1, keyed by column name.
// Weights are on standardized inputs, so magnitudes are comparable.
func (m *LogisticRegression) FeatureImportance(columns []string) map[string]float64 {
	out := make(map[string]float64, len(columns))
	abs := make([]float64, len(m.Weights))
	for j, w := range m.Weights {
		abs[j] = math.Abs(w)
	}
	total := floats.Sum(abs)
	for j, name := range columns {
		if j >= len(abs) {
			break
		}
		if total == 0 {
			out[name] = 0
			continue
		}
		out[name] = abs[j] / total
	}
	return out
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
