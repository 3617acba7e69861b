package classifier

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelEncoder(t *testing.T) {
	enc := FitLabelEncoder([]string{"web", "referral", "web", "ads"})
	assert.Equal(t, []string{"ads", "referral", "web"}, enc.Classes)
	assert.Equal(t, 3, enc.Len())

	code, err := enc.Transform("referral")
	require.NoError(t, err)
	assert.Equal(t, 1, code)

	_, err = enc.Transform("billboard")
	assert.True(t, errors.Is(err, ErrUnseenCategory))
}

func TestStandardScaler(t *testing.T) {
	rows := [][]float64{{1, 5}, {3, 5}, {5, 5}}
	s, err := FitStandardScaler(rows)
	require.NoError(t, err)

	assert.InDelta(t, 3.0, s.Mean[0], 1e-9)
	assert.InDelta(t, math.Sqrt(8.0/3.0), s.Scale[0], 1e-9)
	assert.Equal(t, 1.0, s.Scale[1], "constant column keeps unit scale")

	out, err := s.Transform([]float64{3, 5})
	require.NoError(t, err)
	assert.InDelta(t, 0.0, out[0], 1e-9)
	assert.InDelta(t, 0.0, out[1], 1e-9)

	_, err = s.Transform([]float64{1})
	assert.True(t, errors.Is(err, ErrDimensionMismatch))

	_, err = FitStandardScaler(nil)
	assert.Error(t, err)
}

func TestStratifiedSplit(t *testing.T) {
	labels := make([]int, 100)
	for i := 0; i < 10; i++ {
		labels[i] = 1
	}

	train, test := StratifiedSplit(labels, 0.2, DefaultSeed)
	assert.Len(t, test, 20)
	assert.Len(t, train, 80)

	count := func(idx []int) (pos int) {
		for _, i := range idx {
			pos += labels[i]
		}
		return pos
	}
	assert.Equal(t, 2, count(test))
	assert.Equal(t, 8, count(train))

	seen := make(map[int]bool)
	for _, i := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[i], "index %d appears twice", i)
		seen[i] = true
	}
	assert.Len(t, seen, 100)

	train2, test2 := StratifiedSplit(labels, 0.2, DefaultSeed)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)
}

func TestStratifiedSplit_SmallClassOnBothSides(t *testing.T) {
	labels := []int{0, 0, 0, 0, 0, 0, 0, 0, 1, 1}
	train, test := StratifiedSplit(labels, 0.2, DefaultSeed)

	var trainPos, testPos int
	for _, i := range train {
		trainPos += labels[i]
	}
	for _, i := range test {
		testPos += labels[i]
	}
	assert.Equal(t, 1, trainPos)
	assert.Equal(t, 1, testPos)
}

func TestLogisticRegression_Separable(t *testing.T) {
	var rows [][]float64
	var labels []int
	for i := 0; i < 40; i++ {
		x := float64(i-20) / 10
		rows = append(rows, []float64{x})
		if x > 0 {
			labels = append(labels, 1)
		} else {
			labels = append(labels, 0)
		}
	}

	m, err := FitLogisticRegression(rows, labels, DefaultTrainOptions())
	require.NoError(t, err)

	acc, err := m.Accuracy(rows, labels)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, acc, 0.9)

	hi, err := m.PredictProba([]float64{2})
	require.NoError(t, err)
	lo, err := m.PredictProba([]float64{-2})
	require.NoError(t, err)
	assert.Greater(t, hi, 0.5)
	assert.Less(t, lo, 0.5)

	imp := m.FeatureImportance([]string{"x"})
	assert.InDelta(t, 1.0, imp["x"], 1e-9)
}

func TestLogisticRegression_SingleClass(t *testing.T) {
	_, err := FitLogisticRegression([][]float64{{1}, {2}}, []int{1, 1}, DefaultTrainOptions())
	assert.ErrorIs(t, err, ErrSingleClass)
}

func TestLogisticRegression_DimensionChecks(t *testing.T) {
	m := &LogisticRegression{Weights: []float64{1, 2}}
	_, err := m.PredictProba([]float64{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	_, err = FitLogisticRegression([][]float64{{1}}, []int{0, 1}, DefaultTrainOptions())
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}
