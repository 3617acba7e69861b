// Package classifier holds the small supervised-learning toolkit used to train
// conversion models: categorical encoding, standard scaling, stratified
// splitting and a class-weighted logistic regression.
package classifier

import (
	"errors"
	"fmt"
	"slices"
)

// ErrUnseenCategory is returned when a value was not present at fit time.
var ErrUnseenCategory = errors.New("unseen categorical value")

// LabelEncoder maps categorical values to dense integer codes. Classes are
// kept sorted so codes are stable for a given training set.
type LabelEncoder struct {
	Classes []string `json:"classes"`
}

// FitLabelEncoder learns the distinct values in values.
func FitLabelEncoder(values []string) *LabelEncoder {
	classes := slices.Clone(values)
	slices.Sort(classes)
	classes = slices.Compact(classes)
	return &LabelEncoder{Classes: classes}
}

// Transform returns the code for value, or ErrUnseenCategory.
func (e *LabelEncoder) Transform(value string) (int, error) {
	i, ok := slices.BinarySearch(e.Classes, value)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnseenCategory, value)
	}
	return i, nil
}

// Len is the number of known classes.
func (e *LabelEncoder) Len() int {
	return len(e.Classes)
}
