package postprocess

import (
	"gonum.org/v1/gonum/floats"
	"sort"
)

// Probability of a single class
type Probability struct {
	LabelIndex  int
	Probability float64
}

// Classification is the result of a classification model's output tensor
type Classification struct {
	// Probs holds the softmax probability of each class in index order
	Probs []float64
}

// NewClassification applies softmax to the model's logits
func NewClassification(logits []float64) Classification {
	return Classification{Probs: Softmax(logits)}
}

// Best returns the most probable class, LabelIndex is -1 when there are no
// classes
func (c Classification) Best() Probability {

	if len(c.Probs) == 0 {
		return Probability{LabelIndex: -1}
	}

	idx := floats.MaxIdx(c.Probs)

	return Probability{LabelIndex: idx, Probability: c.Probs[idx]}
}

// Top returns up to n classes in descending order of probability, ties keep
// class index order
func (c Classification) Top(n int) []Probability {

	probs := make([]Probability, len(c.Probs))

	for i, p := range c.Probs {
		probs[i] = Probability{LabelIndex: i, Probability: p}
	}

	sort.SliceStable(probs, func(i, j int) bool {
		return probs[i].Probability > probs[j].Probability
	})

	if n >= 0 && n < len(probs) {
		probs = probs[:n]
	}

	return probs
}
