// Package model describes the external model service and decodes its raw scores.
package model

import (
	"context"
	"errors"
	"fmt"
)

// Client exposes the model forward pass used by the prediction flow.
type Client interface {
	Predict(ctx context.Context, requestID string, image []byte) ([]float64, error)
}

// Prediction is a decoded model output.
type Prediction struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	ClassIndex int     `json:"class_index"`
}

// ErrNoScores is returned when the model answered with an empty output.
var ErrNoScores = errors.New("model: empty output")

// SigmoidThreshold splits a single-score output between the first and second class.
const SigmoidThreshold = 0.5

// Decoder turns scores into a labelled prediction.
type Decoder struct {
	classNames []string
}

// NewDecoder builds a decoder for the ordered class names; at least two are required.
func NewDecoder(classNames []string) (*Decoder, error) {
	if len(classNames) < 2 {
		return nil, fmt.Errorf("model: need at least two class names, got %d", len(classNames))
	}
	return &Decoder{classNames: append([]string(nil), classNames...)}, nil
}

// ClassNames returns the configured class names in order.
func (d *Decoder) ClassNames() []string {
	return append([]string(nil), d.classNames...)
}

// Decode picks the label. When there is one score per class the highest wins.
// Any other shape is read as a single sigmoid score s where s >= 0.5 selects the first
// class with confidence s and anything lower selects the second with confidence 1-s.
func (d *Decoder) Decode(scores []float64) (Prediction, error) {
	if len(scores) == 0 {
		return Prediction{}, ErrNoScores
	}

	if len(scores) == len(d.classNames) {
		best := 0
		for i, score := range scores {
			if score > scores[best] {
				best = i
			}
		}
		return Prediction{Label: d.classNames[best], Confidence: scores[best], ClassIndex: best}, nil
	}

	score := scores[0]
	if score >= SigmoidThreshold {
		return Prediction{Label: d.classNames[0], Confidence: score, ClassIndex: 0}, nil
	}
	return Prediction{Label: d.classNames[1], Confidence: 1 - score, ClassIndex: 1}, nil
}
