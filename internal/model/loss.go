package model

import (
	"fmt"

	"gonum.org/v1/gonum/floats"

	"fedlocal/internal/common"
)

// NLLLoss returns the mean negative log-likelihood of labels under the
// per-sample log-probabilities.
func NLLLoss(logProbs [][]float64, labels []int) (float64, error) {
	if err := checkTargets(logProbs, labels); err != nil {
		return 0, err
	}
	picked := make([]float64, len(labels))
	for i, label := range labels {
		picked[i] = logProbs[i][label]
	}
	return -floats.Sum(picked) / float64(len(labels)), nil
}

// NLLGrad returns d(NLLLoss)/d(logProbs): -1/B at each true label, 0 elsewhere.
func NLLGrad(logProbs [][]float64, labels []int) ([][]float64, error) {
	if err := checkTargets(logProbs, labels); err != nil {
		return nil, err
	}
	scale := -1 / float64(len(labels))
	grad := make([][]float64, len(logProbs))
	for i, row := range logProbs {
		grad[i] = make([]float64, len(row))
		grad[i][labels[i]] = scale
	}
	return grad, nil
}

// Predict returns the arg-max class of each row.
func Predict(logProbs [][]float64) []int {
	preds := make([]int, len(logProbs))
	for i, row := range logProbs {
		preds[i] = floats.MaxIdx(row)
	}
	return preds
}

func checkTargets(logProbs [][]float64, labels []int) error {
	if len(labels) == 0 {
		return fmt.Errorf("%w: no samples", common.ErrEmptyPartition)
	}
	if len(logProbs) != len(labels) {
		return fmt.Errorf("%w: %d outputs for %d labels", common.ErrInvalidArgument, len(logProbs), len(labels))
	}
	for i, label := range labels {
		if label < 0 || label >= len(logProbs[i]) {
			return fmt.Errorf("%w: label %d outside [0, %d)", common.ErrInvalidArgument, label, len(logProbs[i]))
		}
	}
	return nil
}
