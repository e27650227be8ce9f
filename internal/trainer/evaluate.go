package trainer

import (
	"fmt"

	"fedlocal/internal/common"
	"fedlocal/internal/dataset"
	"fedlocal/internal/model"
)

// GlobalBatchSize is the batch size of centralized evaluation.
const GlobalBatchSize = 128

// EvalResult holds forward-only statistics over one partition.
//
// Loss is the sum of per-batch mean losses, not a per-sample mean, so it
// grows with the number of batches. Training loss is a mean; compare the
// two only with that in mind.
type EvalResult struct {
	Accuracy float64
	Loss     float64
	Correct  int
	Total    int
	Batches  int
}

// Evaluate runs m in evaluation mode over every batch of l in order.
func Evaluate(m model.Model, l *dataset.Loader) (EvalResult, error) {
	if l.Len() == 0 {
		return EvalResult{}, fmt.Errorf("%w: nothing to evaluate", common.ErrEmptyPartition)
	}
	m.SetTraining(false)

	var res EvalResult
	err := l.Each(func(batchIdx int, b dataset.Batch) error {
		logProbs, err := m.Forward(b.Inputs)
		if err != nil {
			return fmt.Errorf("batch %d: %w", batchIdx, err)
		}
		loss, err := model.NLLLoss(logProbs, b.Labels)
		if err != nil {
			return fmt.Errorf("batch %d: %w", batchIdx, err)
		}
		res.Loss += loss

		for i, pred := range model.Predict(logProbs) {
			if pred == b.Labels[i] {
				res.Correct++
			}
		}
		res.Total += b.Len()
		res.Batches++
		return nil
	})
	if err != nil {
		return EvalResult{}, err
	}
	res.Accuracy = float64(res.Correct) / float64(res.Total)
	return res, nil
}

// GlobalInference evaluates m over the whole of ds in batches of
// GlobalBatchSize. It is the centralized check run outside any client.
func GlobalInference(m model.Model, ds dataset.Dataset) (EvalResult, error) {
	l, err := dataset.NewLoader(ds, GlobalBatchSize, false, 0)
	if err != nil {
		return EvalResult{}, err
	}
	return Evaluate(m, l)
}
