package trainer

import (
	"fmt"
	"time"

	"github.com/hashicorp/go-hclog"
	"gonum.org/v1/gonum/stat"

	"fedlocal/internal/common"
	"fedlocal/internal/config"
	"fedlocal/internal/dataset"
	"fedlocal/internal/metrics"
	"fedlocal/internal/model"
	"fedlocal/internal/optim"
)

// LossTag is the scalar tag every training batch loss is recorded under.
const LossTag = "loss"

// LocalUpdate runs one client's local training and evaluation over its
// private shard. Build a fresh LocalUpdate per round; its views and loaders
// must not outlive the round.
type LocalUpdate struct {
	cfg    config.Config
	spec   optim.Spec
	parts  dataset.Partitions
	sink   metrics.Sink
	logger hclog.Logger

	trainLoader *dataset.Loader
	validLoader *dataset.Loader
	testLoader  *dataset.Loader
}

// TrainResult is the outcome of one local update.
type TrainResult struct {
	State       model.State
	Loss        float64   // mean of EpochLosses
	EpochLosses []float64 // batch-mean loss of each epoch
	Batches     int
}

// NewLocalUpdate validates cfg, splits idxs 80/10/10 over ds and prepares
// the loaders. A nil sink discards scalars; a nil logger discards logs.
func NewLocalUpdate(cfg *config.Config, ds dataset.Dataset, idxs []int, sink metrics.Sink, logger hclog.Logger) (*LocalUpdate, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	local := *cfg
	spec, err := local.OptimizerSpec()
	if err != nil {
		return nil, err
	}
	parts, err := dataset.Split(ds, idxs)
	if err != nil {
		return nil, fmt.Errorf("split client shard: %w", err)
	}
	if sink == nil {
		sink = metrics.Discard
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	u := &LocalUpdate{
		cfg:    local,
		spec:   spec,
		parts:  parts,
		sink:   sink,
		logger: logger,
	}
	if u.trainLoader, err = dataset.NewLoader(parts.Train, local.BatchSize, true, local.Seed); err != nil {
		return nil, err
	}
	if u.validLoader, err = dataset.NewLoader(parts.Validation, dataset.EvalBatchSize(parts.Validation.Len()), false, 0); err != nil {
		return nil, err
	}
	if u.testLoader, err = dataset.NewLoader(parts.Test, dataset.EvalBatchSize(parts.Test.Len()), false, 0); err != nil {
		return nil, err
	}
	return u, nil
}

// Partitions exposes the train/validation/test views of the shard.
func (u *LocalUpdate) Partitions() dataset.Partitions { return u.parts }

// UpdateWeights trains m in place on the train partition and returns its
// parameter snapshot and the mean of the per-epoch mean batch losses.
func (u *LocalUpdate) UpdateWeights(m model.Model, round int) (model.State, float64, error) {
	res, err := u.Train(m, round)
	if err != nil {
		return nil, 0, err
	}
	return res.State, res.Loss, nil
}

// Train is UpdateWeights with per-epoch detail. A failure part way through
// leaves m with whatever steps already completed.
func (u *LocalUpdate) Train(m model.Model, round int) (TrainResult, error) {
	if u.trainLoader.Len() == 0 {
		return TrainResult{}, fmt.Errorf("%w: train partition has no samples", common.ErrEmptyPartition)
	}
	opt, err := optim.New(u.spec, m.Parameters())
	if err != nil {
		return TrainResult{}, err
	}
	m.SetTraining(true)

	res := TrainResult{EpochLosses: make([]float64, 0, u.cfg.LocalEpochs)}
	numBatches := u.trainLoader.NumBatches()
	logEvery := u.cfg.LogInterval()

	for epoch := 0; epoch < u.cfg.LocalEpochs; epoch++ {
		batchLoss := make([]float64, 0, numBatches)
		var window metrics.Window
		startData := time.Now()

		err := u.trainLoader.Each(func(batchIdx int, b dataset.Batch) error {
			dataTime := time.Since(startData)
			startCompute := time.Now()

			loss, err := trainStep(m, opt, b)
			if err != nil {
				return fmt.Errorf("round %d epoch %d batch %d: %w", round, epoch, batchIdx, err)
			}
			window.Record(b.Len(), dataTime, time.Since(startCompute), loss)

			if u.cfg.Verbose && batchIdx%logEvery == 0 {
				snap := window.Snapshot()
				offset := batchIdx * u.trainLoader.BatchSize()
				percent := 100 * float64(batchIdx) / float64(numBatches)
				u.logger.Info(fmt.Sprintf("| Global Round : %d | Local Epoch : %d | [%d/%d (%.0f%%)]\tLoss: %.6f",
					round, epoch, offset, u.trainLoader.Len(), percent, snap.LastLoss),
					"round", round,
					"epoch", epoch,
					"offset", offset,
					"total", u.trainLoader.Len(),
					"percent", percent,
					"loss", snap.LastLoss,
					"mean_loss", snap.MeanLoss,
					"steps", snap.Steps,
					"lr", opt.LR(),
					"samples_per_sec", snap.SamplesPerSec,
					"data_ms", snap.AvgDataMS,
					"compute_ms", snap.AvgComputeMS,
				)
			}
			u.sink.AddScalar(LossTag, loss)
			batchLoss = append(batchLoss, loss)
			startData = time.Now()
			return nil
		})
		if err != nil {
			return TrainResult{}, err
		}
		if len(batchLoss) == 0 {
			return TrainResult{}, fmt.Errorf("%w: epoch %d produced no batches", common.ErrEmptyPartition, epoch)
		}
		res.EpochLosses = append(res.EpochLosses, stat.Mean(batchLoss, nil))
		res.Batches += len(batchLoss)
	}

	res.Loss = stat.Mean(res.EpochLosses, nil)
	res.State = model.Snapshot(m)
	return res, nil
}

func trainStep(m model.Model, opt optim.Optimizer, b dataset.Batch) (float64, error) {
	opt.ZeroGrad()
	logProbs, err := m.Forward(b.Inputs)
	if err != nil {
		return 0, err
	}
	loss, err := model.NLLLoss(logProbs, b.Labels)
	if err != nil {
		return 0, err
	}
	grad, err := model.NLLGrad(logProbs, b.Labels)
	if err != nil {
		return 0, err
	}
	if err := m.Backward(grad); err != nil {
		return 0, err
	}
	opt.Step()
	return loss, nil
}

// Inference evaluates m on the test partition.
func (u *LocalUpdate) Inference(m model.Model) (EvalResult, error) {
	return Evaluate(m, u.testLoader)
}

// Validate evaluates m on the validation partition. Local training itself
// never consults it.
func (u *LocalUpdate) Validate(m model.Model) (EvalResult, error) {
	return Evaluate(m, u.validLoader)
}
