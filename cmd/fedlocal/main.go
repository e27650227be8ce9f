package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"fedlocal/internal/common"
	"fedlocal/internal/config"
	"fedlocal/internal/dataset"
	"fedlocal/internal/device"
	"fedlocal/internal/metrics"
	"fedlocal/internal/model"
	"fedlocal/internal/trainer"
)

func main() {
	cfgPath := flag.String("config", "", "Path to YAML config (defaults are used when empty)")
	epochs := flag.Int("local-epochs", 0, "Local epochs per update")
	batchSize := flag.Int("batch-size", 0, "Local batch size")
	optimizer := flag.String("optimizer", "", "Optimizer: sgd or adam")
	lr := flag.Float64("lr", 0, "Learning rate")
	verbose := flag.Bool("verbose", false, "Log local training progress")
	seed := flag.Int64("seed", 0, "PRNG seed")
	metricsDB := flag.String("metrics-db", "", "SQLite file to persist loss scalars")
	numUsers := flag.Int("num-users", 4, "Number of simulated clients")
	samples := flag.Int("samples", 2000, "Size of the synthetic training set")
	classes := flag.Int("classes", 10, "Number of classes")
	features := flag.Int("features", 32, "Number of input features")
	logLevel := flag.String("log-level", "INFO", "Log level")

	flag.Parse()

	logger := hclog.New(&hclog.LoggerOptions{
		Name:   "fedlocal",
		Level:  hclog.LevelFromString(*logLevel),
		Output: os.Stdout,
	})

	overrides := config.Overrides{
		LocalEpochs:  *epochs,
		BatchSize:    *batchSize,
		Optimizer:    *optimizer,
		LearningRate: *lr,
		Verbose:      *verbose,
		Seed:         *seed,
		MetricsDB:    *metricsDB,
	}
	if err := run(logger, *cfgPath, overrides, *numUsers, *samples, *classes, *features); err != nil {
		logger.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(logger hclog.Logger, cfgPath string, overrides config.Overrides, numUsers, samples, classes, features int) error {
	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	cfg.ApplyOverrides(overrides)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if numUsers <= 0 || samples < numUsers {
		return fmt.Errorf("%w: need at least one client and one sample per client (num_users=%d samples=%d)",
			common.ErrInvalidArgument, numUsers, samples)
	}
	if classes <= 0 || features <= 0 {
		return fmt.Errorf("%w: classes and features must be > 0 (classes=%d features=%d)",
			common.ErrInvalidArgument, classes, features)
	}

	logger.Info("compute device", device.Detect().Fields()...)

	rec := metrics.NewRecorder()
	var sink metrics.Sink = metrics.Multi{rec, metrics.LogSink{Logger: logger.Named("scalars")}}
	if cfg.MetricsDB != "" {
		db, err := metrics.NewSQLiteSink(metrics.SQLiteOptions{Path: cfg.MetricsDB, Logger: logger})
		if err != nil {
			return fmt.Errorf("open metrics db: %w", err)
		}
		defer db.Close()
		logger.Info("persisting scalars", "path", cfg.MetricsDB, "run_id", db.RunID())
		sink = metrics.Multi{sink, db}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	all := dataset.Blobs(samples+samples/5, classes, features, 0.8, cfg.Seed)
	trainSet, err := dataset.NewView(all, seq(0, samples))
	if err != nil {
		return err
	}
	testSet, err := dataset.NewView(all, seq(samples, all.Len()))
	if err != nil {
		return err
	}
	global := model.NewLinear(classes, features, 0, cfg.Seed)

	before, err := trainer.GlobalInference(global, testSet)
	if err != nil {
		return fmt.Errorf("global evaluation: %w", err)
	}
	logger.Info("global model before round", "accuracy", before.Accuracy, "loss", before.Loss, "samples", before.Total)

	if err := runRound(ctx, logger, cfg, sink, trainSet, testSet, global, numUsers); err != nil {
		return err
	}
	for _, tag := range rec.Tags() {
		series := rec.Series(tag)
		logger.Debug("scalar series", "tag", tag, "points", len(series), "last", series[len(series)-1])
	}
	return nil
}

type clientReport struct {
	id    string
	loss  float64
	test  trainer.EvalResult
	valid *trainer.EvalResult
	after trainer.EvalResult
	err   error
}

// runRound performs one local update per client, concurrently, each from a
// copy of the global state. Aggregating the returned states is left to the
// server side.
func runRound(ctx context.Context, logger hclog.Logger, cfg *config.Config, sink metrics.Sink,
	trainSet, testSet dataset.Dataset, global *model.Linear, numUsers int) error {

	shards := iidShards(trainSet.Len(), numUsers, cfg.Seed)
	globalState := model.Snapshot(global)

	reports := make([]clientReport, numUsers)
	var wg sync.WaitGroup
	for i, shard := range shards {
		if ctx.Err() != nil {
			break
		}
		wg.Add(1)
		go func(i int, shard []int) {
			defer wg.Done()
			id := uuid.NewString()
			clientLog := logger.Named("client").With("client", id[:8])
			reports[i] = localRound(clientLog, cfg, metrics.WithPrefix(sink, id[:8]), trainSet, testSet, shard, global, globalState)
			reports[i].id = id
		}(i, shard)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, r := range reports {
		if r.err != nil {
			return fmt.Errorf("client %s: %w", r.id, r.err)
		}
		fields := []interface{}{
			"client", r.id,
			"train_loss", r.loss,
			"test_acc", r.test.Accuracy,
			"test_loss", r.test.Loss,
			"global_acc", r.after.Accuracy,
		}
		if r.valid != nil {
			fields = append(fields, "valid_acc", r.valid.Accuracy)
		}
		logger.Info("local update finished", fields...)
	}
	return nil
}

func localRound(logger hclog.Logger, cfg *config.Config, sink metrics.Sink, trainSet, testSet dataset.Dataset,
	shard []int, global *model.Linear, globalState model.State) clientReport {

	m := model.NewLinear(global.NumClasses(), global.InputSize(), 0, cfg.Seed)
	if err := model.Load(m, globalState); err != nil {
		return clientReport{err: err}
	}
	local, err := trainer.NewLocalUpdate(cfg, trainSet, shard, sink, logger)
	if err != nil {
		return clientReport{err: err}
	}
	_, loss, err := local.UpdateWeights(m, 0)
	if err != nil {
		return clientReport{err: err}
	}
	test, err := local.Inference(m)
	if err != nil {
		return clientReport{err: err}
	}
	report := clientReport{loss: loss, test: test}
	if valid, err := local.Validate(m); err == nil {
		report.valid = &valid
	}
	if report.after, err = trainer.GlobalInference(m, testSet); err != nil {
		return clientReport{err: err}
	}
	return report
}

// iidShards deals a shuffled permutation of [0, n) into numUsers shards of
// equal size. Shuffling here is what spreads samples across the client's
// train, validation and test partitions.
func iidShards(n, numUsers int, seed int64) [][]int {
	rng := rand.New(rand.NewSource(seed))
	perm := rng.Perm(n)
	per := n / numUsers
	shards := make([][]int, numUsers)
	for i := range shards {
		shards[i] = perm[i*per : (i+1)*per]
	}
	return shards
}

func seq(from, to int) []int {
	out := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, i)
	}
	return out
}
