// Package train runs fixed-iteration training loops over sample datasets,
// with parallel sample loading, gradient clipping, periodic validation and
// checkpoint hooks.
package train

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/avstack-dev/drivekit/internal/config"
	"github.com/avstack-dev/drivekit/internal/model"
	"github.com/avstack-dev/drivekit/internal/sample"
)

// Dataset is the sample source consumed by the trainer.
type Dataset interface {
	Len() int64
	Get(i int64) (*sample.Sample, error)
}

// SampleModel is a trainable model over samples. TrainSample must run
// forward and backward, accumulating gradients.
type SampleModel interface {
	TrainSample(s *sample.Sample) (float64, error)
	EvalSample(s *sample.Sample) (float64, error)
	Params() []model.Parameter
	ZeroGrad()
}

// ValPoint is one validation measurement.
type ValPoint struct {
	Step int
	Loss float64
}

// Report summarises a training run.
type Report struct {
	TrainLosses []float64 // one entry per optimization step
	ValLosses   []ValPoint
	Steps       int
}

// Trainer drives the loop. CheckpointFn, when set, is called at the
// configured cadence and at the end of training.
type Trainer struct {
	Cfg          *config.Config
	Model        SampleModel
	Opt          model.Optimizer
	Train        Dataset
	Val          Dataset // optional
	CheckpointFn func(step int) error
}

// Run executes TrainParams.MaxNumSteps optimization steps. Each step draws a
// batch, loads samples on NumWorkers goroutines, accumulates gradients
// sample by sample and applies one optimizer update. Honors ctx
// cancellation between steps.
func (t *Trainer) Run(ctx context.Context) (*Report, error) {
	tp := t.Cfg.TrainParams
	lp := t.Cfg.TrainDataLoader
	if t.Train.Len() == 0 {
		return nil, fmt.Errorf("training dataset is empty")
	}
	rng := rand.New(rand.NewSource(tp.Seed))
	sampler := newSampler(t.Train.Len(), lp.Shuffle, rng)
	report := &Report{}

	for step := 1; step <= tp.MaxNumSteps; step++ {
		select {
		case <-ctx.Done():
			return report, ctx.Err()
		default:
		}

		indices := sampler.next(lp.BatchSize)
		batch, err := loadBatch(ctx, t.Train, indices, lp.NumWorkers)
		if err != nil {
			return report, fmt.Errorf("load batch at step %d: %w", step, err)
		}

		t.Model.ZeroGrad()
		var total float64
		for _, s := range batch {
			loss, err := t.Model.TrainSample(s)
			if err != nil {
				return report, fmt.Errorf("train step %d: %w", step, err)
			}
			total += loss
		}
		model.ScaleGrads(t.Model.Params(), 1/float64(len(batch)))
		model.ClipGradNorm(t.Model.Params(), tp.MaxGradNorm)
		t.Opt.Step(t.Model.Params())

		avg := total / float64(len(batch))
		report.TrainLosses = append(report.TrainLosses, avg)
		report.Steps = step

		if tp.LogEverySteps > 0 && step%tp.LogEverySteps == 0 {
			log.Printf("step %d/%d: train loss %.6f", step, tp.MaxNumSteps, avg)
		}
		if t.Val != nil && tp.EvalEverySteps > 0 && step%tp.EvalEverySteps == 0 {
			valLoss, err := t.Evaluate(ctx)
			if err != nil {
				return report, fmt.Errorf("validation at step %d: %w", step, err)
			}
			report.ValLosses = append(report.ValLosses, ValPoint{Step: step, Loss: valLoss})
			log.Printf("step %d/%d: val loss %.6f", step, tp.MaxNumSteps, valLoss)
		}
		if t.CheckpointFn != nil && tp.CheckpointEvery > 0 && step%tp.CheckpointEvery == 0 {
			if err := t.CheckpointFn(step); err != nil {
				return report, fmt.Errorf("checkpoint at step %d: %w", step, err)
			}
		}
	}

	if t.CheckpointFn != nil {
		if err := t.CheckpointFn(report.Steps); err != nil {
			return report, fmt.Errorf("final checkpoint: %w", err)
		}
	}
	return report, nil
}

// Evaluate averages the model loss over ValidationBatches batches drawn
// sequentially from the validation dataset.
func (t *Trainer) Evaluate(ctx context.Context) (float64, error) {
	if t.Val == nil || t.Val.Len() == 0 {
		return 0, fmt.Errorf("no validation dataset")
	}
	lp := t.Cfg.ValDataLoader
	batches := t.Cfg.TrainParams.ValidationBatches
	if batches <= 0 {
		batches = 1
	}

	var total float64
	var count int
	next := int64(0)
	for b := 0; b < batches; b++ {
		indices := make([]int64, 0, lp.BatchSize)
		for len(indices) < lp.BatchSize {
			indices = append(indices, next%t.Val.Len())
			next++
		}
		batch, err := loadBatch(ctx, t.Val, indices, lp.NumWorkers)
		if err != nil {
			return 0, err
		}
		for _, s := range batch {
			loss, err := t.Model.EvalSample(s)
			if err != nil {
				return 0, err
			}
			total += loss
			count++
		}
	}
	return total / float64(count), nil
}

// loadBatch fetches samples concurrently, preserving index order.
func loadBatch(ctx context.Context, ds Dataset, indices []int64, workers int) ([]*sample.Sample, error) {
	if workers < 1 {
		workers = 1
	}
	out := make([]*sample.Sample, len(indices))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for pos, idx := range indices {
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			s, err := ds.Get(idx)
			if err != nil {
				return err
			}
			out[pos] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// sampler yields dataset indices, reshuffling each epoch when enabled.
type sampler struct {
	n       int64
	shuffle bool
	rng     *rand.Rand
	perm    []int64
	pos     int

	mu sync.Mutex
}

func newSampler(n int64, shuffle bool, rng *rand.Rand) *sampler {
	s := &sampler{n: n, shuffle: shuffle, rng: rng}
	s.reshuffle()
	return s
}

func (s *sampler) reshuffle() {
	if s.perm == nil {
		s.perm = make([]int64, s.n)
		for i := range s.perm {
			s.perm[i] = int64(i)
		}
	}
	if s.shuffle {
		s.rng.Shuffle(len(s.perm), func(i, j int) {
			s.perm[i], s.perm[j] = s.perm[j], s.perm[i]
		})
	}
	s.pos = 0
}

func (s *sampler) next(batch int) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, batch)
	for len(out) < batch {
		if s.pos >= len(s.perm) {
			s.reshuffle()
		}
		out = append(out, s.perm[s.pos])
		s.pos++
	}
	return out
}
