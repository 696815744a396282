// Package loader drives a dataset through epochs: it orders indices, fetches
// the samples of each batch in parallel and hands collated batches to a
// consumer.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/example/go-textmel/internal/config"
	"github.com/example/go-textmel/internal/dataset"
)

// Source is the indexable side of a dataset.
type Source interface {
	Len() int
	Get(index int) (dataset.Sample, error)
}

// EpochSource is a Source whose fallback choices depend on the epoch.
// Epoch uses GetEpoch when the source provides it.
type EpochSource interface {
	Source
	GetEpoch(index, epoch int) (dataset.Sample, error)
}

type options struct {
	batchSize int
	workers   int
	shuffle   bool
	seed      int64
	dropLast  bool
	logger    *slog.Logger
}

func defaultOptions() options {
	return options{
		batchSize: 1,
		workers:   runtime.NumCPU(),
		logger:    slog.Default(),
	}
}

// Option configures a Loader.
type Option func(*options)

// WithBatchSize sets the number of samples per batch.
func WithBatchSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// WithWorkers bounds how many samples are fetched concurrently.
func WithWorkers(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithShuffle permutes indices each epoch with a generator seeded from
// (seed, epoch).
func WithShuffle(seed int64) Option {
	return func(o *options) {
		o.shuffle = true
		o.seed = seed
	}
}

// WithDropLast discards a trailing partial batch.
func WithDropLast(drop bool) Option {
	return func(o *options) {
		o.dropLast = drop
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// ConfigOptions translates loader configuration into options.
func ConfigOptions(c config.LoaderConfig, seed int64) []Option {
	opts := []Option{
		WithBatchSize(c.BatchSize),
		WithWorkers(c.Workers),
		WithDropLast(c.DropLast),
	}
	if c.Shuffle {
		opts = append(opts, WithShuffle(seed))
	}

	return opts
}

type Loader struct {
	src     Source
	collate dataset.Collator
	opts    options
}

func New(src Source, collate dataset.Collator, optFns ...Option) *Loader {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Loader{src: src, collate: collate, opts: opts}
}

// BatchSize returns the configured batch size.
func (l *Loader) BatchSize() int { return l.opts.batchSize }

// NumBatches returns how many batches one epoch yields.
func (l *Loader) NumBatches() int {
	n, bs := l.src.Len(), l.opts.batchSize
	if l.opts.dropLast {
		return n / bs
	}

	return (n + bs - 1) / bs
}

// Batches returns the index groups of one epoch. Without shuffling every
// epoch has the same order.
func (l *Loader) Batches(epoch int) [][]int {
	n := l.src.Len()

	var order []int
	if l.opts.shuffle {
		rng := rand.New(rand.NewPCG(uint64(l.opts.seed), uint64(epoch)))
		order = rng.Perm(n)
	} else {
		order = make([]int, n)
		for i := range order {
			order[i] = i
		}
	}

	out := make([][]int, 0, l.NumBatches())
	for start := 0; start < n; start += l.opts.batchSize {
		end := min(start+l.opts.batchSize, n)
		if end-start < l.opts.batchSize && l.opts.dropLast {
			break
		}
		out = append(out, order[start:end])
	}

	return out
}

// Load fetches the given indices in parallel and collates them. Samples
// keep the order of indices before collation.
func (l *Loader) Load(ctx context.Context, indices []int) (dataset.Batch, error) {
	return l.load(ctx, indices, l.src.Get)
}

func (l *Loader) load(ctx context.Context, indices []int, get func(int) (dataset.Sample, error)) (dataset.Batch, error) {
	samples := make([]dataset.Sample, len(indices))

	p := pool.New().
		WithMaxGoroutines(l.opts.workers).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()

	for i, idx := range indices {
		p.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			s, err := get(idx)
			if err != nil {
				return fmt.Errorf("sample %d: %w", idx, err)
			}
			samples[i] = s

			return nil
		})
	}

	if err := p.Wait(); err != nil {
		return dataset.Batch{}, err
	}

	return l.collate.Collate(samples)
}

// Epoch loads every batch of the epoch in order and passes it to fn. It
// stops at the first error from loading, collation, fn or ctx.
func (l *Loader) Epoch(ctx context.Context, epoch int, fn func(dataset.Batch) error) error {
	batches := l.Batches(epoch)
	started := time.Now()

	get := l.src.Get
	if es, ok := l.src.(EpochSource); ok {
		get = func(index int) (dataset.Sample, error) { return es.GetEpoch(index, epoch) }
	}

	for i, indices := range batches {
		if err := ctx.Err(); err != nil {
			return err
		}

		b, err := l.load(ctx, indices, get)
		if err != nil {
			return fmt.Errorf("epoch %d batch %d: %w", epoch, i, err)
		}

		if err := fn(b); err != nil {
			return err
		}
	}

	l.opts.logger.Debug("epoch done",
		"epoch", epoch,
		"batches", len(batches),
		"elapsed", time.Since(started),
	)

	return nil
}
