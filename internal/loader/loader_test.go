package loader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/spf13/afero"

	"github.com/example/go-textmel/internal/config"
	"github.com/example/go-textmel/internal/dataset"
	"github.com/example/go-textmel/internal/features"
	"github.com/example/go-textmel/internal/testutil"
)

// stubSource returns sample i with i+1 tokens and 2*(i+1) frames.
type stubSource struct {
	n      int
	failAt int
	active atomic.Int64
	peak   atomic.Int64
}

var errStub = errors.New("stub failure")

func (s *stubSource) Len() int { return s.n }

func (s *stubSource) Get(i int) (dataset.Sample, error) {
	cur := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		p := s.peak.Load()
		if cur <= p || s.peak.CompareAndSwap(p, cur) {
			break
		}
	}

	if s.failAt >= 0 && i == s.failAt {
		return dataset.Sample{}, errStub
	}

	toks := make([]int64, i+1)
	m := features.NewMel(2, 2*(i+1))

	return dataset.Sample{Tokens: toks, Mel: m, Path: fmt.Sprintf("%d.wav", i), TextLength: i + 1, MelLength: 2 * (i + 1)}, nil
}

func TestBatches(t *testing.T) {
	tests := []struct {
		name     string
		n        int
		opts     []Option
		wantLens []int
	}{
		{"exact", 6, []Option{WithBatchSize(3)}, []int{3, 3}},
		{"partial kept", 7, []Option{WithBatchSize(3)}, []int{3, 3, 1}},
		{"partial dropped", 7, []Option{WithBatchSize(3), WithDropLast(true)}, []int{3, 3}},
		{"smaller than batch", 2, []Option{WithBatchSize(5)}, []int{2}},
		{"smaller than batch dropped", 2, []Option{WithBatchSize(5), WithDropLast(true)}, []int{}},
		{"empty", 0, nil, []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := New(&stubSource{n: tt.n, failAt: -1}, dataset.NewCollator(1), tt.opts...)

			batches := l.Batches(0)
			lens := make([]int, len(batches))
			for i, b := range batches {
				lens[i] = len(b)
			}

			if !slices.Equal(lens, tt.wantLens) {
				t.Errorf("batch sizes = %v; want %v", lens, tt.wantLens)
			}
			if l.NumBatches() != len(tt.wantLens) {
				t.Errorf("NumBatches = %d; want %d", l.NumBatches(), len(tt.wantLens))
			}
		})
	}
}

func TestBatches_ShuffleCoversEveryIndexOnce(t *testing.T) {
	l := New(&stubSource{n: 23, failAt: -1}, dataset.NewCollator(1), WithBatchSize(4), WithShuffle(9))

	for epoch := range 3 {
		var seen []int
		for _, b := range l.Batches(epoch) {
			seen = append(seen, b...)
		}

		slices.Sort(seen)
		for i, v := range seen {
			if v != i {
				t.Fatalf("epoch %d: sorted indices = %v", epoch, seen)
			}
		}
	}

	if !slices.EqualFunc(l.Batches(1), l.Batches(1), equalInts) {
		t.Error("same epoch produced different orders")
	}
	if slices.EqualFunc(l.Batches(1), l.Batches(2), equalInts) {
		t.Error("different epochs produced the same order")
	}
}

func TestEpoch(t *testing.T) {
	src := &stubSource{n: 10, failAt: -1}
	l := New(src, dataset.NewCollator(2), WithBatchSize(4), WithWorkers(2))

	var sizes []int
	var total int
	err := l.Epoch(context.Background(), 0, func(b dataset.Batch) error {
		sizes = append(sizes, b.Size)
		total += b.Size

		if b.MaxTargetLen%2 != 0 {
			t.Errorf("MaxTargetLen %d not even", b.MaxTargetLen)
		}
		if !slices.IsSortedFunc(b.InputLengths, func(a, c int64) int { return int(c - a) }) {
			t.Errorf("InputLengths %v not descending", b.InputLengths)
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Epoch: %v", err)
	}

	if !slices.Equal(sizes, []int{4, 4, 2}) || total != 10 {
		t.Errorf("batch sizes = %v", sizes)
	}
	if p := src.peak.Load(); p > 2 {
		t.Errorf("peak concurrency = %d; want at most 2 workers", p)
	}
}

// epochSource records the epoch each GetEpoch call sees.
type epochSource struct {
	stubSource
	epochs sync.Map
}

func (s *epochSource) GetEpoch(i, epoch int) (dataset.Sample, error) {
	s.epochs.Store(i, epoch)
	return s.Get(i)
}

func TestEpoch_PassesEpochToSource(t *testing.T) {
	src := &epochSource{stubSource: stubSource{n: 6, failAt: -1}}
	l := New(src, dataset.NewCollator(1), WithBatchSize(4))

	if err := l.Epoch(context.Background(), 3, func(dataset.Batch) error { return nil }); err != nil {
		t.Fatalf("Epoch: %v", err)
	}

	for i := range src.n {
		got, ok := src.epochs.Load(i)
		if !ok || got.(int) != 3 {
			t.Errorf("index %d loaded with epoch %v (%v); want 3", i, got, ok)
		}
	}

	src.epochs.Clear()
	if _, err := l.Load(context.Background(), []int{0, 1}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, ok := src.epochs.Load(0); ok {
		t.Error("Load went through GetEpoch; want plain Get")
	}
}

func TestEpoch_SampleError(t *testing.T) {
	l := New(&stubSource{n: 8, failAt: 5}, dataset.NewCollator(1), WithBatchSize(4))

	calls := 0
	err := l.Epoch(context.Background(), 0, func(dataset.Batch) error {
		calls++
		return nil
	})

	if !errors.Is(err, errStub) {
		t.Fatalf("Epoch error = %v; want errStub", err)
	}
	if calls != 1 {
		t.Errorf("consumer called %d times; want 1", calls)
	}
}

func TestEpoch_ConsumerError(t *testing.T) {
	stop := errors.New("stop")
	l := New(&stubSource{n: 8, failAt: -1}, dataset.NewCollator(1), WithBatchSize(2))

	calls := 0
	err := l.Epoch(context.Background(), 0, func(dataset.Batch) error {
		calls++
		if calls == 2 {
			return stop
		}

		return nil
	})

	if !errors.Is(err, stop) || calls != 2 {
		t.Errorf("Epoch = %v after %d calls; want stop after 2", err, calls)
	}
}

func TestEpoch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	l := New(&stubSource{n: 8, failAt: -1}, dataset.NewCollator(1), WithBatchSize(2))
	err := l.Epoch(ctx, 0, func(dataset.Batch) error {
		t.Error("consumer called after cancellation")
		return nil
	})

	if !errors.Is(err, context.Canceled) {
		t.Errorf("Epoch error = %v; want context.Canceled", err)
	}
}

func TestConfigOptions(t *testing.T) {
	c := config.LoaderConfig{BatchSize: 3, Workers: 2, Shuffle: true, DropLast: true}
	l := New(&stubSource{n: 10, failAt: -1}, dataset.NewCollator(1), ConfigOptions(c, 5)...)

	if l.BatchSize() != 3 || l.NumBatches() != 3 {
		t.Errorf("BatchSize, NumBatches = %d, %d; want 3, 3", l.BatchSize(), l.NumBatches())
	}
	if !l.opts.shuffle || l.opts.seed != 5 || l.opts.workers != 2 {
		t.Errorf("options = %+v", l.opts)
	}
}

func equalInts(a, b []int) bool { return slices.Equal(a, b) }

func TestEpoch_Pipeline(t *testing.T) {
	fs := afero.NewMemMapFs()
	texts := map[string]string{}
	for i := range 7 {
		p := fmt.Sprintf("wavs/%d.wav", i)
		testutil.WriteWAV(t, fs, "/corpus/"+p, testutil.Sine(200+50*float64(i), 16000, 2000+700*i, 0.3), 16000)
		texts[p] = fmt.Sprintf("Sentence number %d.", i)
	}
	testutil.WriteLJManifest(t, fs, "/corpus/metadata.csv", texts)

	cfg := config.DefaultConfig()
	cfg.Data.Path = "/corpus/metadata.csv"
	cfg.Data.SamplingRate = 16000
	cfg.STFT.FilterLength = 512
	cfg.STFT.WinLength = 512
	cfg.STFT.HopLength = 128
	cfg.STFT.NMelChannels = 24
	cfg.Loader.BatchSize = 3
	cfg.Loader.NFramesPerStep = 3

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ds, _, err := dataset.Open(cfg, fs, dataset.WithLogger(logger))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	opts := append(ConfigOptions(cfg.Loader, cfg.Data.Seed), WithLogger(logger))
	l := New(ds, ds.Collator(cfg.Loader.NFramesPerStep), opts...)

	seen := map[string]bool{}
	err = l.Epoch(context.Background(), 1, func(b dataset.Batch) error {
		testutil.AssertBatch(t, b, cfg.Loader.NFramesPerStep)
		if b.NMel != 24 {
			t.Errorf("NMel = %d; want 24", b.NMel)
		}
		for _, f := range b.Filenames {
			seen[f] = true
		}

		return nil
	})
	if err != nil {
		t.Fatalf("Epoch: %v", err)
	}

	if len(seen) != 7 {
		t.Errorf("epoch covered %d distinct files; want 7", len(seen))
	}
}
