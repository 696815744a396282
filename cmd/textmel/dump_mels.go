package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/example/go-textmel/internal/config"
	"github.com/example/go-textmel/internal/dataset"
	"github.com/example/go-textmel/internal/features"
)

func newDumpMelsCmd() *cobra.Command {
	var (
		outDir    string
		overwrite bool
	)

	cmd := &cobra.Command{
		Use:   "dump-mels",
		Short: "Compute features for every manifest entry and write them as safetensors",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			if outDir == "" {
				return errors.New("--out is required for dump-mels")
			}

			p, err := openPipeline(cfg)
			if err != nil {
				return err
			}
			if p.extractor.Mode() == config.PrecomputedCache {
				return errors.New("dump-mels computes features from audio; disable data.load_mel_from_disk")
			}

			stats, err := dumpMels(cmd, p, cfg, outDir, overwrite)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "wrote %d feature files to %s (%d skipped, %d substituted)\n",
				stats.written, outDir, stats.skipped, stats.substituted)

			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "Output directory for <path>_mel.safetensors files (required)")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Rewrite feature files that already exist")

	return cmd
}

type dumpStats struct {
	written     int64
	skipped     int64
	substituted int64
}

// dumpMels writes the unpadded features of every dataset index. Invalid
// entries are substituted by the dataset; a substituted sample is written
// under its own path once.
func dumpMels(cmd *cobra.Command, p *pipeline, cfg config.Config, outDir string, overwrite bool) (dumpStats, error) {
	var (
		claimed sync.Map
		written atomic.Int64
		skipped atomic.Int64
		subst   atomic.Int64
	)

	meta := p.extractor.CacheMetadata()
	meta["hop_length"] = strconv.Itoa(cfg.STFT.HopLength)

	entries := p.dataset.Entries()
	wp := pool.New().
		WithMaxGoroutines(max(cfg.Loader.Workers, 1)).
		WithContext(cmd.Context()).
		WithCancelOnError().
		WithFirstError()

	for i := range p.dataset.Len() {
		wp.Go(func(ctx context.Context) error {
			if err := ctx.Err(); err != nil {
				return err
			}

			s, err := p.dataset.Get(i)
			if errors.Is(err, dataset.ErrNoValidSample) {
				slog.Warn("no valid sample", "index", i, "path", entries[i].Path)
				skipped.Add(1)
				return nil
			}
			if err != nil {
				return err
			}

			if s.Path != entries[i].Path {
				subst.Add(1)
			}
			if _, dup := claimed.LoadOrStore(s.Path, struct{}{}); dup {
				return nil
			}

			dst := features.CachePath(filepath.Join(outDir, s.Path))
			if !overwrite {
				if exists, _ := afero.Exists(appFs, dst); exists {
					skipped.Add(1)
					return nil
				}
			}

			m := s.Mel
			if m.Frames != s.MelLength {
				m = m.PadTo(s.MelLength)
			}
			if err := features.SaveCache(appFs, dst, m, meta); err != nil {
				return fmt.Errorf("write %s: %w", dst, err)
			}
			written.Add(1)

			return nil
		})
	}

	err := wp.Wait()

	return dumpStats{
		written:     written.Load(),
		skipped:     skipped.Load(),
		substituted: subst.Load(),
	}, err
}
