package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-textmel/internal/bench"
	"github.com/example/go-textmel/internal/config"
)

func newBenchCmd() *cobra.Command {
	var (
		batches      int
		format       string
		rtfThreshold float64
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark batch loading latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if batches < 1 {
				return fmt.Errorf("--batches must be at least 1")
			}
			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			p, err := openPipeline(cfg)
			if err != nil {
				return err
			}

			hop := cfg.STFT.HopLength
			if p.extractor.Mode() == config.RawWaveform {
				hop = 1
			}

			runs, err := bench.Run(cmd.Context(), p.loader, batches, bench.FrameDuration(hop, cfg.Data.SamplingRate))
			if err != nil {
				return err
			}

			stats := bench.ComputeStats(bench.Durations(runs))
			out := cmd.OutOrStdout()

			switch format {
			case "json":
				if err := bench.FormatJSON(runs, stats, out); err != nil {
					return err
				}
			default:
				bench.FormatTable(runs, stats, out)
			}

			return bench.CheckRTFThreshold(bench.MeanRTF(runs), rtfThreshold)
		},
	}

	cmd.Flags().IntVar(&batches, "batches", 5, "Number of batches to load")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")

	return cmd
}
