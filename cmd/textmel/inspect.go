package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/example/go-textmel/internal/dataset"
)

type sampleReport struct {
	Index      int     `json:"index"`
	Path       string  `json:"path"`
	TextLength int     `json:"text_length"`
	MelLength  int     `json:"mel_length"`
	Shape      []int64 `json:"shape"`
	Tokens     []int64 `json:"tokens"`
}

type batchReport struct {
	Size          int              `json:"size"`
	Shapes        map[string][]int `json:"shapes"`
	InputLengths  []int64          `json:"input_lengths"`
	OutputLengths []int64          `json:"output_lengths"`
	Filenames     []string         `json:"filenames"`
}

func newInspectCmd() *cobra.Command {
	var (
		index  int
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show one sample, or the first batch of epoch 0",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			p, err := openPipeline(cfg)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if index >= 0 {
				s, err := p.dataset.Get(index)
				if err != nil {
					return err
				}

				r := sampleReport{
					Index:      index,
					Path:       s.Path,
					TextLength: s.TextLength,
					MelLength:  s.MelLength,
					Shape:      s.Mel.Shape(),
					Tokens:     s.Tokens,
				}
				if asJSON {
					return writeJSON(out, r)
				}

				_, err = fmt.Fprintf(out, "index:       %d\npath:        %s\ntext length: %d\nmel length:  %d\nshape:       %v\ntokens:      %v\n",
					r.Index, r.Path, r.TextLength, r.MelLength, r.Shape, r.Tokens)

				return err
			}

			batches := p.loader.Batches(0)
			if len(batches) == 0 {
				return fmt.Errorf("dataset yields no batches")
			}

			b, err := p.loader.Load(cmd.Context(), batches[0])
			if err != nil {
				return err
			}

			r := newBatchReport(b)
			if asJSON {
				return writeJSON(out, r)
			}

			_, _ = fmt.Fprintf(out, "batch size: %d\n", r.Size)
			for _, k := range dataset.BatchKeys {
				_, _ = fmt.Fprintf(out, "%-15s %v\n", k, r.Shapes[k])
			}
			_, _ = fmt.Fprintf(out, "input lengths:  %v\noutput lengths: %v\n", r.InputLengths, r.OutputLengths)
			for _, f := range r.Filenames {
				_, _ = fmt.Fprintf(out, "  %s\n", f)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&index, "index", -1, "Sample index to show; negative shows the first batch")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON")

	return cmd
}

func newBatchReport(b dataset.Batch) batchReport {
	return batchReport{
		Size:          b.Size,
		Shapes:        b.Shape(),
		InputLengths:  b.InputLengths,
		OutputLengths: b.OutputLengths,
		Filenames:     b.Filenames,
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}
