package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/go-textmel/internal/doctor"
)

func newDoctorCmd() *cobra.Command {
	var maxFiles int

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration, manifest and data files",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			result := doctor.Run(doctor.Config{Settings: cfg, Fs: appFs, MaxFiles: maxFiles}, out)

			if result.Failed() {
				for _, f := range result.Failures() {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(out, "doctor checks passed")

			return nil
		},
	}

	cmd.Flags().IntVar(&maxFiles, "max-files", 0, "Check at most this many manifest entries on disk (0 = all)")

	return cmd
}
