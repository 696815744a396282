package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/example/go-textmel/internal/config"
	"github.com/example/go-textmel/internal/dataset"
	"github.com/example/go-textmel/internal/features"
	"github.com/example/go-textmel/internal/loader"
)

var (
	cfgFile   string
	activeCfg config.Config
	// appFs backs every manifest, audio and cache access; tests swap in a
	// memory filesystem.
	appFs afero.Fs = afero.NewOsFs()
)

func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:           "textmel",
		Short:         "Paired text/mel data loading for speech-synthesis training",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(newDumpMelsCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newBenchCmd())
	cmd.AddCommand(newDoctorCmd())

	return cmd
}

// setupLogger configures the process-wide slog default logger.
func setupLogger(levelStr string) {
	lvl, err := config.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	h := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(h))
}

func requireConfig() (config.Config, error) {
	if activeCfg.Data.Path == "" {
		return config.Config{}, errors.New("no manifest configured (set --data-path or data.path)")
	}
	return activeCfg, nil
}

// pipeline holds the components built from one configuration.
type pipeline struct {
	extractor *features.Extractor
	dataset   *dataset.Dataset
	loader    *loader.Loader
}

func openPipeline(cfg config.Config) (*pipeline, error) {
	ds, ext, err := dataset.Open(cfg, appFs, dataset.WithLogger(slog.Default()))
	if err != nil {
		return nil, err
	}

	l := loader.New(ds, ds.Collator(cfg.Loader.NFramesPerStep), loader.ConfigOptions(cfg.Loader, cfg.Data.Seed)...)

	return &pipeline{extractor: ext, dataset: ds, loader: l}, nil
}
