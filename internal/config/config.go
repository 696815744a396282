package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel string       `mapstructure:"log_level"`
	Data     DataConfig   `mapstructure:"data"`
	STFT     STFTConfig   `mapstructure:"stft"`
	Loader   LoaderConfig `mapstructure:"loader"`
}

// DataConfig describes where samples come from and how they are filtered.
// Zero MaxMelLength / MaxTextLength mean "no cap"; zero InputSampleRate
// means "same as SamplingRate".
type DataConfig struct {
	Path            string   `mapstructure:"path"`
	FetcherMode     string   `mapstructure:"fetcher_mode"`
	TextCleaners    []string `mapstructure:"text_cleaners"`
	MaxWavValue     float64  `mapstructure:"max_wav_value"`
	SamplingRate    int      `mapstructure:"sampling_rate"`
	InputSampleRate int      `mapstructure:"input_sample_rate"`
	LoadMelFromDisk bool     `mapstructure:"load_mel_from_disk"`
	ReturnWavs      bool     `mapstructure:"return_wavs"`
	MaxMelLength    int      `mapstructure:"max_mel_length"`
	MaxTextLength   int      `mapstructure:"max_text_length"`
	NeedsCollate    bool     `mapstructure:"needs_collate"`
	Seed            int64    `mapstructure:"seed"`
	MaxRetries      int      `mapstructure:"max_retries"`
	Tokenizer       string   `mapstructure:"tokenizer"`
	TokenizerModel  string   `mapstructure:"tokenizer_model"`
}

type STFTConfig struct {
	FilterLength int     `mapstructure:"filter_length"`
	HopLength    int     `mapstructure:"hop_length"`
	WinLength    int     `mapstructure:"win_length"`
	NMelChannels int     `mapstructure:"n_mel_channels"`
	MelFMin      float64 `mapstructure:"mel_fmin"`
	MelFMax      float64 `mapstructure:"mel_fmax"`
}

type LoaderConfig struct {
	BatchSize      int  `mapstructure:"batch_size"`
	Workers        int  `mapstructure:"workers"`
	NFramesPerStep int  `mapstructure:"n_frames_per_step"`
	Shuffle        bool `mapstructure:"shuffle"`
	DropLast       bool `mapstructure:"drop_last"`
}

type LoadOptions struct {
	Cmd        flagBinder
	ConfigFile string
	Defaults   Config
}

type flagBinder interface {
	Flags() *pflag.FlagSet
}

func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Data: DataConfig{
			Path:            "",
			FetcherMode:     "lj",
			TextCleaners:    []string{"english_cleaners"},
			MaxWavValue:     32768,
			SamplingRate:    22050,
			InputSampleRate: 0,
			LoadMelFromDisk: false,
			ReturnWavs:      false,
			MaxMelLength:    0,
			MaxTextLength:   0,
			NeedsCollate:    true,
			Seed:            1234,
			MaxRetries:      100,
			Tokenizer:       TokenizerSymbols,
			TokenizerModel:  "",
		},
		STFT: STFTConfig{
			FilterLength: 1024,
			HopLength:    256,
			WinLength:    1024,
			NMelChannels: 80,
			MelFMin:      0,
			MelFMax:      8000,
		},
		Loader: LoaderConfig{
			BatchSize:      32,
			Workers:        4,
			NFramesPerStep: 1,
			Shuffle:        true,
			DropLast:       false,
		},
	}
}

// flagKeys maps viper keys to the flag names registered by RegisterFlags.
var flagKeys = map[string]string{
	"log_level":                "log-level",
	"data.path":                "data-path",
	"data.fetcher_mode":        "data-fetcher-mode",
	"data.text_cleaners":       "data-text-cleaners",
	"data.max_wav_value":       "data-max-wav-value",
	"data.sampling_rate":       "data-sampling-rate",
	"data.input_sample_rate":   "data-input-sample-rate",
	"data.load_mel_from_disk":  "data-load-mel-from-disk",
	"data.return_wavs":         "data-return-wavs",
	"data.max_mel_length":      "data-max-mel-length",
	"data.max_text_length":     "data-max-text-length",
	"data.needs_collate":       "data-needs-collate",
	"data.seed":                "data-seed",
	"data.max_retries":         "data-max-retries",
	"data.tokenizer":           "data-tokenizer",
	"data.tokenizer_model":     "data-tokenizer-model",
	"stft.filter_length":       "stft-filter-length",
	"stft.hop_length":          "stft-hop-length",
	"stft.win_length":          "stft-win-length",
	"stft.n_mel_channels":      "stft-n-mel-channels",
	"stft.mel_fmin":            "stft-mel-fmin",
	"stft.mel_fmax":            "stft-mel-fmax",
	"loader.batch_size":        "batch-size",
	"loader.workers":           "workers",
	"loader.n_frames_per_step": "n-frames-per-step",
	"loader.shuffle":           "shuffle",
	"loader.drop_last":         "drop-last",
}

func RegisterFlags(fs *pflag.FlagSet, defaults Config) {
	fs.String("log-level", defaults.LogLevel, "Log level (debug|info|warn|error)")
	fs.String("data-path", defaults.Data.Path, "Path to the dataset manifest")
	fs.String("data-fetcher-mode", defaults.Data.FetcherMode, "Manifest format (lj|mozilla_cv)")
	fs.StringSlice("data-text-cleaners", defaults.Data.TextCleaners, "Text cleaners applied before tokenization")
	fs.Float64("data-max-wav-value", defaults.Data.MaxWavValue, "Divisor applied to 16-bit PCM samples")
	fs.Int("data-sampling-rate", defaults.Data.SamplingRate, "Sample rate used for spectrogram analysis")
	fs.Int("data-input-sample-rate", defaults.Data.InputSampleRate, "Sample rate audio is first resampled to (0 = sampling rate)")
	fs.Bool("data-load-mel-from-disk", defaults.Data.LoadMelFromDisk, "Load precomputed mel features instead of audio")
	fs.Bool("data-return-wavs", defaults.Data.ReturnWavs, "Return resampled waveforms instead of spectrograms")
	fs.Int("data-max-mel-length", defaults.Data.MaxMelLength, "Reject samples with more mel frames (0 = no cap)")
	fs.Int("data-max-text-length", defaults.Data.MaxTextLength, "Reject samples with more tokens (0 = no cap)")
	fs.Bool("data-needs-collate", defaults.Data.NeedsCollate, "Collate dynamically; false pads every sample to the caps")
	fs.Int64("data-seed", defaults.Data.Seed, "Seed for manifest shuffling and sample fallback")
	fs.Int("data-max-retries", defaults.Data.MaxRetries, "Fallback attempts before giving up on invalid samples")
	fs.String("data-tokenizer", defaults.Data.Tokenizer, "Tokenizer (symbols|sentencepiece)")
	fs.String("data-tokenizer-model", defaults.Data.TokenizerModel, "SentencePiece model path")
	fs.Int("stft-filter-length", defaults.STFT.FilterLength, "FFT size")
	fs.Int("stft-hop-length", defaults.STFT.HopLength, "STFT hop size in samples")
	fs.Int("stft-win-length", defaults.STFT.WinLength, "STFT window size in samples")
	fs.Int("stft-n-mel-channels", defaults.STFT.NMelChannels, "Number of mel channels")
	fs.Float64("stft-mel-fmin", defaults.STFT.MelFMin, "Lowest mel filter frequency in Hz")
	fs.Float64("stft-mel-fmax", defaults.STFT.MelFMax, "Highest mel filter frequency in Hz (0 = Nyquist)")
	fs.Int("batch-size", defaults.Loader.BatchSize, "Samples per batch")
	fs.Int("workers", defaults.Loader.Workers, "Concurrent sample loaders")
	fs.Int("n-frames-per-step", defaults.Loader.NFramesPerStep, "Frames predicted per decoder step")
	fs.Bool("shuffle", defaults.Loader.Shuffle, "Shuffle sample order every epoch")
	fs.Bool("drop-last", defaults.Loader.DropLast, "Drop the trailing partial batch")
}

func Load(opts LoadOptions) (Config, error) {
	v := viper.New()

	setDefaults(v, opts.Defaults)
	if opts.Cmd != nil {
		if err := bindFlags(v, opts.Cmd.Flags()); err != nil {
			return Config{}, err
		}
	}

	v.SetEnvPrefix("TEXTMEL")
	replacer := strings.NewReplacer("-", "_", ".", "_", "__", "_")
	v.SetEnvKeyReplacer(replacer)
	v.AutomaticEnv()

	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("textmel")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	return cfg, nil
}

func bindFlags(v *viper.Viper, fs *pflag.FlagSet) error {
	for key, name := range flagKeys {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return fmt.Errorf("bind flag %q: %w", name, err)
		}
	}

	return nil
}

func setDefaults(v *viper.Viper, c Config) {
	v.SetDefault("log_level", c.LogLevel)
	v.SetDefault("data.path", c.Data.Path)
	v.SetDefault("data.fetcher_mode", c.Data.FetcherMode)
	v.SetDefault("data.text_cleaners", c.Data.TextCleaners)
	v.SetDefault("data.max_wav_value", c.Data.MaxWavValue)
	v.SetDefault("data.sampling_rate", c.Data.SamplingRate)
	v.SetDefault("data.input_sample_rate", c.Data.InputSampleRate)
	v.SetDefault("data.load_mel_from_disk", c.Data.LoadMelFromDisk)
	v.SetDefault("data.return_wavs", c.Data.ReturnWavs)
	v.SetDefault("data.max_mel_length", c.Data.MaxMelLength)
	v.SetDefault("data.max_text_length", c.Data.MaxTextLength)
	v.SetDefault("data.needs_collate", c.Data.NeedsCollate)
	v.SetDefault("data.seed", c.Data.Seed)
	v.SetDefault("data.max_retries", c.Data.MaxRetries)
	v.SetDefault("data.tokenizer", c.Data.Tokenizer)
	v.SetDefault("data.tokenizer_model", c.Data.TokenizerModel)
	v.SetDefault("stft.filter_length", c.STFT.FilterLength)
	v.SetDefault("stft.hop_length", c.STFT.HopLength)
	v.SetDefault("stft.win_length", c.STFT.WinLength)
	v.SetDefault("stft.n_mel_channels", c.STFT.NMelChannels)
	v.SetDefault("stft.mel_fmin", c.STFT.MelFMin)
	v.SetDefault("stft.mel_fmax", c.STFT.MelFMax)
	v.SetDefault("loader.batch_size", c.Loader.BatchSize)
	v.SetDefault("loader.workers", c.Loader.Workers)
	v.SetDefault("loader.n_frames_per_step", c.Loader.NFramesPerStep)
	v.SetDefault("loader.shuffle", c.Loader.Shuffle)
	v.SetDefault("loader.drop_last", c.Loader.DropLast)
}
