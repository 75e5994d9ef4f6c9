package config

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kikiluvv/reelcompiler/internal/errs"
	"github.com/kikiluvv/reelcompiler/pkg/util"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir           string   `yaml:"work_dir"`
	KeepIntermediates bool     `yaml:"keep_intermediates"`
	Extensions        []string `yaml:"extensions"`

	// FFmpeg settings
	FFmpeg FFmpegConfig `yaml:"ffmpeg"`

	// Canonical frame every scene is normalised to
	Render RenderConfig `yaml:"render"`

	// Defaults for a compilation run; CLI flags and the GUI override them
	Compilation Compilation `yaml:"compilation"`
}

type FFmpegConfig struct {
	BinaryPath   string        `yaml:"binary_path"`
	ProbePath    string        `yaml:"probe_path"`
	Threads      int           `yaml:"threads"`
	Preset       string        `yaml:"preset"`
	CRF          int           `yaml:"crf"`
	VideoCodec   string        `yaml:"video_codec"`
	AudioCodec   string        `yaml:"audio_codec"`
	StallTimeout time.Duration `yaml:"stall_timeout"`
	ProbeCache   time.Duration `yaml:"probe_cache"`
}

type RenderConfig struct {
	Width      int     `yaml:"width"`
	Height     int     `yaml:"height"`
	FPS        float64 `yaml:"fps"`
	SampleRate int     `yaml:"sample_rate"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Encode writes the configuration as yaml
func (c *Config) Encode(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return err
	}
	return enc.Close()
}

// Init saves c to path, refusing to replace an existing file unless force is set
func (c *Config) Init(path string, force bool) error {
	if !force && util.FileExists(path) {
		return errs.New(errs.ErrConfig, "%s already exists, use --force to overwrite", path)
	}
	return c.Save(path)
}

// Validate checks settings that are not part of a single run.
// Grid cells must come out integral and even for both 2x2 and 3x3,
// which holds when width and height are multiples of 12.
func (c *Config) Validate() error {
	if c.Render.Width <= 0 || c.Render.Height <= 0 {
		return errs.New(errs.ErrConfig, "render size %dx%d must be positive", c.Render.Width, c.Render.Height)
	}
	if c.Render.Width%12 != 0 || c.Render.Height%12 != 0 {
		return errs.New(errs.ErrConfig, "render size %dx%d must be a multiple of 12 in both dimensions", c.Render.Width, c.Render.Height)
	}
	if c.Render.FPS <= 0 {
		return errs.New(errs.ErrConfig, "render fps %v must be positive", c.Render.FPS)
	}
	if c.Render.SampleRate <= 0 {
		return errs.New(errs.ErrConfig, "sample rate %d must be positive", c.Render.SampleRate)
	}
	if len(c.Extensions) == 0 {
		return errs.New(errs.ErrConfig, "no video extensions configured")
	}
	if c.FFmpeg.CRF < 0 || c.FFmpeg.CRF > 51 {
		return errs.New(errs.ErrConfig, "crf %d out of range 0-51", c.FFmpeg.CRF)
	}
	return nil
}

// Default returns the built-in configuration
func Default() *Config {
	return defaultConfig()
}

func defaultConfig() *Config {
	return &Config{
		WorkDir:           "",
		KeepIntermediates: false,
		Extensions:        []string{".mp4", ".mov", ".avi", ".mkv"},
		FFmpeg: FFmpegConfig{
			BinaryPath:   "ffmpeg",
			ProbePath:    "ffprobe",
			Threads:      0,
			Preset:       "medium",
			CRF:          23,
			VideoCodec:   "libx264",
			AudioCodec:   "aac",
			StallTimeout: 2 * time.Minute,
			ProbeCache:   30 * time.Minute,
		},
		Render: RenderConfig{
			Width:      1920,
			Height:     1080,
			FPS:        30,
			SampleRate: 48000,
		},
		Compilation: Compilation{
			Output:       "compilation.mp4",
			TotalSeconds: 120,
			SceneSeconds: 6,
			GridMix:      0.5,
			Volume:       1.0,
			Grid3x3Share: 1.0,
		},
	}
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
		filepath.Join(os.Getenv("HOME"), ".reelcompiler", "config.yaml"),
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// UserConfigPath is where `config init` writes by default
func UserConfigPath() string {
	return filepath.Join(os.Getenv("HOME"), ".reelcompiler", "config.yaml")
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return defaultConfig()
}
