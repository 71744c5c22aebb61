package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultMaxUploadBytes is the upload size ceiling when none is configured (100 MiB).
const DefaultMaxUploadBytes int64 = 100 * 1024 * 1024

// DefaultSegmentDuration is the segment length in seconds.
const DefaultSegmentDuration = 10

type Config struct {
	// UploadPath is where uploaded source videos are stored
	UploadPath string `yaml:"upload_path"`

	// OutputPath is where finished, filtered videos are written
	OutputPath string `yaml:"output_path"`

	// WorkPath holds per-run transient files (segments, extracted audio).
	// Each run gets its own subdirectory which is removed when the run ends.
	WorkPath string `yaml:"work_path"`

	// DataPath is where the job table is persisted
	DataPath string `yaml:"data_path"`

	// SegmentDuration is the length of each segment in seconds (default 10)
	SegmentDuration float64 `yaml:"segment_duration"`

	// Workers is the segment filtering pool width. 0 means host CPU count.
	Workers int `yaml:"workers"`

	// MaxUploadBytes is the upload size ceiling (default 100 MiB)
	MaxUploadBytes int64 `yaml:"max_upload_bytes"`

	// AllowedExtensions lists accepted upload extensions (default [".mp4"])
	AllowedExtensions []string `yaml:"allowed_extensions"`

	// FFmpegPath is the path to ffmpeg binary (default: "ffmpeg")
	FFmpegPath string `yaml:"ffmpeg_path"`

	// FFprobePath is the path to ffprobe binary (default: "ffprobe")
	FFprobePath string `yaml:"ffprobe_path"`

	// StoreBackend selects job table persistence: "json" (default) or "sqlite"
	StoreBackend string `yaml:"store_backend"`

	// LogLevel is one of debug, info, warn, error
	LogLevel string `yaml:"log_level"`

	// LogFormat is "text" (default) or "json"
	LogFormat string `yaml:"log_format"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		UploadPath:        "uploads",
		OutputPath:        "outputs",
		WorkPath:          "work",
		DataPath:          "data",
		SegmentDuration:   DefaultSegmentDuration,
		Workers:           0,
		MaxUploadBytes:    DefaultMaxUploadBytes,
		AllowedExtensions: []string{".mp4"},
		FFmpegPath:        "ffmpeg",
		FFprobePath:       "ffprobe",
		StoreBackend:      DefaultStoreBackend,
		LogLevel:          "info",
		LogFormat:         "text",
	}
}

// Load reads config from a YAML file, applying defaults for missing values
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// No config file - use defaults
			return cfg, nil
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.UploadPath == "" {
		c.UploadPath = def.UploadPath
	}
	if c.OutputPath == "" {
		c.OutputPath = def.OutputPath
	}
	if c.WorkPath == "" {
		c.WorkPath = def.WorkPath
	}
	if c.DataPath == "" {
		c.DataPath = def.DataPath
	}
	if c.SegmentDuration <= 0 {
		c.SegmentDuration = DefaultSegmentDuration
	}
	if c.Workers < 0 {
		c.Workers = 0
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if len(c.AllowedExtensions) == 0 {
		c.AllowedExtensions = def.AllowedExtensions
	}
	for i, ext := range c.AllowedExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.AllowedExtensions[i] = ext
	}
	if c.FFmpegPath == "" {
		c.FFmpegPath = "ffmpeg"
	}
	if c.FFprobePath == "" {
		c.FFprobePath = "ffprobe"
	}
	c.StoreBackend = ValidateStoreBackend(c.StoreBackend)
}

// Save writes the config to a YAML file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// ApplyEnv overrides paths and log level from environment variables.
func (c *Config) ApplyEnv() {
	overrides := map[string]*string{
		"UPLOAD_PATH": &c.UploadPath,
		"OUTPUT_PATH": &c.OutputPath,
		"WORK_PATH":   &c.WorkPath,
		"DATA_PATH":   &c.DataPath,
		"LOG_LEVEL":   &c.LogLevel,
	}
	for key, field := range overrides {
		if v := os.Getenv(key); v != "" {
			*field = v
		}
	}
}

// PoolWidth returns the effective segment pool width: Workers, or the host
// CPU count when Workers is 0, never more than the CPU count.
func (c *Config) PoolWidth() int {
	cpus := runtime.NumCPU()
	if c.Workers <= 0 || c.Workers > cpus {
		return cpus
	}
	return c.Workers
}

// IsAllowedExtension reports whether a filename has an accepted extension.
func (c *Config) IsAllowedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	for _, allowed := range c.AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

// EnsureDirs creates the upload, output, work and data directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.UploadPath, c.OutputPath, c.WorkPath, c.DataPath} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return nil
}
