package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Brownie44l1/styler/internal/domain"
	"github.com/spf13/viper"
)

type Config struct {
	Log      Log
	Server   Server
	Model    Model
	Pipeline Pipeline
	Telegram Telegram
	Download Download
}

type Log struct {
	Level  string
	Pretty bool
}

type Server struct {
	Port        string
	MaxUploadMB int64
}

type Model struct {
	Path         string
	MetadataPath string
	SHA256       string
	LibraryPath  string
	Timeout      time.Duration
}

type Pipeline struct {
	ImageSize        int
	MaxSharpness     float32
	DefaultDensity   float32
	DefaultSharpness float32
	// MaxPixels bounds the decoded size of every input image. Zero disables
	// the bound.
	MaxPixels int64
}

// Defaults returns the density and sharpness used when a request omits them.
func (p Pipeline) Defaults() domain.Params {
	return domain.Params{Density: p.DefaultDensity, Sharpness: p.DefaultSharpness}
}

type Telegram struct {
	BotToken       string
	AllowedChatIDs []int64
	Timeout        time.Duration
}

type Download struct {
	Timeout  time.Duration
	MaxBytes int64
}

// SetDefaults registers the default value of every key on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.max_upload_mb", 20)
	v.SetDefault("model.path", "models/style_transfer.onnx")
	v.SetDefault("model.metadata_path", "models/model_metadata.json")
	v.SetDefault("model.sha256", "")
	v.SetDefault("model.library_path", "")
	v.SetDefault("model.timeout", "60s")
	v.SetDefault("pipeline.image_size", 256)
	v.SetDefault("pipeline.max_sharpness", 1.0)
	v.SetDefault("pipeline.default_density", 0.5)
	v.SetDefault("pipeline.default_sharpness", 0.5)
	v.SetDefault("pipeline.max_pixels", 40_000_000)
	v.SetDefault("telegram.bot_token", "")
	v.SetDefault("telegram.allowed_chat_ids", []int64{})
	v.SetDefault("telegram.timeout", "2m")
	v.SetDefault("download.timeout", "30s")
	v.SetDefault("download.max_bytes", 20<<20)
}

// New returns a viper instance reading config.toml from the working directory
// or /etc/styler, with STYLER_ prefixed environment overrides.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/styler")
	v.SetEnvPrefix("styler")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)

	return v
}

// Read loads the config file into v. A missing file is not an error.
func Read(v *viper.Viper) error {
	err := v.ReadInConfig()
	var notFound viper.ConfigFileNotFoundError
	if err != nil && !errors.As(err, &notFound) {
		return fmt.Errorf("could not read config file: %w", err)
	}

	return nil
}

// Load builds a validated Config from v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	var err error

	cfg.Log = Log{Level: v.GetString("log.level"), Pretty: v.GetBool("log.pretty")}
	cfg.Server = Server{Port: v.GetString("server.port"), MaxUploadMB: v.GetInt64("server.max_upload_mb")}

	cfg.Model = Model{
		Path:         v.GetString("model.path"),
		MetadataPath: v.GetString("model.metadata_path"),
		SHA256:       v.GetString("model.sha256"),
		LibraryPath:  v.GetString("model.library_path"),
	}
	if cfg.Model.Timeout, err = duration(v, "model.timeout"); err != nil {
		return Config{}, err
	}

	cfg.Pipeline = Pipeline{
		ImageSize:        v.GetInt("pipeline.image_size"),
		MaxSharpness:     float32(v.GetFloat64("pipeline.max_sharpness")),
		DefaultDensity:   float32(v.GetFloat64("pipeline.default_density")),
		DefaultSharpness: float32(v.GetFloat64("pipeline.default_sharpness")),
		MaxPixels:        v.GetInt64("pipeline.max_pixels"),
	}

	cfg.Telegram.BotToken = v.GetString("telegram.bot_token")
	if err := v.UnmarshalKey("telegram.allowed_chat_ids", &cfg.Telegram.AllowedChatIDs); err != nil {
		return Config{}, errors.New("failed to load allowed chat IDs")
	}
	if cfg.Telegram.Timeout, err = duration(v, "telegram.timeout"); err != nil {
		return Config{}, err
	}

	cfg.Download.MaxBytes = v.GetInt64("download.max_bytes")
	if cfg.Download.Timeout, err = duration(v, "download.timeout"); err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func (c Config) validate() error {
	if c.Pipeline.ImageSize < 1 {
		return fmt.Errorf("pipeline.image_size must be positive, got %d", c.Pipeline.ImageSize)
	}
	if c.Pipeline.MaxSharpness < 0 {
		return fmt.Errorf("pipeline.max_sharpness must not be negative, got %v", c.Pipeline.MaxSharpness)
	}
	if err := c.Pipeline.Defaults().Validate(c.Pipeline.MaxSharpness); err != nil {
		return fmt.Errorf("pipeline defaults: %w", err)
	}
	if c.Pipeline.MaxPixels < 0 {
		return fmt.Errorf("pipeline.max_pixels must not be negative, got %d", c.Pipeline.MaxPixels)
	}
	if c.Server.MaxUploadMB < 0 {
		return fmt.Errorf("server.max_upload_mb must not be negative, got %d", c.Server.MaxUploadMB)
	}

	return nil
}

func duration(v *viper.Viper, key string) (time.Duration, error) {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}

	return d, nil
}
