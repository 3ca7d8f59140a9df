package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/keagan/reelmixer/pkg/util"
	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// EnvPrefix namespaces every environment override.
const EnvPrefix = "REELMIXER_"

// Config holds all application configuration
type Config struct {
	// Core settings
	WorkDir string `yaml:"work_dir" env:"WORK_DIR"`
	TempDir string `yaml:"temp_dir" env:"TEMP_DIR"`
	Profile string `yaml:"profile" env:"PROFILE" validate:"oneof=auto standard constrained"`
	Seed    int64  `yaml:"seed" env:"SEED"`

	Output    OutputConfig    `yaml:"output" env:", prefix=OUTPUT_"`
	Clips     ClipsConfig     `yaml:"clips" env:", prefix=CLIPS_"`
	Analysis  AnalysisConfig  `yaml:"analysis" env:", prefix=ANALYSIS_"`
	Detection DetectionConfig `yaml:"detection" env:", prefix=DETECTION_"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg" env:", prefix=FFMPEG_"`
	Branding  BrandingConfig  `yaml:"branding" env:", prefix=BRANDING_"`
	Storage   StorageConfig   `yaml:"storage" env:", prefix=STORAGE_"`
	History   HistoryConfig   `yaml:"history" env:", prefix=HISTORY_"`
}

type OutputConfig struct {
	Width           int     `yaml:"width" env:"WIDTH" validate:"gt=0,even"`
	Height          int     `yaml:"height" env:"HEIGHT" validate:"gt=0,even"`
	FPS             float64 `yaml:"fps" env:"FPS" validate:"gt=0"`
	DurationSeconds float64 `yaml:"duration_seconds" env:"DURATION_SECONDS" validate:"gte=0"`
	Name            string  `yaml:"name" env:"NAME"`
}

type ClipsConfig struct {
	MaxPerVideo         int     `yaml:"max_per_video" env:"MAX_PER_VIDEO" validate:"gte=0"`
	MinClipSeconds      float64 `yaml:"min_clip_seconds" env:"MIN_CLIP_SECONDS" validate:"gt=0"`
	MaxClipSeconds      float64 `yaml:"max_clip_seconds" env:"MAX_CLIP_SECONDS" validate:"gtefield=MinClipSeconds"`
	ExcludeFirstSeconds float64 `yaml:"exclude_first_seconds" env:"EXCLUDE_FIRST_SECONDS" validate:"gte=0"`
	ExcludeLastSeconds  float64 `yaml:"exclude_last_seconds" env:"EXCLUDE_LAST_SECONDS" validate:"gte=0"`
	Shuffle             bool    `yaml:"shuffle" env:"SHUFFLE"`
	SmartShuffle        bool    `yaml:"smart_shuffle" env:"SMART_SHUFFLE"`
	FaceOnly            bool    `yaml:"face_only" env:"FACE_ONLY"`
	SmartCrop           bool    `yaml:"smart_crop" env:"SMART_CROP"`
	Diversity           bool    `yaml:"diversity" env:"DIVERSITY"`
	MergeAdjacent       bool    `yaml:"merge_adjacent" env:"MERGE_ADJACENT"`
}

type AnalysisConfig struct {
	Mode          string  `yaml:"mode" env:"MODE" validate:"oneof=fast precise very-precise"`
	AvoidText     bool    `yaml:"avoid_text" env:"AVOID_TEXT"`
	TextRemoval   string  `yaml:"text_removal" env:"TEXT_REMOVAL" validate:"omitempty,oneof=crop inpaint"`
	FaceThreshold float64 `yaml:"face_threshold" env:"FACE_THRESHOLD" validate:"gt=0,lte=1"`
	FrameWidth    int     `yaml:"frame_width" env:"FRAME_WIDTH" validate:"gte=0"`
}

type DetectionConfig struct {
	ONNXLibrary    string            `yaml:"onnx_library" env:"ONNX_LIBRARY"`
	EASTModel      string            `yaml:"east_model" env:"EAST_MODEL"`
	FaceModels     map[string]string `yaml:"face_models"`
	EmbedderModel  string            `yaml:"embedder_model" env:"EMBEDDER_MODEL"`
	TextConfidence float64           `yaml:"text_confidence" env:"TEXT_CONFIDENCE" validate:"gt=0,lte=1"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path" env:"BINARY_PATH"`
	Threads    int    `yaml:"threads" env:"THREADS" validate:"gte=0"`
}

type BrandingConfig struct {
	Logo        LogoConfig  `yaml:"logo" env:", prefix=LOGO_"`
	Audio       AudioConfig `yaml:"audio" env:", prefix=AUDIO_"`
	TaglinePath string      `yaml:"tagline_path" env:"TAGLINE_PATH"`
}

type LogoConfig struct {
	Path        string  `yaml:"path" env:"PATH"`
	Position    string  `yaml:"position" env:"POSITION" validate:"oneof=top-left top-right top-center"`
	SizePercent float64 `yaml:"size_percent" env:"SIZE_PERCENT" validate:"gt=0,lte=100"`
	Opacity     float64 `yaml:"opacity" env:"OPACITY" validate:"gte=0,lte=1"`
	Margin      int     `yaml:"margin" env:"MARGIN" validate:"gte=0"`
	Vertical    int     `yaml:"vertical" env:"VERTICAL" validate:"gte=0"`
}

type AudioConfig struct {
	Path         string  `yaml:"path" env:"PATH"`
	Volume       float64 `yaml:"volume" env:"VOLUME" validate:"gte=0"`
	FadeIn       float64 `yaml:"fade_in" env:"FADE_IN" validate:"gte=0"`
	FadeOut      float64 `yaml:"fade_out" env:"FADE_OUT" validate:"gte=0"`
	AdaptToAudio bool    `yaml:"adapt_to_audio" env:"ADAPT_TO_AUDIO"`
	ExtraSeconds float64 `yaml:"extra_seconds" env:"EXTRA_SECONDS" validate:"gte=0"`
}

type StorageConfig struct {
	OutputDir string   `yaml:"output_dir" env:"OUTPUT_DIR"`
	S3        S3Config `yaml:"s3" env:", prefix=S3_"`
}

type S3Config struct {
	Bucket          string `yaml:"bucket" env:"BUCKET"`
	Region          string `yaml:"region" env:"REGION"`
	Prefix          string `yaml:"prefix" env:"PREFIX"`
	AccessKeyID     string `yaml:"access_key_id" env:"ACCESS_KEY_ID"`
	SecretAccessKey string `yaml:"secret_access_key" env:"SECRET_ACCESS_KEY"`
}

type HistoryConfig struct {
	Enabled bool   `yaml:"enabled" env:"ENABLED"`
	Path    string `yaml:"path" env:"PATH"`
}

// Load reads configuration from file, applies REELMIXER_ environment
// overrides and validates the result. An empty path searches the default
// locations; no file at all yields the defaults.
func Load(ctx context.Context, path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, err
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", path, err)
			}
		}
	}

	if err := envconfig.ProcessWith(ctx, &envconfig.Config{
		Target:           cfg,
		Lookuper:         envconfig.PrefixLookuper(EnvPrefix, envconfig.OsLookuper()),
		DefaultOverwrite: true,
	}); err != nil {
		return nil, fmt.Errorf("environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	_ = validate.RegisterValidation("even", func(fl validator.FieldLevel) bool {
		return fl.Field().Int()%2 == 0
	})
}

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// String renders the config as YAML with S3 secrets masked.
func (c *Config) String() string {
	masked := *c
	masked.Storage.S3.AccessKeyID = mask(c.Storage.S3.AccessKeyID)
	masked.Storage.S3.SecretAccessKey = mask(c.Storage.S3.SecretAccessKey)
	data, err := yaml.Marshal(&masked)
	if err != nil {
		return fmt.Sprintf("config: %v", err)
	}
	return string(data)
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 4 {
		return "****"
	}
	return s[:2] + strings.Repeat("*", len(s)-4) + s[len(s)-2:]
}

// Default returns the built-in configuration.
func Default() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		WorkDir: "./work",
		TempDir: "",
		Profile: "auto",
		Output: OutputConfig{
			Width:           1080,
			Height:          1920,
			FPS:             30,
			DurationSeconds: 60,
			Name:            "reel.mp4",
		},
		Clips: ClipsConfig{
			MaxPerVideo:    3,
			MinClipSeconds: 3,
			MaxClipSeconds: 8,
			Shuffle:        true,
			SmartShuffle:   true,
			SmartCrop:      true,
		},
		Analysis: AnalysisConfig{
			Mode:          "precise",
			FaceThreshold: 0.4,
			FrameWidth:    480,
		},
		Detection: DetectionConfig{
			FaceModels:     map[string]string{"default": "./models/face_detector.onnx"},
			EASTModel:      "./models/east_text_detection.onnx",
			EmbedderModel:  "./models/arcface.onnx",
			TextConfidence: 0.5,
		},
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
		},
		Branding: BrandingConfig{
			Logo: LogoConfig{
				Position:    "top-right",
				SizePercent: 20,
				Opacity:     0.5,
				Margin:      40,
				Vertical:    10,
			},
			Audio: AudioConfig{
				Volume:  1.0,
				FadeIn:  1,
				FadeOut: 1,
			},
		},
		Storage: StorageConfig{
			OutputDir: ".",
		},
		History: HistoryConfig{
			Enabled: true,
			Path:    filepath.Join(home, ".config", "reelmixer", "history.db"),
		},
	}
}

// DefaultPath is where `config edit` writes a fresh file.
func DefaultPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "reelmixer", "config.yaml")
}

func findConfigFile() string {
	candidates := []string{
		"./reelmixer.yaml",
		DefaultPath(),
	}

	for _, path := range candidates {
		if util.FileExists(path) {
			return path
		}
	}

	return ""
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
	return Default()
}
