package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/audiolibrelab/autopause/internal/monitor"
)

// EnvPrefix prefixes environment overrides, e.g. AUTOPAUSE_OBS_PASSWORD.
const EnvPrefix = "AUTOPAUSE"

type Config struct {
	OBS     OBSConfig     `mapstructure:"obs" yaml:"obs"`
	Monitor MonitorConfig `mapstructure:"monitor" yaml:"monitor"`
	Log     LogConfig     `mapstructure:"log" yaml:"log"`
	Status  StatusConfig  `mapstructure:"status" yaml:"status"`

	LockFile string `mapstructure:"lock_file" yaml:"lock_file"`
}

type OBSConfig struct {
	URL      string        `mapstructure:"url" yaml:"url" validate:"required,url"`
	Password string        `mapstructure:"password" yaml:"password,omitempty"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout" validate:"gt=0"`
}

type MonitorConfig struct {
	CheckInterval      int     `mapstructure:"check_interval" yaml:"check_interval" validate:"gte=1,lte=60"`
	SilenceThreshold   float64 `mapstructure:"silence_threshold" yaml:"silence_threshold" validate:"gte=-100,lte=0"`
	StillnessThreshold float64 `mapstructure:"stillness_threshold" yaml:"stillness_threshold" validate:"gte=0,lte=1"`
	VideoSource        string  `mapstructure:"video_source" yaml:"video_source" validate:"required"`
	AudioSource        string  `mapstructure:"audio_source" yaml:"audio_source" validate:"required"`
	AudioMode          string  `mapstructure:"audio_mode" yaml:"audio_mode" validate:"oneof=volume meter"`
	ScreenshotWidth    int     `mapstructure:"screenshot_width" yaml:"screenshot_width" validate:"gte=0,lte=7680"`
}

type LogConfig struct {
	File string `mapstructure:"file" yaml:"file"` // empty disables the log file
}

type StatusConfig struct {
	Listen string `mapstructure:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

var defaultConfig = Config{
	OBS: OBSConfig{
		URL:     "ws://localhost:4455",
		Timeout: 5 * time.Second,
	},
	Monitor: MonitorConfig{
		CheckInterval:      1,
		SilenceThreshold:   -50.0,
		StillnessThreshold: 0.01,
		VideoSource:        "Scene",
		AudioSource:        "Desktop Audio",
		AudioMode:          "volume",
		ScreenshotWidth:    320,
	},
	Log: LogConfig{
		File: "autopause.log",
	},
	LockFile: filepath.Join(os.TempDir(), "autopause.lock"),
}

// Default returns a copy of the built-in configuration.
func Default() *Config {
	c := defaultConfig
	return &c
}

// DefaultPath is where the config file is looked up when --config is not given.
func DefaultPath() string {
	return os.ExpandEnv("$HOME/.config/autopause.yaml")
}

var validate = newValidator()

// newValidator reports fields by their config key rather than the Go field name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("mapstructure"), ",", 2)[0]
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// Loader reads the configuration through its own viper instance.
type Loader struct {
	v    *viper.Viper
	path string
}

// NewLoader prepares a loader for configFile. A missing file is not an error:
// defaults and environment overrides still apply.
func NewLoader(configFile string) *Loader {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v, path: configFile}
}

func setDefaults(v *viper.Viper) {
	d := defaultConfig
	v.SetDefault("obs.url", d.OBS.URL)
	v.SetDefault("obs.password", d.OBS.Password)
	v.SetDefault("obs.timeout", d.OBS.Timeout)
	v.SetDefault("monitor.check_interval", d.Monitor.CheckInterval)
	v.SetDefault("monitor.silence_threshold", d.Monitor.SilenceThreshold)
	v.SetDefault("monitor.stillness_threshold", d.Monitor.StillnessThreshold)
	v.SetDefault("monitor.video_source", d.Monitor.VideoSource)
	v.SetDefault("monitor.audio_source", d.Monitor.AudioSource)
	v.SetDefault("monitor.audio_mode", d.Monitor.AudioMode)
	v.SetDefault("monitor.screenshot_width", d.Monitor.ScreenshotWidth)
	v.SetDefault("log.file", d.Log.File)
	v.SetDefault("status.listen", d.Status.Listen)
	v.SetDefault("lock_file", d.LockFile)
}

// Path returns the config file path given to the loader.
func (l *Loader) Path() string {
	return l.path
}

// Load reads, decodes and validates the configuration.
func (l *Loader) Load() (*Config, error) {
	if l.path != "" {
		if _, err := os.Stat(l.path); err == nil {
			l.v.SetConfigFile(l.path)
			if err := l.v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("error reading config file %s: %w", l.path, err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error accessing config file %s: %w", l.path, err)
		}
	}
	return l.decode()
}

func (l *Loader) decode() (*Config, error) {
	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	cfg.Log.File = expandPath(cfg.Log.File)
	cfg.LockFile = expandPath(cfg.LockFile)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Watch calls onChange with every valid configuration written to the file.
// Invalid edits are reported through onError and otherwise ignored.
func (l *Loader) Watch(onChange func(*Config), onError func(error)) {
	if l.v.ConfigFileUsed() == "" {
		return
	}
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := l.decode()
		if err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload %s: %w", e.Name, err))
			}
			return
		}
		onChange(cfg)
	})
	l.v.WatchConfig()
}

// Validate checks ranges and required fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, formatFieldError(fe))
			}
			return fmt.Errorf("config validation failed: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

func formatFieldError(fe validator.FieldError) string {
	field := strings.TrimPrefix(fe.Namespace(), "Config.")
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "gte":
		return fmt.Sprintf("%s must be >= %s, got: %v", field, fe.Param(), fe.Value())
	case "lte":
		return fmt.Sprintf("%s must be <= %s, got: %v", field, fe.Param(), fe.Value())
	case "gt":
		return fmt.Sprintf("%s must be > %s, got: %v", field, fe.Param(), fe.Value())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got: %v", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s is invalid (%s), got: %v", field, fe.Tag(), fe.Value())
	}
}

// Settings converts the monitor section into monitor settings.
func (c *Config) Settings() monitor.Settings {
	return monitor.Settings{
		CheckInterval:      c.Monitor.CheckInterval,
		SilenceThreshold:   c.Monitor.SilenceThreshold,
		StillnessThreshold: c.Monitor.StillnessThreshold,
		VideoSource:        c.Monitor.VideoSource,
		AudioSource:        c.Monitor.AudioSource,
	}
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[2:])
	}
	return path
}
