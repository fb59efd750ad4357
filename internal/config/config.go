package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TRAVEL"

type Config struct {
	Server  ServerConfig
	Log     LogConfig
	LLM     LLMConfig
	Places  PlacesConfig
	Speech  SpeechConfig
	LipSync LipSyncConfig
	Synth   SynthConfig
	Storage StorageConfig
	Session SessionConfig
	Report  ReportConfig
}

type ServerConfig struct {
	Port          string
	MaxBodyBytes  int64
	ShutdownGrace time.Duration
}

type LogConfig struct {
	Level string
}

// LLMConfig selects the dialogue model. Backend is "gemini" (API key),
// "vertex" (GCP project credentials) or "mock" (scripted local replies).
type LLMConfig struct {
	Backend     string
	APIKey      string
	Project     string
	Location    string
	Model       string
	Temperature float64
	Timeout     time.Duration
}

type PlacesConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

type SpeechConfig struct {
	APIKey       string
	BaseURL      string
	DefaultVoice string
	ModelID      string
}

type LipSyncConfig struct {
	FFmpegPath  string
	RhubarbPath string
	TempDir     string
}

type SynthConfig struct {
	Concurrency    int
	SegmentTimeout time.Duration
}

// StorageConfig selects the session store: "memory", "firestore" or "postgres".
type StorageConfig struct {
	Backend     string
	PostgresDSN string
	GCPProject  string
	AutoMigrate bool
}

type SessionConfig struct {
	IdleThreshold time.Duration
	SweepInterval time.Duration
}

type ReportConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// LoadDotEnv loads KEY=VALUE files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// NewViper returns a viper instance with defaults, env bindings and the
// optional config file search paths registered.
func NewViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.max_body_bytes", 50<<20) // images travel inline
	v.SetDefault("server.shutdown_grace", 15*time.Second)

	v.SetDefault("log.level", "info")

	v.SetDefault("llm.backend", "gemini")
	v.SetDefault("llm.api_key", "")
	v.SetDefault("llm.project", "")
	v.SetDefault("llm.location", "us-central1")
	v.SetDefault("llm.model", "gemini-2.5-flash")
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.timeout", 60*time.Second)

	v.SetDefault("places.api_key", "")
	v.SetDefault("places.base_url", "https://places.googleapis.com")
	v.SetDefault("places.timeout", 5*time.Second)

	v.SetDefault("speech.api_key", "")
	v.SetDefault("speech.base_url", "https://api.elevenlabs.io")
	v.SetDefault("speech.default_voice", "rU18Fk3uSDhmg5Xh41o4")
	v.SetDefault("speech.model_id", "eleven_multilingual_v2")

	v.SetDefault("lipsync.ffmpeg_path", "ffmpeg")
	v.SetDefault("lipsync.rhubarb_path", "./bin/rhubarb")
	v.SetDefault("lipsync.temp_dir", "")

	v.SetDefault("synth.concurrency", 3)
	v.SetDefault("synth.segment_timeout", 45*time.Second)

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.postgres_dsn", "")
	v.SetDefault("storage.gcp_project", "")
	v.SetDefault("storage.auto_migrate", true)

	// Zero means "pick the default for the storage backend".
	v.SetDefault("session.idle_threshold", time.Duration(0))
	v.SetDefault("session.sweep_interval", time.Duration(0))

	v.SetDefault("report.api_key", "")
	v.SetDefault("report.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("report.model", "google/gemini-2.5-flash-preview-05-20")
	v.SetDefault("report.timeout", 90*time.Second)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Legacy variable names still used by existing deployments.
	_ = v.BindEnv("server.port", "TRAVEL_SERVER_PORT", "PORT")
	_ = v.BindEnv("llm.api_key", "TRAVEL_LLM_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("llm.project", "TRAVEL_LLM_PROJECT", "GOOGLE_CLOUD_PROJECT")
	_ = v.BindEnv("places.api_key", "TRAVEL_PLACES_API_KEY", "MAPS_API_KEY", "GOOGLE_MAPS_API_KEY")
	_ = v.BindEnv("speech.api_key", "TRAVEL_SPEECH_API_KEY", "ELEVEN_LABS_API_KEY")
	_ = v.BindEnv("storage.postgres_dsn", "TRAVEL_STORAGE_POSTGRES_DSN", "DATABASE_URL")
	_ = v.BindEnv("storage.gcp_project", "TRAVEL_STORAGE_GCP_PROJECT", "GOOGLE_CLOUD_PROJECT")
	_ = v.BindEnv("report.api_key", "TRAVEL_REPORT_API_KEY", "OPENROUTER_API_KEY")

	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	return v
}

// Load reads the optional config file and builds the config from v.
func Load(v *viper.Viper) (*Config, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:          v.GetString("server.port"),
			MaxBodyBytes:  v.GetInt64("server.max_body_bytes"),
			ShutdownGrace: v.GetDuration("server.shutdown_grace"),
		},
		Log: LogConfig{Level: v.GetString("log.level")},
		LLM: LLMConfig{
			Backend:     strings.ToLower(v.GetString("llm.backend")),
			APIKey:      v.GetString("llm.api_key"),
			Project:     v.GetString("llm.project"),
			Location:    v.GetString("llm.location"),
			Model:       v.GetString("llm.model"),
			Temperature: v.GetFloat64("llm.temperature"),
			Timeout:     v.GetDuration("llm.timeout"),
		},
		Places: PlacesConfig{
			APIKey:  v.GetString("places.api_key"),
			BaseURL: v.GetString("places.base_url"),
			Timeout: v.GetDuration("places.timeout"),
		},
		Speech: SpeechConfig{
			APIKey:       v.GetString("speech.api_key"),
			BaseURL:      v.GetString("speech.base_url"),
			DefaultVoice: v.GetString("speech.default_voice"),
			ModelID:      v.GetString("speech.model_id"),
		},
		LipSync: LipSyncConfig{
			FFmpegPath:  v.GetString("lipsync.ffmpeg_path"),
			RhubarbPath: v.GetString("lipsync.rhubarb_path"),
			TempDir:     v.GetString("lipsync.temp_dir"),
		},
		Synth: SynthConfig{
			Concurrency:    v.GetInt("synth.concurrency"),
			SegmentTimeout: v.GetDuration("synth.segment_timeout"),
		},
		Storage: StorageConfig{
			Backend:     strings.ToLower(v.GetString("storage.backend")),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
			GCPProject:  v.GetString("storage.gcp_project"),
			AutoMigrate: v.GetBool("storage.auto_migrate"),
		},
		Session: SessionConfig{
			IdleThreshold: v.GetDuration("session.idle_threshold"),
			SweepInterval: v.GetDuration("session.sweep_interval"),
		},
		Report: ReportConfig{
			APIKey:  v.GetString("report.api_key"),
			BaseURL: v.GetString("report.base_url"),
			Model:   v.GetString("report.model"),
			Timeout: v.GetDuration("report.timeout"),
		},
	}

	cfg.applySessionDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// The in-memory deployment keeps conversations for 30 minutes and sweeps every
// 5; persisted deployments keep them for a day and sweep hourly.
func (c *Config) applySessionDefaults() {
	if c.Session.IdleThreshold <= 0 {
		if c.Storage.Backend == "memory" {
			c.Session.IdleThreshold = 30 * time.Minute
		} else {
			c.Session.IdleThreshold = 24 * time.Hour
		}
	}
	if c.Session.SweepInterval <= 0 {
		if c.Storage.Backend == "memory" {
			c.Session.SweepInterval = 5 * time.Minute
		} else {
			c.Session.SweepInterval = time.Hour
		}
	}
}

// Validate rejects configurations the process cannot start with.
// Missing API keys are not fatal here; see MissingCredentials.
func (c *Config) Validate() error {
	var errs []error

	switch c.LLM.Backend {
	case "gemini", "mock":
	case "vertex":
		if c.LLM.Project == "" {
			errs = append(errs, errors.New("llm.project must be set for the vertex backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.backend must be one of gemini|vertex|mock, got %q", c.LLM.Backend))
	}

	switch c.Storage.Backend {
	case "memory":
	case "firestore":
		if c.Storage.GCPProject == "" {
			errs = append(errs, errors.New("storage.gcp_project must be set for the firestore backend"))
		}
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			errs = append(errs, errors.New("storage.postgres_dsn must be set for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.backend must be one of memory|firestore|postgres, got %q", c.Storage.Backend))
	}

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port must be set"))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, errors.New("server.max_body_bytes must be > 0"))
	}
	if c.Synth.Concurrency < 1 {
		errs = append(errs, errors.New("synth.concurrency must be >= 1"))
	}
	if c.Synth.SegmentTimeout <= 0 {
		errs = append(errs, errors.New("synth.segment_timeout must be > 0"))
	}
	if c.LLM.Timeout <= 0 {
		errs = append(errs, errors.New("llm.timeout must be > 0"))
	}
	if c.Places.Timeout <= 0 {
		errs = append(errs, errors.New("places.timeout must be > 0"))
	}
	if c.Report.Timeout <= 0 {
		errs = append(errs, errors.New("report.timeout must be > 0"))
	}

	return errors.Join(errs...)
}

// MissingCredentials lists the external-service credentials a turn needs but
// that are not configured. An empty result means turns may proceed.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.LLM.Backend == "gemini" && c.LLM.APIKey == "" {
		missing = append(missing, "GEMINI_API_KEY")
	}
	if c.Places.APIKey == "" {
		missing = append(missing, "MAPS_API_KEY")
	}
	if c.Speech.APIKey == "" {
		missing = append(missing, "ELEVEN_LABS_API_KEY")
	}
	return missing
}
