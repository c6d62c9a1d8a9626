package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
// DefaultCookiesPath is where the admin routes keep the yt-dlp cookies
// file when ytdlp.cookies_path is unset.
const DefaultCookiesPath = "/etc/briefly/cookies/youtube.cookies.txt"

type Config struct {
	Server struct {
		Port   int    `yaml:"port"`
		Host   string `yaml:"host"`
		AppURL string `yaml:"app_url"`
	} `yaml:"server"`

	Workers struct {
		Count int `yaml:"count"`
	} `yaml:"workers"`

	Storage struct {
		TempDir   string `yaml:"temp_dir"`
		OutputDir string `yaml:"output_dir"`
		Database  string `yaml:"database"`
	} `yaml:"storage"`

	Limits struct {
		MaxFileSizeMB      int `yaml:"max_file_size_mb"`
		MaxDurationMinutes int `yaml:"max_duration_minutes"`
		RateLimitPerMin    int `yaml:"rate_limit_per_min"`
	} `yaml:"limits"`

	Status struct {
		RetentionMinutes int `yaml:"retention_minutes"`
	} `yaml:"status"`

	YtDlp struct {
		Path                string   `yaml:"path"`
		CookiesPath         string   `yaml:"cookies_path"`
		Fallbacks           []string `yaml:"fallbacks"`
		FetchTimeoutMinutes int      `yaml:"fetch_timeout_minutes"`
		ProbeTimeoutSeconds int      `yaml:"probe_timeout_seconds"`
	} `yaml:"ytdlp"`

	FFmpeg struct {
		Path           string `yaml:"path"`
		SampleRate     int    `yaml:"sample_rate"`
		BitrateKbps    int    `yaml:"bitrate_kbps"`
		TimeoutMinutes int    `yaml:"timeout_minutes"`
	} `yaml:"ffmpeg"`

	OpenAI struct {
		APIKey          string `yaml:"api_key"`
		BaseURL         string `yaml:"base_url"`
		TranscribeModel string `yaml:"transcribe_model"`
		SummaryModel    string `yaml:"summary_model"`
	} `yaml:"openai"`

	Transcription struct {
		// Backend is "openai" or "whisper-cli".
		Backend string `yaml:"backend"`
	} `yaml:"transcription"`

	Whisper struct {
		Python   string `yaml:"python"`
		Model    string `yaml:"model"`
		Language string `yaml:"language"`
	} `yaml:"whisper"`

	Simulation struct {
		Enabled           bool    `yaml:"enabled"`
		FailProb          float64 `yaml:"fail_prob"`
		FailAt            string  `yaml:"fail_at"`
		DownloadSeconds   int     `yaml:"download_seconds"`
		TranscribeSeconds int     `yaml:"transcribe_seconds"`
		SummarizeSeconds  int     `yaml:"summarize_seconds"`
	} `yaml:"simulation"`

	Mirror struct {
		// Driver is "sqlite", "redis" or "none".
		Driver string `yaml:"driver"`
	} `yaml:"mirror"`

	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		TTLHours int    `yaml:"ttl_hours"`
	} `yaml:"redis"`

	Notify struct {
		// Driver is "log", "gmail" or "none".
		Driver string   `yaml:"driver"`
		On     []string `yaml:"on"`
		From   string   `yaml:"from"`
	} `yaml:"notify"`

	Google struct {
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
	} `yaml:"google"`

	GoogleDrive struct {
		Enabled    bool   `yaml:"enabled"`
		FolderName string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Admin struct {
		// Token guards the /admin routes; empty disables them.
		Token string `yaml:"token"`
	} `yaml:"admin"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes"`
		MaxAgeHours     int `yaml:"max_age_hours"`
	} `yaml:"cleanup"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// Load reads the YAML file at path, then the optional .env file, applies
// environment overrides and defaults, and validates the result.
func Load(path, envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if path != "" {
		file, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.YtDlp.Path, "YTDLP_PATH")
	setString(&c.YtDlp.CookiesPath, "YTDLP_COOKIES_PATH")
	setString(&c.Redis.Addr, "REDIS_ADDR")
	setString(&c.Log.Level, "LOG_LEVEL")
	setString(&c.Admin.Token, "ADMIN_TOKEN")

	if v, ok := os.LookupEnv("MOCK_MODE"); ok && v != "" {
		c.Simulation.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("MOCK_FAIL_PROB"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("MOCK_FAIL_PROB: %w", err)
		}
		c.Simulation.FailProb = f
	}

	for key, dst := range map[string]*int{
		"RATE_LIMIT_PER_MIN": &c.Limits.RateLimitPerMin,
		"MAX_UPLOAD_MB":      &c.Limits.MaxFileSizeMB,
		"MAX_VIDEO_MINUTES":  &c.Limits.MaxDurationMinutes,
	} {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("%s must be a positive integer, got %q", key, v)
		}
		*dst = n
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	intDefault(&c.Server.Port, 3000)
	strDefault(&c.Server.Host, "0.0.0.0")
	strDefault(&c.Server.AppURL, "http://localhost:3000")
	intDefault(&c.Workers.Count, 2)

	strDefault(&c.Storage.TempDir, "temp")
	strDefault(&c.Storage.OutputDir, "outputs")
	strDefault(&c.Storage.Database, "briefly.db")

	intDefault(&c.Limits.MaxFileSizeMB, 100)
	intDefault(&c.Limits.MaxDurationMinutes, 60)
	intDefault(&c.Limits.RateLimitPerMin, 20)
	intDefault(&c.Status.RetentionMinutes, 10)

	strDefault(&c.YtDlp.Path, "yt-dlp")
	intDefault(&c.YtDlp.FetchTimeoutMinutes, 10)
	intDefault(&c.YtDlp.ProbeTimeoutSeconds, 60)
	if c.Admin.Token != "" {
		strDefault(&c.YtDlp.CookiesPath, DefaultCookiesPath)
	}

	strDefault(&c.FFmpeg.Path, "ffmpeg")
	intDefault(&c.FFmpeg.SampleRate, 16000)
	intDefault(&c.FFmpeg.BitrateKbps, 48)
	intDefault(&c.FFmpeg.TimeoutMinutes, 10)

	strDefault(&c.OpenAI.TranscribeModel, "whisper-1")
	strDefault(&c.OpenAI.SummaryModel, "gpt-4o-mini")
	strDefault(&c.Transcription.Backend, "openai")
	strDefault(&c.Whisper.Python, "python3")
	strDefault(&c.Whisper.Model, "base")

	intDefault(&c.Simulation.DownloadSeconds, 15)
	intDefault(&c.Simulation.TranscribeSeconds, 25)
	intDefault(&c.Simulation.SummarizeSeconds, 20)

	strDefault(&c.Mirror.Driver, "sqlite")
	strDefault(&c.Redis.Addr, "localhost:6379")
	intDefault(&c.Redis.TTLHours, 24*7)

	strDefault(&c.Notify.Driver, "log")
	if len(c.Notify.On) == 0 {
		c.Notify.On = []string{"READY", "FAILED"}
	}
	strDefault(&c.Google.CredentialsFile, "credentials.json")
	strDefault(&c.Google.TokenFile, "token.json")
	strDefault(&c.GoogleDrive.FolderName, "Briefly Summaries")

	intDefault(&c.Cleanup.IntervalMinutes, 30)
	intDefault(&c.Cleanup.MaxAgeHours, 2)

	strDefault(&c.Log.Level, "info")
	strDefault(&c.Log.Format, "json")
}

func intDefault(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func strDefault(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

// Validate rejects configurations the server cannot run with.
func (c *Config) Validate() error {
	if c.Simulation.FailProb < 0 || c.Simulation.FailProb > 1 {
		return fmt.Errorf("simulation.fail_prob must be in [0,1], got %v", c.Simulation.FailProb)
	}
	switch c.Simulation.FailAt {
	case "", "DOWNLOADING", "TRANSCRIBING", "SUMMARIZING", "BEFORE_READY":
	default:
		return fmt.Errorf("unknown simulation.fail_at %q", c.Simulation.FailAt)
	}
	if !c.Simulation.Enabled && c.OpenAI.APIKey == "" {
		return errors.New("OPENAI_API_KEY is required when simulation is disabled")
	}
	switch c.Transcription.Backend {
	case "openai", "whisper-cli":
	default:
		return fmt.Errorf("unknown transcription.backend %q", c.Transcription.Backend)
	}
	switch c.Mirror.Driver {
	case "sqlite", "redis", "none":
	default:
		return fmt.Errorf("unknown mirror.driver %q", c.Mirror.Driver)
	}
	switch c.Notify.Driver {
	case "log", "gmail", "none":
	default:
		return fmt.Errorf("unknown notify.driver %q", c.Notify.Driver)
	}
	for _, st := range c.Notify.On {
		switch st {
		case "PENDING", "DOWNLOADING", "TRANSCRIBING", "SUMMARIZING", "READY", "FAILED":
		default:
			return fmt.Errorf("unknown notify.on state %q", st)
		}
	}
	if c.Notify.Driver == "gmail" && c.Notify.From == "" {
		return errors.New("notify.from is required for the gmail driver")
	}
	return nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Retention is how long terminal statuses stay in memory.
func (c *Config) Retention() time.Duration {
	return time.Duration(c.Status.RetentionMinutes) * time.Minute
}
