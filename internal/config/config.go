package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Encryption EncryptionConfig `yaml:"encryption"`
	Logging    LoggingConfig    `yaml:"logging"`
	Uploads    UploadsConfig    `yaml:"uploads"`
	Inbox      InboxConfig      `yaml:"inbox"`
	OCR        OCRConfig        `yaml:"ocr"`
	AI         AIConfig         `yaml:"ai"`
	Spotify    SpotifyConfig    `yaml:"spotify"`
	Extraction ExtractionConfig `yaml:"extraction"`
	Limits     LimitsConfig     `yaml:"limits"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port     int    `yaml:"port"`
	BasePath string `yaml:"base_path"`

	// Admins lists the Spotify user IDs allowed to change runtime settings.
	Admins []string `yaml:"admins"`
}

// DatabaseConfig holds SQLite settings.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EncryptionConfig holds the key used to encrypt stored Spotify tokens.
// A 32-byte base64 key is used as-is; anything else is treated as a
// passphrase.
type EncryptionConfig struct {
	Key string `yaml:"key"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// UploadsConfig controls where flyers are stored and how long they are kept.
type UploadsConfig struct {
	Dir             string        `yaml:"dir"`
	MaxAge          time.Duration `yaml:"max_age"`
	CleanupInterval time.Duration `yaml:"cleanup_interval"`
}

// InboxConfig enables the drop-folder watcher. An empty Dir disables it.
type InboxConfig struct {
	Dir      string        `yaml:"dir"`
	Debounce time.Duration `yaml:"debounce"`
	UseAI    bool          `yaml:"use_ai"`
}

// OCRConfig selects and configures OCR engines.
type OCRConfig struct {
	Engine        string `yaml:"engine"`
	TesseractPath string `yaml:"tesseract_path"`
	Language      string `yaml:"language"`
	VisionAPIKey  string `yaml:"vision_api_key"`
}

// AIConfig holds AI provider credentials.
type AIConfig struct {
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`
}

// SpotifyConfig holds the Spotify application credentials.
type SpotifyConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	RedirectURI  string `yaml:"redirect_uri"`
}

// ExtractionConfig holds extraction defaults.
type ExtractionConfig struct {
	Threshold float64 `yaml:"threshold"`
	UseAI     bool    `yaml:"use_ai"`
}

// LimitsConfig holds per-user limits.
type LimitsConfig struct {
	DailyAnalyses int `yaml:"daily_analyses"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:     8000,
			BasePath: "/",
		},
		Database: DatabaseConfig{
			Path: "/data/festlist.db",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Uploads: UploadsConfig{
			Dir:             "/data/uploads",
			MaxAge:          24 * time.Hour,
			CleanupInterval: time.Hour,
		},
		Inbox: InboxConfig{
			Debounce: 2 * time.Second,
			UseAI:    true,
		},
		OCR: OCRConfig{
			Engine:        "tesseract",
			TesseractPath: "tesseract",
			Language:      "eng",
		},
		Spotify: SpotifyConfig{
			RedirectURI: "http://localhost:3000/callback",
		},
		Extraction: ExtractionConfig{
			Threshold: 0.7,
			UseAI:     true,
		},
		Limits: LimitsConfig{
			DailyAnalyses: 3,
		},
	}
}

// Load reads config from a YAML file (if it exists) and overrides with
// environment variables. Environment variables take precedence.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFromFile(path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	cfg.loadFromEnv()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(data, c)
}

func (c *Config) loadFromEnv() {
	if v := os.Getenv("FL_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	setString(&c.Server.BasePath, "FL_BASE_PATH")
	if v := os.Getenv("FL_ADMINS"); v != "" {
		c.Server.Admins = nil
		for _, id := range strings.Split(v, ",") {
			if id = strings.TrimSpace(id); id != "" {
				c.Server.Admins = append(c.Server.Admins, id)
			}
		}
	}
	setString(&c.Database.Path, "FL_DB_PATH")
	setString(&c.Encryption.Key, "FL_ENCRYPTION_KEY")
	setString(&c.Logging.Level, "FL_LOG_LEVEL")
	setString(&c.Logging.Format, "FL_LOG_FORMAT")
	setString(&c.Logging.File, "FL_LOG_FILE")
	setString(&c.Uploads.Dir, "FL_UPLOAD_DIR")
	setString(&c.Inbox.Dir, "FL_INBOX_DIR")
	setString(&c.OCR.Engine, "FL_OCR_ENGINE")
	setString(&c.OCR.TesseractPath, "FL_TESSERACT_PATH")
	setString(&c.OCR.VisionAPIKey, "GOOGLE_VISION_API_KEY")
	setString(&c.AI.GeminiAPIKey, "GOOGLE_GEMINI_API_KEY")
	setString(&c.AI.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Spotify.ClientID, "SPOTIFY_CLIENT_ID")
	setString(&c.Spotify.ClientSecret, "SPOTIFY_CLIENT_SECRET")
	setString(&c.Spotify.RedirectURI, "SPOTIFY_REDIRECT_URI")
	if v := os.Getenv("FL_DAILY_ANALYSIS_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Limits.DailyAnalyses = n
		}
	}
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path is required")
	}
	if c.Uploads.Dir == "" {
		return fmt.Errorf("upload directory is required")
	}
	if c.Extraction.Threshold < 0 || c.Extraction.Threshold > 1 {
		return fmt.Errorf("extraction threshold must be between 0 and 1, got %v", c.Extraction.Threshold)
	}
	if c.Limits.DailyAnalyses < 1 {
		return fmt.Errorf("daily analysis limit must be positive, got %d", c.Limits.DailyAnalyses)
	}
	switch c.OCR.Engine {
	case "tesseract", "google_vision":
	default:
		return fmt.Errorf("unknown OCR engine %q", c.OCR.Engine)
	}
	c.Server.BasePath = strings.TrimRight(c.Server.BasePath, "/")
	return nil
}
