package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Server  ServerConfig
	LLM     LLMConfig
	Gemini  GeminiConfig
	Upload  UploadConfig
	CV      CVConfig
	Storage StorageConfig
	History HistoryConfig
	Log     LogConfig
}

type ServerConfig struct {
	Host        string
	Port        int
	APIPrefix   string
	CORSOrigins string
}

// LLMConfig configures the OpenAI-compatible completion backend.
type LLMConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     string
	Temperature float64
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type UploadConfig struct {
	MaxSizeMB         int
	AllowedExtensions string
}

type CVConfig struct {
	DefaultPath string
}

type StorageConfig struct {
	DataDir string
}

type HistoryConfig struct {
	Enabled       bool
	RetentionDays int
}

type LogConfig struct {
	Level  string
	Format string
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        8000,
			APIPrefix:   "/api",
			CORSOrigins: "http://localhost:3000,http://localhost:5173",
		},
		LLM: LLMConfig{
			Provider:    ProviderOpenAI,
			BaseURL:     "https://api.deepseek.com",
			Model:       "deepseek-chat",
			Timeout:     "60s",
			Temperature: 0.1,
		},
		Gemini: GeminiConfig{
			Model: "gemini-2.5-flash",
		},
		Upload: UploadConfig{
			MaxSizeMB:         30,
			AllowedExtensions: ".pdf,.docx,.txt,.md,.html,.htm",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		History: HistoryConfig{
			Enabled:       true,
			RetentionDays: 90,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Addr returns the host:port the server listens on.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// BaseURL returns the URL local clients use to reach the server.
func (c ServerConfig) BaseURL() string {
	host := c.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(c.Port))
}

// Origins splits CORSOrigins on commas.
func (c ServerConfig) Origins() []string {
	return splitList(c.CORSOrigins)
}

// TimeoutDuration parses Timeout, falling back to 60s when it is invalid.
func (c LLMConfig) TimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// MaxBytes returns the upload limit in bytes.
func (c UploadConfig) MaxBytes() int64 {
	return int64(c.MaxSizeMB) << 20
}

// Extensions returns the allowed upload extensions, lower-cased and dotted.
func (c UploadConfig) Extensions() []string {
	exts := splitList(c.AllowedExtensions)
	for i, e := range exts {
		e = strings.ToLower(e)
		if !strings.HasPrefix(e, ".") {
			e = "." + e
		}
		exts[i] = e
	}
	return exts
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load builds the configuration from, in increasing precedence: defaults,
// the config file at $XDG_CONFIG_HOME/cvmatch/config.yaml (or $CVMATCH_CONFIG),
// a .env file in the working directory, and CVMATCH_* environment variables.
// API keys not set by any of those are read from the secrets file.
//
// A missing API key is not an error: the analyzer reports itself
// unavailable instead.
func Load() (Config, error) {
	return loadWith(newFileBackend(configFilePath()), fileSecrets{path: secretsFilePath()}, ".env")
}

// secretStore abstracts the secrets file for testing.
type secretStore interface {
	Get(service, account string) (string, error)
}

func loadWith(b ConfigBackend, sec secretStore, envFile string) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	getenv := envLookup(envFile)
	applyEnvOverrides(&cfg, getenv)

	// Variable names used by earlier deployments.
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = getenv("DEEPSEEK_API_KEY")
	}
	if cfg.Gemini.APIKey == "" {
		cfg.Gemini.APIKey = getenv("GEMINI_API_KEY")
	}

	for _, s := range specs {
		if !s.secret || s.extract(cfg) != "" {
			continue
		}
		if v, err := sec.Get(secretsService, s.key); err == nil && v != "" {
			s.apply(&cfg, v)
		}
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("invalid llm.provider %q: must be %q or %q", c.LLM.Provider, ProviderOpenAI, ProviderGemini)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Upload.MaxSizeMB <= 0 {
		return fmt.Errorf("invalid upload.max_size_mb %d: must be positive", c.Upload.MaxSizeMB)
	}
	if c.Server.APIPrefix != "" && !strings.HasPrefix(c.Server.APIPrefix, "/") {
		return fmt.Errorf("invalid server.api_prefix %q: must start with /", c.Server.APIPrefix)
	}
	return nil
}

// envLookup returns a getter that prefers the process environment and falls
// back to values from envFile. The process environment is never modified.
func envLookup(envFile string) func(string) string {
	var dotenv map[string]string
	if envFile != "" {
		m, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			dotenv = m
		case !os.IsNotExist(err):
			fmt.Fprintf(os.Stderr, "[WARN] could not read %s: %v. Ignoring it.\n", envFile, err)
		}
	}
	return func(key string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return dotenv[key]
	}
}
