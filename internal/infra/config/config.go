package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/argon2"
	"gopkg.in/yaml.v3"
)

// envPrefix is prepended to every environment override.
const envPrefix = "ENERGYSCOPE_"

// Config is the top-level application configuration.
type Config struct {
	LLM         LLMConfig                   `yaml:"llm"`
	Router      RouterConfig                `yaml:"router"`
	Synthesis   SynthesisConfig             `yaml:"synthesis"`
	Session     SessionConfig               `yaml:"session"`
	Translation TranslationConfig           `yaml:"translation"`
	Specialists map[string]SpecialistConfig `yaml:"specialists"`
	Data        DataConfig                  `yaml:"data"`
	MCP         MCPConfig                   `yaml:"mcp"`
	Logger      LoggerConfig                `yaml:"logger"`
	Tracer      TracerConfig                `yaml:"tracer"`
}

// RouterConfig controls query classification and fan-out selection.
type RouterConfig struct {
	Mode               string  `yaml:"mode"` // "lexical" or "llm"
	RelevanceThreshold float64 `yaml:"relevance_threshold"`
	FanoutMargin       float64 `yaml:"fanout_margin"`
	MaxSpecialists     int     `yaml:"max_specialists"`
	DefaultSpecialist  string  `yaml:"default_specialist"`
	// ClassifierTimeout bounds the LLM classification call in "llm" mode.
	ClassifierTimeout time.Duration `yaml:"classifier_timeout"`
}

// SynthesisConfig caps the merged response.
type SynthesisConfig struct {
	MaxSources     int `yaml:"max_sources"`
	MaxSuggestions int `yaml:"max_suggestions"`
}

// SessionConfig holds conversation history settings.
type SessionConfig struct {
	Capacity int `yaml:"capacity"`
}

// TranslationConfig holds language handling settings.
type TranslationConfig struct {
	WorkingLanguage string   `yaml:"working_language"`
	Supported       []string `yaml:"supported"`
	// MinDetectConfidence is the trigram detector score below which the
	// LLM translator is asked to identify the language instead.
	MinDetectConfidence float64       `yaml:"min_detect_confidence"`
	Timeout             time.Duration `yaml:"timeout"`
}

// SpecialistConfig tunes a single specialist. A missing entry uses defaults.
type SpecialistConfig struct {
	Enabled     *bool         `yaml:"enabled,omitempty"`
	Provider    string        `yaml:"provider,omitempty"`
	Model       string        `yaml:"model,omitempty"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// IsEnabled reports whether the specialist should be registered.
func (s SpecialistConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// DataConfig locates the scenario dataset and report corpus.
type DataConfig struct {
	Dir        string `yaml:"dir"`         // CSV scenario files
	DBPath     string `yaml:"db_path"`     // SQLite file, ":memory:" for ephemeral
	ReportsDir string `yaml:"reports_dir"` // .md / .txt reports
}

// MCPConfig holds MCP server settings.
type MCPConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// FailoverConfig holds model failover settings.
type FailoverConfig struct {
	Enabled   bool     `yaml:"enabled"`
	Fallbacks []string `yaml:"fallbacks"`
}

// LLMConfig holds LLM provider settings.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	Failover        FailoverConfig       `yaml:"failover"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
	RateLimit       RateLimitConfig      `yaml:"rate_limit"`
}

// CircuitBreakerConfig holds circuit breaker settings for LLM providers.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// RateLimitConfig throttles outbound LLM calls per provider.
type RateLimitConfig struct {
	Enabled           bool    `yaml:"enabled"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// PoolConfig holds HTTP connection pool settings for LLM providers.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single LLM provider.
type ProviderConfig struct {
	Name        string        `yaml:"name"`
	Type        string        `yaml:"type"`
	BaseURL     string        `yaml:"base_url"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	ConnTimeout time.Duration `yaml:"conn_timeout"`
	RespTimeout time.Duration `yaml:"resp_timeout"`
	Pool        PoolConfig    `yaml:"pool"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// SpecialistNames lists the built-in specialists in registration order.
var SpecialistNames = []string{"data", "scenario", "document", "policy", "translation"}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	specialists := make(map[string]SpecialistConfig, len(SpecialistNames))
	for _, name := range SpecialistNames {
		specialists[name] = SpecialistConfig{
			Temperature: 0.3,
			MaxTokens:   1500,
			Timeout:     30 * time.Second,
		}
	}
	// Translations should be literal.
	tr := specialists["translation"]
	tr.Temperature = 0.1
	specialists["translation"] = tr

	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "openai",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
			RateLimit: RateLimitConfig{
				Enabled:           false,
				RequestsPerSecond: 5,
				Burst:             5,
			},
		},
		Router: RouterConfig{
			Mode:               "lexical",
			RelevanceThreshold: 0.3,
			FanoutMargin:       0.25,
			MaxSpecialists:     3,
			DefaultSpecialist:  "data",
			ClassifierTimeout:  10 * time.Second,
		},
		Synthesis: SynthesisConfig{
			MaxSources:     5,
			MaxSuggestions: 5,
		},
		Session: SessionConfig{
			Capacity: 50,
		},
		Translation: TranslationConfig{
			WorkingLanguage:     "en",
			Supported:           []string{"en", "de", "fr", "it"},
			MinDetectConfidence: 0.5,
			Timeout:             20 * time.Second,
		},
		Specialists: specialists,
		Data: DataConfig{
			Dir:        "./data/scenarios",
			DBPath:     ":memory:",
			ReportsDir: "./data/reports",
		},
		MCP: MCPConfig{
			Name:    "energyscope",
			Version: "0.1.0",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Specialist returns the settings for name, falling back to the defaults
// when the config file does not mention it.
func (c *Config) Specialist(name string) SpecialistConfig {
	if sc, ok := c.Specialists[name]; ok {
		return sc
	}
	return Defaults().Specialists[name]
}

// Load reads a YAML config file, applies env var overrides, and decrypts secrets.
// A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path: %w", err)
	}
	if err := validatePermissions(absPath); err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	fillSpecialistDefaults(cfg)

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(envPrefix + "CONFIG_KEY"); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// fillSpecialistDefaults completes partially specified specialist entries.
func fillSpecialistDefaults(cfg *Config) {
	defaults := Defaults().Specialists
	if cfg.Specialists == nil {
		cfg.Specialists = defaults
		return
	}
	for name, def := range defaults {
		sc, ok := cfg.Specialists[name]
		if !ok {
			cfg.Specialists[name] = def
			continue
		}
		if sc.MaxTokens == 0 {
			sc.MaxTokens = def.MaxTokens
		}
		if sc.Timeout == 0 {
			sc.Timeout = def.Timeout
		}
		cfg.Specialists[name] = sc
	}
}

// ApplyEnvOverrides maps ENERGYSCOPE_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(envPrefix + "LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv(envPrefix + "LLM_FAILOVER_FALLBACKS"); v != "" {
		cfg.LLM.Failover.Enabled = true
		cfg.LLM.Failover.Fallbacks = splitAndTrim(v, ",")
	}
	if v := os.Getenv(envPrefix + "LLM_RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 {
			cfg.LLM.RateLimit.Enabled = true
			cfg.LLM.RateLimit.RequestsPerSecond = f
		}
	}
	if v := os.Getenv(envPrefix + "ROUTER_MODE"); v != "" {
		cfg.Router.Mode = v
	}
	if v := os.Getenv(envPrefix + "ROUTER_RELEVANCE_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Router.RelevanceThreshold = f
		}
	}
	if v := os.Getenv(envPrefix + "ROUTER_DEFAULT_SPECIALIST"); v != "" {
		cfg.Router.DefaultSpecialist = v
	}
	if v := os.Getenv(envPrefix + "SESSION_CAPACITY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.Capacity = n
		}
	}
	if v := os.Getenv(envPrefix + "DATA_DIR"); v != "" {
		cfg.Data.Dir = v
	}
	if v := os.Getenv(envPrefix + "DATA_DB_PATH"); v != "" {
		cfg.Data.DBPath = v
	}
	if v := os.Getenv(envPrefix + "DATA_REPORTS_DIR"); v != "" {
		cfg.Data.ReportsDir = v
	}
	if v := os.Getenv(envPrefix + "LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv(envPrefix + "LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv(envPrefix + "TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv(envPrefix + "TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}

	// Per-provider API key overrides: ENERGYSCOPE_LLM_PROVIDER_<NAME>_API_KEY
	for i := range cfg.LLM.Providers {
		envKey := fmt.Sprintf("%sLLM_PROVIDER_%s_API_KEY", envPrefix,
			strings.ToUpper(strings.ReplaceAll(cfg.LLM.Providers[i].Name, "-", "_")))
		if v := os.Getenv(envKey); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
	}
}

// splitAndTrim splits s by sep and trims whitespace from each element.
func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// decryptSecrets finds "enc:..." values in provider API keys and decrypts them.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if !strings.HasPrefix(key, "enc:") {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(key, "enc:"), passphrase)
		if err != nil {
			return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
		}
		cfg.LLM.Providers[i].APIKey = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result has the form hex(salt) + ":" + hex(nonce+ciphertext).
func EncryptValue(plaintext, passphrase string) (string, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(salt) + ":" + hex.EncodeToString(ciphertext), nil
}

// DecryptValue decrypts a value produced by EncryptValue.
func DecryptValue(encrypted, passphrase string) (string, error) {
	saltHex, dataHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", fmt.Errorf("invalid encrypted format")
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("decode salt: %w", err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}
	plaintext, err := gcm.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

func newGCM(passphrase string, salt []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(deriveKey(passphrase, salt))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// deriveKey uses Argon2id to derive a 32-byte key from passphrase + salt.
func deriveKey(passphrase string, salt []byte) []byte {
	return argon2.IDKey([]byte(passphrase), salt, 1, 64*1024, 4, 32)
}

// validatePermissions rejects config files writable by group or others.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
