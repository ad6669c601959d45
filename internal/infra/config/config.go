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

	"respstream/internal/domain"
)

// EnvPrefix is the prefix of every environment override.
const EnvPrefix = "RESPSTREAM_"

// ConfigKeyEnv holds the passphrase used to decrypt "enc:" values.
const ConfigKeyEnv = EnvPrefix + "CONFIG_KEY"

const encPrefix = "enc:"

// Config is the top-level application configuration.
type Config struct {
	LLM     LLMConfig     `yaml:"llm"`
	Stream  StreamConfig  `yaml:"stream"`
	Journal JournalConfig `yaml:"journal"`
	Logger  LoggerConfig  `yaml:"logger"`
	Tracer  TracerConfig  `yaml:"tracer"`
}

// LLMConfig holds the provider list.
type LLMConfig struct {
	DefaultProvider string               `yaml:"default_provider"`
	Providers       []ProviderConfig     `yaml:"providers"`
	CircuitBreaker  CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker settings for stream initiation.
type CircuitBreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	Timeout     time.Duration `yaml:"timeout"`
	Interval    time.Duration `yaml:"interval"`
}

// PoolConfig holds HTTP connection pool settings.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// ProviderConfig holds settings for a single responses provider.
type ProviderConfig struct {
	Name              string        `yaml:"name"`
	Type              string        `yaml:"type"`
	BaseURL           string        `yaml:"base_url"`
	APIKey            string        `yaml:"api_key"`
	Model             string        `yaml:"model"`
	ConnTimeout       time.Duration `yaml:"conn_timeout"`
	RespTimeout       time.Duration `yaml:"resp_timeout"`
	Pool              PoolConfig    `yaml:"pool"`
	RequestsPerMinute int           `yaml:"requests_per_minute"` // 0 = unlimited
}

// StreamConfig tunes how response streams are read and interpreted.
type StreamConfig struct {
	UnknownEvents string `yaml:"unknown_events"` // ignore | report
	ChannelBuffer int    `yaml:"channel_buffer"`
	ReadChunkSize int    `yaml:"read_chunk_size"`
}

// JournalConfig controls frame recording.
type JournalConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
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

// defaultDataDir returns $HOME/.respstream, or "./data" without a home.
func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./data"
	}
	return filepath.Join(home, ".respstream")
}

// Defaults returns a config that validates with no file present.
func Defaults() *Config {
	return &Config{
		LLM: LLMConfig{
			DefaultProvider: "openai",
			CircuitBreaker: CircuitBreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				Timeout:     30 * time.Second,
				Interval:    60 * time.Second,
			},
		},
		Stream: StreamConfig{
			UnknownEvents: "ignore",
			ChannelBuffer: 64,
			ReadChunkSize: 4096,
		},
		Journal: JournalConfig{
			Enabled: false,
			Path:    filepath.Join(defaultDataDir(), "journal.db"),
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

// Load reads a YAML config file, applies env var overrides, and decrypts
// secrets. A missing file yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := validatePermissions(path); err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, domain.NewDomainError("Config.Load", domain.ErrConfigLoad, fmt.Sprintf("parse %s: %v", path, err))
		}
	case os.IsNotExist(err):
	default:
		return nil, domain.NewDomainError("Config.Load", domain.ErrConfigLoad, fmt.Sprintf("read %s: %v", path, err))
	}

	ApplyEnvOverrides(cfg)

	if passphrase := os.Getenv(ConfigKeyEnv); passphrase != "" {
		if err := decryptSecrets(cfg, passphrase); err != nil {
			return nil, fmt.Errorf("decrypt secrets: %w", err)
		}
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps RESPSTREAM_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv(EnvPrefix + "LLM_DEFAULT_PROVIDER"); v != "" {
		cfg.LLM.DefaultProvider = v
	}
	if v := os.Getenv(EnvPrefix + "LLM_CIRCUIT_BREAKER_ENABLED"); v != "" {
		cfg.LLM.CircuitBreaker.Enabled = v == "true"
	}
	if v := os.Getenv(EnvPrefix + "STREAM_UNKNOWN_EVENTS"); v != "" {
		cfg.Stream.UnknownEvents = v
	}
	if v := os.Getenv(EnvPrefix + "STREAM_CHANNEL_BUFFER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Stream.ChannelBuffer = n
		}
	}
	if v := os.Getenv(EnvPrefix + "STREAM_READ_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Stream.ReadChunkSize = n
		}
	}
	if v := os.Getenv(EnvPrefix + "JOURNAL_ENABLED"); v != "" {
		cfg.Journal.Enabled = v == "true"
	}
	if v := os.Getenv(EnvPrefix + "JOURNAL_PATH"); v != "" {
		cfg.Journal.Path = v
	}
	if v := os.Getenv(EnvPrefix + "LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv(EnvPrefix + "LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv(EnvPrefix + "TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv(EnvPrefix + "TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}

	// Per-provider overrides: RESPSTREAM_LLM_PROVIDER_<NAME>_API_KEY and _BASE_URL.
	for i := range cfg.LLM.Providers {
		name := envName(cfg.LLM.Providers[i].Name)
		if v := os.Getenv(EnvPrefix + "LLM_PROVIDER_" + name + "_API_KEY"); v != "" {
			cfg.LLM.Providers[i].APIKey = v
		}
		if v := os.Getenv(EnvPrefix + "LLM_PROVIDER_" + name + "_BASE_URL"); v != "" {
			cfg.LLM.Providers[i].BaseURL = v
		}
	}
}

// envName upper-cases a provider name and maps '-' and '.' to '_'.
func envName(name string) string {
	return strings.NewReplacer("-", "_", ".", "_").Replace(strings.ToUpper(name))
}

// Provider returns the named provider, or the default one when name is empty.
func (c *Config) Provider(name string) (ProviderConfig, error) {
	if name == "" {
		name = c.LLM.DefaultProvider
	}
	for _, p := range c.LLM.Providers {
		if p.Name == name {
			return p, nil
		}
	}
	return ProviderConfig{}, domain.NewDomainError("Config.Provider", domain.ErrProviderNotFound, name)
}

// decryptSecrets replaces "enc:..." provider API keys with their plaintext.
func decryptSecrets(cfg *Config, passphrase string) error {
	for i := range cfg.LLM.Providers {
		key := cfg.LLM.Providers[i].APIKey
		if !strings.HasPrefix(key, encPrefix) {
			continue
		}
		decrypted, err := DecryptValue(strings.TrimPrefix(key, encPrefix), passphrase)
		if err != nil {
			return fmt.Errorf("provider %s api_key: %w", cfg.LLM.Providers[i].Name, err)
		}
		cfg.LLM.Providers[i].APIKey = decrypted
	}
	return nil
}

// EncryptValue encrypts a plaintext value with AES-256-GCM using a passphrase.
// The result is hex(salt) + ":" + hex(nonce+ciphertext), without the "enc:"
// prefix.
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
		return "", fmt.Errorf("%w: invalid encrypted format", domain.ErrDecryption)
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return "", fmt.Errorf("%w: decode salt: %v", domain.ErrDecryption, err)
	}
	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", domain.ErrDecryption, err)
	}

	gcm, err := newGCM(passphrase, salt)
	if err != nil {
		return "", err
	}

	nonceSize := gcm.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", domain.ErrDecryption)
	}

	nonce, ciphertext := data[:nonceSize], data[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrDecryption, err)
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

// validatePermissions rejects config files writable by group or others,
// since they hold API keys.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	if mode&0o022 != 0 {
		return domain.NewDomainError("Config.Load", domain.ErrConfigLoad,
			fmt.Sprintf("%s has insecure permissions %o (want 0600 or 0644)", path, mode))
	}
	return nil
}
