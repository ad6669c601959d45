package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"respstream/internal/domain"
)

func writeConfig(t *testing.T, content string, perm os.FileMode) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), perm); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	if cfg.LLM.DefaultProvider != "openai" {
		t.Errorf("DefaultProvider = %q, want %q", cfg.LLM.DefaultProvider, "openai")
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("Logger.Level = %q, want %q", cfg.Logger.Level, "info")
	}
	if cfg.Stream.UnknownEvents != "ignore" {
		t.Errorf("Stream.UnknownEvents = %q, want %q", cfg.Stream.UnknownEvents, "ignore")
	}
	assert.NoError(t, Validate(cfg))
}

func TestLoadNonExistentReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.Stream.ReadChunkSize)
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, `
llm:
  default_provider: "azure"
  providers:
    - name: "azure"
      type: "openai"
      base_url: "https://example.openai.azure.com/openai/v1"
      api_key: "test-key"
      model: "gpt-4o-mini"
      resp_timeout: 45s
      requests_per_minute: 120
stream:
  unknown_events: report
  channel_buffer: 8
journal:
  enabled: true
  path: /tmp/journal.db
logger:
  level: "debug"
`, 0600)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "azure", cfg.LLM.DefaultProvider)
	require.Len(t, cfg.LLM.Providers, 1)
	p := cfg.LLM.Providers[0]
	assert.Equal(t, "test-key", p.APIKey)
	assert.Equal(t, 45*time.Second, p.RespTimeout)
	assert.Equal(t, 120, p.RequestsPerMinute)
	assert.Equal(t, "report", cfg.Stream.UnknownEvents)
	assert.Equal(t, 8, cfg.Stream.ChannelBuffer)
	assert.Equal(t, 4096, cfg.Stream.ReadChunkSize, "unset keys keep defaults")
	assert.True(t, cfg.Journal.Enabled)
	assert.Equal(t, "debug", cfg.Logger.Level)
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "llm: [unclosed", 0600)

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
}

func TestLoadInsecurePermissions(t *testing.T) {
	path := writeConfig(t, "logger:\n  level: debug\n", 0600)
	require.NoError(t, os.Chmod(path, 0666))

	_, err := Load(path)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConfigLoad)
}

func TestLoadValidationError(t *testing.T) {
	path := writeConfig(t, "stream:\n  unknown_events: explode\n", 0600)

	_, err := Load(path)
	var ve *ValidationError
	require.True(t, errors.As(err, &ve), "got %v", err)
	assert.Len(t, ve.Errors, 1)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("RESPSTREAM_LLM_DEFAULT_PROVIDER", "local")
	t.Setenv("RESPSTREAM_LOGGER_LEVEL", "debug")
	t.Setenv("RESPSTREAM_STREAM_UNKNOWN_EVENTS", "report")
	t.Setenv("RESPSTREAM_STREAM_CHANNEL_BUFFER", "0")
	t.Setenv("RESPSTREAM_STREAM_READ_CHUNK_SIZE", "not-a-number")
	t.Setenv("RESPSTREAM_JOURNAL_ENABLED", "true")
	t.Setenv("RESPSTREAM_TRACER_ENABLED", "true")
	t.Setenv("RESPSTREAM_TRACER_EXPORTER", "stdout")

	cfg := Defaults()
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "local", cfg.LLM.DefaultProvider)
	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, "report", cfg.Stream.UnknownEvents)
	assert.Equal(t, 0, cfg.Stream.ChannelBuffer)
	assert.Equal(t, 4096, cfg.Stream.ReadChunkSize)
	assert.True(t, cfg.Journal.Enabled)
	assert.True(t, cfg.Tracer.Enabled)
	assert.Equal(t, "stdout", cfg.Tracer.Exporter)
}

func TestApplyEnvOverridesProvider(t *testing.T) {
	t.Setenv("RESPSTREAM_LLM_PROVIDER_MY_AZURE_API_KEY", "sk-env-override")
	t.Setenv("RESPSTREAM_LLM_PROVIDER_MY_AZURE_BASE_URL", "http://localhost:8080/v1")

	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{{Name: "my-azure", APIKey: "sk-original"}}
	ApplyEnvOverrides(cfg)

	assert.Equal(t, "sk-env-override", cfg.LLM.Providers[0].APIKey)
	assert.Equal(t, "http://localhost:8080/v1", cfg.LLM.Providers[0].BaseURL)
}

func TestProviderLookup(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{{Name: "openai"}, {Name: "local"}}

	p, err := cfg.Provider("")
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name)

	p, err = cfg.Provider("local")
	require.NoError(t, err)
	assert.Equal(t, "local", p.Name)

	_, err = cfg.Provider("nope")
	assert.ErrorIs(t, err, domain.ErrProviderNotFound)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	passphrase := "test-passphrase-123"
	plaintext := "sk-abcdef123456"

	encrypted, err := EncryptValue(plaintext, passphrase)
	if err != nil {
		t.Fatalf("EncryptValue: %v", err)
	}

	decrypted, err := DecryptValue(encrypted, passphrase)
	if err != nil {
		t.Fatalf("DecryptValue: %v", err)
	}

	if decrypted != plaintext {
		t.Errorf("got %q, want %q", decrypted, plaintext)
	}
}

func TestDecryptValueErrors(t *testing.T) {
	good, err := EncryptValue("secret", "correct-pass")
	require.NoError(t, err)

	tests := []struct {
		name  string
		value string
		pass  string
	}{
		{"wrong passphrase", good, "wrong-pass"},
		{"no separator", "deadbeef", "p"},
		{"bad salt", "zz:00", "p"},
		{"bad ciphertext", "00:zz", "p"},
		{"too short", "00:00", "p"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecryptValue(tt.value, tt.pass)
			assert.ErrorIs(t, err, domain.ErrDecryption)
		})
	}
}

func TestDecryptSecrets(t *testing.T) {
	passphrase := "test-config-key"
	encrypted, err := EncryptValue("sk-secret123456", passphrase)
	require.NoError(t, err)

	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{
		{Name: "openai", APIKey: "enc:" + encrypted},
		{Name: "local", APIKey: "plain"},
	}
	require.NoError(t, decryptSecrets(cfg, passphrase))

	assert.Equal(t, "sk-secret123456", cfg.LLM.Providers[0].APIKey)
	assert.Equal(t, "plain", cfg.LLM.Providers[1].APIKey)
}

func TestDecryptSecretsInvalidCiphertext(t *testing.T) {
	cfg := Defaults()
	cfg.LLM.Providers = []ProviderConfig{{Name: "openai", APIKey: "enc:not-valid"}}

	err := decryptSecrets(cfg, "key")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "provider openai api_key")
}

func TestLoadWithConfigKey(t *testing.T) {
	passphrase := "test-load-key"
	encrypted, err := EncryptValue("sk-loadtest", passphrase)
	require.NoError(t, err)

	path := writeConfig(t, `
llm:
  providers:
    - name: "openai"
      api_key: "enc:`+encrypted+`"
`, 0600)

	t.Setenv(ConfigKeyEnv, passphrase)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-loadtest", cfg.LLM.Providers[0].APIKey)
}

func TestValidatePermissions(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		perm    os.FileMode
		wantErr bool
	}{
		{0600, false},
		{0644, false},
		{0400, false},
		{0664, true},
		{0666, true},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, tt.perm.String())
		require.NoError(t, os.WriteFile(path, nil, 0600))
		require.NoError(t, os.Chmod(path, tt.perm))

		err := validatePermissions(path)
		if (err != nil) != tt.wantErr {
			t.Errorf("perm %o: err = %v, wantErr %v", tt.perm, err, tt.wantErr)
		}
	}

	if err := validatePermissions(filepath.Join(dir, "missing")); err == nil {
		t.Error("expected stat error")
	}
}
