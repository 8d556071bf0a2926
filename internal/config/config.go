package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/hengadev/errsx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hengadev/savex/internal/crypto"
)

// FileName is the configuration file looked up by FindConfig.
const FileName = "savex.yaml"

// Key sources.
const (
	KeyNone         = "none"
	KeyEnv          = "env"
	KeyPassphrase   = "passphrase"
	KeyVault        = "vault"
	KeyVaultTransit = "vault-transit"
	KeyKMS          = "kms"
	KeyAWSSecrets   = "aws-secrets"
)

// Environment variables read by ApplyEnv and by the key resolvers.
const (
	EnvLogLevel    = "SAVEX_LOG_LEVEL"
	EnvLogFormat   = "SAVEX_LOG_FORMAT"
	EnvKeySource   = "SAVEX_KEY_SOURCE"
	EnvKey         = "SAVEX_KEY"
	EnvPassphrase  = "SAVEX_PASSPHRASE"
	EnvS3Bucket    = "SAVEX_S3_BUCKET"
	EnvS3Prefix    = "SAVEX_S3_PREFIX"
	EnvCatalogPath = "SAVEX_CATALOG_PATH"
	EnvKMSKeyID    = "SAVEX_KMS_KEY_ID"
	EnvSecretName  = "SAVEX_SECRET_NAME"
	EnvAWSRegion   = "AWS_REGION"
	EnvVaultAddr   = "VAULT_ADDR"
	EnvVaultNS     = "VAULT_NAMESPACE"
)

// Config is the savex CLI and provider configuration.
type Config struct {
	Version string        `yaml:"version"`
	Log     LogConfig     `yaml:"log"`
	Key     KeyConfig     `yaml:"key"`
	Vault   VaultConfig   `yaml:"vault"`
	KMS     KMSConfig     `yaml:"kms"`
	Secrets SecretsConfig `yaml:"secrets"`
	S3      S3Config      `yaml:"s3"`
	Catalog CatalogConfig `yaml:"catalog"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// KeyConfig selects where the cipher key of a dump comes from.
type KeyConfig struct {
	Source string           `yaml:"source"`
	Salt   string           `yaml:"salt,omitempty"` // hex, passphrase source only
	Params crypto.KeyParams `yaml:"params"`
}

type VaultConfig struct {
	Address    string `yaml:"address,omitempty"`
	Namespace  string `yaml:"namespace,omitempty"`
	Mount      string `yaml:"mount"`
	SecretPath string `yaml:"secret_path,omitempty"`
	TransitKey string `yaml:"transit_key,omitempty"`
}

type KMSConfig struct {
	Region string `yaml:"region,omitempty"`
	KeyID  string `yaml:"key_id,omitempty"`
}

// SecretsConfig names the AWS Secrets Manager entry holding the key.
type SecretsConfig struct {
	Region string `yaml:"region,omitempty"`
	Name   string `yaml:"name,omitempty"`
}

type S3Config struct {
	Bucket string `yaml:"bucket,omitempty"`
	Region string `yaml:"region,omitempty"`
	Prefix string `yaml:"prefix,omitempty"`
}

type CatalogConfig struct {
	Path string `yaml:"path"`
}

// DefaultConfig returns a configuration with no encryption, console logging
// and a catalog in the working directory.
func DefaultConfig() *Config {
	return &Config{
		Version: "1",
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
		Key: KeyConfig{
			Source: KeyNone,
			Params: crypto.DefaultKeyParams,
		},
		Vault: VaultConfig{
			Mount: "secret",
		},
		Catalog: CatalogConfig{
			Path: ".savex/catalog.db",
		},
	}
}

// LoadConfig reads a YAML file on top of the defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// SaveConfig writes cfg as YAML.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Resolve builds the effective configuration: .env is loaded into the
// environment when present, path (if not empty) is read over the defaults,
// environment overrides are applied and the result is validated.
func Resolve(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := DefaultConfig()
	if path != "" {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. Unset variables leave the
// current value.
func (c *Config) ApplyEnv() {
	c.Log.Level = getEnvOrDefault(EnvLogLevel, c.Log.Level)
	c.Log.Format = getEnvOrDefault(EnvLogFormat, c.Log.Format)
	c.Key.Source = getEnvOrDefault(EnvKeySource, c.Key.Source)
	c.S3.Bucket = getEnvOrDefault(EnvS3Bucket, c.S3.Bucket)
	c.S3.Prefix = getEnvOrDefault(EnvS3Prefix, c.S3.Prefix)
	c.S3.Region = getEnvOrDefault(EnvAWSRegion, c.S3.Region)
	c.KMS.Region = getEnvOrDefault(EnvAWSRegion, c.KMS.Region)
	c.KMS.KeyID = getEnvOrDefault(EnvKMSKeyID, c.KMS.KeyID)
	c.Secrets.Region = getEnvOrDefault(EnvAWSRegion, c.Secrets.Region)
	c.Secrets.Name = getEnvOrDefault(EnvSecretName, c.Secrets.Name)
	c.Catalog.Path = getEnvOrDefault(EnvCatalogPath, c.Catalog.Path)
	c.Vault.Address = getEnvOrDefault(EnvVaultAddr, c.Vault.Address)
	c.Vault.Namespace = getEnvOrDefault(EnvVaultNS, c.Vault.Namespace)
}

// Validate reports every problem at once, keyed by YAML path.
func (c *Config) Validate() error {
	var errs errsx.Map

	switch strings.ToLower(c.Log.Level) {
	case "trace", "debug", "info", "warn", "error", "fatal", "panic", "disabled":
	default:
		errs.Set("log.level", fmt.Errorf("unknown level %q", c.Log.Level))
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		errs.Set("log.format", fmt.Errorf("format must be console or json, got %q", c.Log.Format))
	}

	switch c.Key.Source {
	case KeyNone, KeyEnv:
	case KeyPassphrase:
		if err := c.Key.Params.Validate(); err != nil {
			errs.Set("key.params", err)
		}
		if _, err := c.Key.SaltBytes(); err != nil {
			errs.Set("key.salt", err)
		}
	case KeyVault, KeyVaultTransit:
		if c.Vault.Address == "" {
			errs.Set("vault.address", "address is required for vault key sources")
		}
		if c.Key.Source == KeyVault && c.Vault.SecretPath == "" {
			errs.Set("vault.secret_path", "secret path is required")
		}
		if c.Key.Source == KeyVaultTransit && c.Vault.TransitKey == "" {
			errs.Set("vault.transit_key", "transit key name is required")
		}
	case KeyKMS:
		if c.KMS.KeyID == "" {
			errs.Set("kms.key_id", "key id is required for the kms key source")
		}
	case KeyAWSSecrets:
		if c.Secrets.Name == "" {
			errs.Set("secrets.name", "secret name is required for the aws-secrets key source")
		}
	default:
		errs.Set("key.source", fmt.Errorf("unknown key source %q", c.Key.Source))
	}

	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs.Set("s3.region", "region is required when a bucket is set")
	}
	if strings.TrimSpace(c.Catalog.Path) == "" {
		errs.Set("catalog.path", "catalog path cannot be empty")
	}

	return errs.AsError()
}

// SaltBytes decodes the passphrase salt. It must be at least
// Params.SaltLength bytes.
func (k KeyConfig) SaltBytes() ([]byte, error) {
	if k.Salt == "" {
		return nil, errors.New("salt is required for the passphrase key source")
	}
	salt, err := hex.DecodeString(k.Salt)
	if err != nil {
		return nil, fmt.Errorf("salt is not valid hex: %w", err)
	}
	if uint32(len(salt)) < k.Params.SaltLength {
		return nil, fmt.Errorf("salt must be at least %d bytes, got %d", k.Params.SaltLength, len(salt))
	}
	return salt, nil
}

// Encrypted reports whether dumps are sealed.
func (c *Config) Encrypted() bool {
	return c.Key.Source != KeyNone
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
