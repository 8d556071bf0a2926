package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"

	"github.com/hengadev/savex/internal/config"
	"github.com/hengadev/savex/internal/crypto"
	"github.com/hengadev/savex/internal/logging"
	"github.com/hengadev/savex/internal/reliability"
	"github.com/hengadev/savex/providers/awskms"
	"github.com/hengadev/savex/providers/awssecrets"
	"github.com/hengadev/savex/providers/hashicorp"
	s3bucket "github.com/hengadev/savex/providers/s3"
	"github.com/hengadev/savex/providers/sqlite"
)

// secretStore is a key store addressed by name: Vault KV or Secrets Manager.
type secretStore interface {
	StoreKey(ctx context.Context, name string, key []byte) error
	GetKey(ctx context.Context, name string) ([]byte, error)
}

// app holds what the storage commands share. The provider constructors are
// fields so tests can swap in fakes.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	catalog *sqlite.Catalog
	getenv  func(string) string

	store   func(ctx context.Context, cfg s3bucket.Config) (*s3bucket.Store, error)
	wrapper func(ctx context.Context, source string) (crypto.KeyWrapper, error)
	secrets func(ctx context.Context, source string) (secretStore, error)
}

// newApp resolves the configuration, installs the logger and opens the
// catalog. An empty path searches for savex.yaml from the working directory
// up and falls back to defaults plus environment.
func newApp(path string) (*app, error) {
	if path == "" {
		if wd, err := os.Getwd(); err == nil {
			if found, err := config.FindConfig(wd); err == nil {
				path = found
			}
		}
	}

	cfg, err := config.Resolve(path)
	if err != nil {
		return nil, err
	}

	logger, err := logging.Init(cfg.Log)
	if err != nil {
		return nil, err
	}

	catalog, err := sqlite.Open(cfg.Catalog.Path, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		logger:  logger,
		catalog: catalog,
		getenv:  os.Getenv,
		store:   s3bucket.New,
	}
	a.wrapper = a.defaultWrapper
	a.secrets = a.defaultSecrets
	return a, nil
}

func (a *app) Close() error {
	return a.catalog.Close()
}

func (a *app) vaultClient() (*api.Client, error) {
	vc := hashicorp.ConfigFromEnv()
	if a.cfg.Vault.Address != "" {
		vc.Address = a.cfg.Vault.Address
	}
	if a.cfg.Vault.Namespace != "" {
		vc.Namespace = a.cfg.Vault.Namespace
	}
	return hashicorp.NewClient(vc)
}

func (a *app) defaultWrapper(ctx context.Context, source string) (crypto.KeyWrapper, error) {
	var w crypto.KeyWrapper
	switch source {
	case config.KeyKMS:
		kms, err := awskms.New(ctx, awskms.Config{Region: a.cfg.KMS.Region})
		if err != nil {
			return nil, err
		}
		w = kms
	case config.KeyVaultTransit:
		client, err := a.vaultClient()
		if err != nil {
			return nil, err
		}
		transit, err := hashicorp.NewTransitService(client, "")
		if err != nil {
			return nil, err
		}
		w = transit
	default:
		return nil, fmt.Errorf("key source %q does not wrap keys", source)
	}
	return reliability.Wrapper(w, a.retrier()), nil
}

func (a *app) defaultSecrets(ctx context.Context, source string) (secretStore, error) {
	var s secretStore
	switch source {
	case config.KeyVault:
		client, err := a.vaultClient()
		if err != nil {
			return nil, err
		}
		kv, err := hashicorp.NewKVStore(client, a.cfg.Vault.Mount)
		if err != nil {
			return nil, err
		}
		s = kv
	case config.KeyAWSSecrets:
		sm, err := awssecrets.New(ctx, awssecrets.Config{Region: a.cfg.Secrets.Region})
		if err != nil {
			return nil, err
		}
		s = sm
	default:
		return nil, fmt.Errorf("key source %q does not store keys", source)
	}
	return reliability.Store(s, a.retrier()), nil
}

func (a *app) retrier() *reliability.Executor {
	cfg := reliability.DefaultRetryConfig()
	cfg.OnRetry = func(attempt int, delay time.Duration, err error) {
		a.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("retrying key service call")
	}
	return reliability.NewExecutor(cfg)
}

// s3Config builds the store configuration for one object. The catalog
// records full object keys, so reads pass an empty prefix.
func (a *app) s3Config(prefix string, streamKey []byte) (s3bucket.Config, error) {
	if a.cfg.S3.Bucket == "" {
		return s3bucket.Config{}, errors.New("no bucket configured, set s3.bucket or use -inline")
	}
	return s3bucket.Config{
		Bucket:    a.cfg.S3.Bucket,
		Region:    a.cfg.S3.Region,
		Prefix:    prefix,
		StreamKey: streamKey,
		Logger:    a.logger,
	}, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func writeOutput(path string, data []byte, out io.Writer) error {
	if path == "" || path == "-" {
		_, err := out.Write(data)
		return err
	}
	return os.WriteFile(path, data, 0600)
}
