package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/hengadev/savex/internal/config"
	"github.com/hengadev/savex/internal/crypto"
	"github.com/hengadev/savex/providers/sqlite"
)

// sealKey is the stream key of one dump plus what the catalog must keep to
// recover it later.
type sealKey struct {
	source     string
	key        []byte
	keyID      string
	wrapped    []byte
	derivation string
}

// newSealKey resolves a key for a new dump from the configured source.
// Envelope sources get a fresh data key per dump.
func (a *app) newSealKey(ctx context.Context) (sealKey, error) {
	sk := sealKey{source: a.cfg.Key.Source}

	switch sk.source {
	case config.KeyNone:
		return sk, nil
	case config.KeyEnv:
		key, err := a.envKey()
		if err != nil {
			return sk, err
		}
		sk.key, sk.keyID = key, config.EnvKey
	case config.KeyPassphrase:
		salt, err := a.cfg.Key.SaltBytes()
		if err != nil {
			return sk, err
		}
		key, err := a.passphraseKey(a.cfg.Key.Params, salt)
		if err != nil {
			return sk, err
		}
		sk.key = key
		sk.derivation = crypto.FormatDerivation(a.cfg.Key.Params, salt)
	case config.KeyVault, config.KeyAWSSecrets:
		sk.keyID = a.secretName()
		key, err := a.storedKey(ctx, sk.source, sk.keyID)
		if err != nil {
			return sk, err
		}
		sk.key = key
	case config.KeyVaultTransit, config.KeyKMS:
		sk.keyID = a.wrappingKeyID(sk.source)
		env, err := a.envelope(ctx, sk.source, sk.keyID)
		if err != nil {
			return sk, err
		}
		sk.key, sk.wrapped, err = env.NewDataKey(ctx)
		if err != nil {
			return sk, err
		}
	default:
		return sk, fmt.Errorf("unknown key source %q", sk.source)
	}
	return sk, nil
}

// openKey recovers the stream key of a recorded dump. It follows the entry,
// not the current configuration.
func (a *app) openKey(ctx context.Context, e sqlite.Entry) ([]byte, error) {
	switch e.KeySource {
	case config.KeyNone:
		return nil, nil
	case config.KeyEnv:
		return a.envKey()
	case config.KeyPassphrase:
		params, salt, err := crypto.ParseDerivation(e.Derivation)
		if err != nil {
			return nil, err
		}
		return a.passphraseKey(params, salt)
	case config.KeyVault, config.KeyAWSSecrets:
		return a.storedKey(ctx, e.KeySource, e.KeyID)
	case config.KeyVaultTransit, config.KeyKMS:
		env, err := a.envelope(ctx, e.KeySource, e.KeyID)
		if err != nil {
			return nil, err
		}
		return env.OpenDataKey(ctx, e.WrappedKey)
	default:
		return nil, fmt.Errorf("entry %s has unknown key source %q", e.ID, e.KeySource)
	}
}

func (a *app) envKey() ([]byte, error) {
	value := a.getenv(config.EnvKey)
	if value == "" {
		return nil, fmt.Errorf("%s is not set", config.EnvKey)
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("%s is not valid hex: %w", config.EnvKey, err)
	}
	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("%s must hold %d bytes, got %d", config.EnvKey, crypto.KeySize, len(key))
	}
	return key, nil
}

func (a *app) passphraseKey(params crypto.KeyParams, salt []byte) ([]byte, error) {
	passphrase := a.getenv(config.EnvPassphrase)
	if passphrase == "" {
		return nil, fmt.Errorf("%s is not set", config.EnvPassphrase)
	}
	return crypto.DeriveKey([]byte(passphrase), salt, params)
}

func (a *app) storedKey(ctx context.Context, source, name string) ([]byte, error) {
	store, err := a.secrets(ctx, source)
	if err != nil {
		return nil, err
	}
	return store.GetKey(ctx, name)
}

func (a *app) envelope(ctx context.Context, source, keyID string) (*crypto.Envelope, error) {
	if keyID == "" {
		return nil, errors.New("no wrapping key id")
	}
	w, err := a.wrapper(ctx, source)
	if err != nil {
		return nil, err
	}
	return crypto.NewEnvelope(w, keyID)
}

// secretName is the name the configured secret store keeps the key under.
func (a *app) secretName() string {
	if a.cfg.Key.Source == config.KeyAWSSecrets {
		return a.cfg.Secrets.Name
	}
	return a.cfg.Vault.SecretPath
}

func (a *app) wrappingKeyID(source string) string {
	if source == config.KeyKMS {
		return a.cfg.KMS.KeyID
	}
	return a.cfg.Vault.TransitKey
}
