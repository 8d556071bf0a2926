package savex

import (
	"context"

	"github.com/hengadev/savex/internal/crypto"
)

// Cipher seals and opens the payload of Encrypted composites.
type Cipher interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// KeyWrapper wraps data keys under a master key held by an external service.
// The providers/awskms and providers/hashicorp packages implement it.
type KeyWrapper = crypto.KeyWrapper

// KeyParams are the Argon2id settings of a passphrase cipher.
type KeyParams = crypto.KeyParams

// NewCipher returns an AES-256-GCM cipher for a 32-byte key.
func NewCipher(key []byte) (Cipher, error) {
	c, err := crypto.NewAEAD(key)
	if err != nil {
		return nil, NewConfigurationError("cipher key", err)
	}
	return c, nil
}

// NewPassphraseCipher derives an AES-256-GCM key from passphrase and salt
// with Argon2id and the default parameters.
func NewPassphraseCipher(passphrase, salt []byte) (Cipher, error) {
	return NewPassphraseCipherWithParams(passphrase, salt, crypto.DefaultKeyParams)
}

func NewPassphraseCipherWithParams(passphrase, salt []byte, params KeyParams) (Cipher, error) {
	key, err := crypto.DeriveKey(passphrase, salt, params)
	if err != nil {
		return nil, NewConfigurationError("passphrase key", err)
	}
	return NewCipher(key)
}

// NewDataKeyCipher generates a fresh data key, wraps it under keyID and
// returns a cipher for it together with the wrapped key. Persist the wrapped
// key next to the dump; OpenDataKeyCipher turns it back into a cipher.
func NewDataKeyCipher(ctx context.Context, wrapper KeyWrapper, keyID string) (Cipher, []byte, error) {
	env, err := crypto.NewEnvelope(wrapper, keyID)
	if err != nil {
		return nil, nil, NewConfigurationError("data key", err)
	}
	key, wrapped, err := env.NewDataKey(ctx)
	if err != nil {
		return nil, nil, NewEncryptionError("data key "+keyID, err)
	}
	c, err := NewCipher(key)
	if err != nil {
		return nil, nil, err
	}
	return c, wrapped, nil
}

func OpenDataKeyCipher(ctx context.Context, wrapper KeyWrapper, keyID string, wrapped []byte) (Cipher, error) {
	env, err := crypto.NewEnvelope(wrapper, keyID)
	if err != nil {
		return nil, NewConfigurationError("data key", err)
	}
	key, err := env.OpenDataKey(ctx, wrapped)
	if err != nil {
		return nil, NewDecryptionError("data key "+keyID, err)
	}
	return NewCipher(key)
}
