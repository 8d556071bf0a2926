package crypto

import (
	"context"
	"fmt"
)

// KeyWrapper encrypts and decrypts data keys with a key held by an external
// service (AWS KMS, Vault Transit).
type KeyWrapper interface {
	WrapKey(ctx context.Context, keyID string, plaintext []byte) ([]byte, error)
	UnwrapKey(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error)
}

// Envelope manages data keys wrapped under one master key.
type Envelope struct {
	wrapper KeyWrapper
	keyID   string
}

func NewEnvelope(wrapper KeyWrapper, keyID string) (*Envelope, error) {
	if wrapper == nil {
		return nil, fmt.Errorf("key wrapper cannot be nil")
	}
	if keyID == "" {
		return nil, fmt.Errorf("key ID cannot be empty")
	}
	return &Envelope{wrapper: wrapper, keyID: keyID}, nil
}

func (e *Envelope) KeyID() string { return e.keyID }

// NewDataKey generates a data key and returns it in plaintext and wrapped
// form. Only the wrapped form should be persisted.
func (e *Envelope) NewDataKey(ctx context.Context) (plaintext, wrapped []byte, err error) {
	plaintext, err = GenerateKey()
	if err != nil {
		return nil, nil, err
	}
	wrapped, err = e.wrapper.WrapKey(ctx, e.keyID, plaintext)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to wrap data key with %s: %w", e.keyID, err)
	}
	return plaintext, wrapped, nil
}

// OpenDataKey unwraps a data key produced by NewDataKey.
func (e *Envelope) OpenDataKey(ctx context.Context, wrapped []byte) ([]byte, error) {
	plaintext, err := e.wrapper.UnwrapKey(ctx, e.keyID, wrapped)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap data key with %s: %w", e.keyID, err)
	}
	if len(plaintext) != KeySize {
		return nil, fmt.Errorf("%w: unwrapped data key has %d bytes", ErrInvalidKeySize, len(plaintext))
	}
	return plaintext, nil
}

// Rewrap moves a wrapped data key to the master key next. The data key
// itself does not change, so dumps sealed with it stay readable.
func (e *Envelope) Rewrap(ctx context.Context, wrapped []byte, next *Envelope) ([]byte, error) {
	plaintext, err := e.OpenDataKey(ctx, wrapped)
	if err != nil {
		return nil, err
	}
	rewrapped, err := next.wrapper.WrapKey(ctx, next.keyID, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to wrap data key with %s: %w", next.keyID, err)
	}
	return rewrapped, nil
}
