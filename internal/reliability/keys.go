package reliability

import (
	"context"

	"github.com/hengadev/savex/internal/crypto"
)

// KeyStore is a key store addressed by name.
type KeyStore interface {
	StoreKey(ctx context.Context, name string, key []byte) error
	GetKey(ctx context.Context, name string) ([]byte, error)
}

type retryWrapper struct {
	next crypto.KeyWrapper
	ex   *Executor
}

// Wrapper retries the calls of w with ex.
func Wrapper(w crypto.KeyWrapper, ex *Executor) crypto.KeyWrapper {
	return &retryWrapper{next: w, ex: ex}
}

func (r *retryWrapper) WrapKey(ctx context.Context, keyID string, plaintext []byte) (wrapped []byte, err error) {
	err = r.ex.Execute(ctx, func(ctx context.Context) error {
		wrapped, err = r.next.WrapKey(ctx, keyID, plaintext)
		return err
	})
	return wrapped, err
}

func (r *retryWrapper) UnwrapKey(ctx context.Context, keyID string, ciphertext []byte) (plaintext []byte, err error) {
	err = r.ex.Execute(ctx, func(ctx context.Context) error {
		plaintext, err = r.next.UnwrapKey(ctx, keyID, ciphertext)
		return err
	})
	return plaintext, err
}

type retryStore struct {
	next KeyStore
	ex   *Executor
}

// Store retries the calls of s with ex.
func Store(s KeyStore, ex *Executor) KeyStore {
	return &retryStore{next: s, ex: ex}
}

func (r *retryStore) StoreKey(ctx context.Context, name string, key []byte) error {
	return r.ex.Execute(ctx, func(ctx context.Context) error {
		return r.next.StoreKey(ctx, name, key)
	})
}

func (r *retryStore) GetKey(ctx context.Context, name string) (key []byte, err error) {
	err = r.ex.Execute(ctx, func(ctx context.Context) error {
		key, err = r.next.GetKey(ctx, name)
		return err
	})
	return key, err
}
