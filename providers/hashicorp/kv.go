package hashicorp

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/hengadev/savex"
)

// KeySize is the length of keys kept in KV.
const KeySize = 32

// KVStore keeps cipher keys in a Vault KV v2 engine:
//
//	vault secrets enable -path=secret kv-v2
type KVStore struct {
	client *api.Client
	mount  string
}

// NewKVStore uses the KV v2 engine mounted at mount ("secret" when empty).
func NewKVStore(client *api.Client, mount string) (*KVStore, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: vault client cannot be nil", savex.ErrInvalidConfiguration)
	}
	if mount == "" {
		mount = "secret"
	}
	return &KVStore{client: client, mount: mount}, nil
}

// StoragePath returns the KV v2 data path of a key, e.g.
// "secret/data/savex/nightly".
func (k *KVStore) StoragePath(name string) string {
	return fmt.Sprintf("%s/data/savex/%s", k.mount, name)
}

// StoreKey writes key under name. KV v2 keeps previous versions.
func (k *KVStore) StoreKey(ctx context.Context, name string, key []byte) error {
	if len(key) != KeySize {
		return fmt.Errorf("%w: key must be exactly %d bytes, got %d", savex.ErrInvalidConfiguration, KeySize, len(key))
	}

	_, err := k.client.Logical().WriteWithContext(ctx, k.StoragePath(name), map[string]interface{}{
		"data": map[string]interface{}{
			"value": base64.StdEncoding.EncodeToString(key),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: failed to store key in Vault KV: %w", savex.ErrKeyServiceUnavailable, err)
	}
	return nil
}

// GetKey reads the key stored under name.
func (k *KVStore) GetKey(ctx context.Context, name string) ([]byte, error) {
	encoded, found, err := k.read(ctx, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("%w: key not found: %s", savex.ErrKeyServiceUnavailable, name)
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode key: %w", savex.ErrKeyServiceUnavailable, err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: invalid key length: expected %d bytes, got %d", savex.ErrKeyServiceUnavailable, KeySize, len(key))
	}
	return key, nil
}

// KeyExists reports whether a well formed entry exists under name. Only
// transport failures are errors.
func (k *KVStore) KeyExists(ctx context.Context, name string) (bool, error) {
	_, found, err := k.read(ctx, name)
	return found, err
}

// Cipher returns a savex cipher for the key stored under name.
func (k *KVStore) Cipher(ctx context.Context, name string) (savex.Cipher, error) {
	key, err := k.GetKey(ctx, name)
	if err != nil {
		return nil, err
	}
	return savex.NewCipher(key)
}

func (k *KVStore) read(ctx context.Context, name string) (string, bool, error) {
	secret, err := k.client.Logical().ReadWithContext(ctx, k.StoragePath(name))
	if err != nil {
		return "", false, fmt.Errorf("%w: failed to read key from Vault KV: %w", savex.ErrKeyServiceUnavailable, err)
	}
	if secret == nil || secret.Data == nil {
		return "", false, nil
	}

	// KV v2 wraps the payload in a "data" key
	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return "", false, nil
	}
	value, ok := data["value"].(string)
	return value, ok, nil
}
