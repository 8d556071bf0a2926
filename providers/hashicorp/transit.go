package hashicorp

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/hashicorp/vault/api"

	"github.com/hengadev/savex"
)

// TransitService implements savex.KeyWrapper with the Vault Transit engine.
// The engine must be enabled first:
//
//	vault secrets enable transit
type TransitService struct {
	client *api.Client
	mount  string
}

var _ savex.KeyWrapper = (*TransitService)(nil)

// NewTransitService uses the transit engine mounted at mount ("transit" when
// empty).
func NewTransitService(client *api.Client, mount string) (*TransitService, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: vault client cannot be nil", savex.ErrInvalidConfiguration)
	}
	if mount == "" {
		mount = "transit"
	}
	return &TransitService{client: client, mount: mount}, nil
}

// CreateKey creates an aes256-gcm96 transit key. The name is the key id.
func (t *TransitService) CreateKey(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: key name cannot be empty", savex.ErrInvalidConfiguration)
	}

	_, err := t.client.Logical().WriteWithContext(ctx, fmt.Sprintf("%s/keys/%s", t.mount, name), map[string]interface{}{
		"type": "aes256-gcm96",
	})
	if err != nil {
		return "", fmt.Errorf("%w: failed to create transit key '%s': %w", savex.ErrKeyServiceUnavailable, name, err)
	}
	return name, nil
}

// RotateKey adds a new version to a transit key. Wrapped keys made with older
// versions stay readable.
func (t *TransitService) RotateKey(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: key name cannot be empty", savex.ErrInvalidConfiguration)
	}
	_, err := t.client.Logical().WriteWithContext(ctx, fmt.Sprintf("%s/keys/%s/rotate", t.mount, name), nil)
	if err != nil {
		return fmt.Errorf("%w: failed to rotate transit key '%s': %w", savex.ErrKeyServiceUnavailable, name, err)
	}
	return nil
}

// WrapKey returns Vault formatted ciphertext ("vault:v1:...").
func (t *TransitService) WrapKey(ctx context.Context, keyID string, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("%w: plaintext cannot be empty", savex.ErrEncryptionFailed)
	}
	if keyID == "" {
		return nil, fmt.Errorf("%w: keyID cannot be empty", savex.ErrInvalidConfiguration)
	}

	resp, err := t.client.Logical().WriteWithContext(ctx, fmt.Sprintf("%s/encrypt/%s", t.mount, keyID), map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to encrypt with key '%s': %w", savex.ErrEncryptionFailed, keyID, err)
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("%w: no response from Vault Transit encrypt", savex.ErrEncryptionFailed)
	}

	ciphertext, ok := resp.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: ciphertext not found in response", savex.ErrEncryptionFailed)
	}
	return []byte(ciphertext), nil
}

func (t *TransitService) UnwrapKey(ctx context.Context, keyID string, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) == 0 {
		return nil, fmt.Errorf("%w: ciphertext cannot be empty", savex.ErrDecryptionFailed)
	}
	if keyID == "" {
		return nil, fmt.Errorf("%w: keyID cannot be empty", savex.ErrInvalidConfiguration)
	}

	resp, err := t.client.Logical().WriteWithContext(ctx, fmt.Sprintf("%s/decrypt/%s", t.mount, keyID), map[string]interface{}{
		"ciphertext": string(ciphertext),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decrypt with key '%s': %w", savex.ErrDecryptionFailed, keyID, err)
	}
	if resp == nil || resp.Data == nil {
		return nil, fmt.Errorf("%w: no response from Vault Transit decrypt", savex.ErrDecryptionFailed)
	}

	encoded, ok := resp.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("%w: plaintext not found in response", savex.ErrDecryptionFailed)
	}
	plaintext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode plaintext: %w", savex.ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
