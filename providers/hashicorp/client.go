// Package hashicorp resolves savex cipher keys with HashiCorp Vault.
//
// Two engines are supported:
//   - Transit: TransitService implements savex.KeyWrapper, so data keys are
//     wrapped by Vault and never stored in clear.
//   - KV v2: KVStore keeps a raw 32-byte key and turns it into a savex.Cipher.
package hashicorp

import (
	"fmt"
	"net/http"
	"os"

	"github.com/hashicorp/vault/api"

	"github.com/hengadev/savex"
)

// Config describes how to reach and authenticate against Vault.
type Config struct {
	Address   string
	Namespace string
	Token     string
	RoleID    string
	SecretID  string
}

// ConfigFromEnv reads VAULT_ADDR, VAULT_NAMESPACE, VAULT_TOKEN,
// VAULT_ROLE_ID and VAULT_SECRET_ID.
func ConfigFromEnv() Config {
	return Config{
		Address:   os.Getenv("VAULT_ADDR"),
		Namespace: os.Getenv("VAULT_NAMESPACE"),
		Token:     os.Getenv("VAULT_TOKEN"),
		RoleID:    os.Getenv("VAULT_ROLE_ID"),
		SecretID:  os.Getenv("VAULT_SECRET_ID"),
	}
}

// NewClient creates an authenticated Vault client.
//
// Authentication priority:
//  1. Token, when set
//  2. AppRole login with RoleID and SecretID
//  3. Otherwise an ErrInvalidConfiguration error
func NewClient(cfg Config) (*api.Client, error) {
	config := api.DefaultConfig()
	if cfg.Address != "" {
		config.Address = cfg.Address
	}
	if config.Address == "" {
		return nil, fmt.Errorf("%w: vault address is required", savex.ErrInvalidConfiguration)
	}
	config.HttpClient.Transport = &http.Transport{
		Proxy: http.ProxyFromEnvironment,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Vault client: %w", savex.ErrKeyServiceUnavailable, err)
	}
	if cfg.Namespace != "" {
		client.SetNamespace(cfg.Namespace)
	}

	if cfg.Token != "" {
		client.SetToken(cfg.Token)
		return client, nil
	}

	if cfg.RoleID != "" && cfg.SecretID != "" {
		resp, err := client.Logical().Write("auth/approle/login", map[string]interface{}{
			"role_id":   cfg.RoleID,
			"secret_id": cfg.SecretID,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: failed to login with AppRole: %w", savex.ErrKeyServiceUnavailable, err)
		}
		if resp == nil || resp.Auth == nil {
			return nil, fmt.Errorf("%w: no auth info returned from AppRole login", savex.ErrKeyServiceUnavailable)
		}
		client.SetToken(resp.Auth.ClientToken)
		return client, nil
	}

	return nil, fmt.Errorf("%w: no Vault authentication method configured (set VAULT_TOKEN or VAULT_ROLE_ID+VAULT_SECRET_ID)",
		savex.ErrInvalidConfiguration)
}
