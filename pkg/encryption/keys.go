package encryption

import (
	"context"
	"fmt"

	vaultapi "github.com/hashicorp/vault/api"
)

// KeyProvider supplies the AES key.
type KeyProvider interface {
	Key(ctx context.Context) (string, error)
}

// StaticKey is a key taken from configuration.
type StaticKey string

func (k StaticKey) Key(context.Context) (string, error) {
	if k == "" {
		return "", fmt.Errorf("encryption key is empty")
	}
	return string(k), nil
}

// VaultKey reads the key from a field of a HashiCorp Vault KV v2 secret.
type VaultKey struct {
	client *vaultapi.Client
	mount  string
	path   string
	field  string
}

var _ KeyProvider = (*VaultKey)(nil)

// NewVaultKey connects to the Vault server at address with token. An empty address or
// token falls back to the VAULT_ADDR and VAULT_TOKEN environment variables.
func NewVaultKey(address, token, mount, path, field string) (*VaultKey, error) {
	cfg := vaultapi.DefaultConfig()
	if address != "" {
		cfg.Address = address
	}

	client, err := vaultapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault client: %w", err)
	}
	if token != "" {
		client.SetToken(token)
	}
	return &VaultKey{client: client, mount: mount, path: path, field: field}, nil
}

func (k *VaultKey) Key(ctx context.Context) (string, error) {
	secret, err := k.client.KVv2(k.mount).Get(ctx, k.path)
	if err != nil {
		return "", fmt.Errorf("failed to read vault secret '%s/%s': %w", k.mount, k.path, err)
	}
	raw, ok := secret.Data[k.field]
	if !ok {
		return "", fmt.Errorf("vault secret '%s/%s' has no field '%s'", k.mount, k.path, k.field)
	}
	key, ok := raw.(string)
	if !ok || key == "" {
		return "", fmt.Errorf("vault secret field '%s' is not a non-empty string", k.field)
	}
	return key, nil
}
