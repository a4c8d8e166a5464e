package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultVaultMount = "secret"

// VaultConfig configures a Vault-backed store.
type VaultConfig struct {
	Address   string
	Token     string
	Namespace string
	Mount     string
	// PathPrefix namespaces sealbox keys inside the mount (default: sealbox).
	PathPrefix string
	Timeout    time.Duration
}

// VaultStore persists secrets in HashiCorp Vault KV v2, one KV entry per key.
// Vault offers no atomic read-and-delete, so this backend does not implement
// AtomicStore; the controller falls back to get-then-delete.
type VaultStore struct {
	address    string
	token      string
	namespace  string
	mount      string
	pathPrefix string
	client     *http.Client
}

// NewVaultStore creates a new Vault-backed store.
func NewVaultStore(cfg VaultConfig) (*VaultStore, error) {
	if cfg.Address == "" {
		return nil, errors.New("vault address is required")
	}
	if cfg.Token == "" {
		return nil, errors.New("vault token is required")
	}
	mount := cfg.Mount
	if mount == "" {
		mount = defaultVaultMount
	}
	prefix := cfg.PathPrefix
	if prefix == "" {
		prefix = "sealbox"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}

	return &VaultStore{
		address:    strings.TrimRight(cfg.Address, "/"),
		token:      cfg.Token,
		namespace:  cfg.Namespace,
		mount:      strings.Trim(mount, "/"),
		pathPrefix: strings.Trim(prefix, "/"),
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}, nil
}

func (v *VaultStore) dataURL(key string) string {
	return fmt.Sprintf("%s/v1/%s/data/%s/%s", v.address, v.mount, v.pathPrefix, key)
}

func (v *VaultStore) metadataURL(key string) string {
	return fmt.Sprintf("%s/v1/%s/metadata/%s/%s", v.address, v.mount, v.pathPrefix, key)
}

func (v *VaultStore) do(ctx context.Context, method, url string, body any) (*http.Response, error) {
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal vault request: %w", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create vault request: %w", err)
	}
	req.Header.Set("X-Vault-Token", v.token)
	if v.namespace != "" {
		req.Header.Set("X-Vault-Namespace", v.namespace)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("vault request failed: %w", err)
	}
	return resp, nil
}

// Set writes a value under key.
func (v *VaultStore) Set(ctx context.Context, key, value string) error {
	payload := map[string]any{
		"data": map[string]string{"value": value},
	}
	resp, err := v.do(ctx, http.MethodPost, v.dataURL(key), payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("vault returned status %d", resp.StatusCode)
	}
	return nil
}

// Get returns the value stored under key.
func (v *VaultStore) Get(ctx context.Context, key string) (string, error) {
	resp, err := v.do(ctx, http.MethodGet, v.dataURL(key), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("vault returned status %d", resp.StatusCode)
	}

	var payload struct {
		Data struct {
			Data map[string]any `json:"data"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode vault response: %w", err)
	}

	value, ok := payload.Data.Data["value"]
	if !ok {
		return "", ErrNotFound
	}
	stringValue, ok := value.(string)
	if !ok {
		return "", fmt.Errorf("vault value for %s is not a string", key)
	}
	return stringValue, nil
}

// Exists reports whether key is present.
func (v *VaultStore) Exists(ctx context.Context, key string) (bool, error) {
	_, err := v.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete permanently removes key and all its KV versions.
func (v *VaultStore) Delete(ctx context.Context, key string) error {
	exists, err := v.Exists(ctx, key)
	if err != nil {
		return err
	}
	if !exists {
		return ErrNotFound
	}

	resp, err := v.do(ctx, http.MethodDelete, v.metadataURL(key), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("vault returned status %d", resp.StatusCode)
	}
	return nil
}

// Close is a no-op for the Vault store.
func (v *VaultStore) Close() error {
	return nil
}
