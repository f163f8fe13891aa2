package credentials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/zalando/go-keyring"
)

// keychainService é o nome do serviço no keychain do sistema.
const keychainService = "com.repostate.git"

// KeyringProvider guarda um token por host remoto no keychain do sistema.
// Satisfaz engine.TokenProvider.
type KeyringProvider struct {
	service string
}

func NewKeyringProvider() *KeyringProvider {
	return &KeyringProvider{service: keychainService}
}

// Token retorna o token do host; "" quando nada foi gravado.
func (p *KeyringProvider) Token(ctx context.Context, host string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key, err := hostKey(host)
	if err != nil {
		return "", err
	}
	token, err := keyring.Get(p.service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read token for %s: %w", key, err)
	}
	return strings.TrimSpace(token), nil
}

// Set grava (ou substitui) o token do host.
func (p *KeyringProvider) Set(host, token string) error {
	key, err := hostKey(host)
	if err != nil {
		return err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("empty token for %s", key)
	}
	if err := keyring.Set(p.service, key, token); err != nil {
		return fmt.Errorf("failed to store token for %s: %w", key, err)
	}
	return nil
}

// Delete remove o token do host. Remover um token inexistente não é erro.
func (p *KeyringProvider) Delete(host string) error {
	key, err := hostKey(host)
	if err != nil {
		return err
	}
	if err := keyring.Delete(p.service, key); err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token for %s: %w", key, err)
	}
	return nil
}

// hostKey normaliza o host (minúsculo, sem esquema nem porta padrão).
func hostKey(host string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(host))
	key = strings.TrimPrefix(key, "https://")
	key = strings.TrimPrefix(key, "http://")
	key = strings.TrimSuffix(key, "/")
	key = strings.TrimSuffix(key, ":443")
	if key == "" || strings.ContainsAny(key, "/ @") {
		return "", fmt.Errorf("invalid host %q", host)
	}
	return key, nil
}
