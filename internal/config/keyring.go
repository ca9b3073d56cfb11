package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/99designs/keyring"
)

const keyringService = "remindbot"

// openKeyring is swapped in tests.
var openKeyring = func(service string) (keyring.Keyring, error) {
	dir := filepath.Join(".", ".remindbot", "credentials")
	if home, err := os.UserHomeDir(); err == nil {
		dir = filepath.Join(home, ".config", "remindbot", "credentials")
	}
	ring, err := keyring.Open(keyring.Config{
		ServiceName: service,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.KWalletBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  dir,
		FilePasswordFunc:         filePassword,
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// filePassword reads the file backend password from the environment so the
// bot never prompts on a terminal.
func filePassword(string) (string, error) {
	if p := os.Getenv(EnvPrefix + "_KEYRING_PASSWORD"); p != "" {
		return p, nil
	}
	return "", fmt.Errorf("%s_KEYRING_PASSWORD is not set", EnvPrefix)
}

// lookupSecret resolves "key" or "service/key" from the OS keyring.
func lookupSecret(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	service, key := keyringService, ref
	if i := strings.IndexByte(ref, '/'); i > 0 {
		service, key = ref[:i], ref[i+1:]
	}
	if key == "" {
		return "", fmt.Errorf("empty keyring key in %q", ref)
	}
	ring, err := openKeyring(service)
	if err != nil {
		return "", err
	}
	item, err := ring.Get(key)
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", ref, err)
	}
	return strings.TrimSpace(string(item.Data)), nil
}

// resolveSecrets fills secrets that are not set inline.
func resolveSecrets(cfg *Config) error {
	if strings.TrimSpace(cfg.Telegram.Token) == "" && strings.TrimSpace(cfg.Telegram.TokenKeyring) != "" {
		tok, err := lookupSecret(cfg.Telegram.TokenKeyring)
		if err != nil {
			return fmt.Errorf("telegram.token_keyring: %w", err)
		}
		cfg.Telegram.Token = tok
	}
	return nil
}
