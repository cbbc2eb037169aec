package fileunlocker

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pi-apps/a2u/internal/core/ports"
	"github.com/pi-apps/a2u/pkg/stellar"
	"github.com/pi-apps/a2u/utils"
)

type service struct {
	path string
}

// NewService returns an unlocker reading the wallet secret from the file at
// path, re-read on every call. The file holds either a seed or a mnemonic.
func NewService(path string) (ports.Unlocker, error) {
	if len(path) <= 0 {
		return nil, fmt.Errorf("missing secret file path")
	}
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("invalid secret file: %w", err)
	}
	return &service{path}, nil
}

func (s *service) GetSeed(_ context.Context) (string, error) {
	buf, err := os.ReadFile(s.path)
	if err != nil {
		return "", fmt.Errorf("failed to read secret file: %w", err)
	}
	secret := strings.TrimSpace(string(buf))
	if len(strings.Fields(secret)) > 1 {
		if err := utils.IsValidMnemonic(secret); err != nil {
			return "", err
		}
		return stellar.SeedFromMnemonic(secret)
	}
	if err := utils.IsValidSeed(secret); err != nil {
		return "", err
	}
	return secret, nil
}
