package envunlocker

import (
	"context"
	"fmt"

	"github.com/pi-apps/a2u/internal/core/ports"
	"github.com/pi-apps/a2u/pkg/stellar"
	"github.com/pi-apps/a2u/utils"
)

type service struct {
	seed string
}

// NewService returns an unlocker for the wallet seed found in the
// environment. The mnemonic is used only if the seed is missing.
func NewService(seed, mnemonic string) (ports.Unlocker, error) {
	if len(seed) <= 0 {
		if len(mnemonic) <= 0 {
			return nil, fmt.Errorf("missing wallet seed or mnemonic in environment")
		}
		if err := utils.IsValidMnemonic(mnemonic); err != nil {
			return nil, err
		}
		derived, err := stellar.SeedFromMnemonic(mnemonic)
		if err != nil {
			return nil, err
		}
		seed = derived
	}
	if err := utils.IsValidSeed(seed); err != nil {
		return nil, err
	}
	return &service{seed}, nil
}

func (s *service) GetSeed(_ context.Context) (string, error) {
	return s.seed, nil
}
