package stellar

import (
	"fmt"
	"strings"

	"github.com/stellar/go/exp/crypto/derivation"
	"github.com/stellar/go/keypair"
	"github.com/tyler-smith/go-bip39"
)

// Pi wallets derive their key with SLIP-0010 on coin type 314159.
const piDerivationPath = "m/44'/314159'/0'"

// SeedFromMnemonic returns the secret seed of the Pi wallet backed up by the
// given 24 words passphrase.
func SeedFromMnemonic(mnemonic string) (string, error) {
	mnemonic = strings.Join(strings.Fields(mnemonic), " ")
	if !bip39.IsMnemonicValid(mnemonic) {
		return "", fmt.Errorf("invalid mnemonic")
	}

	key, err := derivation.DeriveForPath(piDerivationPath, bip39.NewSeed(mnemonic, ""))
	if err != nil {
		return "", fmt.Errorf("failed to derive wallet key: %w", err)
	}

	var rawSeed [32]byte
	copy(rawSeed[:], key.Key)
	kp, err := keypair.FromRawSeed(rawSeed)
	if err != nil {
		return "", err
	}
	return kp.Seed(), nil
}
