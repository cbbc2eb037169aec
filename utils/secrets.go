package utils

import (
	"fmt"
	"strings"

	"github.com/stellar/go/keypair"
	"github.com/tyler-smith/go-bip39"
)

// Pi wallet passphrases are 24 words long.
const mnemonicWords = 24

func IsValidMnemonic(mnemonic string) error {
	words := strings.Fields(mnemonic)
	if len(words) != mnemonicWords {
		return fmt.Errorf("must have %d words", mnemonicWords)
	}
	if !bip39.IsMnemonicValid(strings.Join(words, " ")) {
		return fmt.Errorf("invalid mnemonic")
	}
	return nil
}

func IsValidSeed(seed string) error {
	if len(seed) <= 0 {
		return fmt.Errorf("missing seed")
	}
	if _, err := keypair.ParseFull(seed); err != nil {
		return fmt.Errorf("invalid seed")
	}
	return nil
}

func IsValidAddress(address string) bool {
	kp, err := keypair.ParseAddress(address)
	return err == nil && kp != nil
}

// MaskSecret keeps only the first and last 4 chars of the given secret.
func MaskSecret(secret string) string {
	if len(secret) <= 8 {
		return strings.Repeat("*", len(secret))
	}
	return secret[:4] + strings.Repeat("*", len(secret)-8) + secret[len(secret)-4:]
}
