package validation

import (
	"regexp"
	"strings"
)

// Shelley-era bech32 payment addresses (mainnet and testnet).
var walletRe = regexp.MustCompile(`^addr(_test)?1[qpzry9x8gf2tvdw0s3jn54khce6mua7l]{50,110}$`)

// Cardano transaction ids are 32-byte blake2b hashes, hex encoded.
var txHashRe = regexp.MustCompile(`^[0-9a-fA-F]{64}$`)

func IsValidWalletAddress(addr string) bool {
	return walletRe.MatchString(strings.TrimSpace(addr))
}

func IsValidTxHash(hash string) bool {
	return txHashRe.MatchString(strings.TrimSpace(hash))
}

// NormalizeTxHash lowercases a hash so the same transaction never appears twice
// under different spellings.
func NormalizeTxHash(hash string) string {
	return strings.ToLower(strings.TrimSpace(hash))
}
