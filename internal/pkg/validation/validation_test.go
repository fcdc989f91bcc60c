package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidWalletAddress(t *testing.T) {
	valid := "addr1" + strings.Repeat("q", 58)
	assert.True(t, IsValidWalletAddress(valid))
	assert.True(t, IsValidWalletAddress("addr_test1"+strings.Repeat("x", 58)))
	assert.True(t, IsValidWalletAddress("  "+valid+" "))

	assert.False(t, IsValidWalletAddress(""))
	assert.False(t, IsValidWalletAddress("addr1short"))
	assert.False(t, IsValidWalletAddress("stake1"+strings.Repeat("q", 58)))
	// 'b' is not in the bech32 alphabet
	assert.False(t, IsValidWalletAddress("addr1"+strings.Repeat("b", 58)))
}

func TestIsValidTxHash(t *testing.T) {
	assert.True(t, IsValidTxHash(strings.Repeat("ab", 32)))
	assert.True(t, IsValidTxHash(strings.Repeat("AB", 32)))
	assert.False(t, IsValidTxHash(strings.Repeat("ab", 31)))
	assert.False(t, IsValidTxHash(strings.Repeat("zz", 32)))
	assert.False(t, IsValidTxHash(""))
}

func TestNormalizeTxHash(t *testing.T) {
	assert.Equal(t, strings.Repeat("ab", 32), NormalizeTxHash(" "+strings.Repeat("AB", 32)+"\n"))
}
