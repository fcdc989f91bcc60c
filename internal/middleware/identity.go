package middleware

import (
	"strings"

	"boneboard-backend/internal/pkg/response"
	"boneboard-backend/internal/pkg/validation"

	"github.com/gofiber/fiber/v2"
)

// WalletHeader carries the caller's wallet address. It is not signed, so it
// only attributes listings to an owner. Routes that apply payments take the
// admin key or the signed payment webhook instead.
const WalletHeader = "X-Wallet-Address"

const walletLocal = "wallet"

// WalletIdentity copies a well-formed wallet address into Locals. Requests
// without the header continue anonymously.
func WalletIdentity() fiber.Handler {
	return func(c *fiber.Ctx) error {
		addr := strings.TrimSpace(c.Get(WalletHeader))
		if addr == "" {
			return c.Next()
		}
		if !validation.IsValidWalletAddress(addr) {
			return response.Error(c, "Invalid wallet address", fiber.StatusBadRequest, nil)
		}
		c.Locals(walletLocal, addr)
		return c.Next()
	}
}

// RequireWallet rejects requests that carry no wallet identity.
func RequireWallet() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if GetWallet(c) == "" {
			return response.Unauthorized(c, "Wallet address required")
		}
		return c.Next()
	}
}

// GetWallet returns the caller's wallet address, or "" when anonymous.
func GetWallet(c *fiber.Ctx) string {
	if addr, ok := c.Locals(walletLocal).(string); ok {
		return addr
	}
	return ""
}
