// Package httpx holds request parsing shared by the HTTP handlers.
package httpx

import (
	"boneboard-backend/internal/pkg/apperr"
	"boneboard-backend/internal/pkg/response"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

var (
	ErrInvalidID   = apperr.Validation("Invalid id format")
	ErrInvalidBody = apperr.Validation("Invalid request body")
)

// ParamUUID parses the named route parameter as a UUID.
func ParamUUID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}

// ParseBody decodes a JSON body into out. An empty body leaves out untouched.
func ParseBody(c *fiber.Ctx, out interface{}) error {
	if len(c.Body()) == 0 {
		return nil
	}
	if err := c.BodyParser(out); err != nil {
		return ErrInvalidBody
	}
	return nil
}

const notOwnerMessage = "Only the owner may perform this action"

// RequireOwner sends 403 unless wallet owns the resource. It returns false
// after writing the response.
func RequireOwner(c *fiber.Ctx, wallet, owner string) (bool, error) {
	if wallet != "" && wallet == owner {
		return true, nil
	}
	return false, response.Forbidden(c, notOwnerMessage)
}
