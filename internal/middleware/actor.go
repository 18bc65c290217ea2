package middleware

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/escrowledger/internal/domain"
)

// ActorHeader carries the caller identity asserted by the upstream gateway.
const ActorHeader = "X-Actor-ID"

const actorLocal = "actor_id"

// Actor reads the already-authenticated caller from ActorHeader. Mutating
// requests without it are rejected; reads pass through.
func Actor() fiber.Handler {
	return func(c *fiber.Ctx) error {
		id := strings.TrimSpace(c.Get(ActorHeader))
		if id == "" {
			switch c.Method() {
			case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions:
				return c.Next()
			}
			return fiber.NewError(http.StatusUnauthorized, "missing "+ActorHeader+" header")
		}
		c.Locals(actorLocal, id)
		return c.Next()
	}
}

// ActorFrom builds the domain actor for the current request.
func ActorFrom(c *fiber.Ctx) domain.Actor {
	id, _ := c.Locals(actorLocal).(string)
	return domain.Actor{ID: id, RequestID: RequestIDFrom(c)}
}
