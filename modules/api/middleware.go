package api

import (
	"strings"
	"time"

	"github.com/example/modular-world/modules/auth"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

// UserIDKey is the Fiber local holding the verified user id.
const UserIDKey = "userID"

// TokenVerifier resolves a bearer token to a user id.
type TokenVerifier interface {
	Enabled() bool
	UserID(token string) (string, error)
}

var _ TokenVerifier = (*auth.Manager)(nil)

// requireBearer validates the Authorization header when tokens are
// enabled. Without a configured secret every request passes through.
func requireBearer(tokens TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if tokens == nil || !tokens.Enabled() {
			return c.Next()
		}

		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Authorization header is required",
			})
		}
		if !strings.HasPrefix(authHeader, "Bearer ") {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid authorization header format. Use: Bearer <token>",
			})
		}

		userID, err := tokens.UserID(strings.TrimPrefix(authHeader, "Bearer "))
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid or expired token",
			})
		}

		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// upgradeGuard only lets websocket upgrades through. An optional ?token=
// query parameter binds the connection to a durable user id; a token that
// does not verify rejects the upgrade.
func upgradeGuard(tokens TokenVerifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		token := c.Query("token")
		if token == "" || tokens == nil || !tokens.Enabled() {
			return c.Next()
		}
		userID, err := tokens.UserID(token)
		if err != nil {
			return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
				Error:   "unauthorized",
				Message: "Invalid or expired token",
			})
		}
		c.Locals(UserIDKey, userID)
		return c.Next()
	}
}

// rateLimit caps REST requests per client IP per minute. Counters live in
// storage when given, otherwise in process memory.
func rateLimit(perMinute int, storage fiber.Storage) fiber.Handler {
	return limiter.New(limiter.Config{
		Max:        perMinute,
		Expiration: time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return "ratelimit:api:" + c.IP()
		},
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(ErrorResponse{
				Error:   "rate_limited",
				Message: "Too many requests, please retry later",
			})
		},
		Storage: storage,
	})
}
