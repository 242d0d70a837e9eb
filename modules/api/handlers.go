package api

import (
	"errors"
	"strconv"

	"github.com/example/modular-world/domain/world"
	"github.com/gofiber/fiber/v2"
)

// health handles GET /api/health.
func (m *Module) health(c *fiber.Ctx) error {
	resp := HealthResponse{Status: "ok", Database: m.deps.Database}
	if m.deps.Stats != nil {
		stats := m.deps.Stats.Stats()
		resp.Players = stats.Players
		resp.Rooms = stats.Rooms
	}
	if m.deps.Hub != nil {
		resp.Sockets = m.deps.Hub.ClientCount()
	}
	return c.JSON(resp)
}

// getUser handles GET /api/users/:userId.
func (m *Module) getUser(c *fiber.Ctx) error {
	user, err := m.store.GetUser(c.UserContext(), c.Params("userId"))
	if err != nil {
		if !errors.Is(err, world.ErrNotFound) {
			m.deps.Logger.Warn("Failed to load user", "user", c.Params("userId"), "error", err)
		}
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{Error: "User not found"})
	}
	return c.JSON(user)
}

// upsertUser handles POST /api/users. When tokens are enabled the caller
// may only write its own profile.
func (m *Module) upsertUser(c *fiber.Ctx) error {
	var req UpsertUserRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "Invalid request body"})
	}

	if m.deps.Tokens != nil && m.deps.Tokens.Enabled() {
		if subject, _ := c.Locals(UserIDKey).(string); subject != req.ID {
			return c.Status(fiber.StatusForbidden).JSON(ErrorResponse{
				Error:   "forbidden",
				Message: "Token does not match profile id",
			})
		}
	}

	u := world.User{
		ID:          req.ID,
		Username:    req.Username,
		Email:       req.Email,
		AvatarColor: req.AvatarColor,
		AvatarShape: req.AvatarShape,
	}
	if err := world.ValidateUser(u); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: err.Error()})
	}

	saved, err := m.store.UpsertUser(c.UserContext(), u)
	if err != nil {
		m.deps.Logger.Error("Failed to upsert user", "user", req.ID, "error", err)
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "Failed to save user"})
	}
	return c.JSON(saved)
}

// getRoom handles GET /api/rooms/:x/:y.
func (m *Module) getRoom(c *fiber.Ctx) error {
	x, errX := strconv.Atoi(c.Params("x"))
	y, errY := strconv.Atoi(c.Params("y"))
	if errX != nil || errY != nil {
		return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: "Coordinates must be integers"})
	}

	room, modules, err := m.store.GetRoom(c.UserContext(), x, y)
	if err != nil || room == nil {
		m.deps.Logger.Error("Failed to load room", "coords", world.RoomKey(x, y), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "Failed to load room"})
	}
	if modules == nil {
		modules = []world.Module{}
	}
	return c.JSON(RoomResponse{Room: *room, Modules: modules})
}

// checkMigration handles GET /api/check-migration.
func (m *Module) checkMigration(c *fiber.Ctx) error {
	report, err := m.store.CheckSchema(c.UserContext())
	if err != nil {
		m.deps.Logger.Error("Failed to check schema", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "Failed to check schema"})
	}
	return c.JSON(report)
}

// migrate handles POST /api/migrate. Schema drift is never repaired from
// here; the operator gets the SQL to run.
func (m *Module) migrate(c *fiber.Ctx) error {
	report, err := m.store.CheckSchema(c.UserContext())
	if err != nil {
		m.deps.Logger.Error("Failed to check schema", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: "Failed to check schema"})
	}
	if !report.MigrationNeeded {
		return c.JSON(MigrateResponse{Success: true, Message: report.Message})
	}
	return c.JSON(MigrateResponse{
		Success: false,
		Message: "Please run the migration manually",
		SQL:     report.SQL,
	})
}
