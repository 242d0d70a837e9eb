package api

import "github.com/example/modular-world/domain/world"

// ErrorResponse is the API error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is the API health check response.
type HealthResponse struct {
	Status   string `json:"status"`
	Players  int    `json:"players"`
	Rooms    int    `json:"rooms"`
	Sockets  int    `json:"sockets"`
	Database string `json:"database"`
}

// UpsertUserRequest is the body of POST /api/users.
type UpsertUserRequest struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Email       string `json:"email"`
	AvatarColor string `json:"avatar_color"`
	AvatarShape string `json:"avatar_shape"`
}

// RoomResponse is a room with its normalized modules.
type RoomResponse struct {
	world.Room
	Modules []world.Module `json:"modules"`
}

// MigrateResponse tells the operator how to repair schema drift.
type MigrateResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	SQL     string `json:"sql,omitempty"`
}
