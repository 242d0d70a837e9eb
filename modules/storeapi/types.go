// Package storeapi defines the request-reply services a storage module
// exposes to the HTTP side channel, and the adapter used to call them.
package storeapi

import "github.com/example/modular-world/domain/world"

// Service names registered by the storage module.
const (
	ServiceGetUser     = "get-user"
	ServiceUpsertUser  = "upsert-user"
	ServiceGetRoom     = "get-room"
	ServiceCheckSchema = "check-schema"
)

// GetUserRequest is the request for fetching a profile.
type GetUserRequest struct {
	ID string `json:"id"`
}

// GetUserResponse carries the profile when found.
type GetUserResponse struct {
	Found bool        `json:"found"`
	User  *world.User `json:"user,omitempty"`
}

// UpsertUserRequest is the request for creating or updating a profile.
type UpsertUserRequest struct {
	User world.User `json:"user"`
}

// UpsertUserResponse carries the stored profile.
type UpsertUserResponse struct {
	User *world.User `json:"user"`
}

// GetRoomRequest is the request for a room and its modules.
type GetRoomRequest struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// GetRoomResponse carries a room and its normalized modules.
type GetRoomResponse struct {
	Room    *world.Room    `json:"room"`
	Modules []world.Module `json:"modules"`
}

// CheckSchemaRequest is the request for a schema drift report.
type CheckSchemaRequest struct{}

// CheckSchemaResponse wraps the drift report.
type CheckSchemaResponse struct {
	Report world.SchemaReport `json:"report"`
}
