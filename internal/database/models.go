package database

import "github.com/npezzotti/go-classroom/internal/types"

// DefaultHistoryLimit bounds message history queries when no limit is given.
const DefaultHistoryLimit = 100

type CreateUserParams struct {
	Name         string
	Role         types.Role
	PasswordHash string
}

// CreateRoomParams creates a room owned by OwnerId. MemberIds are added to the
// room's membership in the same transaction.
type CreateRoomParams struct {
	Name      string
	OwnerId   int
	MemberIds []int
}
