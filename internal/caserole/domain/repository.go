package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	EnsureRole(ctx context.Context, db *gorm.DB, role *DefaultRole) (*DefaultRole, error)
	ListRoles(ctx context.Context, db *gorm.DB) ([]*DefaultRole, error)
	EnsurePermission(ctx context.Context, db *gorm.DB, perm *CasePermission) (*CasePermission, error)
	LinkPermission(ctx context.Context, db *gorm.DB, link *CaseRolePermission) error

	ListByCase(ctx context.Context, db *gorm.DB, caseID snowflake.ID) ([]*CaseRole, error)
	Insert(ctx context.Context, db *gorm.DB, roles []*CaseRole) error
	Delete(ctx context.Context, db *gorm.DB, caseID, roleID, userID snowflake.ID) error
	// HoldersOf returns the users holding any of roleIDs on the case.
	HoldersOf(ctx context.Context, db *gorm.DB, caseID snowflake.ID, roleIDs []snowflake.ID) ([]snowflake.ID, error)
	SetParentUser(ctx context.Context, db *gorm.DB, caseID snowflake.ID, userID *snowflake.ID) error
}
