package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	"gorm.io/gorm"
)

type Service interface {
	// EnsureDefaults seeds notification types and the default matrix. Case
	// roles must exist first.
	EnsureDefaults(ctx context.Context) error
	ListDefault(ctx context.Context) ([]Entry, error)
	UpdateDefault(ctx context.Context, overrides []Override) ([]Entry, error)

	// Seed copies the whole default matrix onto a new case, applying overrides.
	Seed(ctx context.Context, tx *gorm.DB, caseID snowflake.ID, overrides []Override) error
	ListForCase(ctx context.Context, ref caseroledomain.CaseRef) ([]Entry, error)
	UpdateForCase(ctx context.Context, ref caseroledomain.CaseRef, overrides []Override) ([]Entry, error)
	Recipients(ctx context.Context, caseID snowflake.ID, notificationType string) ([]snowflake.ID, error)
}
