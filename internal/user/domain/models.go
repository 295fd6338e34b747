package domain

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/principal"
)

// User is a login of an account, or a Contact without one.
type User struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	Email           string        `gorm:"type:text;not null;uniqueIndex" json:"email"`
	FirstName       string        `gorm:"type:text;not null" json:"first_name"`
	LastName        string        `gorm:"type:text;not null" json:"last_name"`
	Slug            string        `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	AccountID       *snowflake.ID `gorm:"index" json:"account_id,omitempty"`
	UserType        string        `gorm:"type:text;not null;default:'User'" json:"user_type"`
	IsSuperuser     bool          `gorm:"not null;default:false" json:"is_superuser"`
	IsPlatformAdmin bool          `gorm:"not null;default:false" json:"is_platform_admin"`
	IsActive        bool          `gorm:"not null;default:true" json:"is_active"`
	PasswordHash    *string       `gorm:"type:text" json:"-"`
	Phone1          string        `gorm:"column:phone1;type:text" json:"phone1,omitempty"`
	Language        string        `gorm:"type:text" json:"language,omitempty"`
	Timezone        string        `gorm:"type:text" json:"timezone,omitempty"`
	City            string        `gorm:"type:text" json:"city,omitempty"`
	State           string        `gorm:"type:text" json:"state,omitempty"`
	Country         string        `gorm:"type:text" json:"country,omitempty"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt       time.Time     `gorm:"not null" json:"updated_at"`

	Groups []string `gorm:"-" json:"groups,omitempty"`
}

func (User) TableName() string { return "users" }

func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}

func (u User) IsContact() bool {
	return u.UserType == principal.UserTypeContact
}

// AccountInfo is what user rules need to know about the owning account.
type AccountInfo struct {
	ID       snowflake.ID
	Name     string
	Language string
	ParentID *snowflake.ID
	IsActive bool
}

type ListFilter struct {
	AccountID *snowflake.ID
	UserType  string
	Search    string
	IsActive  *bool
	Offset    int
	Limit     int
}
