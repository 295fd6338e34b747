// Package domain contains user and device subscription records.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// UserSubscription entitles an account to a number of users for a period.
// Changes never edit a row in place: the current row is deactivated and a
// new one is inserted.
type UserSubscription struct {
	ID          snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID   snowflake.ID `gorm:"not null;index" json:"account_id"`
	StartDate   time.Time    `gorm:"type:date;not null" json:"start_date"`
	EndDate     time.Time    `gorm:"type:date;not null" json:"end_date"`
	NumOfUsers  int          `gorm:"not null;default:0" json:"num_of_users"`
	IsActive    bool         `gorm:"not null;default:false" json:"is_active"`
	IsCancelled bool         `gorm:"not null;default:false" json:"is_cancelled"`
	CreatedAt   time.Time    `gorm:"not null" json:"created_at"`
}

func (UserSubscription) TableName() string { return "user_subscriptions" }

// Covers reports whether day falls inside the subscription period.
func (s UserSubscription) Covers(day time.Time) bool {
	return !day.Before(s.StartDate) && !day.After(s.EndDate)
}

type DeviceSubscription struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	AccountID snowflake.ID `gorm:"not null;index" json:"account_id"`
	StartDate *time.Time   `gorm:"type:date" json:"start_date,omitempty"`
	EndDate   time.Time    `gorm:"type:date;not null" json:"end_date"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (DeviceSubscription) TableName() string { return "device_subscriptions" }
