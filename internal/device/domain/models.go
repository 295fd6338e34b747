package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type Status string

const (
	StatusAvailable  Status = "Available"
	StatusAssigned   Status = "Assigned"
	StatusLostBroken Status = "Lost or Broken"
	StatusInCheckout Status = "In Checkout"
)

const (
	MaxSerialNumber    = 10
	MaxItemNumber      = 10
	MaxMaintenanceNote = 512
)

var Statuses = []Status{StatusAssigned, StatusAvailable, StatusLostBroken, StatusInCheckout}

func (s Status) Valid() bool {
	for _, v := range Statuses {
		if s == v {
			return true
		}
	}
	return false
}

type Device struct {
	ID           snowflake.ID  `gorm:"primaryKey" json:"id"`
	SerialNumber string        `gorm:"type:varchar(10);not null;uniqueIndex" json:"serial_number"`
	Slug         string        `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	Status       Status        `gorm:"type:varchar(50);not null;default:'Available'" json:"status"`
	AccountID    snowflake.ID  `gorm:"not null;index" json:"account_id"`
	ItemID       *snowflake.ID `gorm:"index" json:"item_id,omitempty"`
	SubStartDate *time.Time    `gorm:"type:date" json:"sub_start_date,omitempty"`
	IsActive     bool          `gorm:"not null;default:true" json:"is_active"`
	DateAdded    time.Time     `gorm:"type:date;not null" json:"date_added"`
	CreatedAt    time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"not null" json:"updated_at"`
}

func (Device) TableName() string { return "devices" }

// Item is a device model line, referenced by item number.
type Item struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	ItemNumber    string       `gorm:"type:varchar(10);not null;uniqueIndex" json:"item_number"`
	Configuration string       `gorm:"type:varchar(255);not null" json:"configuration"`
	Slug          string       `gorm:"type:text;not null;uniqueIndex" json:"slug"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
	UpdatedAt     time.Time    `gorm:"not null" json:"updated_at"`
}

func (Item) TableName() string { return "device_items" }

// MaintenanceRecord is written on every manual status change.
type MaintenanceRecord struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	DeviceID  snowflake.ID  `gorm:"not null;index" json:"device_id"`
	Status    Status        `gorm:"type:varchar(50);not null" json:"status"`
	Note      string        `gorm:"type:varchar(512)" json:"note,omitempty"`
	CreatedBy *snowflake.ID `json:"created_by,omitempty"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
}

func (MaintenanceRecord) TableName() string { return "equipment_maintenance_records" }

type ListFilter struct {
	AccountID *snowflake.ID
	Status    Status
	Search    string
	Offset    int
	Limit     int
}
