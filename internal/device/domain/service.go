package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/db/pagination"
	"gorm.io/gorm"
)

type CreateDeviceRequest struct {
	SerialNumber  string `json:"serial_number"`
	ItemNumber    string `json:"item_number"`
	DateAdded     string `json:"date_added"`
	Status        Status `json:"status"`
	AccountNumber string `json:"account_number"`
	SubStartDate  string `json:"sub_start_date"`
}

type UpdateDeviceRequest struct {
	ItemNumber   *string `json:"item_number"`
	SubStartDate *string `json:"sub_start_date"`
	IsActive     *bool   `json:"is_active"`
}

type SetStatusRequest struct {
	Status Status `json:"status"`
	Note   string `json:"note"`
}

type TransferRequest struct {
	FromAccount string   `json:"from_account"`
	ToAccount   string   `json:"to_account"`
	Devices     []string `json:"devices"`
}

type TransferResult struct {
	SerialNumbers []string `json:"serial_numbers"`
}

type ListDeviceRequest struct {
	pagination.Pagination
	Account string `form:"account"`
	Status  Status `form:"status"`
	Search  string `form:"search"`
}

type ListDeviceResponse struct {
	pagination.PageInfo
	Devices []*Device `json:"devices"`
}

type CreateItemRequest struct {
	ItemNumber    string `json:"item_number"`
	Configuration string `json:"configuration"`
}

type Service interface {
	List(ctx context.Context, req ListDeviceRequest) (ListDeviceResponse, error)
	Get(ctx context.Context, slug string) (*Device, error)
	Create(ctx context.Context, req CreateDeviceRequest) (*Device, error)
	// Provision creates a device without an authorization check; callers gate it.
	Provision(ctx context.Context, req CreateDeviceRequest) (*Device, error)
	Update(ctx context.Context, slug string, req UpdateDeviceRequest) (*Device, error)
	SetStatus(ctx context.Context, slug string, req SetStatusRequest) (*MaintenanceRecord, error)
	Records(ctx context.Context, slug string) ([]*MaintenanceRecord, error)
	ListRecords(ctx context.Context) ([]*MaintenanceRecord, error)
	Transfer(ctx context.Context, req TransferRequest) (TransferResult, error)

	ListItems(ctx context.Context) ([]*Item, error)
	CreateItem(ctx context.Context, req CreateItemRequest) (*Item, error)

	// Assign marks an available device as assigned inside tx.
	Assign(ctx context.Context, tx *gorm.DB, deviceID snowflake.ID) error
	// Release moves an assigned device to status inside tx.
	Release(ctx context.Context, tx *gorm.DB, deviceID snowflake.ID, status Status) error
}

var (
	ErrDeviceNotFound = errors.New("device_not_found")
	ErrItemNotFound   = errors.New("device_item_not_found")

	ErrDeviceUnavailable = apperr.Conflict("Device is not available")
	ErrSerialTaken       = apperr.Conflict("A device with this serial number already exists")
	ErrItemNumberTaken   = apperr.Conflict("A device item with this item number already exists")
	ErrSameAccount       = apperr.Conflict("Devices must be transferred to a different account")
)
