package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

type Kind string

const (
	KindAccount Kind = "account"
	KindDevice  Kind = "device"
)

func (k Kind) Valid() bool {
	return k == KindAccount || k == KindDevice
}

// Upload is one spreadsheet received for bulk import.
type Upload struct {
	ID        snowflake.ID  `gorm:"primaryKey" json:"id"`
	Slug      string        `gorm:"type:varchar(64);not null;uniqueIndex" json:"slug"`
	Kind      Kind          `gorm:"type:varchar(20);not null;index" json:"kind"`
	Filename  string        `gorm:"type:varchar(255);not null" json:"filename"`
	CreatedBy *snowflake.ID `json:"created_by,omitempty"`
	CreatedAt time.Time     `gorm:"not null" json:"created_at"`
}

func (Upload) TableName() string { return "uploads" }

// UploadItem is one parsed row. Data holds the normalized field values.
type UploadItem struct {
	ID         snowflake.ID                  `gorm:"primaryKey" json:"id"`
	UploadID   snowflake.ID                  `gorm:"not null;index" json:"upload_id"`
	Row        int                           `gorm:"column:row_no;not null" json:"row"`
	Data       datatypes.JSONMap             `json:"data"`
	IsImported bool                          `gorm:"not null;default:false" json:"is_imported"`
	Errors     datatypes.JSONType[RowErrors] `json:"errors"`
	CreatedAt  time.Time                     `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time                     `gorm:"not null" json:"updated_at"`
}

func (UploadItem) TableName() string { return "upload_items" }

func (i *UploadItem) Field(key string) string {
	v, _ := i.Data[key].(string)
	return v
}

// RowErrors collects what is wrong with a row. Flags are machine readable,
// Detail is shown to the uploader.
type RowErrors struct {
	Flags  []string `json:"flags,omitempty"`
	Detail []string `json:"error_detail"`
}

func (e *RowErrors) Add(flag, detail string) {
	if flag != "" {
		for _, f := range e.Flags {
			if f == flag {
				flag = ""
				break
			}
		}
		if flag != "" {
			e.Flags = append(e.Flags, flag)
		}
	}
	e.Detail = append(e.Detail, detail)
}

func (e RowErrors) Empty() bool { return len(e.Detail) == 0 }

const (
	FlagDataMissing    = "data_missing"
	FlagDuplicate      = "duplicate_entry"
	FlagAlreadyExists  = "already_exists"
	FlagNotFound       = "not_found"
	FlagPhoneNumber    = "phone_number_error"
	FlagDomain         = "domain_error"
	FlagHQDoesNotExist = "hq_account_does_not_exist"
	FlagCommitFailed   = "commit_failed"
)
