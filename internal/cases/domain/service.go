package domain

import (
	"context"
	"errors"

	caseroledomain "github.com/smallbiznis/caseline/internal/caserole/domain"
	devicedomain "github.com/smallbiznis/caseline/internal/device/domain"
	matrixdomain "github.com/smallbiznis/caseline/internal/notificationmatrix/domain"
	"github.com/smallbiznis/caseline/pkg/apperr"
	"github.com/smallbiznis/caseline/pkg/db/pagination"
)

type PatientRequest struct {
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	MiddleName   string `json:"middle_name"`
	Gender       string `json:"gender"`
	DateOfBirth  string `json:"date_of_birth"`
	Address1     string `json:"address1"`
	Address2     string `json:"address2"`
	City         string `json:"city"`
	State        string `json:"state"`
	Country      string `json:"country"`
	Zipcode      string `json:"zipcode"`
	ContactEmail string `json:"contact_email"`
}

// ParentRequest describes the parent of a new case. With CreateContact the
// parent becomes a Contact user who can sign in and holds the Parent role.
type ParentRequest struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Title         string `json:"title"`
	Relationship  string `json:"relationship_to_patient"`
	Email         string `json:"email"`
	Phone1        string `json:"phone1"`
	Language      string `json:"language"`
	CreateContact bool   `json:"create_contact"`
}

type CreateCaseRequest struct {
	// Account defaults to the caller's account.
	Account            string                    `json:"account"`
	Device             string                    `json:"device"`
	Timezone           string                    `json:"timezone"`
	IsConsent          bool                      `json:"is_consent"`
	Patient            PatientRequest            `json:"patient"`
	Parent             *ParentRequest            `json:"parent"`
	Roles              caseroledomain.Assignment `json:"roles"`
	NotificationMatrix []matrixdomain.Override   `json:"notification_matrix"`
}

type UpdateCaseRequest struct {
	IsActive  *bool           `json:"is_active"`
	IsConsent *bool           `json:"is_consent"`
	Timezone  *string         `json:"timezone"`
	Patient   *PatientRequest `json:"patient"`
}

type ChangeDeviceRequest struct {
	OldDevice       string              `json:"old_device"`
	OldDeviceStatus devicedomain.Status `json:"old_device_status"`
	NewDevice       string              `json:"new_device"`
}

type ArchiveRequest struct {
	Cases []string `json:"cases"`
}

type ArchiveResult struct {
	Archived []string `json:"archived"`
	// Skipped lists cases that are still active or unknown.
	Skipped []string `json:"skipped"`
}

type ListCaseRequest struct {
	pagination.Pagination
	Account  string `form:"account"`
	IsActive *bool  `form:"is_active"`
	Search   string `form:"search"`
	// IncludeArchived is honoured for superusers only.
	IncludeArchived bool `form:"include_archived"`
}

type ListCaseResponse struct {
	pagination.PageInfo
	Cases []*Case `json:"cases"`
}

type CaseDetail struct {
	*Case
	Patient *Patient             `json:"patient"`
	Parent  *Parent              `json:"parent,omitempty"`
	Device  *devicedomain.Device `json:"device,omitempty"`
}

type Service interface {
	Create(ctx context.Context, req CreateCaseRequest) (*CaseDetail, error)
	List(ctx context.Context, req ListCaseRequest) (ListCaseResponse, error)
	Get(ctx context.Context, caseNo string) (*CaseDetail, error)
	Update(ctx context.Context, caseNo string, req UpdateCaseRequest) (*CaseDetail, error)
	Close(ctx context.Context, caseNo string) (*CaseDetail, error)
	ChangeDevice(ctx context.Context, caseNo string, req ChangeDeviceRequest) (*CaseDetail, error)
	Archive(ctx context.Context, req ArchiveRequest) (ArchiveResult, error)
	Unarchive(ctx context.Context, req ArchiveRequest) (ArchiveResult, error)
	// ListToArchive returns inactive, unarchived cases untouched since before.
	ListToArchive(ctx context.Context, before string) ([]*Case, error)

	Roles(ctx context.Context, caseNo string) (*caseroledomain.CaseRoles, error)
	UpdateRoles(ctx context.Context, caseNo string, desired caseroledomain.Assignment) (*caseroledomain.CaseRoles, error)
	Matrix(ctx context.Context, caseNo string) ([]matrixdomain.Entry, error)
	UpdateMatrix(ctx context.Context, caseNo string, overrides []matrixdomain.Override) ([]matrixdomain.Entry, error)

	// Lookup resolves a case for sibling services without a permission check.
	Lookup(ctx context.Context, caseNo string) (*Case, error)
	// Notify sends a case event to the recipients of the case matrix.
	Notify(ctx context.Context, c *Case, notificationType string, data map[string]any)
}

var (
	ErrCaseNotFound    = errors.New("case_not_found")
	ErrPatientNotFound = errors.New("patient_not_found")
	ErrParentNotFound  = errors.New("parent_not_found")

	ErrCaseNoTaken        = apperr.Conflict("Case number is already taken, retry")
	ErrDeviceNotOnCase    = apperr.Conflict("This device don't belong to this case")
	ErrDeviceWrongAccount = apperr.Conflict("Device does not belong to the case account")
	ErrCaseAlreadyClosed  = apperr.Conflict("Case is already closed")
	ErrCaseArchived       = apperr.Conflict("Case is archived")
	ErrNoActiveDevice     = apperr.Conflict("Case has no active device")
)
