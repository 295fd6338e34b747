package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/caseline/internal/authorization"
)

const (
	RoleCaseManager           = "Case Manager"
	RoleScorer                = "Scorer"
	RoleInterpretingPhysician = "Interpreting Physician"
	RoleReferringPhysician    = "Referring Physician"
	RoleSpecialist            = "Specialist"
	RolePediatrician          = "Pediatrician / Family Doctor"
	RoleParent                = "Parent"
)

// DefaultRoles lists the case roles in display order.
var DefaultRoles = []string{
	RoleCaseManager,
	RoleScorer,
	RoleInterpretingPhysician,
	RoleReferringPhysician,
	RoleSpecialist,
	RolePediatrician,
	RoleParent,
}

// DefaultRoleCodes are the case-scoped codes each role grants on its case.
var DefaultRoleCodes = map[string][]authorization.Code{
	RoleCaseManager: {
		authorization.CaseEditAssigned,
		authorization.CaseRoleEditAssigned,
		authorization.CaseNoteEditAssigned,
		authorization.CaseMatrixEditAssigned,
		authorization.CasePatientEditAssigned,
		authorization.CaseParentEditAssigned,
	},
	RoleScorer: {
		authorization.CaseInterpretationCreateAssigned,
		authorization.CaseNoteEditAssigned,
	},
	RoleInterpretingPhysician: {
		authorization.CaseInterpretationCreateAssigned,
		authorization.CaseInterpretationEditAssigned,
		authorization.CaseNoteEditAssigned,
	},
	RoleReferringPhysician: {authorization.CaseNoteEditAssigned},
	RoleSpecialist:         {authorization.CaseNoteEditAssigned},
	RolePediatrician:       {authorization.CaseNoteEditAssigned},
}

type DefaultRole struct {
	ID        snowflake.ID `gorm:"primaryKey" json:"id"`
	Name      string       `gorm:"type:varchar(255);not null;uniqueIndex" json:"name"`
	Slug      string       `gorm:"type:varchar(255);not null;uniqueIndex" json:"slug"`
	CreatedAt time.Time    `gorm:"not null" json:"created_at"`
}

func (DefaultRole) TableName() string { return "case_default_roles" }

// CaseRole is one user holding one role on one case.
type CaseRole struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	CaseID        snowflake.ID `gorm:"not null;index" json:"case_id"`
	DefaultRoleID snowflake.ID `gorm:"column:case_default_role_id;not null;index" json:"case_default_role_id"`
	UserID        snowflake.ID `gorm:"not null;index" json:"user_id"`
	CreatedAt     time.Time    `gorm:"not null" json:"created_at"`
}

func (CaseRole) TableName() string { return "case_roles" }

type CasePermission struct {
	ID   snowflake.ID `gorm:"primaryKey" json:"id"`
	Code string       `gorm:"type:varchar(255);not null;uniqueIndex" json:"code"`
}

func (CasePermission) TableName() string { return "case_permissions" }

type CaseRolePermission struct {
	ID            snowflake.ID `gorm:"primaryKey" json:"id"`
	DefaultRoleID snowflake.ID `gorm:"column:case_default_role_id;not null;index" json:"case_default_role_id"`
	PermissionID  snowflake.ID `gorm:"column:case_permission_id;not null" json:"case_permission_id"`
}

func (CaseRolePermission) TableName() string { return "case_role_permissions" }

// CaseRef is the part of a case role reconciliation needs.
type CaseRef struct {
	ID        snowflake.ID
	AccountID snowflake.ID
	CaseNo    string
	Slug      string
}

// Change is one user gaining or losing one role.
type Change struct {
	Role   string       `json:"role"`
	UserID snowflake.ID `json:"user_id"`
}

// Result is what a reconciliation wrote. Publish it after commit.
type Result struct {
	Case         CaseRef
	Unassigned   []Change
	Assigned     []Change
	ParentUserID *snowflake.ID
}

func (r *Result) Empty() bool {
	return r == nil || (len(r.Unassigned) == 0 && len(r.Assigned) == 0)
}

type Member struct {
	ID   snowflake.ID `json:"id"`
	Slug string       `json:"slug"`
	Name string       `json:"name"`
}

// CaseRoles groups the role holders of a case. Parent holds at most one user.
type CaseRoles struct {
	Roles  map[string][]Member `json:"roles"`
	Parent *Member             `json:"parent"`
}
