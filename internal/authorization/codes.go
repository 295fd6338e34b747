package authorization

import (
	"sort"
	"strings"
)

// Code is a capability token granted to groups or case roles.
type Code string

const (
	AccountViewOwn                 Code = "account-view-own"
	AccountListAll                 Code = "account-list-all"
	AccountListSubsidiary          Code = "account-list-subsidiary"
	AccountListHQ                  Code = "account-list-hq"
	AccountListAssociated          Code = "account-list-associated"
	AccountViewDetailOwn           Code = "account-view-detail-own"
	AccountViewAllDetail           Code = "account-view-all-detail"
	AccountViewDetailSubsidiary    Code = "account-view-detail-subsidiary"
	AccountViewDetailAssociated    Code = "account-view-detail-associated"
	AccountViewDetailHQ            Code = "account-view-detail-hq"
	AccountViewDetailOwnSub        Code = "account-view-detail-own-sub"
	AccountViewDetailSubsidiarySub Code = "account-view-detail-subsidiary-sub"
	AccountEditOwn                 Code = "account-edit-own"
	AccountRequestAssociate        Code = "account-request-associate"
	AccountAssociate               Code = "account-associate"
	AccountInviteAssociate         Code = "account-invite-associate"
	ListSubsidiaryAccounts         Code = "list-subsidiary-accounts"
	ListAssociatedAccounts         Code = "list-associated-accounts"
	UploadAccount                  Code = "upload-account"

	UserViewOwnUser                 Code = "user-view-own-user"
	UserCreate                      Code = "user-create"
	UserInvite                      Code = "user-invite"
	UserListAccount                 Code = "user-list-account"
	UserListSubsidiary              Code = "user-list-subsidiary"
	UserListAssociated              Code = "user-list-associated"
	UserListHQ                      Code = "user-list-hq"
	UserListContacts                Code = "user-list-contacts"
	UserListAssociatedContacts      Code = "user-list-associated-contacts"
	UserViewDetailAccount           Code = "user-view-detail-account"
	UserViewDetailSubsidiary        Code = "user-view-detail-subsidiary"
	UserViewDetailAssociated        Code = "user-view-detail-associated"
	UserViewDetailHQ                Code = "user-view-detail-hq"
	UserViewDetailContact           Code = "user-view-detail-contact"
	UserViewDetailAssociatedContact Code = "user-view-detail-associated-contact"
	UserEditAccount                 Code = "user-edit-account"
	UserEditSubsidiary              Code = "user-edit-subsidiary"
	UserDeleteAccount               Code = "user-delete-account"
	UserDeleteSubsidiary            Code = "user-delete-subsidiary"

	DeviceListAccount          Code = "device-list-account"
	DeviceListSubsidiary       Code = "device-list-subsidiary"
	DeviceListHQ               Code = "device-list-hq"
	DeviceListAssociated       Code = "device-list-assc"
	DeviceListAssigned         Code = "device-list-assigned"
	DeviceViewDetailAccount    Code = "device-view-detail-account"
	DeviceViewDetailSubsidiary Code = "device-view-detail-subsidiary"
	DeviceViewDetailHQ         Code = "device-view-detail-hq"
	DeviceViewDetailAssociated Code = "device-view-detail-assc"
	DeviceViewDetailAssigned   Code = "device-view-detail-assigned"
	DeviceEditAccount          Code = "device-edit-account"
	DeviceEditSubsidiary       Code = "device-edit-subsidiary"
	DeviceViewRecordAccount    Code = "device-view-eqp-record-account"
	DeviceViewRecordSubsidiary Code = "device-view-eqp-record-subsidiary"
	DeviceViewRecordHQ         Code = "device-view-eqp-record-hq"
	DeviceViewRecordAssociated Code = "device-view-eqp-record-assc"
	DeviceEditRecordAccount    Code = "device-edit-eqp-record-account"
	DeviceEditRecordSubsidiary Code = "device-edit-eqp-record-subsidiary"
	UploadDevice               Code = "upload-device"

	CaseCreate                Code = "case-create"
	CaseListAccount           Code = "case-list-account"
	CaseListSubsidiary        Code = "case-list-subsidiary"
	CaseListAssigned          Code = "case-list-assigned"
	CaseListAssignedToUsers   Code = "case-list-assigned-to-users"
	CaseDetailAccount         Code = "case-detail-account"
	CaseDetailSubsidiary      Code = "case-detail-subsidiary"
	CaseDetailAssigned        Code = "case-detail-assigned"
	CaseDetailAssignedToUsers Code = "case-detail-assigned-to-users"
	CaseEditAccount           Code = "case-edit-account"
	CaseEditSubsidiary        Code = "case-edit-subsidiary"
	CaseEditAssigned          Code = "case-edit-assigned"

	CaseRoleAccount         Code = "case-role-account"
	CaseRoleSubsidiary      Code = "case-role-subsidiary"
	CaseRoleAssigned        Code = "case-role-assigned"
	CaseRoleAssignedToUsers Code = "case-role-assigned-to-users"
	CaseRoleEditAccount     Code = "case-role-edit-account"
	CaseRoleEditSubsidiary  Code = "case-role-edit-subsidiary"
	CaseRoleEditAssigned    Code = "case-role-edit-assigned"

	CaseNoteAccount         Code = "case-note-account"
	CaseNoteSubsidiary      Code = "case-note-subsidiary"
	CaseNoteAssigned        Code = "case-note-assigned"
	CaseNoteAssignedToUsers Code = "case-note-assigned-to-users"
	CaseNoteEditAccount     Code = "case-note-edit-account"
	CaseNoteEditSubsidiary  Code = "case-note-edit-subsidiary"
	CaseNoteEditAssigned    Code = "case-note-edit-assigned"

	CaseInterpretationAccount          Code = "case-interpretation-account"
	CaseInterpretationSubsidiary       Code = "case-interpretation-subsidiary"
	CaseInterpretationAssigned         Code = "case-interpretation-assigned"
	CaseInterpretationAssignedToUsers  Code = "case-interpretation-assigned-to-users"
	CaseInterpretationCreateAccount    Code = "case-interpretation-create-account"
	CaseInterpretationCreateSubsidiary Code = "case-interpretation-create-subsidiary"
	CaseInterpretationCreateAssigned   Code = "case-interpretation-create-assigned"
	CaseInterpretationEditAccount      Code = "case-interpretation-edit-account"
	CaseInterpretationEditSubsidiary   Code = "case-interpretation-edit-subsidiary"
	CaseInterpretationEditAssigned     Code = "case-interpretation-edit-assigned"

	CaseMatrixAccount         Code = "case-notification-matrix-account"
	CaseMatrixSubsidiary      Code = "case-notification-matrix-subsidiary"
	CaseMatrixAssigned        Code = "case-notification-matrix-assigned"
	CaseMatrixAssignedToUsers Code = "case-notification-matrix-assigned-to-users"
	CaseMatrixEditAccount     Code = "case-notification-matrix-edit-account"
	CaseMatrixEditSubsidiary  Code = "case-notification-matrix-edit-subsidiary"
	CaseMatrixEditAssigned    Code = "case-notification-matrix-edit-assigned"

	CasePatientEditAccount    Code = "case-patient-edit-account"
	CasePatientEditSubsidiary Code = "case-patient-edit-subsidiary"
	CasePatientEditAssigned   Code = "case-patient-edit-assigned"
	CaseParentEditAccount     Code = "case-parent-edit-account"
	CaseParentEditSubsidiary  Code = "case-parent-edit-subsidiary"
	CaseParentEditAssigned    Code = "case-parent-edit-assigned"

	DefaultNotificationMatrix Code = "default-notification-matrix"
)

// CodeInfo describes one catalog entry.
type CodeInfo struct {
	Code        Code   `json:"code"`
	Family      string `json:"family"`
	Description string `json:"description"`
}

var catalog = map[Code]string{
	AccountViewOwn:                 "List own account",
	AccountListAll:                 "List all accounts",
	AccountListSubsidiary:          "List subsidiary accounts",
	AccountListHQ:                  "List HQ account",
	AccountListAssociated:          "List associated accounts",
	AccountViewDetailOwn:           "View own account detail",
	AccountViewAllDetail:           "View any account detail",
	AccountViewDetailSubsidiary:    "View subsidiary account detail",
	AccountViewDetailAssociated:    "View associated account detail",
	AccountViewDetailHQ:            "View HQ account detail",
	AccountViewDetailOwnSub:        "View own account subscription",
	AccountViewDetailSubsidiarySub: "View subsidiary account subscription",
	AccountEditOwn:                 "Edit own account",
	AccountRequestAssociate:        "Ask the account admin to associate an account",
	AccountAssociate:               "Request, accept and remove account associations",
	AccountInviteAssociate:         "Invite contacts to associate",
	ListSubsidiaryAccounts:         "List direct subsidiaries",
	ListAssociatedAccounts:         "List accounts associated with the own account",
	UploadAccount:                  "Bulk upload accounts",

	UserViewOwnUser:                 "View own user",
	UserCreate:                      "Create users",
	UserInvite:                      "Invite users",
	UserListAccount:                 "List users of own account",
	UserListSubsidiary:              "List users of subsidiary accounts",
	UserListAssociated:              "List users of associated accounts",
	UserListHQ:                      "List users of the HQ account",
	UserListContacts:                "List contacts of own account",
	UserListAssociatedContacts:      "List contacts of associated accounts",
	UserViewDetailAccount:           "View users of own account",
	UserViewDetailSubsidiary:        "View users of subsidiary accounts",
	UserViewDetailAssociated:        "View users of associated accounts",
	UserViewDetailHQ:                "View users of the HQ account",
	UserViewDetailContact:           "View contacts of own account",
	UserViewDetailAssociatedContact: "View contacts of associated accounts",
	UserEditAccount:                 "Edit users of own account",
	UserEditSubsidiary:              "Edit users of subsidiary accounts",
	UserDeleteAccount:               "Delete users of own account",
	UserDeleteSubsidiary:            "Delete users of subsidiary accounts",

	DeviceListAccount:          "List devices of own account",
	DeviceListSubsidiary:       "List devices of subsidiary accounts",
	DeviceListHQ:               "List devices of the HQ account",
	DeviceListAssociated:       "List devices of associated accounts",
	DeviceListAssigned:         "List devices of assigned cases",
	DeviceViewDetailAccount:    "View devices of own account",
	DeviceViewDetailSubsidiary: "View devices of subsidiary accounts",
	DeviceViewDetailHQ:         "View devices of the HQ account",
	DeviceViewDetailAssociated: "View devices of associated accounts",
	DeviceViewDetailAssigned:   "View devices of assigned cases",
	DeviceEditAccount:          "Edit devices of own account",
	DeviceEditSubsidiary:       "Edit devices of subsidiary accounts",
	DeviceViewRecordAccount:    "View equipment records of own account",
	DeviceViewRecordSubsidiary: "View equipment records of subsidiary accounts",
	DeviceViewRecordHQ:         "View equipment records of the HQ account",
	DeviceViewRecordAssociated: "View equipment records of associated accounts",
	DeviceEditRecordAccount:    "Edit equipment records of own account",
	DeviceEditRecordSubsidiary: "Edit equipment records of subsidiary accounts",
	UploadDevice:               "Bulk upload devices",

	CaseCreate:                "Create cases",
	CaseListAccount:           "List cases of own account",
	CaseListSubsidiary:        "List cases of subsidiary accounts",
	CaseListAssigned:          "List cases assigned to me",
	CaseListAssignedToUsers:   "List cases assigned to users of own account",
	CaseDetailAccount:         "View cases of own account",
	CaseDetailSubsidiary:      "View cases of subsidiary accounts",
	CaseDetailAssigned:        "View cases assigned to me",
	CaseDetailAssignedToUsers: "View cases assigned to users of own account",
	CaseEditAccount:           "Edit cases of own account",
	CaseEditSubsidiary:        "Edit cases of subsidiary accounts",
	CaseEditAssigned:          "Edit cases assigned to me",

	CaseRoleAccount:         "View case roles of own account",
	CaseRoleSubsidiary:      "View case roles of subsidiary accounts",
	CaseRoleAssigned:        "View case roles of assigned cases",
	CaseRoleAssignedToUsers: "View case roles of cases assigned to users of own account",
	CaseRoleEditAccount:     "Edit case roles of own account",
	CaseRoleEditSubsidiary:  "Edit case roles of subsidiary accounts",
	CaseRoleEditAssigned:    "Edit case roles of assigned cases",

	CaseNoteAccount:         "View case notes of own account",
	CaseNoteSubsidiary:      "View case notes of subsidiary accounts",
	CaseNoteAssigned:        "View case notes of assigned cases",
	CaseNoteAssignedToUsers: "View case notes of cases assigned to users of own account",
	CaseNoteEditAccount:     "Write case notes of own account",
	CaseNoteEditSubsidiary:  "Write case notes of subsidiary accounts",
	CaseNoteEditAssigned:    "Write case notes of assigned cases",

	CaseInterpretationAccount:          "View interpretations of own account",
	CaseInterpretationSubsidiary:       "View interpretations of subsidiary accounts",
	CaseInterpretationAssigned:         "View interpretations of assigned cases",
	CaseInterpretationAssignedToUsers:  "View interpretations of cases assigned to users of own account",
	CaseInterpretationCreateAccount:    "Create interpretations of own account",
	CaseInterpretationCreateSubsidiary: "Create interpretations of subsidiary accounts",
	CaseInterpretationCreateAssigned:   "Create interpretations of assigned cases",
	CaseInterpretationEditAccount:      "Approve interpretations of own account",
	CaseInterpretationEditSubsidiary:   "Approve interpretations of subsidiary accounts",
	CaseInterpretationEditAssigned:     "Approve interpretations of assigned cases",

	CaseMatrixAccount:         "View case notification matrix of own account",
	CaseMatrixSubsidiary:      "View case notification matrix of subsidiary accounts",
	CaseMatrixAssigned:        "View case notification matrix of assigned cases",
	CaseMatrixAssignedToUsers: "View case notification matrix of cases assigned to users of own account",
	CaseMatrixEditAccount:     "Edit case notification matrix of own account",
	CaseMatrixEditSubsidiary:  "Edit case notification matrix of subsidiary accounts",
	CaseMatrixEditAssigned:    "Edit case notification matrix of assigned cases",

	CasePatientEditAccount:    "Edit patients of own account",
	CasePatientEditSubsidiary: "Edit patients of subsidiary accounts",
	CasePatientEditAssigned:   "Edit patients of assigned cases",
	CaseParentEditAccount:     "Edit case parents of own account",
	CaseParentEditSubsidiary:  "Edit case parents of subsidiary accounts",
	CaseParentEditAssigned:    "Edit case parents of assigned cases",

	DefaultNotificationMatrix: "Manage the default notification matrix",
}

// Catalog lists every known code sorted by code.
func Catalog() []CodeInfo {
	out := make([]CodeInfo, 0, len(catalog))
	for code, desc := range catalog {
		out = append(out, CodeInfo{Code: code, Family: family(code), Description: desc})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// Known reports whether code is part of the catalog.
func Known(code Code) bool {
	_, ok := catalog[code]
	return ok
}

func family(code Code) string {
	s := string(code)
	for _, prefix := range []string{
		"case-notification-matrix", "case-interpretation", "case-patient", "case-parent",
		"case-role", "case-note", "default-notification-matrix",
	} {
		if strings.HasPrefix(s, prefix) {
			return prefix
		}
	}
	switch {
	case strings.HasPrefix(s, "list-"), strings.HasPrefix(s, "upload-account"):
		return "account"
	case strings.HasPrefix(s, "upload-device"):
		return "device"
	}
	if i := strings.Index(s, "-"); i > 0 {
		return s[:i]
	}
	return s
}

// CodeSet is a resolved set of codes. The zero value holds nothing.
type CodeSet struct {
	all   bool
	codes map[Code]struct{}
}

// AllCodes is held by superusers.
func AllCodes() CodeSet {
	return CodeSet{all: true}
}

func NewCodeSet(codes ...Code) CodeSet {
	set := CodeSet{codes: make(map[Code]struct{}, len(codes))}
	for _, code := range codes {
		set.codes[code] = struct{}{}
	}
	return set
}

func (s CodeSet) Has(code Code) bool {
	if s.all {
		return true
	}
	_, ok := s.codes[code]
	return ok
}

// HasAny reports whether at least one of codes is held.
func (s CodeSet) HasAny(codes ...Code) bool {
	for _, code := range codes {
		if s.Has(code) {
			return true
		}
	}
	return false
}

func (s CodeSet) IsAll() bool { return s.all }

func (s CodeSet) Len() int { return len(s.codes) }

// Union returns a set holding the codes of both.
func (s CodeSet) Union(other CodeSet) CodeSet {
	if s.all || other.all {
		return AllCodes()
	}
	out := NewCodeSet()
	for code := range s.codes {
		out.codes[code] = struct{}{}
	}
	for code := range other.codes {
		out.codes[code] = struct{}{}
	}
	return out
}

// Codes returns the held codes sorted; for the universal set it returns the catalog.
func (s CodeSet) Codes() []Code {
	var out []Code
	if s.all {
		out = make([]Code, 0, len(catalog))
		for code := range catalog {
			out = append(out, code)
		}
	} else {
		out = make([]Code, 0, len(s.codes))
		for code := range s.codes {
			out = append(out, code)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
